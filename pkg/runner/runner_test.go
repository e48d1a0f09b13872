package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/osapanel/pkg/result"
)

// fakeTool mimics the analysis tool: it echoes to both streams, writes two
// reports and an about section into --output and exits with $EXIT_CODE.
const fakeTool = `#!/bin/sh
printf '%s\n' "$@" > "$ARGS_FILE"
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "starting analysis"
echo "warning on stderr" 1>&2
echo "token=$GIT_TOKEN key=$OSA_API_KEY"
touch "$out/b.pdf" "$out/a.pdf"
printf 'Generated about section\n' > "$out/about_section.md"
i=0
while [ $i -lt 12 ]; do
  echo "step $i"
  i=$((i+1))
done
exit ${EXIT_CODE:-0}
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func newTestRunner(t *testing.T, script string, env ...string) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	r := New(Options{
		Binary:  writeScript(t, dir, "osa_tool", script),
		WorkDir: dir,
		Token:   "ghp_supersecret",
		Env:     append([]string{"ARGS_FILE=" + argsFile}, env...),
	})
	return r, argsFile
}

func TestInvokeSuccess(t *testing.T) {
	r, argsFile := newTestRunner(t, fakeTool)
	assert.Equal(t, StateIdle, r.State())

	cfg := buildConfig(t, "basic", nil)
	res, err := r.Invoke(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Succeeded)
	assert.Equal(t, result.MessageSuccess, res.Message)
	assert.False(t, res.TimedOut)
	assert.Equal(t, StateCompleted, r.State())

	require.Len(t, res.ReportFiles, 2)
	assert.Equal(t, "a.pdf", res.ReportFiles[0].DisplayName)
	assert.Equal(t, "b.pdf", res.ReportFiles[1].DisplayName)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Generated about section", *res.Summary)

	assert.Contains(t, res.Log, "starting analysis\n")
	assert.Contains(t, res.Log, "warning on stderr\n")
	assert.Contains(t, res.Log, "token=*** key=***")
	assert.NotContains(t, res.Log, "ghp_supersecret")
	assert.NotContains(t, res.Log, "sk-secret")
	assert.Less(t, strings.Index(res.Log, "starting analysis"), strings.Index(res.Log, "step 0"))
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	argv, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(argv), "--repository\nhttps://github.com/aimclub/OSA\n")
	assert.Contains(t, string(argv), "--web-mode\n--delete-dir\n")
	assert.NotContains(t, string(argv), "sk-secret")

	// Each run writes to its own output directory inside the work dir.
	assert.Equal(t, filepath.Dir(filepath.Dir(res.ReportFiles[0].Path)), r.opts.WorkDir)
}

func TestInvokeFailureMessageHasLogTail(t *testing.T) {
	r, _ := newTestRunner(t, fakeTool, "EXIT_CODE=3")

	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Succeeded)
	assert.True(t, strings.HasPrefix(res.Message, result.MessageFailure))
	assert.Contains(t, res.Message, "step 11")
	assert.NotContains(t, res.Message, "starting analysis")
	assert.Len(t, strings.Split(res.Message, "\n"), 1+failureTailLines)

	// Reports written before the failure are still listed.
	assert.Len(t, res.ReportFiles, 2)
}

func TestInvokeLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Binary: filepath.Join(dir, "does-not-exist"), WorkDir: dir})

	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)
	assert.Equal(t, ExitLaunchFailure, res.ExitCode)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Log, "failed to launch")
	assert.Empty(t, res.ReportFiles)
	assert.Equal(t, StateCompleted, r.State())
}

func TestInvokeMissingWorkDir(t *testing.T) {
	r := New(Options{Binary: "/bin/true", WorkDir: filepath.Join(t.TempDir(), "gone")})

	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)
	assert.Equal(t, ExitLaunchFailure, res.ExitCode)
	assert.Contains(t, res.Log, "create output directory")
	assert.NotEmpty(t, res.Message)
}

func TestInvokeTimeout(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{
		Binary:  writeScript(t, dir, "slow", "#!/bin/sh\necho begin\nexec sleep 5\n"),
		WorkDir: dir,
		Timeout: 200 * time.Millisecond,
	})

	start := time.Now()
	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.True(t, res.TimedOut)
	assert.Equal(t, result.MessageTimeout, res.Message)
	assert.Contains(t, res.Log, "begin\n")
	assert.Contains(t, res.Log, "timed out")
}

func TestStartRejectsReentrantCall(t *testing.T) {
	dir := t.TempDir()
	release := filepath.Join(dir, "release")
	script := "#!/bin/sh\necho waiting\nwhile [ ! -f \"" + release + "\" ]; do sleep 0.05; done\necho released\n"
	r := New(Options{Binary: writeScript(t, dir, "gate", script), WorkDir: dir})
	cfg := buildConfig(t, "basic", nil)

	lines, handle, err := r.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, r.State())

	first := <-lines
	assert.Equal(t, "waiting", first.Text)

	_, _, err = r.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrReentrant)
	_, err = r.Invoke(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrReentrant)
	assert.Equal(t, "waiting\n", r.Log())

	require.NoError(t, os.WriteFile(release, nil, 0o644))

	var rest []string
	for l := range lines {
		rest = append(rest, l.Text)
	}
	assert.Equal(t, []string{"released"}, rest)

	<-handle.Done()
	res, err := handle.Result()
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, StateCompleted, r.State())

	// A completed runner accepts the next job.
	res, err = r.Invoke(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
}

// mockExecutor records calls and replays canned output.
type mockExecutor struct {
	mu       sync.Mutex
	calls    []mockCall
	output   string
	exitCode int
	err      error
}

type mockCall struct {
	Name string
	Args []string
	Opts ExecOptions
}

func (m *mockExecutor) Run(_ context.Context, name string, args []string, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Name: name, Args: args, Opts: opts})
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if opts.Output != nil {
		_, _ = io.WriteString(opts.Output, m.output)
	}
	return &ExecResult{ExitCode: m.exitCode}, nil
}

func TestInvokeWithMockExecutor(t *testing.T) {
	mock := &mockExecutor{output: "one\r\ntwo\npartial", exitCode: 1}
	r := New(Options{
		WorkDir:   t.TempDir(),
		Token:     "ghp_token",
		ExtraArgs: []string{"-m", "osa_tool.run"},
		Executor:  mock,
	})

	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)

	require.Len(t, mock.calls, 1)
	call := mock.calls[0]
	assert.Equal(t, DefaultBinary, call.Name)
	assert.Equal(t, []string{"-m", "osa_tool.run", "--repository"}, call.Args[:3])
	assert.Contains(t, call.Opts.Env, "GIT_TOKEN=ghp_token")
	assert.Contains(t, call.Opts.Env, "OSA_API_KEY=sk-secret")

	assert.Equal(t, "one\ntwo\npartial\n", res.Log)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, result.MessageFailure+"\none\ntwo\npartial", res.Message)
}

func TestInvokeExecutorError(t *testing.T) {
	mock := &mockExecutor{err: errors.New("permission denied")}
	r := New(Options{WorkDir: t.TempDir(), Executor: mock})

	res, err := r.Invoke(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)
	assert.Equal(t, ExitLaunchFailure, res.ExitCode)
	assert.Contains(t, res.Log, "permission denied")
}

func TestInvokeCanceledContext(t *testing.T) {
	mock := &mockExecutor{}
	r := New(Options{WorkDir: t.TempDir(), Executor: mock})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Invoke(ctx, buildConfig(t, "basic", nil))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
}

func TestInvokeInterrupted(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{
		Binary:  writeScript(t, dir, "slow", "#!/bin/sh\necho begin\nexec sleep 5\n"),
		WorkDir: dir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	lines, handle, err := r.Start(ctx, buildConfig(t, "basic", nil))
	require.NoError(t, err)
	assert.Equal(t, "begin", (<-lines).Text)
	cancel()
	for range lines {
	}

	res, err := handle.Result()
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, ExitInterrupted, res.ExitCode)
	assert.True(t, res.Interrupted)
	assert.False(t, res.TimedOut)
	assert.Equal(t, result.MessageInterrupted, res.Message)
	assert.Contains(t, res.Log, "interrupted")
}

func TestStartStreamsCarriageReturnProgress(t *testing.T) {
	dir := t.TempDir()
	release := filepath.Join(dir, "release")
	script := "#!/bin/sh\n" +
		"i=0\nwhile [ $i -lt 20 ]; do printf '\\rprogress %d%%' $i; i=$((i+1)); done\n" +
		"while [ ! -f \"" + release + "\" ]; do sleep 0.05; done\n" +
		"printf '\\rprogress 100%%\\n'\n"
	r := New(Options{Binary: writeScript(t, dir, "progress", script), WorkDir: dir, MaxLogBytes: 64})

	lines, handle, err := r.Start(context.Background(), buildConfig(t, "basic", nil))
	require.NoError(t, err)

	var got []string
	for len(got) < 19 {
		got = append(got, (<-lines).Text)
	}
	assert.Equal(t, "progress 0%", got[0])
	assert.Equal(t, "progress 18%", got[18])

	live := r.Log()
	assert.NotEmpty(t, live)
	assert.NotContains(t, live, "\r")
	assert.LessOrEqual(t, len(live), 64)

	require.NoError(t, os.WriteFile(release, nil, 0o644))
	for l := range lines {
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"progress 19%", "progress 100%"}, got[19:])

	res, err := handle.Result()
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.NotContains(t, res.Log, "\r")
	assert.True(t, strings.HasSuffix(res.Log, "progress 100%\n"))
	assert.Contains(t, res.Warnings, "log output was truncated")
}
