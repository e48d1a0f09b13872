package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/osapanel/pkg/config"
	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	consolefmt "github.com/greg-hellings/osapanel/pkg/report/format"
	"github.com/greg-hellings/osapanel/pkg/result"
	"github.com/greg-hellings/osapanel/pkg/runner"
	"github.com/greg-hellings/osapanel/pkg/session"
	"github.com/greg-hellings/osapanel/pkg/state"
)

// run command flags
type runCmdFlags struct {
	mode           string
	set            []string
	attachmentURL  string
	attachmentFile string
	outputFormat   string
	outputFile     string
	reportsDir     string
	noColor        bool
	logLines       int
	jsonIndent     bool
	stream         bool
	timeout        time.Duration
	tool           string
	preflight      bool
	remember       bool
	recall         bool
	stateFile      string
}

var runFlags runCmdFlags

func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run [repository-url]",
		Short: "Run the analysis tool against a repository",
		Long: strings.TrimSpace(`
Run the analysis tool once against a repository and print the result.

Feature flags are set with --set group.option=value; see 'osapanel flags' for
the full list. The git token is read from $GIT_TOKEN and the LLM key from
$OSA_API_KEY. Generated reports are copied to --reports-dir before the
session directory is removed.

With --recall the repository, mode, flags and article URL of the last
remembered run are used as a starting point; --remember stores this run's
inputs for next time.

Formats:
  console (default) - status, report table, About section and log tail
  json              - machine-readable JSON

Examples:
  osapanel run https://github.com/aimclub/OSA
  osapanel run https://github.com/aimclub/OSA --mode advanced --set general.readme=true
  osapanel run https://gitlab.com/group/project --attachment-file paper.pdf --stream
  osapanel run --recall --format json --json-indent
`),
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}

	c.Flags().StringVarP(&runFlags.mode, "mode", "m", string(jobconfig.ModeBasic), "Run mode: basic|advanced|auto")
	c.Flags().StringArrayVarP(&runFlags.set, "set", "s", nil, "Set a feature flag (group.option=value); repeatable")
	c.Flags().StringVar(&runFlags.attachmentURL, "attachment-url", "", "Article URL handed to the tool")
	c.Flags().StringVar(&runFlags.attachmentFile, "attachment-file", "", "Article file (.pdf, .docx) handed to the tool")
	c.Flags().StringVarP(&runFlags.outputFormat, "format", "f", "console", "Output format: console|json")
	c.Flags().StringVarP(&runFlags.outputFile, "out", "o", "", "Write output to file instead of stdout")
	c.Flags().StringVar(&runFlags.reportsDir, "reports-dir", ".", "Directory generated reports are copied to")
	c.Flags().BoolVar(&runFlags.noColor, "no-color", false, "Disable ANSI colors (console format)")
	c.Flags().IntVar(&runFlags.logLines, "log-lines", 10, "Trailing log lines to print (console format; -1=all, 0=none)")
	c.Flags().BoolVar(&runFlags.jsonIndent, "json-indent", false, "Pretty-print JSON output")
	c.Flags().BoolVar(&runFlags.stream, "stream", false, "Print tool output to stderr while it runs")
	c.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "Stop the tool after this duration (0=config value)")
	c.Flags().StringVar(&runFlags.tool, "tool", "", "Analysis tool executable (overrides config)")
	c.Flags().BoolVar(&runFlags.preflight, "preflight", true, "Check that the repository is reachable and suggest settings before running")
	c.Flags().BoolVar(&runFlags.remember, "remember", false, "Remember this run's inputs")
	c.Flags().BoolVar(&runFlags.recall, "recall", false, "Start from the last remembered inputs")
	c.Flags().StringVar(&runFlags.stateFile, "state-file", "", "Panel state file (default: user config dir)")

	return c
}

func runRun(cmd *cobra.Command, args []string) error {
	repoURL := ""
	if len(args) == 1 {
		repoURL = args[0]
	}
	if runFlags.attachmentURL != "" && runFlags.attachmentFile != "" {
		return errors.New("--attachment-url and --attachment-file are mutually exclusive")
	}
	format := strings.ToLower(runFlags.outputFormat)
	if format != "console" && format != "json" {
		return fmt.Errorf("unsupported format: %s", runFlags.outputFormat)
	}

	overrides, err := parseSetFlags(runFlags.set)
	if err != nil {
		return err
	}

	var st *state.PanelState
	if runFlags.recall || runFlags.remember {
		st, err = state.LoadPanelState(runFlags.stateFile)
		if err != nil {
			return fmt.Errorf("failed to load panel state: %w", err)
		}
	}

	raw := jobconfig.RawInputs{RepositoryURL: repoURL, Mode: runFlags.mode, Flags: overrides}
	attachmentURL := runFlags.attachmentURL
	if runFlags.recall {
		raw = st.Inputs(repoURL, overrides)
		if cmd.Flags().Changed("mode") {
			raw.Mode = runFlags.mode
		}
		if attachmentURL == "" && runFlags.attachmentFile == "" {
			attachmentURL = st.LastAttachmentURL
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.New(sessionOptions(panelConfig, !runFlags.preflight))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("Failed to clean up session", "error", err)
		}
	}()

	if err := resolveAttachment(sess, attachmentURL, runFlags.attachmentFile); err != nil {
		return err
	}

	// Validate before probing so bad input fails fast.
	if _, err := sess.Build(raw); err != nil {
		return err
	}

	// Session warnings such as a missing token reach the user through the
	// result.
	var notices []string
	if runFlags.preflight {
		notices = sess.Preflight(ctx, raw.RepositoryURL)
	}
	for _, n := range notices {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", n)
	}

	slog.Info("Starting run", "repository", raw.RepositoryURL, "mode", raw.Mode, "session", sess.ID())

	lines, run, err := sess.Start(ctx, raw)
	if err != nil {
		return err
	}
	for line := range lines {
		if runFlags.stream {
			fmt.Fprintln(cmd.ErrOrStderr(), line.Text)
		}
	}
	res, runErr := run.Wait()
	if runErr != nil {
		slog.Warn("Run interrupted", "error", runErr)
	}

	if err := copyReports(res, runFlags.reportsDir); err != nil {
		return err
	}

	if runFlags.remember {
		st.Remember(run.Config)
		if err := state.SavePanelState(st, runFlags.stateFile); err != nil {
			slog.Warn("Failed to save panel state", "error", err)
		}
	}

	var outWriter io.WriteCloser = stdOutWriteCloser{w: cmd.OutOrStdout()}
	if runFlags.outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(runFlags.outputFile), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(runFlags.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		outWriter = f
	}
	defer outWriter.Close()

	switch format {
	case "console":
		if err := renderConsole(res, outWriter); err != nil {
			return fmt.Errorf("failed to render console output: %w", err)
		}
	case "json":
		if err := renderJSON(sess.ID(), run.Config, res, notices, outWriter); err != nil {
			return fmt.Errorf("failed to render JSON output: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !res.Succeeded {
		return fmt.Errorf("analysis tool failed with exit code %d", res.ExitCode)
	}
	return nil
}

// sessionOptions maps the panel configuration onto a session template.
func sessionOptions(cfg *config.Config, disableProbe bool) session.Options {
	ropts := runner.Options{
		Binary:         cfg.Tool.Binary,
		ExtraArgs:      cfg.Tool.Args,
		Timeout:        cfg.Tool.TimeoutDuration(),
		ReportPatterns: cfg.Tool.ReportPatterns,
		SummaryFile:    cfg.Tool.SummaryFile,
		MaxLogBytes:    cfg.Tool.MaxLogBytes,
	}
	if runFlags.tool != "" {
		ropts.Binary = runFlags.tool
	}
	if runFlags.timeout > 0 {
		ropts.Timeout = runFlags.timeout
	}
	return session.Options{
		BaseDir:      cfg.TmpDir(),
		Runner:       ropts,
		DisableProbe: disableProbe,
	}
}

// parseSetFlags turns "group.option=value" pairs into raw flag values.
func parseSetFlags(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected group.option=value", p)
		}
		key = strings.TrimSpace(key)
		if _, err := jobconfig.ParseKey(key); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func resolveAttachment(sess *session.Session, url, file string) error {
	switch {
	case url != "":
		_, err := sess.Attachments().Resolve(jobconfig.AttachmentURL, url, nil)
		return err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		_, err = sess.Attachments().Resolve(jobconfig.AttachmentFile, file, data)
		return err
	}
	return nil
}

// maxCopySuffix bounds the numbered names tried for a report copy.
const maxCopySuffix = 1000

// copyReports moves generated reports out of the session directory and
// points res at the copies. Existing files are never overwritten; a report
// whose name is taken is copied as name-1.ext, name-2.ext and so on.
func copyReports(res *result.Result, dir string) error {
	if len(res.ReportFiles) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	for i, rf := range res.ReportFiles {
		dst, err := copyFile(rf.Path, dir, rf.DisplayName)
		if err != nil {
			return fmt.Errorf("failed to copy report %s: %w", rf.DisplayName, err)
		}
		if filepath.Base(dst) != rf.DisplayName {
			slog.Warn("Report name already taken, copied under a new name", "report", rf.DisplayName, "path", dst)
		}
		res.ReportFiles[i].Path = dst
	}
	return nil
}

// copyFile copies src into dir as name, or the first free numbered variant
// of name, and returns the destination path.
func copyFile(src, dir, name string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, dst, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	return dst, out.Close()
}

func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n <= maxCopySuffix; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		dst := filepath.Join(dir, candidate)
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, dst, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// renderConsole renders the result using the console formatter.
func renderConsole(res *result.Result, w io.Writer) error {
	formatter := consolefmt.NewConsoleFormatter()
	formatter.EnableColors = !runFlags.noColor
	formatter.LogTailLines = runFlags.logLines
	return formatter.Render(res, w)
}

// jsonOutput is the structured JSON shape we emit.
type jsonOutput struct {
	Version       string                  `json:"cliVersion"`
	GeneratedAt   time.Time               `json:"generatedAt"`
	SessionID     string                  `json:"sessionId"`
	Configuration jobconfig.Configuration `json:"configuration"`
	Result        *result.Result          `json:"result"`
	Notices       []string                `json:"notices,omitempty"`
}

// renderJSON marshals the result with additional metadata.
func renderJSON(sessionID string, cfg jobconfig.Configuration, res *result.Result, notices []string, w io.Writer) error {
	payload := jsonOutput{
		Version:       version,
		GeneratedAt:   time.Now().UTC(),
		SessionID:     sessionID,
		Configuration: cfg,
		Result:        res,
		Notices:       notices,
	}

	var data []byte
	var err error
	if runFlags.jsonIndent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}
