// Package session ties the job pipeline together for one user of the panel.
//
// A Session owns a scoped temp directory, the attachment resolver writing
// into it, a runner and the result store. Sessions share no mutable state, so
// any number of them can run side by side.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/greg-hellings/osapanel/pkg/attachment"
	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	"github.com/greg-hellings/osapanel/pkg/repository"
	"github.com/greg-hellings/osapanel/pkg/result"
	"github.com/greg-hellings/osapanel/pkg/runner"
	"github.com/greg-hellings/osapanel/pkg/state"
)

// MissingTokenWarning is reported when no git token could be resolved.
const MissingTokenWarning = "No git token configured (set " + state.TokenEnvVar + "): private repositories cannot be analyzed and no pull request can be opened."

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session is closed")

// Prober creates repository clients for pre-flight checks.
// *repository.Factory implements it.
type Prober interface {
	ClientFor(loc repository.Location) (repository.Client, error)
}

// Options configures a Session.
type Options struct {
	// BaseDir is the parent of the session temp dir. Empty means the
	// system temp dir.
	BaseDir string
	// Credentials is the deployment store consulted after the environment
	// and the session's own secrets. May be nil.
	Credentials state.CredentialStore
	// Runner is the runner template. WorkDir and Token are set by the
	// session.
	Runner runner.Options
	// Prober overrides the repository client factory used by Preflight.
	Prober Prober
	// DisableProbe turns Preflight into URL parsing only.
	DisableProbe bool
}

// Session is one user's control panel state.
type Session struct {
	id       string
	dir      string
	token    string
	warnings []string
	created  time.Time

	secrets  *state.InMemoryCredentialStore
	creds    state.CredentialStore
	resolver *attachment.Resolver
	runner   *runner.Runner
	store    *result.Store
	prober   Prober

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	mu      sync.Mutex
	current *Run
	closed  bool
}

// New creates a session and its temp directory.
func New(opts Options) (*Session, error) {
	base := opts.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "session-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	var deployment state.CredentialStore = state.StubCredentialStore{}
	if opts.Credentials != nil {
		deployment = opts.Credentials
	}
	secrets := state.NewInMemoryCredentialStore()

	s := &Session{
		id:       uuid.NewString(),
		dir:      dir,
		created:  time.Now(),
		secrets:  secrets,
		creds:    state.NewFallbackCredentialStore(secrets, deployment),
		resolver: attachment.NewResolver(dir),
		store:    result.NewStore(),
	}

	token, err := state.ResolveToken(s.creds)
	if err != nil {
		slog.Warn("Failed to read git token from credential store", "error", err)
	}
	s.token = token
	if token == "" {
		s.warnings = append(s.warnings, MissingTokenWarning)
	}

	ropts := opts.Runner
	ropts.WorkDir = dir
	ropts.Token = token
	s.runner = runner.New(ropts)

	switch {
	case opts.Prober != nil:
		s.prober = opts.Prober
	case !opts.DisableProbe:
		s.prober = repository.NewFactory(repository.Config{Token: token})
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	slog.Info("Session created", "id", s.id, "dir", dir, "token", state.RedactToken(token))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Dir returns the session temp directory.
func (s *Session) Dir() string { return s.dir }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

// HasToken reports whether a git token was resolved.
func (s *Session) HasToken() bool { return s.token != "" }

// Warnings returns session level warnings such as a missing token.
func (s *Session) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

// Attachments returns the session's attachment resolver.
func (s *Session) Attachments() *attachment.Resolver { return s.resolver }

// Result returns the latest published result.
func (s *Session) Result() (*result.Result, bool) { return s.store.Current() }

// Running reports whether a run is in flight. It turns false only after the
// run's result has been published.
func (s *Session) Running() bool { return s.running.Load() }

// Log returns the output captured so far by the in-flight or last run.
func (s *Session) Log() string { return s.runner.Log() }

// SetAPIKey stores an LLM key for this session only. An empty key removes
// it, letting the deployment store or $OSA_API_KEY apply again.
func (s *Session) SetAPIKey(key string) error {
	if key == "" {
		return s.secrets.DeleteToken(state.SecretLLM)
	}
	return s.secrets.SetToken(state.SecretLLM, key)
}

// HasAPIKey reports whether an LLM key resolves for this session.
func (s *Session) HasAPIKey() bool {
	key, err := state.ResolveAPIKey(s.creds)
	return err == nil && key != ""
}

// StoredSecrets lists the names of secrets held for this session, either
// set on the session or provided by the deployment store. Environment
// variables are not included.
func (s *Session) StoredSecrets() []string {
	names, err := s.creds.ListProviders()
	if err != nil {
		slog.Warn("Failed to list stored secrets", "session", s.id, "error", err)
		return []string{}
	}
	if names == nil {
		names = []string{}
	}
	return names
}

// Build turns raw input into a configuration. The current attachment and
// the stored LLM key fill in when raw does not carry them. Build has no side
// effects.
func (s *Session) Build(raw jobconfig.RawInputs) (jobconfig.Configuration, error) {
	if raw.Attachment == nil {
		if ref, ok := s.resolver.Current(); ok {
			raw.Attachment = &ref
		}
	}
	if raw.APIKey == "" {
		key, err := state.ResolveAPIKey(s.creds)
		if err != nil {
			slog.Warn("Failed to read LLM key from credential store", "error", err)
		}
		raw.APIKey = key
	}
	return jobconfig.Build(raw)
}

// Run is an in-flight job started by Start.
type Run struct {
	Config jobconfig.Configuration

	done chan struct{}
	res  *result.Result
	err  error
}

// Wait blocks until the run's result is published and returns it.
func (r *Run) Wait() (*result.Result, error) {
	<-r.done
	return r.res.Clone(), r.err
}

// Done is closed once the result is published.
func (r *Run) Done() <-chan struct{} { return r.done }

// Start validates raw and launches the tool. Nothing happens when validation
// fails. While a run is in flight it returns runner.ErrReentrant. The
// returned channel must be drained; the run ends when the tool exits, ctx is
// cancelled or the session is closed.
func (s *Session) Start(ctx context.Context, raw jobconfig.RawInputs) (<-chan runner.OutputLine, *Run, error) {
	cfg, err := s.Build(raw)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, nil, runner.ErrReentrant
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	lines, handle, err := s.runner.Start(runCtx, cfg)
	if err != nil {
		stop()
		cancel()
		s.running.Store(false)
		return nil, nil, err
	}

	run := &Run{Config: cfg, done: make(chan struct{})}
	s.current = run

	go func() {
		defer close(run.done)
		defer cancel()
		defer stop()

		<-handle.Done()
		res, err := handle.Result()
		if len(s.warnings) > 0 {
			res.Warnings = append(s.Warnings(), res.Warnings...)
		}
		s.store.Publish(res)
		run.res, run.err = res, err
		s.running.Store(false)

		slog.Info("Run published", "session", s.id, "exitCode", res.ExitCode, "reports", len(res.ReportFiles))
	}()

	return lines, run, nil
}

// Run starts a job and blocks until its result is published.
func (s *Session) Run(ctx context.Context, raw jobconfig.RawInputs) (*result.Result, error) {
	lines, run, err := s.Start(ctx, raw)
	if err != nil {
		return nil, err
	}
	for range lines {
	}
	return run.Wait()
}

// Close stops an in-flight run, waits for it and removes the session
// directory. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	run := s.current
	s.mu.Unlock()

	s.cancel()
	if run != nil {
		<-run.Done()
	}
	uploads := s.resolver.Created()
	s.resolver.Clear()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	slog.Info("Session closed", "id", s.id, "uploadsRemoved", len(uploads))
	return nil
}
