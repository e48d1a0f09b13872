// Package result holds the terminal outcome of an analysis run and the
// per-session store that presentation layers read it from.
package result

import (
	"sync/atomic"
	"time"
)

const (
	// MessageSuccess is shown when the tool exits with code 0.
	MessageSuccess = "The repository was processed successfully."
	// MessageFailure prefixes the log tail when the tool exits non-zero.
	MessageFailure = "The analysis tool finished with an error."
	// MessageTimeout is shown when the run exceeded its time limit.
	MessageTimeout = "The analysis tool timed out and was stopped."
	// MessageInterrupted is shown when the run was stopped before the tool
	// exited on its own, for example because the session closed.
	MessageInterrupted = "The analysis tool was interrupted before it finished."
)

// ReportFile is a report artifact produced by a run.
type ReportFile struct {
	Path        string `json:"path" yaml:"path"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// Result is the outcome of one run. Treat it as immutable; the Store only
// hands out copies.
type Result struct {
	ExitCode    int          `json:"exitCode" yaml:"exitCode"`
	Succeeded   bool         `json:"succeeded" yaml:"succeeded"`
	Message     string       `json:"message" yaml:"message"`
	Log         string       `json:"log" yaml:"log"`
	ReportFiles []ReportFile `json:"reportFiles" yaml:"reportFiles"`
	Summary     *string      `json:"summary,omitempty" yaml:"summary,omitempty"`
	StartedAt   time.Time    `json:"startedAt" yaml:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt" yaml:"finishedAt"`
	TimedOut    bool         `json:"timedOut,omitempty" yaml:"timedOut,omitempty"`
	Interrupted bool         `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Warnings    []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Duration is the wall-clock time of the run.
func (r *Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	if r.ReportFiles != nil {
		cp.ReportFiles = make([]ReportFile, len(r.ReportFiles))
		copy(cp.ReportFiles, r.ReportFiles)
	}
	if r.Warnings != nil {
		cp.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.Summary != nil {
		s := *r.Summary
		cp.Summary = &s
	}
	return &cp
}

// Store keeps the most recent result of a session. A single writer
// publishes; any number of readers observe either the previous or the new
// result, never a mix.
type Store struct {
	current atomic.Pointer[Result]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish replaces the stored result.
func (s *Store) Publish(r *Result) {
	s.current.Store(r.Clone())
}

// Current returns a copy of the stored result, or false before the first
// publish.
func (s *Store) Current() (*Result, bool) {
	r := s.current.Load()
	if r == nil {
		return nil, false
	}
	return r.Clone(), true
}

// Reset forgets the stored result.
func (s *Store) Reset() {
	s.current.Store(nil)
}
