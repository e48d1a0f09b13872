// Package project inspects the packaging files of a Python repository before
// a run and suggests feature flags that fit it: Poetry projects want
// workflows.use-poetry, and a requires-python constraint narrows the
// versions worth listing in workflows.python-versions.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greg-hellings/osapanel/pkg/repository"
)

// Tool is the packaging tool a repository is managed with.
type Tool string

const (
	ToolPoetry Tool = "poetry"
	ToolUv     Tool = "uv"
	ToolPipenv Tool = "pipenv"
	ToolPip    Tool = "pip"
)

// Profile describes what was learned from a repository's packaging files.
type Profile struct {
	Tool           Tool
	Name           string
	RequiresPython string   // raw constraint as written, e.g. ">=3.9,<3.13" or "^3.10"
	Files          []string // manifests that were found, in analyzer order

	// Errors holds non-fatal parse failures.
	Errors []error
}

// FileFetcher retrieves a file from a hosted repository. repository.Client
// satisfies it.
type FileFetcher interface {
	GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error)
}

// Analyzer handles one packaging file format.
type Analyzer interface {
	// Name returns the analyzer name (e.g. "poetry.lock").
	Name() string

	// File returns the repository path the analyzer reads.
	File() string

	// Analyze parses content and merges its findings into p.
	Analyze(content string, p *Profile) error
}

// DefaultAnalyzers returns the analyzers in precedence order. Lock files come
// first: the tool that wrote the lock file wins over what pyproject.toml
// declares.
func DefaultAnalyzers() []Analyzer {
	return []Analyzer{
		NewPoetryLockAnalyzer(),
		NewUvLockAnalyzer(),
		NewPipfileAnalyzer(),
		NewPyprojectAnalyzer(),
		NewRequirementsAnalyzer(),
	}
}

// Detect fetches every analyzer's file from the repository root and builds a
// Profile. It returns nil when no packaging file exists. Missing files are
// skipped; other fetch errors abort unless a profile was already started.
func Detect(ctx context.Context, fetcher FileFetcher, owner, repo, ref string, analyzers ...Analyzer) (*Profile, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("repository client is required")
	}
	if len(analyzers) == 0 {
		analyzers = DefaultAnalyzers()
	}

	p := &Profile{}
	for _, a := range analyzers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := fetcher.GetFileContent(ctx, owner, repo, ref, a.File())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to fetch %s: %w", a.File(), err)
		}
		p.Files = append(p.Files, a.File())
		if err := a.Analyze(content, p); err != nil {
			slog.Debug("packaging file could not be parsed", "file", a.File(), "error", err)
			p.Errors = append(p.Errors, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}

	if len(p.Files) == 0 {
		return nil, nil
	}
	if p.Tool == "" {
		p.Tool = ToolPip
	}
	return p, nil
}

// claim sets the tool unless an earlier analyzer already did.
func (p *Profile) claim(t Tool) {
	if p.Tool == "" {
		p.Tool = t
	}
}

func (p *Profile) setName(name string) {
	if p.Name == "" {
		p.Name = strings.TrimSpace(name)
	}
}

func (p *Profile) setRequiresPython(c string) {
	if p.RequiresPython == "" {
		p.RequiresPython = strings.TrimSpace(c)
	}
}
