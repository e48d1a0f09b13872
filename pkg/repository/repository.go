// Package repository probes source code hosting providers (GitHub, GitLab)
// for the repository a run targets. The probe is advisory: it tells the user
// early when a repository is missing or private, but never blocks a run.
package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the provider reports the repository missing
// or invisible to the supplied credentials.
var ErrNotFound = errors.New("repository not found")

// Info contains metadata about a repository.
type Info struct {
	ID            string // Repository ID
	Name          string // Repository name
	FullName      string // Full name (owner/repo)
	Description   string // Repository description
	DefaultBranch string // Default branch name
	URL           string // Web URL to the repository
	Private       bool
	Archived      bool
}

// Client is implemented by provider specific clients.
type Client interface {
	// GetRepositoryInfo retrieves metadata about a repository. owner may
	// contain slashes for nested GitLab groups.
	GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error)

	// GetFileContent retrieves the content of a file. An empty ref means
	// the default branch. Missing files yield an error wrapping ErrNotFound.
	GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error)
}

// Config holds common configuration for repository clients
type Config struct {
	// Token is the authentication token for accessing private repositories
	Token string

	// BaseURL is the scheme and host of a GitHub Enterprise or self-hosted
	// GitLab instance. Leave empty for github.com and gitlab.com.
	BaseURL string
}
