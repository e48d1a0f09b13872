package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements Client for GitHub and GitHub Enterprise.
type GitHubClient struct {
	repos  GitHubRepositoriesService
	config Config
}

// NewGitHubClient creates a GitHub client. Without a token only public
// repositories are visible. A BaseURL selects a GitHub Enterprise instance.
func NewGitHubClient(config Config) (*GitHubClient, error) {
	var client *github.Client

	if config.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: config.Token},
		)
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	if config.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub Enterprise URL: %w", err)
		}
	}

	return &GitHubClient{
		repos:  &githubRepositoriesWrapper{client: client},
		config: config,
	}, nil
}

// NewGitHubClientWithService builds a client around an existing service,
// typically a test fake.
func NewGitHubClientWithService(repos GitHubRepositoriesService, config Config) *GitHubClient {
	return &GitHubClient{repos: repos, config: config}
}

// GetRepositoryInfo retrieves metadata about a GitHub repository
func (g *GitHubClient) GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error) {
	ghRepo, resp, err := g.repos.Get(ctx, owner, repo)
	if resp != nil && resp.Body != nil {
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Debug("failed to close response body", "error", closeErr)
			}
		}()
	}
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s/%s on GitHub: %w", owner, repo, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repository info from GitHub: %w", err)
	}

	return &Info{
		ID:            fmt.Sprintf("%d", ghRepo.GetID()),
		Name:          ghRepo.GetName(),
		FullName:      ghRepo.GetFullName(),
		Description:   ghRepo.GetDescription(),
		DefaultBranch: ghRepo.GetDefaultBranch(),
		URL:           ghRepo.GetHTMLURL(),
		Private:       ghRepo.GetPrivate(),
		Archived:      ghRepo.GetArchived(),
	}, nil
}

// GetFileContent retrieves the content of a file from a GitHub repository.
func (g *GitHubClient) GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error) {
	opts := &github.RepositoryContentGetOptions{}
	if ref != "" {
		opts.Ref = ref
	}

	fileContent, _, resp, err := g.repos.GetContents(ctx, owner, repo, path, opts)
	if resp != nil && resp.Body != nil {
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Debug("failed to close response body", "error", closeErr)
			}
		}()
	}
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%s in %s/%s: %w", path, owner, repo, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get file content from GitHub: %w", err)
	}

	// a directory listing leaves fileContent nil
	if fileContent == nil {
		return "", fmt.Errorf("path is not a file: %s", path)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return content, nil
}
