package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabClient implements Client for gitlab.com and self-hosted GitLab.
type GitLabClient struct {
	projects GitLabProjectsService
	files    GitLabRepositoryFilesService
	config   Config
}

// NewGitLabClient creates a GitLab client. Without a token only public
// projects are visible. A BaseURL selects a self-hosted instance.
func NewGitLabClient(config Config) (*GitLabClient, error) {
	opts := []gitlab.ClientOptionFunc{}
	if config.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(config.BaseURL))
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &GitLabClient{
		projects: &gitlabProjectsWrapper{client: client},
		files:    &gitlabRepositoryFilesWrapper{client: client},
		config:   config,
	}, nil
}

// NewGitLabClientWithService builds a client around existing services,
// typically test fakes.
func NewGitLabClientWithService(projects GitLabProjectsService, files GitLabRepositoryFilesService, config Config) *GitLabClient {
	return &GitLabClient{projects: projects, files: files, config: config}
}

// GetRepositoryInfo retrieves metadata about a GitLab project. owner may be
// a nested group path.
func (g *GitLabClient) GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error) {
	projectID := fmt.Sprintf("%s/%s", owner, repo)

	project, resp, err := g.projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
	if resp != nil && resp.Response != nil && resp.Body != nil {
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Debug("failed to close response body", "error", closeErr)
			}
		}()
	}
	if err != nil {
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s on GitLab: %w", projectID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repository info from GitLab: %w", err)
	}

	return &Info{
		ID:            fmt.Sprintf("%d", project.ID),
		Name:          project.Name,
		FullName:      project.PathWithNamespace,
		Description:   project.Description,
		DefaultBranch: project.DefaultBranch,
		URL:           project.WebURL,
		Private:       project.Visibility != gitlab.PublicVisibility,
		Archived:      project.Archived,
	}, nil
}

// GetFileContent retrieves the content of a file from a GitLab project. The
// files API requires a ref, so an empty ref is resolved to the default branch.
func (g *GitLabClient) GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error) {
	projectID := fmt.Sprintf("%s/%s", owner, repo)

	if ref == "" {
		info, err := g.GetRepositoryInfo(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("failed to get default branch: %w", err)
		}
		ref = info.DefaultBranch
	}

	opts := &gitlab.GetFileOptions{Ref: gitlab.Ptr(ref)}
	file, resp, err := g.files.GetFile(projectID, path, opts, gitlab.WithContext(ctx))
	if resp != nil && resp.Response != nil && resp.Body != nil {
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Debug("failed to close response body", "error", closeErr)
			}
		}()
	}
	if err != nil {
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%s in %s: %w", path, projectID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get file content from GitLab: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return string(decoded), nil
}
