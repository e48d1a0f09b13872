package repository

// Narrow views of the provider SDKs, so tests can inject fakes without HTTP.

import (
	"context"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitHubRepositoriesService abstracts the subset of repository operations used.
type GitHubRepositoriesService interface {
	// Get fetches metadata for a repository.
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	// GetContents retrieves either a file OR a directory listing depending on path.
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
}

// GitLabProjectsService abstracts the GitLab project lookup.
type GitLabProjectsService interface {
	GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error)
}

// GitLabRepositoryFilesService abstracts file content retrieval.
type GitLabRepositoryFilesService interface {
	GetFile(projectID string, filePath string, opts *gitlab.GetFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.File, *gitlab.Response, error)
}

type githubRepositoriesWrapper struct {
	client *github.Client
}

func (w *githubRepositoriesWrapper) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	return w.client.Repositories.Get(ctx, owner, repo)
}

func (w *githubRepositoriesWrapper) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	return w.client.Repositories.GetContents(ctx, owner, repo, path, opts)
}

type gitlabProjectsWrapper struct {
	client *gitlab.Client
}

func (w *gitlabProjectsWrapper) GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error) {
	return w.client.Projects.GetProject(projectID, opts, options...)
}

type gitlabRepositoryFilesWrapper struct {
	client *gitlab.Client
}

func (w *gitlabRepositoryFilesWrapper) GetFile(projectID string, filePath string, opts *gitlab.GetFileOptions, options ...gitlab.RequestOptionFunc) (*gitlab.File, *gitlab.Response, error) {
	return w.client.RepositoryFiles.GetFile(projectID, filePath, opts, options...)
}
