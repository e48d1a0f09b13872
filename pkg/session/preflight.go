package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greg-hellings/osapanel/pkg/project"
	"github.com/greg-hellings/osapanel/pkg/repository"
)

// preflightTimeout bounds the repository probe.
const preflightTimeout = 10 * time.Second

// Preflight checks that repositoryURL points at a reachable repository and
// returns human readable warnings. It never fails: problems are advisory and
// the tool itself decides whether it can work with the repository.
func (s *Session) Preflight(ctx context.Context, repositoryURL string) []string {
	loc, err := repository.ParseURL(repositoryURL)
	switch {
	case errors.Is(err, repository.ErrUnknownProvider):
		return []string{fmt.Sprintf("Repository host %s is neither GitHub nor GitLab; skipping the reachability check.", loc.Host)}
	case err != nil:
		return []string{err.Error()}
	}

	if s.prober == nil {
		return nil
	}

	client, err := s.prober.ClientFor(loc)
	if err != nil {
		slog.Debug("No repository client for pre-flight check", "location", loc.String(), "error", err)
		return []string{fmt.Sprintf("Could not check %s/%s: %v", loc.Owner, loc.Repo, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	info, err := client.GetRepositoryInfo(ctx, loc.Owner, loc.Repo)
	if err != nil {
		slog.Info("Repository pre-flight check failed", "location", loc.String(), "error", err)
		if errors.Is(err, repository.ErrNotFound) {
			if s.token == "" {
				return []string{fmt.Sprintf("Repository %s/%s was not found. If it is private, configure a git token.", loc.Owner, loc.Repo)}
			}
			return []string{fmt.Sprintf("Repository %s/%s was not found or the token cannot access it.", loc.Owner, loc.Repo)}
		}
		return []string{fmt.Sprintf("Could not reach %s/%s: %v", loc.Owner, loc.Repo, err)}
	}

	var warnings []string
	if info.Archived {
		warnings = append(warnings, fmt.Sprintf("Repository %s is archived; the tool cannot open a pull request against it.", info.FullName))
	}
	slog.Debug("Repository pre-flight check passed", "repository", info.FullName, "defaultBranch", info.DefaultBranch, "private", info.Private)
	return append(warnings, projectHints(ctx, client, loc, info.DefaultBranch)...)
}

// projectHints suggests flags that match the repository's Python packaging.
func projectHints(ctx context.Context, client repository.Client, loc repository.Location, ref string) []string {
	profile, err := project.Detect(ctx, client, loc.Owner, loc.Repo, ref)
	if err != nil {
		slog.Debug("Project detection failed", "location", loc.String(), "error", err)
		return nil
	}
	if profile == nil {
		return nil
	}
	suggestions, err := profile.Suggestions()
	if err != nil {
		slog.Debug("Could not derive suggestions", "location", loc.String(), "error", err)
	}
	var hints []string
	for _, sg := range suggestions {
		hints = append(hints, "Suggested setting: "+sg.String())
	}
	return hints
}
