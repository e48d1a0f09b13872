package repository

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownProvider is returned for hosts that are neither GitHub nor GitLab.
var ErrUnknownProvider = errors.New("unknown repository provider")

// Location is a repository URL broken into its parts.
type Location struct {
	Provider ProviderType
	Scheme   string
	Host     string
	Owner    string // may contain slashes for nested GitLab groups
	Repo     string
}

// BaseURL returns the API base for self-hosted instances, or "" for
// github.com and gitlab.com.
func (l Location) BaseURL() string {
	switch l.Host {
	case "github.com", "www.github.com", "gitlab.com", "www.gitlab.com":
		return ""
	}
	return l.Scheme + "://" + l.Host
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%s/%s", l.Provider, l.Owner, l.Repo)
}

// ParseURL splits a repository web URL. GitHub URLs use the first two path
// segments; anything after (e.g. /tree/main) is ignored. GitLab URLs use
// everything up to a "/-/" marker, the last segment being the project.
// Hosts that cannot be attributed to a provider yield ErrUnknownProvider
// together with the parsed owner and repository.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("invalid repository URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Location{}, fmt.Errorf("invalid repository URL %q: expected http(s)://host/owner/repo", raw)
	}

	loc := Location{
		Provider: providerForHost(u.Hostname()),
		Scheme:   u.Scheme,
		Host:     strings.ToLower(u.Host),
	}

	path := u.Path
	if loc.Provider == ProviderGitLab {
		if i := strings.Index(path, "/-/"); i >= 0 {
			path = path[:i]
		}
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return Location{}, fmt.Errorf("invalid repository URL %q: missing owner or repository", raw)
	}

	if loc.Provider == ProviderGitLab {
		loc.Owner = strings.Join(segments[:len(segments)-1], "/")
		loc.Repo = segments[len(segments)-1]
	} else {
		loc.Owner = segments[0]
		loc.Repo = segments[1]
	}
	loc.Repo = strings.TrimSuffix(loc.Repo, ".git")

	if loc.Provider == "" {
		return loc, fmt.Errorf("%s: %w", loc.Host, ErrUnknownProvider)
	}
	return loc, nil
}

func providerForHost(host string) ProviderType {
	host = strings.ToLower(host)
	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com") || strings.HasPrefix(host, "github."):
		return ProviderGitHub
	case host == "gitlab.com" || strings.HasSuffix(host, ".gitlab.com") || strings.HasPrefix(host, "gitlab."):
		return ProviderGitLab
	default:
		return ""
	}
}
