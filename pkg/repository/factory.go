package repository

import (
	"fmt"
	"strings"
)

// ProviderType represents the type of repository provider
type ProviderType string

const (
	// ProviderGitHub represents GitHub as the repository provider
	ProviderGitHub ProviderType = "github"
	// ProviderGitLab represents GitLab as the repository provider
	ProviderGitLab ProviderType = "gitlab"
)

// Factory creates repository clients based on the provider type
type Factory struct {
	config Config
}

// NewFactory creates a factory whose clients share config.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// CreateClient creates a client for provider ("github" or "gitlab",
// case-insensitive).
func (f *Factory) CreateClient(provider string) (Client, error) {
	return f.create(provider, f.config)
}

// ClientFor creates a client for loc, pointing at its host when the host is
// a self-hosted instance and the factory has no explicit BaseURL.
func (f *Factory) ClientFor(loc Location) (Client, error) {
	cfg := f.config
	if cfg.BaseURL == "" {
		cfg.BaseURL = loc.BaseURL()
	}
	return f.create(string(loc.Provider), cfg)
}

func (f *Factory) create(provider string, cfg Config) (Client, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(provider))) {
	case ProviderGitHub:
		return NewGitHubClient(cfg)
	case ProviderGitLab:
		return NewGitLabClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: github, gitlab)", provider)
	}
}

// NewClient creates a client without instantiating a Factory first.
func NewClient(provider string, config Config) (Client, error) {
	return NewFactory(config).CreateClient(provider)
}

// SupportedProviders returns a list of all supported provider types
func SupportedProviders() []string {
	return []string{
		string(ProviderGitHub),
		string(ProviderGitLab),
	}
}
