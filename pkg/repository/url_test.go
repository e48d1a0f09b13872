package repository

import (
	"errors"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw      string
		provider ProviderType
		owner    string
		repo     string
		baseURL  string
	}{
		{"https://github.com/aimclub/OSA", ProviderGitHub, "aimclub", "OSA", ""},
		{"https://github.com/aimclub/OSA.git", ProviderGitHub, "aimclub", "OSA", ""},
		{"https://github.com/aimclub/OSA/tree/main/osa_tool", ProviderGitHub, "aimclub", "OSA", ""},
		{"  https://GitHub.com/o/r/  ", ProviderGitHub, "o", "r", ""},
		{"https://github.example.com/o/r", ProviderGitHub, "o", "r", "https://github.example.com"},
		{"https://gitlab.com/group/sub/repo", ProviderGitLab, "group/sub", "repo", ""},
		{"https://gitlab.com/group/repo/-/tree/main", ProviderGitLab, "group", "repo", ""},
		{"http://gitlab.internal:8080/team/app", ProviderGitLab, "team", "app", "http://gitlab.internal:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			loc, err := ParseURL(tt.raw)
			if err != nil {
				t.Fatalf("ParseURL failed: %v", err)
			}
			if loc.Provider != tt.provider || loc.Owner != tt.owner || loc.Repo != tt.repo {
				t.Errorf("got %+v", loc)
			}
			if got := loc.BaseURL(); got != tt.baseURL {
				t.Errorf("BaseURL() = %q, want %q", got, tt.baseURL)
			}
		})
	}
}

func TestParseURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "github.com/o/r", "ftp://github.com/o/r", "https://github.com/only", "https://github.com"} {
		if _, err := ParseURL(raw); err == nil {
			t.Errorf("ParseURL(%q) should fail", raw)
		}
	}
}

func TestParseURL_UnknownProvider(t *testing.T) {
	loc, err := ParseURL("https://codeberg.org/owner/repo")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if loc.Owner != "owner" || loc.Repo != "repo" {
		t.Errorf("expected parsed parts, got %+v", loc)
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Provider: ProviderGitHub, Owner: "o", Repo: "r"}
	if loc.String() != "github:o/r" {
		t.Errorf("unexpected %q", loc.String())
	}
}
