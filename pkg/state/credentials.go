// Package state holds the control panel's secrets handling and the settings
// it remembers between sessions.
package state

// Secrets are looked up by name ("git" for the repository token, "llm" for
// the model provider key). The environment always wins over a store so a
// deployment can inject secrets without touching persisted state.
//
// Never log a raw secret; use RedactToken.

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

const (
	// TokenEnvVar carries the git hosting token to the analysis tool.
	TokenEnvVar = "GIT_TOKEN"
	// APIKeyEnvVar carries the LLM provider key to the analysis tool.
	APIKeyEnvVar = "OSA_API_KEY"

	// SecretGit names the git hosting token in a CredentialStore.
	SecretGit = "git"
	// SecretLLM names the LLM provider key in a CredentialStore.
	SecretLLM = "llm"
)

// CredentialStore persists secrets by name.
type CredentialStore interface {
	// SetToken stores or updates a secret.
	SetToken(name string, token string) error
	// GetToken retrieves a secret. Returns ErrCredentialNotFound if missing.
	GetToken(name string) (string, error)
	// DeleteToken removes a secret (idempotent).
	DeleteToken(name string) error
	// ListProviders returns the names that have a secret stored.
	ListProviders() ([]string, error)
}

// ErrCredentialNotFound is returned when no secret is stored under a name.
var ErrCredentialNotFound = errors.New("credential not found")

// InMemoryCredentialStore is a thread-safe, volatile store. Secrets live as
// long as the process, which matches the lifetime of a panel session.
type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewInMemoryCredentialStore creates an empty store.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{tokens: make(map[string]string)}
}

func (s *InMemoryCredentialStore) SetToken(name string, token string) error {
	if name == "" {
		return errors.New("credential name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[name] = token
	return nil
}

func (s *InMemoryCredentialStore) GetToken(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[name]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

func (s *InMemoryCredentialStore) DeleteToken(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, name)
	return nil
}

// ListProviders returns stored names, sorted.
func (s *InMemoryCredentialStore) ListProviders() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// FallbackCredentialStore layers a primary store over a fallback. Reads
// prefer the primary; writes go to the fallback when the primary fails.
type FallbackCredentialStore struct {
	primary  CredentialStore
	fallback CredentialStore
}

// NewFallbackCredentialStore creates a layered store. A nil fallback is
// replaced with an in-memory store.
func NewFallbackCredentialStore(primary, fallback CredentialStore) *FallbackCredentialStore {
	if fallback == nil {
		fallback = NewInMemoryCredentialStore()
	}
	return &FallbackCredentialStore{primary: primary, fallback: fallback}
}

func (f *FallbackCredentialStore) SetToken(name, token string) error {
	if f.primary != nil {
		if err := f.primary.SetToken(name, token); err == nil {
			return nil
		}
	}
	return f.fallback.SetToken(name, token)
}

func (f *FallbackCredentialStore) GetToken(name string) (string, error) {
	if f.primary != nil {
		v, err := f.primary.GetToken(name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrCredentialNotFound) {
			return "", fmt.Errorf("primary get token: %w", err)
		}
	}
	return f.fallback.GetToken(name)
}

func (f *FallbackCredentialStore) DeleteToken(name string) error {
	var primaryErr error
	if f.primary != nil {
		primaryErr = f.primary.DeleteToken(name)
	}
	fallbackErr := f.fallback.DeleteToken(name)
	if primaryErr != nil && !errors.Is(primaryErr, ErrCredentialNotFound) {
		return primaryErr
	}
	if fallbackErr != nil && !errors.Is(fallbackErr, ErrCredentialNotFound) {
		return fallbackErr
	}
	return nil
}

// ListProviders merges the names of both layers without duplicates.
func (f *FallbackCredentialStore) ListProviders() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string

	addAll := func(list []string, err error) error {
		if err != nil {
			return err
		}
		for _, p := range list {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
		return nil
	}

	if f.primary != nil {
		if err := addAll(f.primary.ListProviders()); err != nil {
			return nil, fmt.Errorf("primary list providers: %w", err)
		}
	}
	if err := addAll(f.fallback.ListProviders()); err != nil {
		return nil, fmt.Errorf("fallback list providers: %w", err)
	}
	return out, nil
}

// StubCredentialStore stores nothing.
type StubCredentialStore struct{}

func (StubCredentialStore) SetToken(_, _ string) error { return nil }

func (StubCredentialStore) GetToken(_ string) (string, error) {
	return "", ErrCredentialNotFound
}

func (StubCredentialStore) DeleteToken(_ string) error { return nil }

func (StubCredentialStore) ListProviders() ([]string, error) { return []string{}, nil }

// ResolveToken returns the git hosting token: $GIT_TOKEN first, then the
// store. An empty result means no token is configured, which is not an error.
func ResolveToken(cs CredentialStore) (string, error) {
	return resolveSecret(TokenEnvVar, SecretGit, cs)
}

// ResolveAPIKey returns the LLM provider key: $OSA_API_KEY first, then the
// store.
func ResolveAPIKey(cs CredentialStore) (string, error) {
	return resolveSecret(APIKeyEnvVar, SecretLLM, cs)
}

func resolveSecret(envName, name string, cs CredentialStore) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	if cs == nil {
		return "", nil
	}
	tok, err := cs.GetToken(name)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("credential store failure: %w", err)
	}
	return strings.TrimSpace(tok), nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
