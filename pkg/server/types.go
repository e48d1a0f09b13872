package server

import (
	"time"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	"github.com/greg-hellings/osapanel/pkg/result"
)

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// SessionResponse describes a session.
type SessionResponse struct {
	ID         string                   `json:"id"`
	CreatedAt  time.Time                `json:"createdAt"`
	HasToken   bool                     `json:"hasToken"`
	HasAPIKey  bool                     `json:"hasApiKey"`
	Secrets    []string                 `json:"secrets"`
	Uploads    int                      `json:"uploads"`
	Running    bool                     `json:"running"`
	HasResult  bool                     `json:"hasResult"`
	Attachment *jobconfig.AttachmentRef `json:"attachment,omitempty"`
	Warnings   []string                 `json:"warnings"`
}

// AttachmentRequest is the body of PUT .../attachment. Data is base64 in
// JSON.
type AttachmentRequest struct {
	Kind jobconfig.AttachmentKind `json:"kind"`
	URL  string                   `json:"url,omitempty"`
	Name string                   `json:"name,omitempty"`
	Data []byte                   `json:"data,omitempty"`
}

// CredentialsRequest is the body of PUT .../credentials.
type CredentialsRequest struct {
	LLMAPIKey string `json:"llmApiKey"`
}

// RunRequest is the body of POST .../runs.
type RunRequest struct {
	RepositoryURL string         `json:"repositoryUrl"`
	Mode          string         `json:"mode"`
	Flags         map[string]any `json:"flags,omitempty"`
	APIKey        string         `json:"apiKey,omitempty"`
}

// RunResponse acknowledges an accepted run.
type RunResponse struct {
	SessionID     string                  `json:"sessionId"`
	Running       bool                    `json:"running"`
	Configuration jobconfig.Configuration `json:"configuration"`
}

// ResultResponse carries the latest result of a session.
type ResultResponse struct {
	Running bool           `json:"running"`
	Result  *result.Result `json:"result"`
}

// PreflightRequest is the body of POST .../preflight.
type PreflightRequest struct {
	RepositoryURL string `json:"repositoryUrl"`
}

// PreflightResponse lists advisory warnings about a repository.
type PreflightResponse struct {
	Warnings []string `json:"warnings"`
}

// FlagResponse describes one configuration flag.
type FlagResponse struct {
	Key         string   `json:"key"`
	Kind        string   `json:"kind"`
	Default     any      `json:"default"`
	Allowed     []string `json:"allowed,omitempty"`
	Arg         string   `json:"arg"`
	Description string   `json:"description"`
}
