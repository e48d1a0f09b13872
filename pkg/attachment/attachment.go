// Package attachment turns a pasted URL or an uploaded document into a
// reference the analysis tool can consume. Uploaded bytes are persisted to a
// uniquely named file inside the session's temp directory.
package attachment

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

// AllowedExtensions lists the document types accepted as uploads.
var AllowedExtensions = []string{".pdf", ".docx"}

// Ref is the reference handed to the job configuration.
type Ref = jobconfig.AttachmentRef

// Resolver resolves attachments for a single session.
type Resolver struct {
	dir string

	mu      sync.Mutex
	current *Ref
	created []string
}

// NewResolver returns a resolver writing uploads into dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve validates the input and returns a reference. For a file upload,
// raw is the original file name and data its content; a new temp file is
// created for every call. The returned reference replaces any previous one.
func (r *Resolver) Resolve(kind jobconfig.AttachmentKind, raw string, data []byte) (Ref, error) {
	var (
		ref Ref
		err error
	)
	switch kind {
	case jobconfig.AttachmentURL:
		ref, err = resolveURL(raw)
	case jobconfig.AttachmentFile:
		ref, err = r.resolveFile(raw, data)
	default:
		return Ref{}, jobconfig.NewValidationError("attachment", fmt.Sprintf("unsupported attachment kind %q", kind))
	}
	if err != nil {
		return Ref{}, err
	}

	r.mu.Lock()
	r.current = &ref
	r.mu.Unlock()
	return ref, nil
}

// Current returns the active attachment, if any.
func (r *Resolver) Current() (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Ref{}, false
	}
	return *r.current, true
}

// Clear drops the active attachment. Files already written stay on disk
// until the session directory is removed.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}

// Created returns the paths of every file written by this resolver.
func (r *Resolver) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.created)
}

func resolveURL(raw string) (Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ref{}, jobconfig.NewValidationError("attachment.url", "is required")
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Ref{}, jobconfig.NewValidationError("attachment.url", "must be an absolute URL")
	}
	return Ref{Kind: jobconfig.AttachmentURL, Location: s, Name: s}, nil
}

func (r *Resolver) resolveFile(name string, data []byte) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, jobconfig.NewValidationError("attachment.file", "no file content was supplied")
	}
	base := filepath.Base(strings.TrimSpace(name))
	ext := strings.ToLower(filepath.Ext(base))
	if !slices.Contains(AllowedExtensions, ext) {
		return Ref{}, jobconfig.NewValidationError("attachment.file",
			fmt.Sprintf("unsupported file type %q (allowed: %s)", ext, strings.Join(AllowedExtensions, ", ")))
	}

	// CreateTemp picks a fresh name, so an earlier upload is never overwritten.
	f, err := os.CreateTemp(r.dir, "attachment-*"+ext)
	if err != nil {
		return Ref{}, fmt.Errorf("create attachment file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("write attachment file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("close attachment file: %w", err)
	}

	r.mu.Lock()
	r.created = append(r.created, path)
	r.mu.Unlock()

	slog.Debug("Stored attachment", "name", base, "path", path, "bytes", len(data))
	return Ref{Kind: jobconfig.AttachmentFile, Location: path, Name: base}, nil
}
