package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	"github.com/greg-hellings/osapanel/pkg/runner"
	"github.com/greg-hellings/osapanel/pkg/session"
)

func (s *Server) listFlags(w http.ResponseWriter, _ *http.Request) {
	specs := jobconfig.Specs()
	resp := make([]FlagResponse, 0, len(specs))
	for _, spec := range specs {
		resp = append(resp, FlagResponse{
			Key:         spec.Key.String(),
			Kind:        spec.Kind.String(),
			Default:     spec.Default,
			Allowed:     spec.Allowed,
			Arg:         spec.Arg,
			Description: spec.Description,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.newSession()
	if err != nil {
		if errors.Is(err, ErrSessionLimit) {
			writeError(w, http.StatusServiceUnavailable, err.Error(), "")
			return
		}
		slog.Error("Failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionToResponse(sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.remove(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}
	if err := sess.Close(); err != nil {
		slog.Warn("Failed to clean up session", "id", sess.ID(), "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) preflight(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req PreflightRequest
	if !decode(w, r, &req) {
		return
	}
	warnings := sess.Preflight(r.Context(), req.RepositoryURL)
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, PreflightResponse{Warnings: warnings})
}

func (s *Server) putCredentials(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.LLMAPIKey) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "is required", Field: "llmApiKey"})
		return
	}
	if err := sess.SetAPIKey(strings.TrimSpace(req.LLMAPIKey)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteCredentials(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := sess.SetAPIKey(""); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req AttachmentRequest
	if !decode(w, r, &req) {
		return
	}

	raw := req.URL
	if req.Kind == jobconfig.AttachmentFile {
		raw = req.Name
	}
	ref, err := sess.Attachments().Resolve(req.Kind, raw, req.Data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	sess.Attachments().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req RunRequest
	if !decode(w, r, &req) {
		return
	}

	// The run outlives the request; the session cancels it on close.
	lines, run, err := sess.Start(context.Background(), jobconfig.RawInputs{
		RepositoryURL: req.RepositoryURL,
		Mode:          req.Mode,
		Flags:         req.Flags,
		APIKey:        req.APIKey,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	go func() {
		for line := range lines {
			slog.Debug("tool output", "session", sess.ID(), "line", line.Text)
		}
	}()

	writeJSON(w, http.StatusAccepted, RunResponse{
		SessionID:     sess.ID(),
		Running:       true,
		Configuration: run.Config,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	res, ok := sess.Result()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Running: sess.Running(), Result: res})
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sess.Log()))
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	res, ok := sess.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "no result yet", "")
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= len(res.ReportFiles) {
		writeError(w, http.StatusNotFound, "report not found", "")
		return
	}
	file := res.ReportFiles[idx]
	w.Header().Set("Content-Disposition", contentDisposition(file.DisplayName))
	http.ServeFile(w, r, file.Path)
}

// contentDisposition builds an attachment header with name quoted or
// RFC 2231 encoded as needed.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", "")
	}
	return sess, ok
}

func sessionToResponse(sess *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:        sess.ID(),
		CreatedAt: sess.CreatedAt(),
		HasToken:  sess.HasToken(),
		HasAPIKey: sess.HasAPIKey(),
		Secrets:   sess.StoredSecrets(),
		Uploads:   len(sess.Attachments().Created()),
		Running:   sess.Running(),
		Warnings:  sess.Warnings(),
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	if _, ok := sess.Result(); ok {
		resp.HasResult = true
	}
	if ref, ok := sess.Attachments().Current(); ok {
		resp.Attachment = &ref
	}
	return resp
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// writeDomainError maps pipeline errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *jobconfig.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, runner.ErrReentrant):
		writeError(w, http.StatusConflict, "a run is already in progress", "")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error(), "")
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal encoding error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
