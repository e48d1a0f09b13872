// Package server exposes control panel sessions over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/greg-hellings/osapanel/pkg/session"
)

// ErrSessionLimit is returned when MaxSessions sessions are open.
var ErrSessionLimit = errors.New("session limit reached")

// maxBodyBytes bounds request bodies; attachments travel base64 encoded.
const maxBodyBytes = 64 << 20

// Options configures the API server.
type Options struct {
	ListenAddr  string
	MaxSessions int
	// Session is the template every new session is created from.
	Session session.Options
}

// Server owns the open sessions and the HTTP router.
type Server struct {
	opts   Options
	router chi.Router

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates a server. Sessions are created on demand through the API.
func New(opts Options) *Server {
	s := &Server{
		opts:     opts,
		sessions: make(map[string]*session.Session),
	}
	s.router = s.routes()
	return s
}

// contentTypeMiddleware validates Content-Type header on mutating requests.
func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", "")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(contentTypeMiddleware)
		r.Get("/flags", s.listFlags)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/preflight", s.preflight)
			r.Put("/credentials", s.putCredentials)
			r.Delete("/credentials", s.deleteCredentials)
			r.Put("/attachment", s.putAttachment)
			r.Delete("/attachment", s.deleteAttachment)
			r.Post("/runs", s.startRun)
			r.Get("/result", s.getResult)
			r.Get("/log", s.getLog)
			r.Get("/reports/{index}", s.getReport)
		})
	})
	return r
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API until ctx is cancelled, then shuts down and closes
// every session.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", s.opts.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	case err := <-errCh:
		_ = s.Close()
		return fmt.Errorf("server error: %w", err)
	}
}

// Close closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) newSession() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		return nil, ErrSessionLimit
	}
	sess, err := session.New(s.opts.Session)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID()] = sess
	return sess, nil
}

func (s *Server) lookup(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) remove(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	return sess, ok
}
