// Package api exposes the answer engine over HTTP: a streaming query
// endpoint, session management, and status and health probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/studylens/studylens/internal/answer"
	"github.com/studylens/studylens/internal/log"
	"github.com/studylens/studylens/internal/session"
)

// QueryEngine answers questions as event streams.
type QueryEngine interface {
	Generate(ctx context.Context, q answer.Query) <-chan answer.Event
}

// SessionStore is the session persistence the handlers need. Satisfied by
// session.Store.
type SessionStore interface {
	Create(ctx context.Context, title string) (session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)
	List(ctx context.Context) ([]session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AttachDocuments(ctx context.Context, id uuid.UUID, documentUUIDs []string) error
	DetachDocuments(ctx context.Context, id uuid.UUID, documentUUIDs []string) error
	Documents(ctx context.Context, id uuid.UUID) ([]string, error)
}

// CorpusStatus reports on the indexed corpus.
type CorpusStatus interface {
	DocumentCount(ctx context.Context) int64
}

// Pinger checks storage connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires a Server.
type Config struct {
	Addr     string
	Engine   QueryEngine
	Sessions SessionStore
	Corpus   CorpusStatus
	DB       Pinger
	Logger   log.Logger

	// Providers is the list of configured provider names, for /api/status.
	Providers []string

	// PerIPRate and PerIPBurst bound each client. Zero values disable the
	// per-IP limiter.
	PerIPRate  rate.Limit
	PerIPBurst int
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Engine == nil {
		return errors.New("engine is required")
	}
	if c.Sessions == nil {
		return errors.New("session store is required")
	}
	if c.Corpus == nil {
		return errors.New("corpus status is required")
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Server is the HTTP front end.
type Server struct {
	cfg  Config
	http *http.Server
}

// NewServer builds the route table and middleware stack.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("api server config: %w", err)
	}

	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/documents", s.handleAttachDocuments)
	mux.HandleFunc("DELETE /api/sessions/{id}/documents", s.handleDetachDocuments)

	mws := []middleware{recovery(cfg.Logger), requestLogging(cfg.Logger)}
	if cfg.PerIPRate > 0 {
		mws = append(mws, rateLimit(newIPLimiter(cfg.PerIPRate, cfg.PerIPBurst)))
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           chain(mux, mws...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.cfg.Logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
