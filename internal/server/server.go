// Package server exposes the workflow engine and the memory service over
// HTTP/JSON, with a websocket feed of committed domain events.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/swamp-dev/commanddeck/internal/memory"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

// Options configures a Server.
type Options struct {
	Engine *workflow.Engine
	Memory *memory.Service
	Logger *slog.Logger
}

// Server routes API requests to the engine and the memory service.
type Server struct {
	engine *workflow.Engine
	memory *memory.Service
	hub    *Hub
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a server and subscribes its event hub to the engine bus and
// to memory appends.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: opts.Engine,
		memory: opts.Memory,
		hub:    NewHub(logger),
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.engine.Bus().Observe(func(ev workflow.Event) {
		s.hub.Publish(ev.EventType(), ev.BoardID(), ev)
	})
	s.memory.OnAppend(func(res memory.AppendResult) {
		s.hub.Publish("memory.appended", res.BoardID, res)
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	m := s.mux
	m.HandleFunc("GET /api/health", s.handleHealth)
	m.Handle("GET /api/events/ws", s.hub)

	m.HandleFunc("GET /api/boards", s.handleListBoards)
	m.HandleFunc("POST /api/boards", s.handleCreateBoard)
	m.HandleFunc("GET /api/boards/{id}", s.handleGetBoard)
	m.HandleFunc("DELETE /api/boards/{id}", s.handleDeleteBoard)
	m.HandleFunc("POST /api/boards/{id}/activate", s.handleActivateBoard)

	m.HandleFunc("POST /api/lists", s.handleCreateList)

	m.HandleFunc("POST /api/milestones", s.handleCreateMilestone)
	m.HandleFunc("GET /api/milestones/{id}", s.handleGetMilestone)
	m.HandleFunc("PATCH /api/milestones/{id}", s.handleUpdateMilestone)
	m.HandleFunc("DELETE /api/milestones/{id}", s.handleArchiveMilestone)
	m.HandleFunc("POST /api/milestones/{id}/restore", s.handleRestoreMilestone)

	m.HandleFunc("POST /api/cards", s.handleCreateCard)
	m.HandleFunc("GET /api/cards/{id}", s.handleGetCard)
	m.HandleFunc("PATCH /api/cards/{id}", s.handleUpdateCard)
	m.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard)

	for _, prefix := range []string{"/api/boards/{id}/artifacts", "/api/milestones/{id}/artifacts"} {
		scope := boardScope
		if prefix == "/api/milestones/{id}/artifacts" {
			scope = milestoneScope
		}
		a := artifactRoutes{s: s, scope: scope}
		m.HandleFunc("POST "+prefix, a.create)
		m.HandleFunc("GET "+prefix, a.list)
		m.HandleFunc("GET "+prefix+"/latest", a.latest)
		m.HandleFunc("GET "+prefix+"/{artifactId}", a.get)
		m.HandleFunc("PATCH "+prefix+"/{artifactId}", a.immutable)
		m.HandleFunc("DELETE "+prefix+"/{artifactId}", a.immutable)
	}

	m.HandleFunc("POST /api/memory/events", s.handleMemoryEvent)
	m.HandleFunc("POST /api/memory/compact", s.handleMemoryCompact)
	m.HandleFunc("GET /api/memory/state", s.handleMemoryState)
	m.HandleFunc("GET /api/memory/query", s.handleMemoryQuery)
	m.HandleFunc("GET /api/memory/status", s.handleMemoryStatus)
	m.HandleFunc("POST /api/memory/export", s.handleMemoryExport)
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// Hub returns the live event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, envelope{"status": "ok", "clients": s.hub.ClientCount()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
