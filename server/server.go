// Package server exposes the HTTP API: run triggers and status, progress
// polling and streaming, record lifecycle operations and CSV export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/feedlens/feedlens/pkg/domain"
	"github.com/feedlens/feedlens/pkg/progress"
)

// Server represents HTTP server instance
type Server struct {
	config      ConfigProvider
	coordinator Coordinator
	lifecycle   Lifecycle
	records     RecordStore
	runs        RunArchive
	progress    Progress
	version     string
	debug       bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Coordinator triggers and observes collection runs
type Coordinator interface {
	StartRun(ctx context.Context) (string, error)
	RunStatus(ctx context.Context, runID string) (*domain.CollectionRun, error)
	ActiveRun() *domain.CollectionRun
	CancelRun(runID string) error
}

// Lifecycle handles record state transitions, comments and history
type Lifecycle interface {
	Get(ctx context.Context, identity string) (*domain.FeedbackRecord, error)
	Transition(ctx context.Context, identity string, newState domain.RecordState, user string) (*domain.FeedbackRecord, error)
	Comment(ctx context.Context, identity, text, user string) (*domain.Comment, error)
	Comments(ctx context.Context, identity string) ([]domain.Comment, error)
	History(ctx context.Context, identity string) ([]domain.StateTransition, error)
}

// RecordStore lists and exports persisted records
type RecordStore interface {
	ListRecords(ctx context.Context, limit, offset int) ([]domain.FeedbackRecord, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// RunArchive lists finished runs
type RunArchive interface {
	ListRuns(ctx context.Context, limit int) ([]domain.CollectionRun, error)
}

// Progress serves current run progress to observers
type Progress interface {
	Snapshot() progress.Update
	Subscribe(ctx context.Context) <-chan progress.Update
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, coordinator Coordinator, lifecycle Lifecycle, records RecordStore,
	runs RunArchive, prog Progress, version string, debug bool) *Server {
	s := &Server{
		config:      cfg,
		coordinator: coordinator,
		lifecycle:   lifecycle,
		records:     records,
		runs:        runs,
		progress:    prog,
		version:     version,
		debug:       debug,
		router:      routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:        listen,
		Handler:     s.router,
		ReadTimeout: timeout,
		// no write timeout: the progress stream endpoint is long-lived
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("feedlens", "feedlens", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		r.HandleFunc("POST /runs", s.startRunHandler)
		r.HandleFunc("GET /runs", s.listRunsHandler)
		r.HandleFunc("GET /runs/active", s.activeRunHandler)
		r.HandleFunc("GET /runs/{id}", s.runStatusHandler)
		r.HandleFunc("DELETE /runs/{id}", s.cancelRunHandler)

		r.HandleFunc("GET /progress", s.progressHandler)
		r.HandleFunc("GET /progress/stream", s.progressStreamHandler)

		r.HandleFunc("GET /records", s.listRecordsHandler)
		r.HandleFunc("GET /records/{identity}", s.getRecordHandler)
		r.HandleFunc("POST /records/{identity}/state", s.updateStateHandler)
		r.HandleFunc("GET /records/{identity}/comments", s.listCommentsHandler)
		r.HandleFunc("POST /records/{identity}/comments", s.addCommentHandler)
		r.HandleFunc("GET /records/{identity}/history", s.historyHandler)

		r.HandleFunc("GET /export.csv", s.exportHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
