// Package server provides the HTTP API for Quill.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/config"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/storage"
)

// DefaultMaxUploadBytes caps uploaded files.
const DefaultMaxUploadBytes = 50 << 20

// Opener runs the open-in-editor pipeline.
type Opener interface {
	Open(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// WatchService manages inbox directories. The inbox watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Quill API.
type Server struct {
	opener   Opener
	storage  storage.Storage
	recorder *provenance.Recorder
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	upgrader websocket.Upgrader
	maxBytes int64

	watch         WatchService
	configPath    string
	watchConfig   *config.Config
	watchConfigMu sync.Mutex
}

// NewServer creates a server with the given dependencies. watch may be nil when no inbox is
// configured; when configPath and fullConfig are set, inbox changes are persisted to the file.
func NewServer(
	opener Opener,
	store storage.Storage,
	recorder *provenance.Recorder,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	fullConfig *config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opener:   opener,
		storage:  store,
		recorder: recorder,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxBytes:    DefaultMaxUploadBytes,
		watch:       watch,
		configPath:  configPath,
		watchConfig: fullConfig,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Websocket upgrades bypass response compression and the request timeout.
	r.Get("/api/v1/documents/{id}/open/ws", s.handleOpenStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Minute))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/documents", s.handleUploadDocument)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Post("/api/v1/documents/{id}/open", s.handleOpenDocument)
		r.Get("/api/v1/editor/{id}", s.handleGetEditorDocument)
		r.Get("/api/v1/workspaces/{id}/activity", s.handleActivity)
		r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
