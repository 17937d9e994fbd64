// Package server exposes the shell service to the desktop front end over a
// local HTTP API.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/shell"
	"github.com/friedman-econ/friedman/internal/tlsutil"
)

// Options configures a Server.
type Options struct {
	Service   *shell.Service
	Logger    *logging.Logger
	Version   string
	Addr      string
	TokenHash string // argon2id hash; empty disables auth
	CertFile  string // with KeyFile, serve HTTPS
	KeyFile   string
}

// Server is the HTTP front of a shell.Service.
type Server struct {
	svc       *shell.Service
	log       *logging.Logger
	version   string
	addr      string
	tokenHash string
	certFile  string
	keyFile   string
	startTime time.Time

	mu        sync.Mutex
	server    *http.Server
	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Server{
		svc:       opts.Service,
		log:       opts.Logger,
		version:   opts.Version,
		addr:      opts.Addr,
		tokenHash: opts.TokenHash,
		certFile:  opts.CertFile,
		keyFile:   opts.KeyFile,
		startTime: time.Now(),
		closing:   make(chan struct{}),
	}
}

// Router returns the HTTP router
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/operations", s.handleOperations)
		r.Post("/operations/{name}", s.handleInvoke)
		r.Post("/operations/{name}/preview", s.handlePreview)
		r.Get("/progress/{job_id}", s.handleProgress)

		r.Post("/datasets", s.handleLoadDataset)
		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/{id}", s.handleGetDataset)
		r.Get("/datasets/{id}/preview", s.handlePreviewDataset)

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Get("/history/{id}/debug", s.handleGetHistoryDebug)

		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stats", s.handleLogStats)
	})

	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	baseCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		TLSConfig:         tlsutil.ServerConfig(),
	}
	s.cancel = cancel
	srv := s.server
	s.mu.Unlock()

	tls := s.certFile != "" && s.keyFile != ""
	s.log.Info("server starting", map[string]any{"addr": s.addr, "auth": s.tokenHash != "", "tls": tls})
	if tls {
		return srv.ListenAndServeTLS(s.certFile, s.keyFile)
	}
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests, ends progress streams and waits for
// running invocations. If ctx expires first, their engines are killed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("server shutting down", map[string]any{"running_jobs": s.svc.Running()})
	err := srv.Shutdown(ctx)
	cancel()
	if err != nil {
		srv.Close()
	}
	return err
}
