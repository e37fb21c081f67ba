// Package web serves a read-mostly review API over the picture database.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/pipeline"
)

type Server struct {
	router   *mux.Router
	hub      *Hub
	version  string
	pipeline *pipeline.Pipeline
	metrics  *metrics
	logger   zerolog.Logger

	// ctx bounds scans started over HTTP; it is cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
}

func NewServer(p *pipeline.Pipeline, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:   mux.NewRouter(),
		hub:      NewHub(),
		version:  "unknown",
		pipeline: p,
		metrics:  newMetrics(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.hub.logger = logger

	p.SetProgressCallback(s.broadcastProgress)
	go s.hub.Run()

	s.setupRoutes()
	return s
}

func (s *Server) SetVersion(v string) {
	s.version = v
}

func (s *Server) setupRoutes() {
	s.router.Use(s.metrics.middleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/records", s.handleRecords).Methods("GET")
	api.HandleFunc("/problems", s.handleProblems).Methods("GET")
	api.HandleFunc("/export.csv", s.handleExport).Methods("GET")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

// Start serves until ctx is done, then drains in-flight requests and stops
// any scan started over HTTP.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting ShutterFix review server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down review server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	s.cancel()
	s.hub.Shutdown()
}
