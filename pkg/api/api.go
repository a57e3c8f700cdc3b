// Package api serves stored runs, comparative statistics and run ingestion
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/profiledb/pkg/archive"
	"github.com/ethpandaops/profiledb/pkg/config"
	"github.com/ethpandaops/profiledb/pkg/runs"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Handler returns the router, for embedding or testing.
	Handler() http.Handler
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	repo       runs.Repository
	db         storage.Adapter
	exporter   *archive.Exporter
	handler    http.Handler
	httpServer *http.Server
	limiters   []*rateLimiterMap
	wg         sync.WaitGroup
}

// NewServer creates a new API server. exporter may be nil, in which case the
// export endpoint is not registered.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	repo runs.Repository,
	db storage.Adapter,
	exporter *archive.Exporter,
) Server {
	s := &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		repo:     repo,
		db:       db,
		exporter: exporter,
	}

	s.handler = s.buildRouter()

	return s
}

func (s *server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	for _, l := range s.limiters {
		l.stop()
	}

	s.log.Info("API server stopped")

	return nil
}
