// Package server exposes the bridge's HTTP surface: status, a websocket
// status stream, the emergency-stop endpoint and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/internal/pkg/metrics"
	"github.com/brickdrive/brickdrive/pkg/log"
	"github.com/brickdrive/brickdrive/pkg/options"
)

// wsPushInterval is how often the websocket stream pushes a snapshot.
const wsPushInterval = 200 * time.Millisecond

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	loop    *bridge.Loop
	logger  log.Logger
}

func NewServer(opts *options.HttpOptions, loop *bridge.Loop) *Server {
	s := &Server{
		options: opts,
		loop:    loop,
		logger:  log.WithName("server"),
	}

	router := mux.NewRouter()

	// Basic Liveness Probe
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	api.HandleFunc("/estop", s.handleEStop).Methods(http.MethodPost)
	api.HandleFunc("/estop", s.handleEStopRelease).Methods(http.MethodDelete)

	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.loop.Snapshot()); err != nil {
		s.logger.Warn("Failed to write status response", "error", err)
	}
}

func (s *Server) handleEStop(w http.ResponseWriter, r *http.Request) {
	s.loop.ForceStop()
	s.logger.Warn("Emergency stop engaged via API", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("stopped"))
}

func (s *Server) handleEStopRelease(w http.ResponseWriter, r *http.Request) {
	s.loop.Release()
	s.logger.Info("Emergency stop released via API", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("released"))
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
