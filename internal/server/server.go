// Package server exposes snapshots to visual clients over WebSocket and
// serves the AI metrics read endpoint.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/vibesd/internal/bus"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/metrics"
	"codeberg.org/mutker/vibesd/internal/overmind"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 4 << 10
	shutdownTimeout        = 5 * time.Second
)

// Director is the part of the AI director the server talks to.
type Director interface {
	UpdateBoredom(score float64) bool
	Metrics() metrics.PipelineMetrics
}

type Config struct {
	ListenAddr      string
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

type Server struct {
	cfg      Config
	states   *bus.Bus[overmind.GlobalState]
	director Director
	log      logger.Logger
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func New(cfg Config, states *bus.Bus[overmind.GlobalState], dir Director, log logger.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Server{
		cfg:      cfg,
		states:   states,
		director: dir,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/v1/ai/metrics", s.handleMetrics)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errFactory.Wrap(ErrListen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Listening")

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		return errFactory.Wrap(ErrListen, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdown, err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrListen, err)
	}

	return nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.director.Metrics())
}

type healthResponse struct {
	Status  string    `json:"status"`
	Clients int64     `json:"clients"`
	Bus     bus.Stats `json:"bus"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.clients.Load(),
		Bus:     s.states.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
