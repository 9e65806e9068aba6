package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/domain/ports"
	"torrentstream/seedwarden/internal/monitor"
)

// MonitorService is the slice of *monitor.Monitor the API drives.
type MonitorService interface {
	Stats(ctx context.Context) (domain.TransferStats, error)
	OptimizePriorities(ctx context.Context) (monitor.OptimizeResult, error)
	ForceContinueAllStalled(ctx context.Context) (int, error)
	Ledger() map[domain.TransferID]int
	ResetStall(id domain.TransferID) bool
	Status() monitor.Status
	Start(ctx context.Context, interval time.Duration) bool
	Stop()
}

type Server struct {
	monitor        MonitorService
	alerts         ports.AlertRepository
	hub            *EventHub
	ownsHub        bool
	metrics        http.Handler
	baseCtx        context.Context
	allowedOrigins []string
	rateLimit      float64
	rateBurst      int
	logger         *slog.Logger
	handler        http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAlertRepository(repo ports.AlertRepository) ServerOption {
	return func(s *Server) {
		s.alerts = repo
	}
}

// WithEventHub streams monitor events on /ws. The caller owns the hub.
func WithEventHub(hub *EventHub) ServerOption {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithBaseContext sets the parent of monitoring sessions started over HTTP.
// Request contexts end with the request and cannot be used for that.
func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// WithAllowedOrigins configures the CORS whitelist. Empty allows any origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

func NewServer(mon MonitorService, opts ...ServerOption) *Server {
	s := &Server{
		monitor:   mon,
		baseCtx:   context.Background(),
		rateLimit: 50,
		rateBurst: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.hub == nil {
		s.hub = NewEventHub(s.logger)
		s.ownsHub = true
		go s.hub.Run()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/optimize", s.handleOptimize)
	mux.HandleFunc("/force-continue", s.handleForceContinue)
	mux.HandleFunc("/ledger", s.handleLedger)
	mux.HandleFunc("/ledger/", s.handleLedgerByID)
	mux.HandleFunc("/monitor", s.handleMonitorStatus)
	mux.HandleFunc("/monitor/start", s.handleMonitorStart)
	mux.HandleFunc("/monitor/stop", s.handleMonitorStop)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(observeMiddleware(s.logger, mux), "seedwarden",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateLimit, s.rateBurst,
			corsMiddleware(s.allowedOrigins, traced)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the event hub if the server created it.
func (s *Server) Close() {
	if s.ownsHub {
		s.hub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(s.allowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
