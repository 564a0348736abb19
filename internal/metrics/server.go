package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Health is the /healthz response body.
type Health struct {
	Status           string  `json:"status"`
	MQTTConnected    bool    `json:"mqtt_connected"`
	LastSuccessAgeS  float64 `json:"last_success_age_seconds"`
	HasPublishedOnce bool    `json:"has_published_once"`
}

// Server serves /metrics and /healthz.
type Server struct {
	srv     *http.Server
	metrics *Metrics
	logger  *zap.Logger
}

// NewServer creates the metrics HTTP server. mqttConnected reports the
// broker connection state for the health response.
func NewServer(listen string, m *Metrics, mqttConnected func() bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		last := m.LastSuccess()
		h := Health{
			Status:           "ok",
			MQTTConnected:    mqttConnected(),
			HasPublishedOnce: !last.IsZero(),
		}
		if !last.IsZero() {
			h.LastSuccessAgeS = time.Since(last).Seconds()
		}
		w.Header().Set("Content-Type", "application/json")
		if !h.MQTTConnected {
			h.Status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})

	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		metrics: m,
		logger:  logger,
	}
}

// Run serves until the context is cancelled, then shuts down cleanly.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
