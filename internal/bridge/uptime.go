package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger GETs a healthchecks-style uptime URI after each successful
// publish cycle. Nil-safe: a Pinger with no URI does nothing.
type Pinger struct {
	mu     sync.RWMutex
	uri    string
	client *http.Client
	logger *zap.Logger
}

// NewPinger creates a Pinger. An empty uri disables pinging.
func NewPinger(uri string, logger *zap.Logger) *Pinger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pinger{
		uri: uri,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SetURI swaps the uptime URI at runtime.
func (p *Pinger) SetURI(uri string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.uri = uri
	p.mu.Unlock()
}

// Ping fires the uptime GET. Failures are logged and never fatal: a
// down uptime service must not take the bridge with it.
func (p *Pinger) Ping(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.RLock()
	uri := p.uri
	p.mu.RUnlock()
	if uri == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		p.logger.Warn("Invalid uptime URI", zap.Error(err))
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Uptime ping failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Warn("Uptime ping rejected", zap.String("status", resp.Status))
		return
	}
	p.logger.Debug("Uptime ping sent", zap.Int("status", resp.StatusCode))
}
