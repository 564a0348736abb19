package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestPinger_Ping(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := NewPinger(srv.URL, zap.NewNop())
	p.Ping(context.Background())

	if hits.Load() != 1 {
		t.Errorf("expected 1 ping, got %d", hits.Load())
	}
}

func TestPinger_EmptyURIDoesNothing(t *testing.T) {
	p := NewPinger("", zap.NewNop())
	p.Ping(context.Background()) // Must not panic or block.
}

func TestPinger_NilReceiverIsSafe(t *testing.T) {
	var p *Pinger
	p.Ping(context.Background())
	p.SetURI("http://example.invalid/ping")
}

func TestPinger_SetURI(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := NewPinger("", zap.NewNop())
	p.Ping(context.Background())
	if hits.Load() != 0 {
		t.Fatal("ping fired with empty URI")
	}

	p.SetURI(srv.URL)
	p.Ping(context.Background())
	if hits.Load() != 1 {
		t.Errorf("expected 1 ping after SetURI, got %d", hits.Load())
	}
}

func TestPinger_FailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPinger(srv.URL, zap.NewNop())
	p.Ping(context.Background()) // Logged, not returned.
}
