package mqtt

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{
		Broker:   "localhost",
		Port:     1883,
		ClientID: "solismqtt_test",
	}, zap.NewNop())

	if c.timeout != 30*time.Second {
		t.Errorf("expected default publish timeout 30s, got %v", c.timeout)
	}
	if c.Connected() {
		t.Error("client must not be connected before Connect")
	}
}

func TestClient_PublishWithoutConnection(t *testing.T) {
	c := NewClient(Options{
		Broker:         "localhost",
		Port:           1883,
		ClientID:       "solismqtt_test",
		PublishTimeout: time.Second,
	}, zap.NewNop())

	err := c.Publish(context.Background(), "solismqtt/test", []byte("{}"), false)
	if err == nil {
		t.Fatal("expected error publishing without a connection")
	}
}

func TestClient_PublishHonorsContextDeadline(t *testing.T) {
	c := NewClient(Options{
		Broker:         "localhost",
		Port:           1883,
		ClientID:       "solismqtt_test",
		PublishTimeout: time.Hour,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_ = c.Publish(ctx, "solismqtt/test", []byte("{}"), false)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("publish ignored context deadline, took %v", elapsed)
	}
}
