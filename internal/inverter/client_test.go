package inverter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestClient points a Client at an httptest server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return New(u.Host, "admin", "admin", 5*time.Second, zap.NewNop())
}

func TestClient_ReadState(t *testing.T) {
	var gotAuth bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inverter.cgi" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "admin" && pass == "admin"
		w.Write([]byte("\x00SN1;FW1;518;30.5;900;2.5;100.0;no\x00"))
	}))

	st, err := c.ReadState(context.Background())
	if err != nil {
		t.Fatalf("ReadState failed: %v", err)
	}
	if !gotAuth {
		t.Error("basic auth credentials were not sent")
	}
	if st.PowerNow != 900 {
		t.Errorf("expected power=900, got %d", st.PowerNow)
	}
}

func TestClient_ReadDevice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moniter.cgi" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("SN1;FW1;Enable;ap;10.10.100.254;;Disable;null;null;null;null;Connected;Connected"))
	}))

	dev, err := c.ReadDevice(context.Background())
	if err != nil {
		t.Fatalf("ReadDevice failed: %v", err)
	}
	if dev.STAEnabled == nil || *dev.STAEnabled {
		t.Error("expected STA disabled")
	}
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.ReadState(context.Background())
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected code 401, got %d", se.StatusCode)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ReadState(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
