package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/CataIana/solismqtt/internal/homeassistant"
	"github.com/CataIana/solismqtt/internal/inverter"
)

// fakeReader serves scripted results, repeating the last one forever.
type fakeReader struct {
	mu      sync.Mutex
	results []readResult
	calls   int
}

type readResult struct {
	state *inverter.State
	err   error
}

func (f *fakeReader) ReadState(ctx context.Context) (*inverter.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	return r.state, r.err
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePublisher records publishes.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishCall
	failUntil int // fail the first N publishes
	subs      map[string]func(string, []byte)
}

type publishCall struct {
	topic   string
	payload string
	retain  bool
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUntil > 0 {
		f.failUntil--
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, publishCall{topic: topic, payload: string(payload), retain: retain})
	return nil
}

func (f *fakePublisher) Subscribe(topic string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]func(string, []byte))
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakePublisher) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.subs[topic]
	f.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

func (f *fakePublisher) calls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishCall, len(f.published))
	copy(out, f.published)
	return out
}

func goodState() *inverter.State {
	total := 500.0
	return &inverter.State{
		SerialNumber:    "SN1",
		ModelNumber:     "518",
		FirmwareVersion: "FW1",
		Temperature:     30.0,
		PowerNow:        800,
		YieldToday:      3.2,
		YieldTotal:      &total,
	}
}

func allEnabled() map[string]bool {
	return map[string]bool{
		"power_current":        true,
		"power_today":          true,
		"power_total":          true,
		"inverter_temperature": true,
	}
}

func newTestBridge(r Reader, p Publisher, opts ...func(*Config)) *Bridge {
	cfg := Config{
		Reader:          r,
		Publisher:       p,
		Discovery:       homeassistant.NewBuilder("homeassistant", "solismqtt", nil),
		Enabled:         allEnabled(),
		RetainDiscovery: true,
		Interval:        20 * time.Millisecond,
		Logger:          zap.NewNop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBridge_StartupPublishesDiscoveryThenState(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 5 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	calls := p.calls()
	// Four retained discovery configs in sensor order, then state.
	wantTopics := []string{
		"homeassistant/sensor/SN1/power_current/config",
		"homeassistant/sensor/SN1/power_today/config",
		"homeassistant/sensor/SN1/power_total/config",
		"homeassistant/sensor/SN1/inverter_temperature/config",
		"solismqtt/SN1",
	}
	for i, want := range wantTopics {
		if calls[i].topic != want {
			t.Errorf("publish %d: expected topic %s, got %s", i, want, calls[i].topic)
		}
	}
	for i := 0; i < 4; i++ {
		if !calls[i].retain {
			t.Errorf("discovery config %d not retained", i)
		}
	}
	if calls[4].retain {
		t.Error("state publish must not be retained")
	}
	if !strings.Contains(calls[4].payload, `"power_current":800`) {
		t.Errorf("state payload missing reading: %s", calls[4].payload)
	}
}

func TestBridge_WakeWaitRetriesUntilInverterAnswers(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{
		{err: errors.New("connection refused")},
		{state: goodState()},
	}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// First attempt fails, backoff is 1s, second succeeds.
	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 5 })
	cancel()
	<-done

	if r.callCount() < 2 {
		t.Errorf("expected at least 2 read attempts, got %d", r.callCount())
	}
}

func TestBridge_WakeWaitStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{{err: errors.New("dark")}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBridge_SkipsDiscoveryForMissingTotal(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := goodState()
	st.YieldTotal = nil
	r := &fakeReader{results: []readResult{{state: st}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 4 })
	cancel()
	<-done

	for _, c := range p.calls() {
		if strings.Contains(c.topic, "power_total") {
			t.Error("power_total must get no discovery config when the reading is missing")
		}
		if c.topic == "solismqtt/SN1" && strings.Contains(c.payload, "power_total") {
			t.Error("power_total must not appear in state payloads")
		}
	}
}

func TestBridge_DisabledSensorsAreFiltered(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p, func(c *Config) {
		c.Enabled = map[string]bool{"power_current": true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 2 })
	cancel()
	<-done

	for _, c := range p.calls() {
		if strings.Contains(c.topic, "inverter_temperature") {
			t.Error("disabled sensor got a discovery config")
		}
		if c.topic == "solismqtt/SN1" && strings.Contains(c.payload, "inverter_temperature") {
			t.Error("disabled sensor appeared in state payload")
		}
	}
}

func TestBridge_RepublishesDiscoveryOnBirthMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 5 })
	before := len(p.calls())

	p.deliver("homeassistant/status", []byte("online"))
	waitFor(t, 5*time.Second, func() bool {
		calls := p.calls()
		n := 0
		for _, c := range calls[before:] {
			if strings.HasSuffix(c.topic, "/config") {
				n++
			}
		}
		return n >= 4
	})

	// An offline status must not trigger a republish storm; just make
	// sure it is ignored without panicking.
	p.deliver("homeassistant/status", []byte("offline"))

	cancel()
	<-done
}

func TestBridge_RepublishesDiscoveryOnReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	reconnects := make(chan struct{}, 1)
	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p, func(c *Config) {
		c.Reconnects = reconnects
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 5 })
	before := len(p.calls())

	reconnects <- struct{}{}
	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= before+4 })

	cancel()
	<-done
}

func TestBridge_ReloadChangesInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	reloads := make(chan Settings, 1)
	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{}
	b := newTestBridge(r, p, func(c *Config) {
		c.Interval = time.Hour // effectively never without a reload
		c.Reloads = reloads
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return len(p.calls()) >= 5 })
	before := r.callCount()

	reloads <- Settings{Interval: 20 * time.Millisecond}
	waitFor(t, 5*time.Second, func() bool { return r.callCount() > before })

	cancel()
	<-done
}

func TestBridge_PollErrorsAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{results: []readResult{
		{state: goodState()},
		{err: errors.New("stick went dark")},
		{state: goodState()},
	}}
	p := &fakePublisher{}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Poll loop must survive the mid-stream error and keep publishing.
	waitFor(t, 5*time.Second, func() bool {
		n := 0
		for _, c := range p.calls() {
			if c.topic == "solismqtt/SN1" {
				n++
			}
		}
		return n >= 2
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestBridge_DiscoveryPublishRetries(t *testing.T) {
	// No goleak: this test cancels mid-retry-sleep.
	r := &fakeReader{results: []readResult{{state: goodState()}}}
	p := &fakePublisher{failUntil: 2}
	b := newTestBridge(r, p)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := b.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error while retrying discovery, got %v", err)
	}
	// The retry delay is 60s, so within 200ms nothing must have been
	// recorded as published.
	if len(p.calls()) != 0 {
		t.Errorf("expected no successful publishes, got %d", len(p.calls()))
	}
}
