// Package bridge runs the daemon core: wake-wait for the inverter,
// publish Home Assistant discovery, then poll and publish readings.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CataIana/solismqtt/internal/homeassistant"
	"github.com/CataIana/solismqtt/internal/inverter"
	"github.com/CataIana/solismqtt/internal/metrics"
)

// Reader reads the inverter. *inverter.Client implements it.
type Reader interface {
	ReadState(ctx context.Context) (*inverter.State, error)
}

// Publisher publishes to the broker. *mqtt.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Recorder stores readings. *store.History implements it.
type Recorder interface {
	RecordReading(ctx context.Context, st *inverter.State, sampledAt time.Time) error
}

// Settings are the hot-reloadable parts of the configuration.
type Settings struct {
	Interval  time.Duration
	UptimeURI string
}

// Config wires a Bridge.
type Config struct {
	Reader    Reader
	Publisher Publisher
	Discovery *homeassistant.Builder

	// Enabled filters sensors by key.
	Enabled map[string]bool
	// RetainDiscovery controls the retain flag on discovery configs.
	RetainDiscovery bool

	Interval  time.Duration
	UptimeURI string

	// Optional.
	History    Recorder
	Metrics    *metrics.Metrics
	Reconnects <-chan struct{}
	Reloads    <-chan Settings

	Logger *zap.Logger
}

// wakeBackoffCap bounds the startup retry delay. The stick powers off
// with the panels, so the daemon may wait all night.
const wakeBackoffCap = 600 * time.Second

// discoveryRetryDelay matches the original's retry-every-minute loop.
const discoveryRetryDelay = 60 * time.Second

// Bridge is the daemon core. Create with New, run with Run.
type Bridge struct {
	reader    Reader
	publisher Publisher
	discovery *homeassistant.Builder

	enabled map[string]bool
	retain  bool

	history    Recorder
	metrics    *metrics.Metrics
	reconnects <-chan struct{}
	reloads    <-chan Settings

	pinger *Pinger
	logger *zap.Logger

	mu       sync.RWMutex
	interval time.Duration

	// Set after the wake-wait; reused for discovery republishes.
	stateTopic    string
	discoveryDocs []discoveryDoc

	birth chan struct{}
}

type discoveryDoc struct {
	topic   string
	payload []byte
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	return &Bridge{
		reader:     cfg.Reader,
		publisher:  cfg.Publisher,
		discovery:  cfg.Discovery,
		enabled:    cfg.Enabled,
		retain:     cfg.RetainDiscovery,
		history:    cfg.History,
		metrics:    cfg.Metrics,
		reconnects: cfg.Reconnects,
		reloads:    cfg.Reloads,
		pinger:     NewPinger(cfg.UptimeURI, logger),
		logger:     logger,
		interval:   interval,
		birth:      make(chan struct{}, 1),
	}
}

// Run executes the daemon loop until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	st, err := b.waitForInverter(ctx)
	if err != nil {
		return err
	}

	if err := b.publishDiscovery(ctx, st); err != nil {
		return err
	}

	// Home Assistant announces restarts on its status topic; retained
	// discovery configs are gone if the broker restarted without
	// persistence, so republish on birth.
	birthTopic := b.discovery.Prefix + "/status"
	if err := b.publisher.Subscribe(birthTopic, func(_ string, payload []byte) {
		if string(payload) == "online" {
			select {
			case b.birth <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		b.logger.Warn("Birth topic subscription failed", zap.Error(err), zap.String("topic", birthTopic))
	}

	// The wake-wait reading is fresh; publish it instead of waiting a
	// full interval.
	b.publishState(ctx, st)

	ticker := time.NewTicker(b.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge shutting down")
			return nil

		case <-ticker.C:
			b.pollOnce(ctx)

		case <-b.reconnects:
			b.republishDiscovery(ctx)

		case <-b.birth:
			b.logger.Info("Home Assistant came online; republishing discovery")
			b.republishDiscovery(ctx)

		case s, ok := <-b.reloads:
			if !ok {
				b.reloads = nil
				continue
			}
			b.applySettings(s)
			ticker.Reset(b.currentInterval())
		}
	}
}

// waitForInverter polls until the stick answers, backing off 2^n
// seconds up to the cap. The inverter turns its WiFi module off when
// the panels go dark, so retrying indefinitely is correct.
func (b *Bridge) waitForInverter(ctx context.Context) (*inverter.State, error) {
	for attempt := 0; ; attempt++ {
		st, err := b.reader.ReadState(ctx)
		if err == nil {
			b.logger.Info("Inverter is awake",
				zap.String("serial", st.SerialNumber),
				zap.String("model", st.ModelNumber),
				zap.String("firmware", st.FirmwareVersion))
			return st, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := wakeBackoffCap
		if attempt < 30 {
			if d := time.Duration(1<<uint(attempt)) * time.Second; d < delay {
				delay = d
			}
		}
		b.logger.Warn("Inverter not available",
			zap.Duration("retry_in", delay),
			zap.Error(err))

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// publishDiscovery publishes retained discovery configs for every
// enabled sensor with a reading, retrying each minute until the broker
// accepts them. A sensor whose reading is missing at startup (the
// broken lifetime total) gets no config at all.
func (b *Bridge) publishDiscovery(ctx context.Context, st *inverter.State) error {
	b.stateTopic = b.discovery.StateTopic(st.SerialNumber)

	b.discoveryDocs = b.discoveryDocs[:0]
	for _, s := range homeassistant.Sensors() {
		if !b.enabled[s.Key] {
			continue
		}
		if _, ok := homeassistant.Value(st, s.Key); !ok {
			b.logger.Warn("Sensor has no reading; skipping discovery", zap.String("sensor", s.Key))
			continue
		}
		payload, err := b.discovery.DiscoveryConfig(st, s)
		if err != nil {
			return err
		}
		b.discoveryDocs = append(b.discoveryDocs, discoveryDoc{
			topic:   b.discovery.ConfigTopic(st.SerialNumber, s.Key),
			payload: payload,
		})
	}

	for {
		err := b.publishDocs(ctx)
		if err == nil {
			b.logger.Info("Discovery configs published", zap.Int("sensors", len(b.discoveryDocs)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Error("Discovery publish failed; retrying", zap.Duration("retry_in", discoveryRetryDelay), zap.Error(err))
		if err := sleepCtx(ctx, discoveryRetryDelay); err != nil {
			return err
		}
	}
}

func (b *Bridge) publishDocs(ctx context.Context) error {
	for _, doc := range b.discoveryDocs {
		if err := b.publisher.Publish(ctx, doc.topic, doc.payload, b.retain); err != nil {
			return err
		}
	}
	return nil
}

// republishDiscovery resends the retained configs built at startup.
// Failures are logged only; the next reconnect retries.
func (b *Bridge) republishDiscovery(ctx context.Context) {
	if len(b.discoveryDocs) == 0 {
		return
	}
	if err := b.publishDocs(ctx); err != nil {
		b.logger.Warn("Discovery republish failed", zap.Error(err))
		return
	}
	b.logger.Debug("Discovery configs republished", zap.Int("sensors", len(b.discoveryDocs)))
}

// pollOnce reads the inverter and publishes the state payload. Errors
// are logged and swallowed; the next tick tries again.
func (b *Bridge) pollOnce(ctx context.Context) {
	start := time.Now()
	st, err := b.reader.ReadState(ctx)
	b.metrics.ObservePoll(time.Since(start), err)
	if err != nil {
		b.logger.Warn("Inverter poll failed", zap.Error(err))
		return
	}
	b.metrics.SetReading(st)

	b.publishState(ctx, st)
}

func (b *Bridge) publishState(ctx context.Context, st *inverter.State) {
	payload, err := b.discovery.StatePayload(st, b.enabled)
	if err != nil {
		b.logger.Error("Failed to build state payload", zap.Error(err))
		return
	}

	err = b.publisher.Publish(ctx, b.stateTopic, payload, false)
	b.metrics.ObservePublish(err)
	if err != nil {
		b.logger.Error("State publish failed", zap.Error(err))
		return
	}

	b.logger.Info("Published reading",
		zap.String("topic", b.stateTopic),
		zap.Int("power_w", st.PowerNow),
		zap.Float64("yield_today_kwh", st.YieldToday))

	b.pinger.Ping(ctx)

	if b.history != nil {
		if err := b.history.RecordReading(ctx, st, time.Now()); err != nil {
			b.logger.Warn("Failed to record history", zap.Error(err))
		}
	}
}

func (b *Bridge) applySettings(s Settings) {
	b.mu.Lock()
	if s.Interval > 0 {
		b.interval = s.Interval
	}
	b.mu.Unlock()
	b.pinger.SetURI(s.UptimeURI)
	b.logger.Info("Settings reloaded",
		zap.Duration("interval", s.Interval),
		zap.Bool("uptime_ping", s.UptimeURI != ""))
}

func (b *Bridge) currentInterval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
