// Package metrics exposes Prometheus instrumentation and a health
// endpoint for the daemon.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CataIana/solismqtt/internal/inverter"
)

// Metrics holds the daemon's collectors on a private registry so the
// endpoint serves only solismqtt series.
type Metrics struct {
	registry *prometheus.Registry

	pollsTotal     *prometheus.CounterVec
	publishesTotal *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	inverterUp     prometheus.Gauge
	lastSuccess    prometheus.Gauge

	powerWatts   prometheus.Gauge
	yieldToday   prometheus.Gauge
	yieldTotal   prometheus.Gauge
	temperatureC prometheus.Gauge

	mu              sync.RWMutex
	lastSuccessTime time.Time
}

// New creates and registers the daemon's collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solismqtt_polls_total",
			Help: "Inverter polls by status",
		}, []string{"status"}),

		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solismqtt_publishes_total",
			Help: "MQTT state publishes by status",
		}, []string{"status"}),

		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solismqtt_poll_duration_seconds",
			Help:    "Time taken to read the inverter",
			Buckets: prometheus.DefBuckets,
		}),

		inverterUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_inverter_up",
			Help: "Whether the last inverter poll succeeded",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_last_success_timestamp_seconds",
			Help: "Unix time of the last successful publish cycle",
		}),

		powerWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_power_watts",
			Help: "Current inverter output power",
		}),

		yieldToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_yield_today_kwh",
			Help: "Today's production",
		}),

		yieldTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_yield_total_kwh",
			Help: "Lifetime production; absent while the stick reports its broken total",
		}),

		temperatureC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solismqtt_inverter_temperature_celsius",
			Help: "Inverter temperature",
		}),
	}

	m.registry.MustRegister(
		m.pollsTotal, m.publishesTotal, m.pollDuration,
		m.inverterUp, m.lastSuccess,
		m.powerWatts, m.yieldToday, m.yieldTotal, m.temperatureC,
	)

	return m
}

// Registry returns the private registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePoll records a poll attempt and its duration.
func (m *Metrics) ObservePoll(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	if err != nil {
		m.pollsTotal.WithLabelValues("error").Inc()
		m.inverterUp.Set(0)
		return
	}
	m.pollsTotal.WithLabelValues("ok").Inc()
	m.inverterUp.Set(1)
}

// ObservePublish records an MQTT state publish attempt.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishesTotal.WithLabelValues("error").Inc()
		return
	}
	m.publishesTotal.WithLabelValues("ok").Inc()
	now := time.Now()
	m.lastSuccess.Set(float64(now.Unix()))
	m.mu.Lock()
	m.lastSuccessTime = now
	m.mu.Unlock()
}

// SetReading exports the latest inverter reading as gauges.
func (m *Metrics) SetReading(st *inverter.State) {
	if m == nil {
		return
	}
	m.powerWatts.Set(float64(st.PowerNow))
	m.yieldToday.Set(st.YieldToday)
	m.temperatureC.Set(st.Temperature)
	if st.YieldTotal != nil {
		m.yieldTotal.Set(*st.YieldTotal)
	}
}

// LastSuccess returns the time of the last successful publish cycle,
// zero if none yet.
func (m *Metrics) LastSuccess() time.Time {
	if m == nil {
		return time.Time{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccessTime
}
