package dispatch

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records dispatch outcomes, latency and command volume.
// A nil *Metrics records nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	commands   *prometheus.CounterVec
}

// NewMetrics creates dispatch collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remoting",
			Name:      "dispatch_total",
			Help:      "Dispatches by terminal outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "remoting",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remoting",
			Name:      "commands_total",
			Help:      "Commands decoded from requests and encoded into responses.",
		}, []string{"direction"}),
	}

	for _, c := range []prometheus.Collector{m.dispatches, m.duration, m.commands} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(outcome)).Inc()
	m.duration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (m *Metrics) countCommands(direction string, n int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(direction).Add(float64(n))
}
