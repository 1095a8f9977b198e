// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions     prometheus.Gauge
	OnlineConnections  prometheus.Gauge
	MessagesReceived   *prometheus.CounterVec
	MessageLatency     prometheus.Histogram
	BuzzAttempts       prometheus.Counter
	BuzzWins           prometheus.Counter
	GamesCompleted     *prometheus.CounterVec
	StatsWriteFailures prometheus.Counter
	EventPublishErrors prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions",
		}),
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open websocket connections",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received, by message id",
		}, []string{"msg"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		BuzzAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buzz_attempts_total",
			Help:      "Buzz-ins received while the buzzer was open",
		}),
		BuzzWins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buzz_wins_total",
			Help:      "Buzz races won",
		}),
		GamesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_completed_total",
			Help:      "Finished games, by how they ended",
		}, []string{"ending"}),
		StatsWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_write_failures_total",
			Help:      "Game results that could not be stored",
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Game results that could not be published",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveSessions,
		m.OnlineConnections,
		m.MessagesReceived,
		m.MessageLatency,
		m.BuzzAttempts,
		m.BuzzWins,
		m.GamesCompleted,
		m.StatsWriteFailures,
		m.EventPublishErrors,
	)
	return m
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncConnections() {
	if m != nil {
		m.OnlineConnections.Inc()
	}
}

func (m *Metrics) DecConnections() {
	if m != nil {
		m.OnlineConnections.Dec()
	}
}

func (m *Metrics) SetActiveSessions(count int) {
	if m != nil {
		m.ActiveSessions.Set(float64(count))
	}
}

func (m *Metrics) IncMessagesReceived(msg string) {
	if m != nil {
		m.MessagesReceived.WithLabelValues(msg).Inc()
	}
}

func (m *Metrics) ObserveMessageLatency(duration time.Duration) {
	if m != nil {
		m.MessageLatency.Observe(duration.Seconds())
	}
}

// ObserveBuzz counts one buzz and whether it won the race.
func (m *Metrics) ObserveBuzz(won bool) {
	if m == nil {
		return
	}
	m.BuzzAttempts.Inc()
	if won {
		m.BuzzWins.Inc()
	}
}

// IncGamesCompleted counts a finished game. ending is "board", "final" or "abandoned".
func (m *Metrics) IncGamesCompleted(ending string) {
	if m != nil {
		m.GamesCompleted.WithLabelValues(ending).Inc()
	}
}

func (m *Metrics) IncStatsWriteFailures() {
	if m != nil {
		m.StatsWriteFailures.Inc()
	}
}

func (m *Metrics) IncEventPublishErrors() {
	if m != nil {
		m.EventPublishErrors.Inc()
	}
}
