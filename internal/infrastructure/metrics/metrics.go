// Package metrics holds the Prometheus collectors of the leaderboard service.
// All recording methods are safe on a nil *Metrics, so components can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "leaderboard"

// Metrics groups the service collectors registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	remindersFired   prometheus.Counter
	snapshotFailures prometheus.Counter
	outboundMessages *prometheus.CounterVec
	weekResets       prometheus.Counter

	boardUsers      prometheus.Gauge
	connectedUsers  prometheus.Gauge
	outboundPending prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and process
// collectors, on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands processed, by type and result.",
		}, []string{"type", "result"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent decoding and executing one inbound command.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"type"}),

		remindersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminder wake-ups that produced a snapshot message.",
		}),

		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Reminder wake-ups where the snapshot could not be built.",
		}),

		outboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound messages by publish result (sent, failed, rejected, dropped).",
		}, []string{"result"}),

		weekResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_resets_total",
			Help:      "Weekly score resets.",
		}),

		boardUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "board_users",
			Help:      "Registered users on the leaderboard.",
		}),

		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_users",
			Help:      "Users currently receiving reminders.",
		}),

		outboundPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_pending",
			Help:      "Messages waiting in the outbound queue.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commandsTotal,
		m.commandDuration,
		m.remindersFired,
		m.snapshotFailures,
		m.outboundMessages,
		m.weekResets,
		m.boardUsers,
		m.connectedUsers,
		m.outboundPending,
	)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommand records one processed command.
func (m *Metrics) ObserveCommand(commandType, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(commandType, result).Inc()
	m.commandDuration.WithLabelValues(commandType).Observe(took.Seconds())
}

// ReminderFired counts a produced reminder message.
func (m *Metrics) ReminderFired() {
	if m == nil {
		return
	}
	m.remindersFired.Inc()
}

// SnapshotFailed counts a reminder wake-up without a message.
func (m *Metrics) SnapshotFailed() {
	if m == nil {
		return
	}
	m.snapshotFailures.Inc()
}

// OutboundMessage counts an outbound message by result.
func (m *Metrics) OutboundMessage(result string) {
	if m == nil {
		return
	}
	m.outboundMessages.WithLabelValues(result).Inc()
}

// WeekReset counts a weekly reset.
func (m *Metrics) WeekReset() {
	if m == nil {
		return
	}
	m.weekResets.Inc()
}

// SetBoardUsers sets the registered users gauge.
func (m *Metrics) SetBoardUsers(n int) {
	if m == nil {
		return
	}
	m.boardUsers.Set(float64(n))
}

// SetConnectedUsers sets the connected users gauge.
func (m *Metrics) SetConnectedUsers(n int) {
	if m == nil {
		return
	}
	m.connectedUsers.Set(float64(n))
}

// SetOutboundPending sets the outbound queue depth gauge.
func (m *Metrics) SetOutboundPending(n int) {
	if m == nil {
		return
	}
	m.outboundPending.Set(float64(n))
}
