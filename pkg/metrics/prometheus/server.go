// Package prometheus implements metrics.ServerMetrics on top of the
// registry returned by metrics.GetRegistry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobox/pkg/metrics"
)

const namespace = "dittobox"

type serverMetrics struct {
	reg *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	connectionsActive   prometheus.Gauge

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	tasks        *prometheus.CounterVec
	taskQueued   *prometheus.HistogramVec
	taskDuration *prometheus.HistogramVec

	bytes *prometheus.CounterVec

	queueCapacity *prometheus.GaugeVec
}

// latencyBuckets covers sub-millisecond LIST calls up to multi-second
// near-quota uploads on slow disks.
var latencyBuckets = []float64{
	0.1,  // 100us
	0.5,  // 500us
	1,    // 1ms
	5,    // 5ms
	10,   // 10ms
	50,   // 50ms
	100,  // 100ms
	500,  // 500ms
	1000, // 1s
	5000, // 5s
}

// NewServerMetrics returns a registry-backed ServerMetrics, or nil when
// metrics are disabled.
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()
	f := promauto.With(reg)

	return &serverMetrics{
		reg: reg,
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted client connections",
		}),
		connectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed without service because the connection queue was closed",
		}),
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections accepted and not yet closed, queued or in session",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Protocol commands handled, by command and status",
		}, []string{"command", "status"}),
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_milliseconds",
			Help:      "Time from command line read to reply written",
			Buckets:   latencyBuckets,
		}, []string{"command"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Storage tasks executed, by kind and status",
		}, []string{"kind", "status"}),
		taskQueued: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_queue_wait_milliseconds",
			Help:      "Time a task spent in the task queue before a worker picked it up",
			Buckets:   latencyBuckets,
		}, []string{"kind"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_milliseconds",
			Help:      "Time a worker spent executing a task",
			Buckets:   latencyBuckets,
		}, []string{"kind"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "File payload bytes transferred, by direction",
		}, []string{"direction"}),
		queueCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Fixed capacity of each pipeline queue",
		}, []string{"queue"}),
	}
}

func (m *serverMetrics) ConnectionAccepted() {
	m.connectionsAccepted.Inc()
	m.connectionsActive.Inc()
}

func (m *serverMetrics) ConnectionClosed() {
	m.connectionsActive.Dec()
}

func (m *serverMetrics) ConnectionRejected() {
	m.connectionsRejected.Inc()
}

func (m *serverMetrics) ObserveCommand(command, status string, d time.Duration) {
	m.commands.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(ms(d))
}

func (m *serverMetrics) ObserveTask(kind, status string, queued, exec time.Duration) {
	m.tasks.WithLabelValues(kind, status).Inc()
	m.taskQueued.WithLabelValues(kind).Observe(ms(queued))
	m.taskDuration.WithLabelValues(kind).Observe(ms(exec))
}

func (m *serverMetrics) AddBytes(direction string, n int64) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
}

// RegisterQueue exports a depth gauge sampled at scrape time. Registering
// the same queue name twice keeps the first registration.
func (m *serverMetrics) RegisterQueue(name string, capacity int, depth func() int) {
	m.queueCapacity.WithLabelValues(name).Set(float64(capacity))

	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Items currently buffered in a pipeline queue",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) })

	if err := m.reg.Register(g); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
