package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Metrics owns its own prometheus registry so several relays (or tests) can live in one process.
type Metrics struct {
	Registry                *prometheus.Registry
	Connections             prometheus.Gauge
	Rooms                   prometheus.Gauge
	FramesReceived          prometheus.Counter
	DecodeErrors            prometheus.Counter
	Deliveries              *prometheus.CounterVec
	RegistryInconsistencies prometheus.Counter
	BusMessages             *prometheus.CounterVec
	CensoredWords           prometheus.Counter
	ProcessRSS              prometheus.Gauge
	ProcessCPU              prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Number of open connections in the registry.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms",
			Help: "Number of rooms with at least one member.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Text frames received from connections.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_errors_total",
			Help: "Frames dropped because they could not be decoded.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Per-recipient sends, by result.",
		}, []string{"result"}),
		RegistryInconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "registry_inconsistencies_total",
			Help: "Disconnects reported for connections absent from the registry.",
		}),
		BusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bus_messages_total",
			Help: "Messages exchanged with other relay instances, by direction.",
		}, []string{"direction"}),
		CensoredWords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "censored_words_total",
			Help: "Words replaced by the moderator.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_rss_bytes",
			Help: "Resident memory sampled by the telemetry worker.",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "CPU usage sampled by the telemetry worker.",
		}),
	}
	m.Registry.MustRegister(
		m.Connections, m.Rooms, m.FramesReceived, m.DecodeErrors, m.Deliveries,
		m.RegistryInconsistencies, m.BusMessages, m.CensoredWords, m.ProcessRSS, m.ProcessCPU,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry at /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
