package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook-to-reply flow.
// A nil *RelayMetrics is valid and records nothing.
type RelayMetrics struct {
	webhookTotal      *prometheus.CounterVec
	relayOutcomes     *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	outboundTotal     *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	observerConnected prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhook deliveries by outcome",
		}, []string{"outcome"}),
		relayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "conversation",
			Name:      "inbound_outcome_total",
			Help:      "Inbound messages handled by the relay, by outcome",
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "conversation",
			Name:      "completion_latency_seconds",
			Help:      "Latency of AI completion calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"source", "status"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Realtime events published, by direction and delivery",
		}, []string{"direction", "delivered"}),
		observerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "realtime",
			Name:      "observer_connected",
			Help:      "1 when a dashboard observer is attached",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.relayOutcomes, m.completionLatency, m.outboundTotal, m.eventsTotal, m.observerConnected)
	return m
}

func (m *RelayMetrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveRelayOutcome(outcome string) {
	if m == nil {
		return
	}
	m.relayOutcomes.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveCompletion(status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(status).Observe(seconds)
}

func (m *RelayMetrics) ObserveOutbound(source, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(source, status).Inc()
}

func (m *RelayMetrics) ObserveEvent(direction string, delivered bool) {
	if m == nil {
		return
	}
	label := "false"
	if delivered {
		label = "true"
	}
	m.eventsTotal.WithLabelValues(direction, label).Inc()
}

func (m *RelayMetrics) SetObserverConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.observerConnected.Set(1)
		return
	}
	m.observerConnected.Set(0)
}
