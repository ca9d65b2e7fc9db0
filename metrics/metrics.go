package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dapplink-labs/ton-wallet-gateway/common/httputil"
)

const Namespace = "ton_gateway"

const (
	WebhookDelivered = "delivered"
	WebhookFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	pendingMessages    prometheus.Gauge
	observerQueueDepth *prometheus.GaugeVec
	ledgerTransactions prometheus.Counter
	webhookDeliveries  *prometheus.CounterVec
	messagesSubmitted  *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		pendingMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_messages",
			Help:      "Broadcast messages waiting for confirmation or expiry",
		}),
		observerQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "observer_queue_depth",
			Help:      "Events buffered in an observer channel and not yet consumed",
		}, []string{"observer"}),
		ledgerTransactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ledger_transactions_total",
			Help:      "Transactions of watched accounts received from the ledger node",
		}),
		webhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook callback attempts by result",
		}, []string{"result"}),
		messagesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_submitted_total",
			Help:      "External messages submitted to the ledger by terminal status",
		}, []string{"status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordPendingMessages(n int) {
	m.pendingMessages.Set(float64(n))
}

func (m *Metrics) RecordObserverQueueDepth(observer string, n int) {
	m.observerQueueDepth.WithLabelValues(observer).Set(float64(n))
}

func (m *Metrics) RecordLedgerTransaction() {
	m.ledgerTransactions.Inc()
}

func (m *Metrics) RecordWebhookDelivery(ok bool) {
	if ok {
		m.webhookDeliveries.WithLabelValues(WebhookDelivered).Inc()
	} else {
		m.webhookDeliveries.WithLabelValues(WebhookFailed).Inc()
	}
}

func (m *Metrics) RecordMessageStatus(status string) {
	m.messagesSubmitted.WithLabelValues(status).Inc()
}

// StartServer serves the registry on /metrics.
func StartServer(registry *prometheus.Registry, host string, port int) (*httputil.HTTPServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return httputil.StartHTTPServer("metrics", mux, host, port)
}
