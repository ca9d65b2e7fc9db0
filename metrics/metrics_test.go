package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPendingMessages(3)
	m.RecordObserverQueueDepth("ton_transactions", 7)
	m.RecordLedgerTransaction()
	m.RecordLedgerTransaction()
	m.RecordWebhookDelivery(true)
	m.RecordWebhookDelivery(false)
	m.RecordWebhookDelivery(false)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingMessages))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.observerQueueDepth.WithLabelValues("ton_transactions")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerTransactions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookDeliveries.WithLabelValues(WebhookDelivered)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookDeliveries.WithLabelValues(WebhookFailed)))
}

func TestServer_ServesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordPendingMessages(5)

	srv, err := StartServer(m.Registry(), "127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ton_gateway_pending_messages 5"))
}
