package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagesSentByTransport(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent.WithLabelValues(TransportREST))
	MessagesSent.WithLabelValues(TransportREST).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesSent.WithLabelValues(TransportREST)))
}

func TestCollectorsOnDefaultRegistry(t *testing.T) {
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "chat_threads_opened_total", "websocket_connections")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
