package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

func TestNewCollector(t *testing.T) {
	collector, reg := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.samplesIngested)
	assert.NotNil(t, collector.broadcastDuration)
	assert.NotNil(t, collector.subscribers)

	// 未带 label 的指标注册后即可采集
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewCollector_NilRegistererDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("unregistered", nil, nil)
		NewCollector("unregistered", nil, nil)
	})
}

func TestCollector_NilReceiverIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0, 0)
		c.RecordSampleIngested(1)
		c.RecordRecordRejected()
		c.RecordUpstreamConnected()
		c.RecordUpstreamDisconnected()
		c.RecordUpstreamDialFailed()
		c.RecordBroadcast(time.Millisecond, 1, 0)
		c.SetSubscribers(3)
		c.RecordSubscriberEvent("joined")
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 64)
	collector.RecordHTTPRequest("GET", "/ws", 400, time.Millisecond, 0, 80)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/ws", "4xx")))
}

func TestCollector_IngestMetrics(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordUpstreamConnected()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.upstreamConnected))

	collector.RecordSampleIngested(1)
	collector.RecordSampleIngested(2)
	collector.RecordRecordRejected()

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.samplesIngested))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.bufferedSamples))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.recordsRejected))

	collector.RecordUpstreamDisconnected()
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.upstreamConnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.upstreamConnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.upstreamDisconnects))
}

func TestCollector_DialFailuresAreNotDisconnects(t *testing.T) {
	collector, _ := newTestCollector(t)

	for i := 0; i < 3; i++ {
		collector.RecordUpstreamDialFailed()
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.upstreamDialFails))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.upstreamDisconnects))
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.upstreamConnected))
}

func TestCollector_BroadcastMetrics(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordBroadcast(2*time.Millisecond, 3, 1)
	collector.SetSubscribers(3)
	collector.RecordSubscriberEvent("joined")

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.broadcastDeliveries.WithLabelValues("delivered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.broadcastDeliveries.WithLabelValues("pruned")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.subscribers))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.broadcastDuration))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.subscriberSessions.WithLabelValues("joined")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 0)
			collector.RecordSampleIngested(i)
			collector.RecordBroadcast(time.Millisecond, 1, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.samplesIngested))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.broadcastDeliveries.WithLabelValues("delivered")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "1xx", statusCode(101))
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(0))
}
