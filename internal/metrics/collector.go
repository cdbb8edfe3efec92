// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
//
// 所有 Record/Set 方法对 nil 接收者安全，组件未注入 Collector 时直接跳过。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 上游接入指标
	samplesIngested     prometheus.Counter
	recordsRejected     prometheus.Counter
	upstreamConnects    prometheus.Counter
	upstreamDisconnects prometheus.Counter
	upstreamDialFails   prometheus.Counter
	upstreamConnected   prometheus.Gauge
	bufferedSamples     prometheus.Gauge

	// 扇出指标
	broadcastDuration   prometheus.Histogram
	broadcastDeliveries *prometheus.CounterVec
	subscribers         prometheus.Gauge
	subscriberSessions  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg。
// reg 为 nil 时指标不注册，适用于测试。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 上游接入指标
	c.samplesIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_ingested_total",
		Help:      "Total number of samples accepted from the upstream producer",
	})

	c.recordsRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_rejected_total",
		Help:      "Total number of malformed upstream records discarded",
	})

	c.upstreamConnects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_connects_total",
		Help:      "Total number of successful upstream connections",
	})

	c.upstreamDisconnects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_disconnects_total",
		Help:      "Total number of established upstream sessions that ended",
	})

	c.upstreamDialFails = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_dial_failures_total",
		Help:      "Total number of failed upstream dial attempts",
	})

	c.upstreamConnected = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_connected",
		Help:      "1 while the upstream connection is open, 0 otherwise",
	})

	c.bufferedSamples = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffer_samples",
		Help:      "Number of samples currently retained in the history window",
	})

	// 扇出指标
	c.broadcastDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "broadcast_duration_seconds",
		Help:      "Time to fan one message out to every subscriber",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	c.broadcastDeliveries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Per-subscriber delivery attempts by result",
		},
		[]string{"result"}, // result: delivered, pruned
	)

	c.subscribers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Number of currently registered subscribers",
	})

	c.subscriberSessions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_sessions_total",
			Help:      "Subscriber lifecycle events",
		},
		[]string{"event"}, // event: joined, left, rejected
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📥 上游接入指标记录
// =============================================================================

// RecordSampleIngested 记录一条被接受的采样，并更新缓冲区占用
func (c *Collector) RecordSampleIngested(buffered int) {
	if c == nil {
		return
	}
	c.samplesIngested.Inc()
	c.bufferedSamples.Set(float64(buffered))
}

// RecordRecordRejected 记录一条被丢弃的畸形记录
func (c *Collector) RecordRecordRejected() {
	if c == nil {
		return
	}
	c.recordsRejected.Inc()
}

// RecordUpstreamConnected 记录上游连接建立
func (c *Collector) RecordUpstreamConnected() {
	if c == nil {
		return
	}
	c.upstreamConnects.Inc()
	c.upstreamConnected.Set(1)
}

// RecordUpstreamDisconnected 记录已建立的上游会话结束
func (c *Collector) RecordUpstreamDisconnected() {
	if c == nil {
		return
	}
	c.upstreamDisconnects.Inc()
	c.upstreamConnected.Set(0)
}

// RecordUpstreamDialFailed 记录一次拨号失败，不计入断开次数
func (c *Collector) RecordUpstreamDialFailed() {
	if c == nil {
		return
	}
	c.upstreamDialFails.Inc()
	c.upstreamConnected.Set(0)
}

// =============================================================================
// 📡 扇出指标记录
// =============================================================================

// RecordBroadcast 记录一次广播
func (c *Collector) RecordBroadcast(duration time.Duration, delivered, pruned int) {
	if c == nil {
		return
	}
	c.broadcastDuration.Observe(duration.Seconds())
	c.broadcastDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	c.broadcastDeliveries.WithLabelValues("pruned").Add(float64(pruned))
}

// SetSubscribers 设置当前订阅者数
func (c *Collector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.subscribers.Set(float64(n))
}

// RecordSubscriberEvent 记录订阅者生命周期事件：joined / left / rejected
func (c *Collector) RecordSubscriberEvent(event string) {
	if c == nil {
		return
	}
	c.subscriberSessions.WithLabelValues(event).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
