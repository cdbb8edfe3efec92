package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/sampleflow/api/handlers"
	"github.com/BaSui01/sampleflow/broadcast"
	"github.com/BaSui01/sampleflow/internal/ctxkeys"
	"github.com/BaSui01/sampleflow/internal/metrics"
	"github.com/BaSui01/sampleflow/sample"
	"github.com/BaSui01/sampleflow/types"
)

// Config 订阅端点配置
type Config struct {
	// ReadLimit 单条客户端消息的最大字节数
	ReadLimit int64
	// AllowedOrigins 允许的跨域来源，如 http://localhost:3000；"*" 表示不校验
	AllowedOrigins []string
}

// Endpoint 下行 WebSocket 端点：先发送历史快照，再注册接收实时数据，
// 之后持续读取（并丢弃）客户端消息直到连接关闭。
type Endpoint struct {
	cfg      Config
	buffer   *sample.Buffer
	registry *broadcast.Registry
	accept   *websocket.AcceptOptions
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option 配置 Endpoint
type Option func(*Endpoint)

// WithMetrics 注入指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Endpoint) {
		e.metrics = c
	}
}

// WithLogger 注入日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New 创建订阅端点
func New(cfg Config, buffer *sample.Buffer, registry *broadcast.Registry, opts ...Option) *Endpoint {
	e := &Endpoint{
		cfg:      cfg,
		buffer:   buffer,
		registry: registry,
		accept:   acceptOptions(cfg.AllowedOrigins),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "gateway"))
	return e
}

// ServeHTTP 实现 http.Handler
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isUpgradeRequest(r) {
		e.metrics.RecordSubscriberEvent("rejected")
		handlers.WriteError(w,
			types.NewError(types.ErrSubscriberProtocol, "websocket upgrade required").
				WithHTTPStatus(http.StatusBadRequest),
			e.logger.With(zap.String("remote_addr", r.RemoteAddr)),
		)
		return
	}

	// 长连接不受 http.Server 读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	// Accept 在握手失败时自行写出 4xx 响应
	conn, err := websocket.Accept(w, r, e.accept)
	if err != nil {
		e.metrics.RecordSubscriberEvent("rejected")
		e.logger.Warn("websocket handshake rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}
	if e.cfg.ReadLimit > 0 {
		conn.SetReadLimit(e.cfg.ReadLimit)
	}

	sub := broadcast.NewWSSubscriber(conn, e.logger)
	ctx := ctxkeys.WithSubscriberID(r.Context(), sub.ID())
	log := contextLogger(ctx, e.logger)

	err = e.registry.Attach(ctx, sub, func() ([]byte, error) {
		return sample.EncodeHistory(e.buffer.Snapshot())
	})
	if err != nil {
		e.metrics.RecordSubscriberEvent("rejected")
		log.Warn("history delivery failed", zap.Error(err))
		_ = sub.Close("history delivery failed")
		return
	}

	e.metrics.RecordSubscriberEvent("joined")
	log.Info("client connected", zap.Int("clients", e.registry.Count()))

	defer func() {
		e.registry.Remove(sub)
		_ = sub.Close("")
		e.metrics.RecordSubscriberEvent("left")
		log.Info("client disconnected", zap.Int("clients", e.registry.Count()))
	}()

	e.drain(ctx, conn, log)
}

// drain 读取并丢弃客户端消息，直到对端关闭或连接出错
func (e *Endpoint) drain(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			switch status := websocket.CloseStatus(err); status {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("client closed", zap.String("status", status.String()))
			default:
				log.Debug("read loop ended", zap.Error(err))
			}
			return
		}
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// contextLogger 附加 context 中的订阅者、请求与追踪标识
func contextLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 3)
	if id, ok := ctxkeys.SubscriberID(ctx); ok {
		fields = append(fields, zap.String("subscriber_id", id))
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctxkeys.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	return base.With(fields...)
}

func isUpgradeRequest(r *http.Request) bool {
	return headerHasToken(r.Header, "Connection", "upgrade") &&
		headerHasToken(r.Header, "Upgrade", "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// acceptOptions 将完整的来源 URL 转为 coder/websocket 使用的 host 匹配模式
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
			continue
		case o == "*":
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		opts.OriginPatterns = append(opts.OriginPatterns, o)
	}
	return opts
}
