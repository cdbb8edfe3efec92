package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/sampleflow/broadcast"
	"github.com/BaSui01/sampleflow/internal/metrics"
	"github.com/BaSui01/sampleflow/sample"
	"github.com/BaSui01/sampleflow/types"
)

const instrumentationName = "github.com/BaSui01/sampleflow/ingest"

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config 上游接入配置
type Config struct {
	// Address 上游 host:port
	Address string
	// ReconnectDelay 会话结束或拨号失败后的固定等待时间
	ReconnectDelay time.Duration
	// DialTimeout 单次拨号超时
	DialTimeout time.Duration
	// MaxLineBytes 单条记录的最大字节数（不含换行符），超出的记录被丢弃
	MaxLineBytes int
	// Arity 每条记录的通道数
	Arity int
}

// Dialer 建立上游连接，*net.Dialer 即满足
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Publisher 接收已解析的采样。commit 与集合快照原子执行，随后扇出 msg。
type Publisher interface {
	Publish(ctx context.Context, msg []byte, commit func()) broadcast.Result
}

// Stats 接入统计
type Stats struct {
	Connects     uint64 `json:"connects"`
	Disconnects  uint64 `json:"disconnects"`
	DialFailures uint64 `json:"dial_failures"`
	Accepted     uint64 `json:"accepted"`
	Rejected     uint64 `json:"rejected"`
}

// =============================================================================
// 📥 Ingestor
// =============================================================================

// Ingestor 维持唯一一条上游连接，逐行解析并写入缓冲区、广播给订阅者。
// 连接失败或中断后按固定间隔无限重试，直到 ctx 取消。
type Ingestor struct {
	cfg       Config
	parser    *sample.Parser
	buffer    *sample.Buffer
	publisher Publisher

	dialer  Dialer
	clock   clockz.Clock
	tracer  trace.Tracer
	metrics *metrics.Collector
	logger  *zap.Logger

	connected    atomic.Bool
	connects     atomic.Uint64
	disconnects  atomic.Uint64
	dialFailures atomic.Uint64
	accepted     atomic.Uint64
	rejected     atomic.Uint64
}

// Option 配置 Ingestor
type Option func(*Ingestor)

// WithClock 注入时钟，用于到达时间戳与重连等待
func WithClock(clock clockz.Clock) Option {
	return func(i *Ingestor) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// WithDialer 注入拨号器
func WithDialer(d Dialer) Option {
	return func(i *Ingestor) {
		if d != nil {
			i.dialer = d
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(i *Ingestor) {
		i.metrics = c
	}
}

// WithTracer 注入 tracer，默认取全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(i *Ingestor) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithLogger 注入日志
func WithLogger(logger *zap.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New 创建 Ingestor
func New(cfg Config, buffer *sample.Buffer, publisher Publisher, opts ...Option) (*Ingestor, error) {
	if buffer == nil || publisher == nil {
		return nil, fmt.Errorf("ingest: buffer and publisher are required")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("ingest: upstream address is required")
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("ingest: reconnect delay must be positive, got %s", cfg.ReconnectDelay)
	}
	if cfg.MaxLineBytes <= 0 {
		return nil, fmt.Errorf("ingest: max line bytes must be positive, got %d", cfg.MaxLineBytes)
	}

	parser, err := sample.NewParser(cfg.Arity)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	i := &Ingestor{
		cfg:       cfg,
		parser:    parser,
		buffer:    buffer,
		publisher: publisher,
		dialer:    &net.Dialer{},
		clock:     clockz.RealClock,
		tracer:    otel.Tracer(instrumentationName),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(zap.String("component", "ingestor"), zap.String("upstream", cfg.Address))
	return i, nil
}

// Connected 上游连接当前是否打开
func (i *Ingestor) Connected() bool {
	return i.connected.Load()
}

// Stats 返回累计统计
func (i *Ingestor) Stats() Stats {
	return Stats{
		Connects:     i.connects.Load(),
		Disconnects:  i.disconnects.Load(),
		DialFailures: i.dialFailures.Load(),
		Accepted:     i.accepted.Load(),
		Rejected:     i.rejected.Load(),
	}
}

// Run 阻塞运行接入循环，ctx 取消后返回 nil
func (i *Ingestor) Run(ctx context.Context) error {
	i.logger.Info("ingestor started", zap.Duration("reconnect_delay", i.cfg.ReconnectDelay))

	for {
		err := i.session(ctx)
		if ctx.Err() != nil {
			i.logger.Info("ingestor stopped")
			return nil
		}

		i.logger.Warn("upstream unavailable, retrying",
			zap.Error(err),
			zap.Duration("delay", i.cfg.ReconnectDelay),
		)

		select {
		case <-i.clock.After(i.cfg.ReconnectDelay):
		case <-ctx.Done():
			i.logger.Info("ingestor stopped")
			return nil
		}
	}
}

// session 一次完整的连接生命周期，总是返回非 nil 错误
func (i *Ingestor) session(ctx context.Context) error {
	dialCtx := ctx
	if i.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, i.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := i.dialer.DialContext(dialCtx, "tcp", i.cfg.Address)
	if err != nil {
		i.dialFailures.Add(1)
		i.metrics.RecordUpstreamDialFailed()
		return types.NewError(types.ErrUpstreamUnavailable, "dial upstream").
			WithCause(err).
			WithRetryable(true)
	}
	defer conn.Close()

	// ctx 取消时关闭连接以解除阻塞的读
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	i.connected.Store(true)
	i.connects.Add(1)
	i.metrics.RecordUpstreamConnected()
	i.logger.Info("upstream connected", zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		i.connected.Store(false)
		i.disconnects.Add(1)
		i.metrics.RecordUpstreamDisconnected()
	}()

	return types.NewError(types.ErrUpstreamUnavailable, "upstream session ended").
		WithCause(i.readLines(ctx, conn)).
		WithRetryable(true)
}

// readLines 逐行处理直到读出错或 EOF。
// 超长记录按畸形记录丢弃并跳到下一个换行符，不结束会话。
func (i *Ingestor) readLines(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, i.cfg.MaxLineBytes+1)
	skipping := false
	for {
		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			if !skipping {
				skipping = true
				i.rejectOversized(line)
			}
			continue
		}
		if skipping {
			// 超长记录的尾部
			skipping = false
		} else if line = trimEOL(line); len(line) > 0 || err == nil {
			// 单条记录的错误已在 HandleLine 中记录，不影响会话
			_ = i.HandleLine(ctx, line)
		}
		if err != nil {
			return err
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

func (i *Ingestor) rejectOversized(prefix []byte) {
	const maxLogged = 128
	if len(prefix) > maxLogged {
		prefix = prefix[:maxLogged]
	}
	i.rejected.Add(1)
	i.metrics.RecordRecordRejected()
	i.logger.Warn("oversized record discarded",
		zap.ByteString("raw_prefix", prefix),
		zap.Int("max_line_bytes", i.cfg.MaxLineBytes),
	)
}

// HandleLine 处理一条原始记录：解析、追加缓冲区、广播。
// 畸形记录被记录并丢弃，返回 MALFORMED_RECORD 错误。
func (i *Ingestor) HandleLine(ctx context.Context, line []byte) error {
	s, err := i.parser.Parse(line, i.clock.Now())
	if err != nil {
		i.rejected.Add(1)
		i.metrics.RecordRecordRejected()
		i.logger.Warn("malformed record discarded",
			zap.ByteString("raw", line),
			zap.Error(err),
		)
		return err
	}

	ctx, span := i.tracer.Start(ctx, "ingest.sample",
		trace.WithAttributes(attribute.Int("sample.arity", s.Arity())))
	defer span.End()

	msg, err := sample.EncodeData(s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return types.NewError(types.ErrInternalError, "encode sample").WithCause(err)
	}

	// 停机时 ctx 已取消，订阅者不应因此被判定为失败
	res := i.publisher.Publish(context.WithoutCancel(ctx), msg, func() {
		i.buffer.Append(s)
	})

	i.accepted.Add(1)
	i.metrics.RecordSampleIngested(i.buffer.Len())
	span.SetAttributes(
		attribute.Int("broadcast.delivered", res.Delivered),
		attribute.Int("broadcast.pruned", res.Pruned),
	)
	return nil
}
