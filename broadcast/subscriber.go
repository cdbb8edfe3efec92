package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/sampleflow/types"
)

// Subscriber 一个下行订阅通道。
//
// 实现必须并发安全：Send 可能与 Close 同时发生，Close 可能被
// gateway 与 Registry 各调用一次。
type Subscriber interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
	Alive() bool
	Close(reason string) error
}

// WSSubscriber 将 WebSocket 连接适配为 Subscriber。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type WSSubscriber struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex // 保护写操作与 closed
	closed bool
}

// NewWSSubscriber 从已建立的 WebSocket 连接创建订阅者
func NewWSSubscriber(conn *websocket.Conn, logger *zap.Logger) *WSSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &WSSubscriber{
		id:     id,
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_subscriber"), zap.String("subscriber_id", id)),
	}
}

// ID 返回订阅者唯一标识
func (s *WSSubscriber) ID() string {
	return s.id
}

// Send 发送一条文本消息。写失败或超时后订阅者即视为失效。
func (s *WSSubscriber) Send(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.ErrSubscriberDelivery, "subscriber closed")
	}

	if err := s.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		// coder/websocket 在写超时时会关闭底层连接，这里只需标记
		s.closed = true
		return types.NewError(types.ErrSubscriberDelivery, "websocket write").WithCause(err)
	}
	return nil
}

// Alive 检查连接是否仍可写
func (s *WSSubscriber) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close 以正常状态码关闭连接，重复调用无副作用
func (s *WSSubscriber) Close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		// 写失败时已标记 closed，但底层连接可能仍未释放
		_ = s.conn.CloseNow()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		s.logger.Debug("websocket close", zap.Error(err))
		return fmt.Errorf("websocket close: %w", err)
	}
	return nil
}
