package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sampleflow/internal/metrics"
	"github.com/BaSui01/sampleflow/types"
)

// DefaultSendTimeout 单个订阅者单次发送的默认上限
const DefaultSendTimeout = 2 * time.Second

// Result 一次广播的结果
type Result struct {
	Delivered int
	Pruned    int
}

// Registry 当前存活订阅者集合。
//
// 广播分两阶段：先在读锁下复制存活集合并释放锁，逐个发送（每个订阅者独立
// goroutine、独立超时），全部结束后再在写锁下统一剔除本轮失败的订阅者。
// 发送期间不持有集合锁，慢订阅者不会阻塞 Add/Remove。
//
// seq 将"追加缓冲区 + 复制存活集合"与"快照 + 发送历史 + 注册"串行化，
// 使新订阅者在历史与实时数据的边界上既不丢也不重。
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscriber

	seq sync.Mutex

	sendTimeout time.Duration
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// Option 配置 Registry
type Option func(*Registry)

// WithSendTimeout 设置单次发送超时，<= 0 时使用默认值
func WithSendTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// WithLogger 注入日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry 创建订阅者注册表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		subs:        make(map[string]Subscriber),
		sendTimeout: DefaultSendTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "subscriber_registry"))
	return r
}

// =============================================================================
// 🎯 集合操作
// =============================================================================

// Add 注册订阅者，O(1)
func (r *Registry) Add(sub Subscriber) {
	r.mu.Lock()
	r.subs[sub.ID()] = sub
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
}

// Remove 注销订阅者；不存在时为空操作，返回是否确实移除
func (r *Registry) Remove(sub Subscriber) bool {
	r.mu.Lock()
	_, ok := r.subs[sub.ID()]
	if ok {
		delete(r.subs, sub.ID())
	}
	n := len(r.subs)
	r.mu.Unlock()

	if ok {
		r.metrics.SetSubscribers(n)
	}
	return ok
}

// Count 返回当前订阅者数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Contains 判断订阅者是否仍在集合中
func (r *Registry) Contains(sub Subscriber) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[sub.ID()]
	return ok
}

func (r *Registry) live() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

// =============================================================================
// 📡 加入与广播
// =============================================================================

// Attach 先发送 greeting 生成的首条消息（通常是历史快照），成功后再注册。
//
// greeting 在 seq 锁内执行，与 Publish 的 commit 互斥：快照之前提交的采样
// 只出现在历史里，之后提交的采样只会通过广播送达。发送失败时不注册。
func (r *Registry) Attach(ctx context.Context, sub Subscriber, greeting func() ([]byte, error)) error {
	r.seq.Lock()
	defer r.seq.Unlock()

	msg, err := greeting()
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if err := sub.Send(sendCtx, msg); err != nil {
		return err
	}

	r.Add(sub)
	return nil
}

// Broadcast 向所有存活订阅者发送 msg，失败的订阅者在本轮结束后被剔除
func (r *Registry) Broadcast(ctx context.Context, msg []byte) Result {
	return r.Publish(ctx, msg, nil)
}

// Publish 在 seq 锁内执行 commit（通常是追加缓冲区）并复制存活集合，
// 释放锁后再发送。任何订阅者的失败都不会返回给调用方。
func (r *Registry) Publish(ctx context.Context, msg []byte, commit func()) Result {
	start := time.Now()

	r.seq.Lock()
	if commit != nil {
		commit()
	}
	targets := r.live()
	r.seq.Unlock()

	// 第一阶段：并发发送，收集失效订阅者
	failed := make([]bool, len(targets))
	var g errgroup.Group
	for i, sub := range targets {
		if !sub.Alive() {
			failed[i] = true
			continue
		}
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
			defer cancel()
			if err := sub.Send(sendCtx, msg); err != nil {
				failed[i] = true
				r.logger.Debug("delivery failed",
					zap.String("subscriber_id", sub.ID()),
					zap.String("code", string(types.GetErrorCode(err))),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	// 第二阶段：统一剔除
	dead := make([]Subscriber, 0)
	for i, sub := range targets {
		if failed[i] {
			dead = append(dead, sub)
		}
	}
	r.prune(dead)

	res := Result{Delivered: len(targets) - len(dead), Pruned: len(dead)}
	r.metrics.RecordBroadcast(time.Since(start), res.Delivered, res.Pruned)
	return res
}

func (r *Registry) prune(dead []Subscriber) {
	if len(dead) == 0 {
		return
	}

	removed := make([]Subscriber, 0, len(dead))
	r.mu.Lock()
	for _, sub := range dead {
		if _, ok := r.subs[sub.ID()]; ok {
			delete(r.subs, sub.ID())
			removed = append(removed, sub)
		}
	}
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
	for _, sub := range removed {
		_ = sub.Close("delivery failed")
		r.logger.Info("subscriber pruned",
			zap.String("subscriber_id", sub.ID()),
			zap.Int("subscribers", n),
		)
	}
}

// CloseAll 注销并关闭全部订阅者，返回关闭数量。用于停机：
// 已升级的连接不受 http.Server.Shutdown 管理。
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	all := make([]Subscriber, 0, len(r.subs))
	for id, sub := range r.subs {
		all = append(all, sub)
		delete(r.subs, id)
	}
	r.mu.Unlock()

	r.metrics.SetSubscribers(0)
	for _, sub := range all {
		_ = sub.Close(reason)
	}
	if len(all) > 0 {
		r.logger.Info("subscribers closed", zap.Int("count", len(all)), zap.String("reason", reason))
	}
	return len(all)
}
