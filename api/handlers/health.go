package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// StatusSource 提供中继运行状态
type StatusSource interface {
	Subscribers() int
	UpstreamConnected() bool
	Buffered() int
	Upstream() UpstreamStats
}

// UpstreamStats 上游接入累计统计
type UpstreamStats struct {
	Connects     uint64 `json:"connects"`
	Disconnects  uint64 `json:"disconnects"`
	DialFailures uint64 `json:"dial_failures"`
	Accepted     uint64 `json:"accepted"`
	Rejected     uint64 `json:"rejected"`
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	source StatusSource
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status            string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp         time.Time              `json:"timestamp"`
	Clients           *int                   `json:"clients,omitempty"`
	UpstreamConnected *bool                  `json:"upstream_connected,omitempty"`
	Buffered          *int                   `json:"buffered,omitempty"`
	Upstream          *UpstreamStats         `json:"upstream,omitempty"`
	Checks            map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器，source 可为 nil
func NewHealthHandler(logger *zap.Logger, source StatusSource) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger.With(zap.String("component", "health")),
		source: source,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求，附带订阅者数、上游状态与缓冲区占用
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}
	if h.source != nil {
		clients := h.source.Subscribers()
		connected := h.source.UpstreamConnected()
		buffered := h.source.Buffered()
		status.Clients = &clients
		status.UpstreamConnected = &connected
		status.Buffered = &buffered
		upstream := h.source.Upstream()
		status.Upstream = &upstream
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 处理 /healthz 请求（存活探针）
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// HandleReady 处理 /ready 请求，任一检查失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// ErrUpstreamDisconnected 上游未连接
var ErrUpstreamDisconnected = errors.New("upstream disconnected")

// FuncHealthCheck 以函数实现的健康检查
type FuncHealthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncHealthCheck 创建函数式健康检查
func NewFuncHealthCheck(name string, check func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{name: name, check: check}
}

func (c *FuncHealthCheck) Name() string {
	return c.name
}

func (c *FuncHealthCheck) Check(ctx context.Context) error {
	return c.check(ctx)
}

// NewUpstreamHealthCheck 上游连接打开时通过
func NewUpstreamHealthCheck(connected func() bool) *FuncHealthCheck {
	return NewFuncHealthCheck("upstream", func(context.Context) error {
		if !connected() {
			return ErrUpstreamDisconnected
		}
		return nil
	})
}
