package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sampleflow/api/handlers"
	"github.com/BaSui01/sampleflow/broadcast"
	"github.com/BaSui01/sampleflow/config"
	"github.com/BaSui01/sampleflow/gateway"
	"github.com/BaSui01/sampleflow/ingest"
	"github.com/BaSui01/sampleflow/internal/metrics"
	"github.com/BaSui01/sampleflow/internal/server"
	"github.com/BaSui01/sampleflow/internal/telemetry"
	"github.com/BaSui01/sampleflow/sample"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装采样中继的全部组件
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	// 指标
	promRegistry *prometheus.Registry
	collector    *metrics.Collector

	// 数据通路
	buffer   *sample.Buffer
	registry *broadcast.Registry
	ingestor *ingest.Ingestor
	endpoint *gateway.Endpoint

	healthHandler *handlers.HealthHandler
	reloader      *config.Reloader

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 中间件后台 goroutine 生命周期
	bgCancel context.CancelFunc
}

// NewServer 创建服务器并装配组件；不监听任何端口
func NewServer(cfg *config.Config, configPath string, loader *config.Loader, logger *zap.Logger,
	level zap.AtomicLevel, otelProviders *telemetry.Providers) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}

	// 1. 指标：独立的 Registry，附带 Go 运行时与进程指标
	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("sampleflow", s.promRegistry, logger)

	// 2. 历史窗口与订阅者注册表
	buffer, err := sample.NewBuffer(cfg.Stream.BufferCapacity)
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	s.buffer = buffer
	s.registry = broadcast.NewRegistry(
		broadcast.WithSendTimeout(cfg.Gateway.SendTimeout),
		broadcast.WithMetrics(s.collector),
		broadcast.WithLogger(logger),
	)

	// 3. 上游读取
	s.ingestor, err = ingest.New(ingest.Config{
		Address:        cfg.Upstream.Address(),
		ReconnectDelay: cfg.Upstream.ReconnectDelay,
		DialTimeout:    cfg.Upstream.DialTimeout,
		MaxLineBytes:   cfg.Upstream.MaxLineBytes,
		Arity:          cfg.Stream.Arity,
	}, s.buffer, s.registry,
		ingest.WithMetrics(s.collector),
		ingest.WithTracer(otelProviders.Tracer("sampleflow/ingest")),
		ingest.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingestor: %w", err)
	}

	// 4. 下行端点
	s.endpoint = gateway.New(gateway.Config{
		ReadLimit:      cfg.Gateway.ReadLimit,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
	}, s.buffer, s.registry,
		gateway.WithMetrics(s.collector),
		gateway.WithLogger(logger),
	)

	// 5. 健康检查
	s.healthHandler = handlers.NewHealthHandler(logger, relayStatus{s})
	s.healthHandler.RegisterCheck(handlers.NewUpstreamHealthCheck(s.ingestor.Connected))

	// 6. 配置重载
	s.reloader = config.NewReloader(cfg, loader, logger)
	s.reloader.OnReload(s.applyReload)

	return s, nil
}

// relayStatus 为 /health 提供运行状态
type relayStatus struct{ s *Server }

func (r relayStatus) Subscribers() int        { return r.s.registry.Count() }
func (r relayStatus) UpstreamConnected() bool { return r.s.ingestor.Connected() }
func (r relayStatus) Buffered() int           { return r.s.buffer.Len() }

func (r relayStatus) Upstream() handlers.UpstreamStats {
	st := r.s.ingestor.Stats()
	return handlers.UpstreamStats{
		Connects:     st.Connects,
		Disconnects:  st.Disconnects,
		DialFailures: st.DialFailures,
		Accepted:     st.Accepted,
		Rejected:     st.Rejected,
	}
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

// Handler 返回挂载了中间件链的 HTTP 路由；ctx 控制限流器清理 goroutine
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.Handle(s.cfg.Gateway.Path, s.endpoint)

	normalize := pathNormalizer(s.cfg.Gateway.Path)
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(normalize),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector, normalize),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// MetricsHandler 暴露 Prometheus 指标
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{Registry: s.promRegistry})
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 开始监听 HTTP 与 Metrics 端口（非阻塞）
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if err := s.startHTTPServer(bgCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		cancel()
		_ = s.httpManager.Shutdown(context.Background())
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.ListenAddr()),
		zap.String("gateway_path", s.cfg.Gateway.Path),
		zap.String("upstream", s.cfg.Upstream.Address()),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Bool("metrics_enabled", s.metricsManager != nil),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(s.Handler(ctx), serverConfig, s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		return s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// startMetricsServer 在独立端口暴露 /metrics；端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.MetricsHandler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 运行与关闭
// =============================================================================

// Run 运行上游读取、HTTP 服务与配置监听，直到 ctx 取消或任一组件失败。
// 必须先调用 Start。
func (s *Server) Run(ctx context.Context) error {
	if s.httpManager == nil {
		return errors.New("server not started")
	}
	defer s.bgCancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.ingestor.Run(gctx) })
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}
	if s.configPath != "" {
		watcher := config.NewFileWatcher(s.configPath, config.WithWatcherLogger(s.logger))
		watcher.OnChange(s.reloader.HandleFileEvent)
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Starting graceful shutdown...")
		s.registry.CloseAll("server shutting down")
		return nil
	})

	err := g.Wait()
	s.logger.Info("Graceful shutdown completed", zap.Error(err))
	return err
}

// applyReload 应用可热更新的配置项
func (s *Server) applyReload(_, next *config.Config, changes []config.Change) {
	for _, c := range changes {
		if c.Path == "log.level" {
			s.level.SetLevel(parseLevel(next.Log.Level))
			s.logger.Info("log level updated", zap.String("level", next.Log.Level))
		}
	}
}
