package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/agent/browser"
	"github.com/BaSui01/agentpost/api/handlers"
	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/internal/imagefetch"
	"github.com/BaSui01/agentpost/internal/metrics"
	"github.com/BaSui01/agentpost/internal/server"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 一次进程内共享的组件
type app struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	runner    *automation.Runner
}

// newApp 装配发帖流程。sessions 为 nil 时使用 chromedp + Claude 的浏览器会话。
func newApp(cfg *config.Config, sessions automation.SessionFactory, logger *zap.Logger) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("agentpost", registry, logger)

	if sessions == nil {
		planner := browser.NewClaudePlanner(cfg.LLM, logger, browser.WithLLMRecorder(collector))
		sessions = browser.NewFactory(cfg.Browser, planner, logger,
			browser.WithAgentOptions(browser.WithActionRecorder(collector)))
	}

	fetcher := imagefetch.New(imagefetch.Config{
		MaxBytes:   cfg.Image.MaxBytes,
		Timeout:    cfg.Image.Timeout,
		TempDir:    cfg.Image.TempDir,
		CacheBytes: cfg.Image.CacheBytes,
	}, logger, imagefetch.WithRecorder(collector))

	runner := automation.NewRunner(cfg, sessions, logger,
		automation.WithImageFetcher(fetcher),
		automation.WithRecorder(collector),
	)

	return &app{registry: registry, collector: collector, runner: runner}
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 agentpost 的主服务器
type Server struct {
	cfg    *config.Config
	app    *app
	logger *zap.Logger

	healthHandler  *handlers.HealthHandler
	discordHandler *handlers.DiscordHandler

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// ServerOption 配置 Server
type ServerOption func(*Server)

// withApp 替换组件装配（测试用）
func withApp(a *app) ServerOption {
	return func(s *Server) { s.app = a }
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.app == nil {
		s.app = newApp(cfg, nil, logger)
	}

	s.healthHandler = handlers.NewHealthHandler(logger)
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("chrome", func(context.Context) error {
		return browser.ChromeAvailable(cfg.Browser.ExecPath)
	}))
	s.discordHandler = handlers.NewDiscordHandler(s.app.runner, logger)
	return s
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if s.cfg.Server.MetricsPort != 0 {
		if err := s.startMetricsServer(); err != nil {
			s.shutdownHTTP(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// routes 构建带中间件的路由
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /discord/send", s.discordHandler.HandleSend)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.app.collector),
		RequestLogger(s.logger),
	)
}

func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Name:            "http",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.routes(), serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.ListenAddr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.app.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.ListenAddr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号、ctx 取消或任一服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case err := <-metricsErrs:
			metricsErr = err
			cancel()
		case <-waitCtx.Done():
		}
	}()

	err := s.httpManager.WaitForShutdown(waitCtx)
	cancel()
	<-done
	s.shutdownMetrics(context.WithoutCancel(ctx))
	s.logger.Info("Graceful shutdown completed")

	return errors.Join(err, metricsErr)
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")
	s.shutdownHTTP(ctx)
	s.shutdownMetrics(ctx)
}

func (s *Server) shutdownHTTP(ctx context.Context) {
	if s.httpManager == nil {
		return
	}
	if err := s.httpManager.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
}

func (s *Server) shutdownMetrics(ctx context.Context) {
	if s.metricsManager == nil {
		return
	}
	if err := s.metricsManager.Shutdown(ctx); err != nil {
		s.logger.Error("Metrics server shutdown error", zap.Error(err))
	}
}
