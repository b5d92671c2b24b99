package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrServerClosed 关闭后再次 Start 时返回
var ErrServerClosed = errors.New("server is closed")

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager 管理一个 http.Server 的监听、排空与关闭。
// 发帖请求是同步的长请求，关闭时会等待在途请求完成，超时后强制断开。
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger

	inFlight atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Config 服务器配置
type Config struct {
	// 名称，用于日志与错误信息
	Name string `yaml:"name" json:"name"`
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 等待在途请求的最长时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置。WriteTimeout 覆盖一次完整的发帖流程。
func DefaultConfig() Config {
	return Config{
		Name:            "http",
		Addr:            ":3000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    20 * time.Minute,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "http"
	}

	m := &Manager{
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", config.Name)),
	}
	m.server = &http.Server{
		Addr:              config.Addr,
		Handler:           m.track(handler),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named(config.Name)),
	}
	return m
}

// track 统计在途请求数
func (m *Manager) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 同步监听端口后在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%s: %w", m.config.Name, ErrServerClosed)
	}
	if m.listener != nil {
		return fmt.Errorf("%s server already started", m.config.Name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	m.logger.Info("listening", zap.String("addr", listener.Addr().String()))

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	err := m.server.Serve(listener)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error("server exited", zap.Error(err))
	select {
	case m.errCh <- fmt.Errorf("%s server: %w", m.config.Name, err):
	default:
	}
}

// Shutdown 停止接受新连接并等待在途请求，超时后强制关闭。可重复调用。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// 排空期间不持锁，ListenAddr 等方法仍可调用
	defer func() {
		m.mu.Lock()
		m.listener = nil
		m.mu.Unlock()
	}()

	timeout := m.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.logger.Info("draining requests",
		zap.Int64("in_flight", m.inFlight.Load()),
		zap.Duration("timeout", timeout))

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		abandoned := m.inFlight.Load()
		_ = m.server.Close()
		m.logger.Error("forced close after drain timeout",
			zap.Int64("abandoned", abandoned), zap.Error(err))
		return fmt.Errorf("%s server: %d request(s) abandoned: %w", m.config.Name, abandoned, err)
	}

	m.logger.Info("server stopped")
	return nil
}

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM、ctx 取消或服务异常退出，然后优雅关闭。
// 服务异常退出时返回该错误。
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		m.logger.Info("context cancelled, shutting down")
	case serveErr = <-m.errCh:
	}

	return errors.Join(serveErr, m.Shutdown(context.WithoutCancel(ctx)))
}

// Errors 返回服务异常退出的错误，最多一个
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// ListenAddr 返回实际监听地址；未启动或已关闭时返回空字符串
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener != nil && !m.closed
}

// InFlight 返回正在处理的请求数
func (m *Manager) InFlight() int64 {
	return m.inFlight.Load()
}
