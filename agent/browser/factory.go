package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/config"
)

// DriverFunc 启动一个 Driver
type DriverFunc func(ctx context.Context, cfg DriverConfig, logger *zap.Logger) (Driver, error)

// ChromeDP 是默认的 DriverFunc
func ChromeDP(ctx context.Context, cfg DriverConfig, logger *zap.Logger) (Driver, error) {
	return NewChromeDPDriver(ctx, cfg, logger)
}

// FactoryOption 配置 Factory
type FactoryOption func(*Factory)

// WithDriverFunc 替换浏览器启动方式
func WithDriverFunc(fn DriverFunc) FactoryOption {
	return func(f *Factory) {
		if fn != nil {
			f.newDriver = fn
		}
	}
}

// WithAgentOptions 传递给每个 AgenticBrowser 的选项
func WithAgentOptions(opts ...AgentOption) FactoryOption {
	return func(f *Factory) { f.agentOpts = append(f.agentOpts, opts...) }
}

// Factory 为每次发帖启动独立的浏览器会话，实现 automation.SessionFactory
type Factory struct {
	driverConfig DriverConfig
	agentConfig  AgentConfig
	planner      Planner
	newDriver    DriverFunc
	agentOpts    []AgentOption
	logger       *zap.Logger
}

// NewFactory 创建会话工厂
func NewFactory(cfg config.BrowserConfig, planner Planner, logger *zap.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		driverConfig: DriverConfigFrom(cfg),
		agentConfig:  AgentConfigFrom(cfg),
		planner:      planner,
		newDriver:    ChromeDP,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DriverConfigFrom 从配置构建 DriverConfig
func DriverConfigFrom(cfg config.BrowserConfig) DriverConfig {
	dc := DefaultDriverConfig()
	dc.Headless = cfg.Headless
	dc.ExecPath = cfg.ExecPath
	dc.UserAgent = cfg.UserAgent
	if cfg.ViewportWidth > 0 {
		dc.ViewportWidth = cfg.ViewportWidth
	}
	if cfg.ViewportHeight > 0 {
		dc.ViewportHeight = cfg.ViewportHeight
	}
	return dc
}

// AgentConfigFrom 从配置构建 AgentConfig
func AgentConfigFrom(cfg config.BrowserConfig) AgentConfig {
	return AgentConfig{
		MaxSteps:           cfg.MaxSteps,
		MaxFailures:        cfg.MaxFailures,
		ActionDelay:        cfg.ActionDelay,
		PlanInterval:       cfg.PlanInterval,
		InstructionTimeout: cfg.InstructionTimeout,
		Narrate:            cfg.Narrate,
	}
}

// Start 启动浏览器并打开 startURL。ctx 只约束启动过程。
func (f *Factory) Start(ctx context.Context, startURL string) (automation.Agent, error) {
	driver, err := f.newDriver(ctx, f.driverConfig, f.logger)
	if err != nil {
		return nil, err
	}

	if startURL != "" {
		if err := driver.Navigate(ctx, startURL); err != nil {
			if cerr := driver.Close(); cerr != nil {
				f.logger.Warn("failed to close browser after navigation error", zap.Error(cerr))
			}
			return nil, fmt.Errorf("failed to open %s: %w", startURL, err)
		}
	}

	return NewAgenticBrowser(driver, f.planner, f.agentConfig, f.logger, f.agentOpts...), nil
}

// chromeCandidates 按顺序查找的浏览器可执行文件名
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// ChromeAvailable 检查浏览器可执行文件是否可用，用于就绪检查
func ChromeAvailable(execPath string) error {
	if execPath != "" {
		info, err := os.Stat(execPath)
		if err != nil {
			return fmt.Errorf("chrome not found at %s: %w", execPath, err)
		}
		if info.IsDir() {
			return fmt.Errorf("chrome path %s is a directory", execPath)
		}
		return nil
	}
	for _, name := range chromeCandidates {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no chrome executable found in PATH")
}
