// =============================================================================
// agentpost 主入口
// =============================================================================
// HTTP 服务入口点，包含发帖端点、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentpost serve                          # 启动服务
//	agentpost serve --config config.yaml     # 指定配置文件
//	agentpost send --message "hi"            # 执行一次发帖后退出
//	agentpost send --message "hi" --image u  # 附带图片
//	agentpost health                         # 健康检查
//	agentpost version                        # 显示版本信息
//
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "golang.org/x/crypto/x509roots/fallback" // 精简镜像中没有系统根证书时使用内置根证书

	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/internal/telemetry"
	"github.com/BaSui01/agentpost/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// configFlags serve 与 send 共用的参数
type configFlags struct {
	configPath string
	envFile    string
}

func (c *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "Path to config file (YAML)")
	fs.StringVar(&c.envFile, "env-file", ".env", "Path to dotenv file; real environment variables take precedence")
}

// loadConfig 加载并校验配置，缺少必需值时返回 CONFIG_MISSING
func (c *configFlags) load() (*config.Config, error) {
	return config.NewLoader().
		WithConfigPath(c.configPath).
		WithDotEnv(c.envFile).
		WithValidator(func(cfg *config.Config) error { return cfg.Validate() }).
		Load()
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// 配置无效时在监听端口之前退出
	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting agentpost",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.Any("config", cfg.Redacted()),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	srv := NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return 1
	}

	if err := srv.WaitForShutdown(context.Background()); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("agentpost stopped")
	return 0
}

// =============================================================================
// 📨 send 命令（单次发帖）
// =============================================================================

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	message := fs.StringP("message", "m", "", "Message text to post (required)")
	image := fs.StringP("image", "i", "", "Optional image URL to attach")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if strings.TrimSpace(*message) == "" {
		fmt.Fprintln(stderr, "--message is required")
		return 2
	}

	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	app := newApp(cfg, nil, logger)
	result, err := app.runner.Run(context.Background(), automation.Post{Message: *message, ImageURL: *image})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err != nil {
		logger.Error("Send failed", zap.Error(err))
		var stepErr *automation.StepError
		if errors.As(err, &stepErr) {
			fmt.Fprintf(stderr, "Send failed at step %s (reached %s): %v\n", stepErr.Step, stepErr.Reached, stepErr.Err)
		} else {
			fmt.Fprintf(stderr, "Send failed: %v\n", err)
		}
		return 1
	}

	_ = enc.Encode(result)
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("health", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:3000", "Server address")
	path := fs.String("path", "/health", "Health endpoint path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := tlsutil.SecureHTTPClient(5*time.Second, nil)
	resp, err := client.Get(strings.TrimRight(*addr, "/") + *path)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "agentpost %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `agentpost - post to a Discord channel through an LLM-driven browser

Usage:
  agentpost <command> [options]

Commands:
  serve     Start the HTTP server
  send      Post one message and exit
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve' and 'send':
  -c, --config <path>   Path to configuration file (YAML)
      --env-file <path> Path to dotenv file (default ".env")

Options for 'send':
  -m, --message <text>  Message to post
  -i, --image <url>     Image URL to attach

Examples:
  agentpost serve
  agentpost serve --config /etc/agentpost/config.yaml
  agentpost send --message "hello world"
  agentpost health --addr http://localhost:3000
  agentpost version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: true,
	}

	opts := []zap.Option{}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
