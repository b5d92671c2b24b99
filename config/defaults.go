// =============================================================================
// 📦 agentpost 默认配置
// =============================================================================
// 提供所有配置项的合理默认值；凭据与频道 URL 没有默认值
// =============================================================================
package config

import "time"

// DefaultLoginURL 是会话的起始页面
const DefaultLoginURL = "https://discord.com/login"

// DefaultModel 驱动浏览器智能体的默认模型
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Discord:   DefaultDiscordConfig(),
		LLM:       DefaultLLMConfig(),
		Browser:   DefaultBrowserConfig(),
		Image:     DefaultImageConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        3000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    20 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultDiscordConfig 返回默认 Discord 配置
func DefaultDiscordConfig() DiscordConfig {
	return DiscordConfig{
		LoginURL: DefaultLoginURL,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:     DefaultModel,
		MaxTokens: 1024,
		Timeout:   2 * time.Minute,
	}
}

// DefaultBrowserConfig 返回默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:           true,
		ViewportWidth:      1280,
		ViewportHeight:     800,
		MaxSteps:           25,
		MaxFailures:        4,
		ActionDelay:        750 * time.Millisecond,
		PlanInterval:       time.Second,
		InstructionTimeout: 5 * time.Minute,
		Narrate:            true,
	}
}

// DefaultImageConfig 返回默认图片下载配置
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		MaxBytes:   25 << 20, // 25 MB
		Timeout:    30 * time.Second,
		CacheBytes: 64 << 20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentpost",
		SampleRate:   1.0,
	}
}
