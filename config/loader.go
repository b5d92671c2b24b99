// =============================================================================
// 📦 agentpost 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → .env 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentpost/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 agentpost 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Discord 目标账号与频道
	Discord DiscordConfig `yaml:"discord" env:"DISCORD"`

	// LLM 驱动浏览器智能体的 Anthropic 配置
	LLM LLMConfig `yaml:"llm" env:"ANTHROPIC"`

	// Browser 浏览器会话配置
	Browser BrowserConfig `yaml:"browser" env:"BROWSER"`

	// Image 图片下载配置
	Image ImageConfig `yaml:"image" env:"IMAGE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不启动
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖一次完整的自动化流程
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DiscordConfig 登录凭据与目标频道
type DiscordConfig struct {
	Email      string `yaml:"email" env:"EMAIL"`
	Password   string `yaml:"password" env:"PASSWORD"`
	ChannelURL string `yaml:"channel_url" env:"CHANNEL_URL"`
	LoginURL   string `yaml:"login_url" env:"LOGIN_URL"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次规划的最大输出 Token
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// BrowserConfig 浏览器与智能体循环配置
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" env:"HEADLESS"`
	ExecPath       string `yaml:"exec_path" env:"EXEC_PATH"`
	ViewportWidth  int    `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight int    `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
	UserAgent      string `yaml:"user_agent" env:"USER_AGENT"`
	// 每条指令最多的规划轮数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 连续失败动作上限
	MaxFailures int `yaml:"max_failures" env:"MAX_FAILURES"`
	// 动作之间的等待
	ActionDelay time.Duration `yaml:"action_delay" env:"ACTION_DELAY"`
	// 两次规划调用的最小间隔
	PlanInterval time.Duration `yaml:"plan_interval" env:"PLAN_INTERVAL"`
	// 单条指令超时
	InstructionTimeout time.Duration `yaml:"instruction_timeout" env:"INSTRUCTION_TIMEOUT"`
	// 是否记录每个规划动作
	Narrate bool `yaml:"narrate" env:"NARRATE"`
}

// ImageConfig 图片下载配置
type ImageConfig struct {
	MaxBytes int64         `yaml:"max_bytes" env:"MAX_BYTES"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	TempDir  string        `yaml:"temp_dir" env:"TEMP_DIR"`
	// 内存响应缓存上限（字节），按 LRU 淘汰
	CacheBytes int64 `yaml:"cache_bytes" env:"CACHE_BYTES"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
	lookup     func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器。
// 默认无前缀，使得 DISCORD_EMAIL、ANTHROPIC_API_KEY 等变量名保持原样。
func NewLoader() *Loader {
	return &Loader{
		lookup:     os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv 设置 .env 文件路径；文件不存在时忽略
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookup 替换环境变量查找函数（测试用）
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → .env 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. .env 只作为环境变量的后备，不写回进程环境
	lookup := l.lookup
	if l.dotEnvPath != "" {
		dotEnv, err := readDotEnv(l.dotEnvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dotenv file: %w", err)
		}
		lookup = layeredLookup(l.lookup, dotEnv)
	}

	// 4. 从环境变量覆盖
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix, lookup); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return godotenv.Read(path)
}

func layeredLookup(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok && v != "" {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := envTag
		if prefix != "" {
			envKey = prefix + "_" + envTag
		}

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey, lookup); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue, ok := lookup(envKey)
		if !ok || envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// Validate 验证配置。
// 缺少任一必需值返回 CONFIG_MISSING，其余不合法的值返回 CONFIG_INVALID。
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"ANTHROPIC_API_KEY", c.LLM.APIKey},
		{"DISCORD_EMAIL", c.Discord.Email},
		{"DISCORD_PASSWORD", c.Discord.Password},
		{"DISCORD_CHANNEL_URL", c.Discord.ChannelURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrConfigMissing,
			"missing required configuration: "+strings.Join(missing, ", "))
	}

	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if !isHTTPURL(c.Discord.ChannelURL) {
		errs = append(errs, "DISCORD_CHANNEL_URL must be an absolute http(s) URL")
	}
	if !isHTTPURL(c.Discord.LoginURL) {
		errs = append(errs, "DISCORD_LOGIN_URL must be an absolute http(s) URL")
	}
	if c.Browser.MaxSteps <= 0 {
		errs = append(errs, "browser max_steps must be positive")
	}
	if c.Browser.MaxFailures <= 0 {
		errs = append(errs, "browser max_failures must be positive")
	}
	if c.Image.MaxBytes <= 0 {
		errs = append(errs, "image max_bytes must be positive")
	}
	if c.Image.CacheBytes < 0 {
		errs = append(errs, "image cache_bytes must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}
	if budget := c.RunBudget(); c.Server.WriteTimeout > 0 && budget > 0 && c.Server.WriteTimeout < budget {
		errs = append(errs, fmt.Sprintf(
			"server write_timeout %s is shorter than one automation run (%s); raise SERVER_WRITE_TIMEOUT or lower BROWSER_INSTRUCTION_TIMEOUT",
			c.Server.WriteTimeout, budget))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfigInvalid,
			"config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}

// RunStartupAllowance 会话启动和登录页加载的预留时间
const RunStartupAllowance = 2 * time.Minute

// RunBudget 一次完整发帖的最长耗时：最多三条指令，加上图片下载与会话启动。
// InstructionTimeout <= 0 表示指令不限时，此时返回 0。
func (c *Config) RunBudget() time.Duration {
	if c.Browser.InstructionTimeout <= 0 {
		return 0
	}
	return 3*c.Browser.InstructionTimeout + c.Image.Timeout + RunStartupAllowance
}

// Redacted 返回可安全写入日志的副本
func (c *Config) Redacted() Config {
	out := *c
	out.Discord.Password = mask(c.Discord.Password)
	out.LLM.APIKey = mask(c.LLM.APIKey)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// LoadFromEnv 仅从环境变量加载配置并校验
func LoadFromEnv() (*Config, error) {
	cfg, err := NewLoader().Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
