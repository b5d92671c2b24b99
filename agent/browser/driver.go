package browser

import (
	"context"
	"fmt"
	"time"
)

// Driver 浏览器底层控制接口。元素通过 Elements 返回的 ID 引用。
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) (*Screenshot, error)
	Elements(ctx context.Context) ([]PageElement, error)
	Click(ctx context.Context, elementID string) error
	Type(ctx context.Context, elementID, text string) error
	Press(ctx context.Context, key string) error
	Upload(ctx context.Context, elementID, path string) error
	Scroll(ctx context.Context, deltaY int) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

// DriverConfig 浏览器启动参数
type DriverConfig struct {
	Headless       bool          `json:"headless"`
	ExecPath       string        `json:"exec_path,omitempty"`
	ViewportWidth  int           `json:"viewport_width"`
	ViewportHeight int           `json:"viewport_height"`
	UserAgent      string        `json:"user_agent,omitempty"`
	ActionTimeout  time.Duration `json:"action_timeout"`
	// 每个会话的临时 profile 目录的父目录，空表示系统临时目录
	ProfileDir string `json:"profile_dir,omitempty"`
}

// DefaultDriverConfig returns sensible defaults.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		ActionTimeout:  20 * time.Second,
	}
}

// elementIDAttr 标记可交互元素的 DOM 属性
const elementIDAttr = "data-agentpost-id"

func elementSelector(id string) string {
	return fmt.Sprintf(`[%s=%q]`, elementIDAttr, id)
}
