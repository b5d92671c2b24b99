package automation

import (
	"context"
	"strings"
	"time"
)

// Agent 是一次浏览器会话。Act 按自然语言指令操作页面，
// data 中的值只在客户端替换，不会原样发送给模型。
type Agent interface {
	Act(ctx context.Context, instruction string, data map[string]string) error
	Stop() error
}

// SessionFactory 创建以 startURL 为起点的新会话
type SessionFactory interface {
	Start(ctx context.Context, startURL string) (Agent, error)
}

// SessionFactoryFunc 函数适配器
type SessionFactoryFunc func(ctx context.Context, startURL string) (Agent, error)

// Start 实现 SessionFactory
func (f SessionFactoryFunc) Start(ctx context.Context, startURL string) (Agent, error) {
	return f(ctx, startURL)
}

// Path 发帖路径
type Path string

const (
	PathText  Path = "text"
	PathImage Path = "image"
)

// Post 一次发帖请求
type Post struct {
	Message  string
	ImageURL string
}

// HasImage 是否附带图片
func (p Post) HasImage() bool {
	return strings.TrimSpace(p.ImageURL) != ""
}

// Path 返回本次发帖走的路径
func (p Post) Path() Path {
	if p.HasImage() {
		return PathImage
	}
	return PathText
}

// Result 一次运行的结果
type Result struct {
	RunID    string        `json:"run_id"`
	Path     Path          `json:"path"`
	State    State         `json:"state"`
	Duration time.Duration `json:"duration"`
}
