// MockAgent 与 MockSessionFactory 的浏览器会话测试模拟实现。
//
// 记录每条指令与数据，支持按步骤注入错误与 panic。
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BaSui01/agentpost/automation"
)

// --- MockAgent ---

// ActCall 记录单次 Act 调用
type ActCall struct {
	Instruction string
	Data        map[string]string
}

// MockAgent 是 automation.Agent 的模拟实现
type MockAgent struct {
	mu sync.Mutex

	calls     []ActCall
	stopCalls int

	// 第 N 次 Act（从 1 开始）返回 failErr
	failOn  int
	failErr error
	// 第 N 次 Act 时 panic
	panicOn int

	stopErr error
	actFunc func(ctx context.Context, instruction string, data map[string]string) error
}

// NewMockAgent 创建新的 MockAgent
func NewMockAgent() *MockAgent {
	return &MockAgent{}
}

// WithFailureOn 第 n 次 Act 返回 err
func (m *MockAgent) WithFailureOn(n int, err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.New("mock act failure")
	}
	m.failOn = n
	m.failErr = err
	return m
}

// WithPanicOn 第 n 次 Act 触发 panic
func (m *MockAgent) WithPanicOn(n int) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicOn = n
	return m
}

// WithStopError 设置 Stop 返回的错误
func (m *MockAgent) WithStopError(err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
	return m
}

// WithActFunc 设置自定义 Act 行为
func (m *MockAgent) WithActFunc(fn func(ctx context.Context, instruction string, data map[string]string) error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actFunc = fn
	return m
}

// Act 实现 automation.Agent
func (m *MockAgent) Act(ctx context.Context, instruction string, data map[string]string) error {
	m.mu.Lock()
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	m.calls = append(m.calls, ActCall{Instruction: instruction, Data: copied})
	n := len(m.calls)
	failOn, failErr, panicOn, fn := m.failOn, m.failErr, m.panicOn, m.actFunc
	m.mu.Unlock()

	if panicOn > 0 && n == panicOn {
		panic("mock agent panic")
	}
	if failOn > 0 && n == failOn {
		return failErr
	}
	if fn != nil {
		return fn(ctx, instruction, data)
	}
	return ctx.Err()
}

// Stop 实现 automation.Agent
func (m *MockAgent) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}

// Calls 返回所有 Act 调用
func (m *MockAgent) Calls() []ActCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// StopCalls 返回 Stop 调用次数
func (m *MockAgent) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// UploadRequested 是否有指令携带了图片数据
func (m *MockAgent) UploadRequested() bool {
	for _, c := range m.Calls() {
		if _, ok := c.Data[automation.KeyImage]; ok {
			return true
		}
		if strings.Contains(strings.ToLower(c.Instruction), "upload") {
			return true
		}
	}
	return false
}

// --- MockSessionFactory ---

// MockSessionFactory 是 automation.SessionFactory 的模拟实现
type MockSessionFactory struct {
	mu sync.Mutex

	agents   []*MockAgent
	newAgent func() *MockAgent
	startErr error
	urls     []string
}

// NewMockSessionFactory 每次 Start 返回 newAgent() 的结果；newAgent 为 nil 时使用 NewMockAgent
func NewMockSessionFactory(newAgent func() *MockAgent) *MockSessionFactory {
	if newAgent == nil {
		newAgent = NewMockAgent
	}
	return &MockSessionFactory{newAgent: newAgent}
}

// WithStartError 设置 Start 返回的错误
func (f *MockSessionFactory) WithStartError(err error) *MockSessionFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
	return f
}

// Start 实现 automation.SessionFactory
func (f *MockSessionFactory) Start(ctx context.Context, startURL string) (automation.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, startURL)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := f.newAgent()
	f.agents = append(f.agents, agent)
	return agent, nil
}

// Agents 返回所有已创建的会话
func (f *MockSessionFactory) Agents() []*MockAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockAgent, len(f.agents))
	copy(out, f.agents)
	return out
}

// StartURLs 返回每次 Start 的 URL
func (f *MockSessionFactory) StartURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.urls))
	copy(out, f.urls)
	return out
}

// StartCount 返回 Start 调用次数
func (f *MockSessionFactory) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}
