package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Act 循环的终止错误
var (
	ErrMaxSteps        = errors.New("instruction not completed within step limit")
	ErrTooManyFailures = errors.New("too many consecutive failures")
	ErrGaveUp          = errors.New("planner gave up on instruction")
	ErrStopped         = errors.New("browser agent stopped")
)

const (
	defaultScrollAmount = 400
	maxWait             = 10 * time.Second
	promptHistoryLimit  = 20
)

// AgentConfig 配置观察-规划-执行循环
type AgentConfig struct {
	MaxSteps           int           `json:"max_steps"`
	MaxFailures        int           `json:"max_failures"`
	ActionDelay        time.Duration `json:"action_delay"`
	PlanInterval       time.Duration `json:"plan_interval"`
	InstructionTimeout time.Duration `json:"instruction_timeout"`
	Narrate            bool          `json:"narrate"`
}

// DefaultAgentConfig returns the default loop bounds.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxSteps:           25,
		MaxFailures:        4,
		ActionDelay:        750 * time.Millisecond,
		PlanInterval:       time.Second,
		InstructionTimeout: 5 * time.Minute,
		Narrate:            true,
	}
}

// ActionRecorder 动作指标，*metrics.Collector 实现了该接口
type ActionRecorder interface {
	RecordBrowserAction(action, status string)
}

type noopActionRecorder struct{}

func (noopActionRecorder) RecordBrowserAction(string, string) {}

// AgentOption 配置 AgenticBrowser
type AgentOption func(*AgenticBrowser)

// WithActionRecorder 设置动作指标记录器
func WithActionRecorder(r ActionRecorder) AgentOption {
	return func(b *AgenticBrowser) {
		if r != nil {
			b.recorder = r
		}
	}
}

// AgenticBrowser 用 Planner 驱动 Driver 完成自然语言指令。
// 实现 automation.Agent；一个实例对应一个浏览器会话。
type AgenticBrowser struct {
	driver   Driver
	planner  Planner
	config   AgentConfig
	limiter  *rate.Limiter
	recorder ActionRecorder
	logger   *zap.Logger

	mu      sync.Mutex
	history []ActionRecord

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// NewAgenticBrowser 创建代理浏览器
func NewAgenticBrowser(driver Driver, planner Planner, config AgentConfig, logger *zap.Logger, opts ...AgentOption) *AgenticBrowser {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultAgentConfig()
	if config.MaxSteps <= 0 {
		config.MaxSteps = defaults.MaxSteps
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}

	limit := rate.Inf
	if config.PlanInterval > 0 {
		limit = rate.Every(config.PlanInterval)
	}

	b := &AgenticBrowser{
		driver:   driver,
		planner:  planner,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		recorder: noopActionRecorder{},
		logger:   logger.With(zap.String("component", "agentic_browser")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Act 执行一条指令直到规划器报告完成、放弃或触达循环上限
func (b *AgenticBrowser) Act(ctx context.Context, instruction string, data map[string]string) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if b.config.InstructionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.InstructionTimeout)
		defer cancel()
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replacer := placeholderReplacer(data)

	var (
		history  []ActionRecord
		failures int
		lastErr  error
	)

	for step := 1; step <= b.config.MaxSteps; step++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return interrupted(ctx, err)
		}

		page, err := b.observe(ctx)
		if err == nil {
			var decision *Decision
			decision, err = b.planner.Plan(ctx, PlanRequest{
				Instruction: instruction,
				DataKeys:    keys,
				Page:        page,
				History:     tail(history, promptHistoryLimit),
				Step:        step,
				MaxSteps:    b.config.MaxSteps,
			})
			if err == nil && decision == nil {
				err = errors.New("planner returned no decision")
			}
			if err == nil {
				if b.config.Narrate && decision.Thought != "" {
					b.logger.Info("planner", zap.Int("turn", step), zap.String("thought", decision.Thought))
				}
				if decision.Done {
					if decision.Success {
						b.logger.Debug("instruction completed", zap.Int("turns", step))
						return nil
					}
					return fmt.Errorf("%w: %s", ErrGaveUp, decision.Reason)
				}

				for _, action := range decision.Actions {
					rec := b.execute(ctx, action, replacer)
					history = append(history, rec)
					b.appendHistory(rec)
					if !rec.Success {
						err = errors.New(rec.Error)
						break
					}
					failures = 0
					if err := sleep(ctx, b.config.ActionDelay); err != nil {
						return interrupted(ctx, err)
					}
				}
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx, ctx.Err())
			}
			failures++
			lastErr = err
			b.logger.Warn("turn failed", zap.Int("turn", step), zap.Int("failures", failures), zap.Error(err))
			if failures >= b.config.MaxFailures {
				return fmt.Errorf("%w: %w", ErrTooManyFailures, lastErr)
			}
		}
	}

	return ErrMaxSteps
}

func (b *AgenticBrowser) observe(ctx context.Context) (*PageState, error) {
	url, err := b.driver.URL(ctx)
	if err != nil {
		return nil, err
	}
	title, err := b.driver.Title(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := b.driver.Elements(ctx)
	if err != nil {
		return nil, err
	}

	page := &PageState{URL: url, Title: title, Elements: elements}
	// 截图失败时只用元素列表规划
	if shot, err := b.driver.Screenshot(ctx); err != nil {
		b.logger.Warn("screenshot failed", zap.Error(err))
	} else {
		page.Screenshot = shot
	}
	return page, nil
}

// execute 执行单个动作。record 与日志中保留占位符。
func (b *AgenticBrowser) execute(ctx context.Context, action PlannedAction, replacer *strings.Replacer) ActionRecord {
	record := ActionRecord{Action: action, Timestamp: time.Now()}

	if b.config.Narrate {
		b.logger.Info("browser action",
			zap.String("type", string(action.Type)),
			zap.String("element", action.Element),
			zap.String("value", action.Value))
	}

	value := replacer.Replace(action.Value)

	var err error
	switch action.Type {
	case ActionClick:
		err = b.driver.Click(ctx, action.Element)
	case ActionType:
		err = b.driver.Type(ctx, action.Element, value)
	case ActionPress:
		err = b.driver.Press(ctx, value)
	case ActionUpload:
		err = b.driver.Upload(ctx, action.Element, value)
	case ActionScroll:
		amount := action.Amount
		if amount == 0 {
			amount = defaultScrollAmount
		}
		err = b.driver.Scroll(ctx, amount)
	case ActionNavigate:
		err = b.driver.Navigate(ctx, value)
	case ActionWait:
		d := time.Duration(action.Seconds * float64(time.Second))
		err = sleep(ctx, min(max(d, 0), maxWait))
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	status := "success"
	if err != nil {
		status = "failed"
		record.Error = err.Error()
	} else {
		record.Success = true
	}
	b.recorder.RecordBrowserAction(string(action.Type), status)
	return record
}

func (b *AgenticBrowser) appendHistory(rec ActionRecord) {
	b.mu.Lock()
	b.history = append(b.history, rec)
	b.mu.Unlock()
}

// History 返回会话内所有已执行动作
func (b *AgenticBrowser) History() []ActionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ActionRecord{}, b.history...)
}

// Stop 关闭浏览器，可重复调用
func (b *AgenticBrowser) Stop() error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.stopErr = b.driver.Close()
	})
	return b.stopErr
}

// placeholderReplacer 把 {{key}} 替换为数据值；未知占位符原样保留
func placeholderReplacer(data map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...)
}

func tail(records []ActionRecord, n int) []ActionRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("instruction interrupted: %w", err)
}
