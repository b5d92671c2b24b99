package browser

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/internal/tlsutil"
	"github.com/BaSui01/agentpost/types"
)

// LLMRecorder LLM 调用指标，*metrics.Collector 实现了该接口
type LLMRecorder interface {
	RecordLLMRequest(model, status string, duration time.Duration, inputTokens, outputTokens int)
}

type noopLLMRecorder struct{}

func (noopLLMRecorder) RecordLLMRequest(string, string, time.Duration, int, int) {}

// ClaudeOption 配置 ClaudePlanner
type ClaudeOption func(*claudeOptions)

type claudeOptions struct {
	httpClient *http.Client
	recorder   LLMRecorder
}

// WithHTTPClient 替换访问 Messages API 的 HTTP 客户端
func WithHTTPClient(c *http.Client) ClaudeOption {
	return func(o *claudeOptions) { o.httpClient = c }
}

// WithLLMRecorder 设置 LLM 指标记录器
func WithLLMRecorder(r LLMRecorder) ClaudeOption {
	return func(o *claudeOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// ClaudePlanner 通过 Anthropic Messages API 规划浏览器动作
type ClaudePlanner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	recorder  LLMRecorder
	logger    *zap.Logger
}

// NewClaudePlanner 创建规划器。SDK 自带的重试被关闭，失败直接返回给调用方。
func NewClaudePlanner(cfg config.LLMConfig, logger *zap.Logger, opts ...ClaudeOption) *ClaudePlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := claudeOptions{recorder: noopLLMRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	if o.httpClient == nil {
		o.httpClient = tlsutil.SecureHTTPClient(timeout, nil)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		// Messages API 要求必须提供 max_tokens
		maxTokens = 1024
	}

	return &ClaudePlanner{
		client:    anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
		recorder:  o.recorder,
		logger:    logger.With(zap.String("component", "claude_planner")),
	}
}

// Plan implements Planner.
func (p *ClaudePlanner) Plan(ctx context.Context, req PlanRequest) (*Decision, error) {
	var content []anthropic.ContentBlockParamUnion
	if req.Page != nil && req.Page.Screenshot != nil && len(req.Page.Screenshot.Data) > 0 {
		mediaType := req.Page.Screenshot.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		content = append(content, anthropic.NewImageBlockBase64(mediaType, req.Page.Screenshot.Base64()))
	}
	content = append(content, anthropic.NewTextBlock(buildPrompt(req)))

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(content...)},
	})
	duration := time.Since(start)

	if err != nil {
		p.recorder.RecordLLMRequest(p.model, "error", duration, 0, 0)
		return nil, mapPlannerError(err)
	}

	inputTokens, outputTokens := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	decision, err := ParseDecision(text.String())
	if err != nil {
		p.recorder.RecordLLMRequest(p.model, "invalid", duration, inputTokens, outputTokens)
		p.logger.Warn("unparseable planner response", zap.Int("length", text.Len()), zap.Error(err))
		return nil, types.NewError(types.ErrPlannerFailed, "planner response could not be parsed").WithCause(err)
	}

	p.recorder.RecordLLMRequest(p.model, "success", duration, inputTokens, outputTokens)
	p.logger.Debug("planner decision",
		zap.Int("actions", len(decision.Actions)),
		zap.Bool("done", decision.Done),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
		zap.Duration("latency", duration))
	return decision, nil
}

func mapPlannerError(err error) error {
	e := types.NewError(types.ErrPlannerFailed, "planner request failed").WithCause(err)

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch status := apiErr.StatusCode; {
		case status == http.StatusTooManyRequests, status == 529:
			e.WithRetryable(true)
		case status >= 500:
			e.WithRetryable(true)
		}
		return e
	}
	return e.WithRetryable(errors.Is(err, context.DeadlineExceeded))
}
