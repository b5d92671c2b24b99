package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/internal/imagefetch"
	"github.com/BaSui01/agentpost/internal/telemetry"
	"github.com/BaSui01/agentpost/types"
)

// =============================================================================
// 🤖 发帖流程
// =============================================================================

// ImageFetcher 把 imageUrl 下载到本地
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*imagefetch.Image, error)
}

// Recorder 流程指标，*metrics.Collector 实现了该接口
type Recorder interface {
	RecordRun(path, status string, duration time.Duration)
	RecordStep(step, status string, duration time.Duration)
	SessionOpened()
	SessionClosed()
}

type noopRecorder struct{}

func (noopRecorder) RecordRun(string, string, time.Duration)  {}
func (noopRecorder) RecordStep(string, string, time.Duration) {}
func (noopRecorder) SessionOpened()                           {}
func (noopRecorder) SessionClosed()                           {}

// RunnerOption 配置 Runner
type RunnerOption func(*Runner)

// WithImageFetcher 设置图片下载器，图片发帖必需
func WithImageFetcher(f ImageFetcher) RunnerOption {
	return func(r *Runner) { r.images = f }
}

// WithRecorder 设置指标记录器
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// Runner 执行发帖流程。每次 Run 创建独立会话，Runner 本身可并发使用。
type Runner struct {
	cfg      *config.Config
	sessions SessionFactory
	images   ImageFetcher
	recorder Recorder
	otelRuns *telemetry.RunMetrics
	logger   *zap.Logger
}

// NewRunner 创建 Runner
func NewRunner(cfg *config.Config, sessions SessionFactory, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		sessions: sessions,
		recorder: noopRecorder{},
		otelRuns: telemetry.NewRunMetrics(),
		logger:   logger.With(zap.String("component", "automation")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行一次发帖。返回的 Result 在失败时也非 nil，State 为最后到达的状态。
func (r *Runner) Run(ctx context.Context, post Post) (*Result, error) {
	path := post.Path()
	res := &Result{RunID: uuid.NewString(), Path: path, State: StateLoggedOut}

	if strings.TrimSpace(post.Message) == "" {
		return res, types.NewError(types.ErrInvalidRequest, "message is required")
	}

	ctx = types.WithRunID(ctx, res.RunID)
	ctx, span := telemetry.Tracer().Start(ctx, "automation.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("run.path", string(path)),
	)

	logger := r.logger.With(zap.String("run_id", res.RunID), zap.String("path", string(path))).
		With(telemetry.TraceFields(ctx)...)
	logger.Info("automation run started")

	start := time.Now()
	var runErr error
	defer func() {
		p := recover()
		if p != nil {
			runErr = fmt.Errorf("panic: %v", p)
		}
		defer func() {
			if p != nil {
				panic(p)
			}
		}()

		res.Duration = time.Since(start)
		status := "success"
		if runErr != nil {
			status = "failed"
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
			logger.Error("automation run failed",
				zap.String("state", res.State.String()),
				zap.Duration("duration", res.Duration),
				zap.Error(runErr))
		} else {
			logger.Info("automation run completed", zap.Duration("duration", res.Duration))
		}
		span.SetAttributes(attribute.String("run.state", res.State.String()))
		r.recorder.RecordRun(string(path), status, res.Duration)
		r.otelRuns.Record(ctx, string(path), status, res.Duration)
	}()

	session, image, err := r.prepare(ctx, post)
	if err != nil {
		runErr = err
		return res, err
	}
	defer r.release(session, image, logger)

	in := stepInput{
		email:      r.cfg.Discord.Email,
		password:   r.cfg.Discord.Password,
		channelURL: r.cfg.Discord.ChannelURL,
		message:    post.Message,
		imageURL:   post.ImageURL,
	}
	if image != nil {
		in.imagePath = image.Path
	}

	for state := StateLoggedOut; state != StatePosted; {
		step, ok := Next(state, post)
		if !ok {
			runErr = types.NewError(types.ErrInternalError, fmt.Sprintf("no transition from state %s", state))
			return res, runErr
		}

		if err := r.runStep(ctx, session, step, buildInstruction(step, in), logger); err != nil {
			stepErr := &StepError{Step: step.Name, Reached: state, Err: err}
			runErr = types.NewError(types.ErrStepFailed, fmt.Sprintf("%s step failed", step.Name)).
				WithCause(stepErr).
				WithRetryable(errors.Is(err, context.DeadlineExceeded))
			return res, runErr
		}

		state = step.To
		res.State = state
	}

	return res, nil
}

// prepare 并发启动会话与下载图片；任一失败时释放已获得的资源
func (r *Runner) prepare(ctx context.Context, post Post) (Agent, *imagefetch.Image, error) {
	if post.HasImage() && r.images == nil {
		return nil, nil, types.NewError(types.ErrInternalError, "image fetcher not configured")
	}

	var (
		session Agent
		image   *imagefetch.Image
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.sessions.Start(gctx, r.cfg.Discord.LoginURL)
		if err != nil {
			return types.NewError(types.ErrSessionStart, "failed to start browser session").WithCause(err)
		}
		if s == nil {
			return types.NewError(types.ErrSessionStart, "session factory returned no session")
		}
		session = s
		r.recorder.SessionOpened()
		return nil
	})
	if post.HasImage() {
		g.Go(func() error {
			img, err := r.images.Fetch(gctx, post.ImageURL)
			if err != nil {
				if types.IsErrorCode(err, types.ErrImageFetch) {
					return err
				}
				return types.NewError(types.ErrImageFetch, "failed to download image").WithCause(err)
			}
			image = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.release(session, image, r.logger)
		return nil, nil, err
	}
	return session, image, nil
}

func (r *Runner) runStep(ctx context.Context, session Agent, step Step, instr Instruction, logger *zap.Logger) error {
	ctx, span := telemetry.Tracer().Start(ctx, "automation.step."+string(step.Name))
	defer span.End()
	span.SetAttributes(
		attribute.String("step.name", string(step.Name)),
		attribute.String("step.from", step.From.String()),
		attribute.Bool("step.upload", step.Upload),
	)

	stepLogger := logger.With(zap.String("step", string(step.Name)), zap.String("state", step.From.String()))
	stepLogger.Info("step started")

	start := time.Now()
	err := session.Act(ctx, instr.Text, instr.Data)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.recorder.RecordStep(string(step.Name), "failed", duration)
		stepLogger.Warn("step failed", zap.Duration("duration", duration), zap.Error(err))
		return err
	}

	r.recorder.RecordStep(string(step.Name), "success", duration)
	stepLogger.Info("step completed",
		zap.String("reached", step.To.String()),
		zap.Duration("duration", duration))
	return nil
}

// release 停止会话并删除临时图片。Stop 的错误只记录，不影响结果。
func (r *Runner) release(session Agent, image *imagefetch.Image, logger *zap.Logger) {
	if session != nil {
		if err := session.Stop(); err != nil {
			logger.Warn("failed to stop browser session", zap.Error(err))
		}
		r.recorder.SessionClosed()
	}
	if image != nil {
		if err := image.Cleanup(); err != nil {
			logger.Warn("failed to remove temp image", zap.String("path", image.Path), zap.Error(err))
		}
	}
}
