// =============================================================================
// agentpost OpenTelemetry 初始化
// =============================================================================
// 安装全局 TracerProvider / MeterProvider。禁用时不创建 exporter，
// 全局 provider 保持 noop，但 W3C 传播器始终安装，
// 以便入站 traceparent 可以继续写入日志。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/config"
)

// InstrumentationName 本服务所有 span 与指标使用的 scope 名称
const InstrumentationName = "github.com/BaSui01/agentpost"

// Providers 持有 SDK provider；禁用时两者均为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Option 配置 Init
type Option func(*options)

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
}

// WithSpanExporter 替换 OTLP trace exporter（测试中使用 tracetest.InMemoryExporter）
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricReader 替换 OTLP metric reader（测试中使用 sdkmetric.NewManualReader）
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// Init 初始化 OTel SDK。cfg.Enabled 为 false 时只安装传播器。
func Init(cfg config.TelemetryConfig, version string, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if version == "" {
		version = "dev"
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	spanExporter := o.spanExporter
	if spanExporter == nil {
		// gRPC 连接是惰性的，collector 不可达不会导致 Init 失败
		spanExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	reader := o.metricReader
	if reader == nil {
		metricExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			_ = spanExporter.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(metricExporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

// Tracer 返回全局 tracer；未启用 SDK 时为 noop
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Shutdown 刷新并关闭 exporter。nil 与禁用状态下为空操作。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔗 日志关联
// =============================================================================

// TraceFields 返回 ctx 中 span 的 trace_id / span_id 字段；没有有效 span 时返回 nil
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// =============================================================================
// 📈 发帖流程的 OTel 指标
// =============================================================================

// RunMetrics 通过 OTLP 导出的发帖次数与耗时。
// 每次调用 NewRunMetrics 从当前全局 MeterProvider 创建 instrument。
type RunMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunMetrics 创建发帖指标；instrument 创建失败时回退为 noop
func NewRunMetrics() *RunMetrics {
	meter := otel.Meter(InstrumentationName)
	runs, err := meter.Int64Counter("agentpost.automation.runs",
		metric.WithDescription("Completed posting runs"))
	if err != nil {
		return &RunMetrics{}
	}
	duration, err := meter.Float64Histogram("agentpost.automation.run.duration",
		metric.WithDescription("Posting run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return &RunMetrics{}
	}
	return &RunMetrics{runs: runs, duration: duration}
}

// Record 记录一次发帖
func (m *RunMetrics) Record(ctx context.Context, path, status string, d time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("run.path", path),
		attribute.String("run.status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
