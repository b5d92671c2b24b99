// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 agentpost 提供集中式的 TracerProvider、MeterProvider 与传播器配置。
//
// 遥测禁用时不连接任何外部服务；发帖流程与 HTTP 中间件始终通过 Tracer()
// 创建 span，TraceFields 把入站或本地 span 的 ID 写入 zap 日志，
// RunMetrics 以 OTLP 指标的形式导出发帖次数与耗时。
package telemetry
