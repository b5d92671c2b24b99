// Package config 提供 agentpost 的配置加载与校验。
//
// 配置在进程启动时构建一次，以 *Config 显式传入 handler 与自动化流程，
// 不使用进程级全局变量。四个必需值缺失时 Validate 返回 CONFIG_MISSING，
// 调用方应在监听端口之前退出。
package config
