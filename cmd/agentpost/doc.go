// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentpost 服务端程序入口。

# 概述

cmd/agentpost 启动 HTTP 服务，接收 POST /discord/send 请求后由
LLM 驱动的浏览器会话登录 Discord、进入配置的频道并发送消息（可附带图片）。
同一套组件也可通过 send 子命令单次执行。

# 核心类型

  - Server     : 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware : HTTP 中间件函数签名 func(http.Handler) http.Handler
  - app        : 共享组件：Prometheus registry、指标收集器、发帖 Runner

# 主要能力

  - 子命令：serve、send、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger
  - 配置缺失时在监听端口之前以非零状态退出
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus），端口为 0 时关闭
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
