// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 agentpost HTTP 接口的请求处理器实现。

# 核心类型

  - DiscordHandler : POST /discord/send，校验请求后同步执行发帖流程
  - HealthHandler  : 存活、就绪与版本端点
  - HealthCheck    : 可插拔就绪检查接口，FuncCheck 为函数实现
  - ResponseWriter : 包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - WriteJSON / WriteError 统一 JSON 响应与 api.ErrorResponse 错误结构
  - DecodeJSONBody：1 MB 限制，忽略未知字段，空 body 视为 {}
  - 流程失败时返回失败步骤与已到达的状态
*/
package handlers
