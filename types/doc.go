// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentpost 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 automation、agent/browser、
api 等上层模块提供统一的错误与上下文契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - StatusForCode    : 错误码到 HTTP 状态码的映射

# 主要能力

  - Context 传播：WithRequestID / WithRunID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
