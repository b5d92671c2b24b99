// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、自动化流程、浏览器会话、LLM 规划与图片缓存五个维度。

# 概述

Collector 通过 promauto.With 注册到调用方传入的 Registerer，
进程内使用独立 Registry，测试之间互不干扰。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 流程指标：按 path（text/image）与结果统计运行次数和耗时，
    按步骤统计 login/navigate/post 的耗时与失败数。
  - 会话指标：活跃浏览器会话 Gauge、浏览器动作计数。
  - LLM 指标：规划请求数、耗时与 input/output Token 用量。
  - 缓存指标：图片下载的缓存命中与未命中计数。
*/
package metrics
