// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
在途请求排空与系统信号监听。

# 概述

Manager 封装 net/http.Server。agentpost 用两个 Manager 分别承载
发帖端口与 metrics 端口。发帖请求会同步持续数分钟，
因此关闭时先等待在途请求，超过 ShutdownTimeout 才强制断开。

# 主要能力

  - 非阻塞启动：Start 同步完成 Listen，端口占用等错误立即返回。
  - 随机端口：Addr 为 ":0" 时 ListenAddr 返回实际监听地址。
  - 排空：InFlight 报告在途请求数；强制断开时错误中带有被放弃的请求数。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM、ctx 取消与
    服务异常，任一发生即触发关闭。
*/
package server
