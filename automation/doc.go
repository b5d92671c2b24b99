// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 automation 实现"登录 → 进入频道 → 发帖"的三步发帖流程。

# 概述

Runner 不关心页面细节：每一步都是一条自然语言指令加一组数据，
交给注入的 Agent 执行。步骤顺序由显式状态机 Next 决定：

	LoggedOut --login--> LoggedIn --navigate--> InChannel --post--> Posted

# 核心类型

  - Agent：浏览器会话能力，Act 执行一条指令，Stop 释放会话。
  - SessionFactory：为每次运行创建新会话，会话之间不共享状态。
  - Post / Result：一次发帖的输入与结果。
  - StepError：失败步骤与失败时已到达的状态。

# 保证

会话一旦创建，Run 返回前恰好调用一次 Stop，无论成功、失败还是 panic。
Stop 的错误只记录日志，不覆盖流程本身的结果。
*/
package automation
