// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 browser 提供由 LLM 驱动的浏览器智能体，供发帖流程逐步执行自然语言指令。

# 核心接口

  - Driver：底层浏览器控制，Navigate / Screenshot / Elements / Click /
    Type / Press / Upload / Scroll / URL / Title / Close
  - Planner：根据指令、页面元素、截图与历史动作给出 Decision
  - AgenticBrowser：观察 → 规划 → 执行循环，实现 automation.Agent
  - Factory：每次调用启动独立的 Chrome 会话，实现 automation.SessionFactory

# 数据与占位符

Act 的 data 只以键名形式出现在 prompt 中。规划器在动作的 value 里写
{{key}}，执行前在本地替换，日志与历史中保留占位符。

# 循环上限

MaxSteps 限制规划轮数，MaxFailures 限制连续失败次数，
InstructionTimeout 限制单条指令耗时，PlanInterval 通过 x/time/rate
控制规划调用频率。

# 内置实现

ChromeDPDriver 基于 chromedp，每个实例使用独立的临时 user-data 目录，
Close 时删除。ClaudePlanner 通过 anthropic-sdk-go 调用 Messages API。
*/
package browser
