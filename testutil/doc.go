// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 agentpost 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertEventuallyTrue / DecodeJSON
  - 等待工具: WaitFor / WaitForChannel

# 子包

  - testutil/mocks: MockAgent、MockSessionFactory（浏览器会话）与
    MockImageFetcher（图片下载），支持 Builder 模式与错误注入
  - testutil/fixtures: 通过校验的配置、PNG 字节以及规划器与
    Messages API 的响应样例

# 使用示例

	ctx := testutil.TestContext(t)
	sessions := mocks.NewMockSessionFactory(nil)
	runner := automation.NewRunner(fixtures.Config(), sessions, logger)
	res, err := runner.Run(ctx, automation.Post{Message: "hi"})
*/
package testutil
