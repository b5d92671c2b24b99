// Package api 定义 agentpost HTTP 接口的请求与响应结构。
//
// # Endpoints
//
//	POST /discord/send   以 {"message", "imageUrl"?} 触发一次发帖
//	GET  /health         存活检查
//	GET  /healthz        存活检查
//	GET  /ready          就绪检查（Chrome 可执行文件可用）
//	GET  /readyz         同 /ready
//	GET  /version        版本信息
//
// /metrics 在独立的指标端口上提供。
//
// # Errors
//
// 错误响应统一为 ErrorResponse，code 取自 types.ErrorCode：
//
//	400 INVALID_REQUEST  缺少 message、JSON 无效或 imageUrl 非法
//	500 STEP_FAILED      某一步失败，附带 step 与 reached_state
//	500 SESSION_START    浏览器会话启动失败
//	500 IMAGE_FETCH      图片下载失败
package api
