package api

import "time"

// =============================================================================
// 📨 发帖请求与响应
// =============================================================================

// SendRequest POST /discord/send 的请求体。未知字段会被忽略。
type SendRequest struct {
	// 要发送的文本，去除首尾空白后不能为空
	Message string `json:"message" example:"hello world"`
	// 可选的图片地址，必须是绝对的 http(s) URL
	ImageURL string `json:"imageUrl,omitempty" example:"https://example.com/a.png"`
}

// SendResponse 发帖成功响应
type SendResponse struct {
	Status  string `json:"status" example:"ok"`
	Success bool   `json:"success" example:"true"`
	Posted  string `json:"posted" example:"hello world"`
	RunID   string `json:"run_id"`
	Path    string `json:"path" example:"text"`
}

// ErrorResponse 错误响应。Step 与 ReachedState 仅在流程失败时出现。
type ErrorResponse struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	Code         string `json:"code"`
	Retryable    bool   `json:"retryable,omitempty"`
	Step         string `json:"step,omitempty"`
	ReachedState string `json:"reached_state,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// VersionResponse 版本信息
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}
