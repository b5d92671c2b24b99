// =============================================================================
// 📦 测试数据工厂 - 发帖流程测试数据
// =============================================================================
// 提供完整的配置、图片字节和规划器响应，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentpost/config"
)

// =============================================================================
// ⚙️ 配置工厂
// =============================================================================

const (
	Email      = "bot@example.com"
	Password   = "hunter2"
	APIKey     = "sk-test"
	ChannelURL = "https://discord.com/channels/1/2"
	ImageURL   = "https://example.com/a.png"
)

// Config 返回通过校验的配置，端口为 0 以便测试时随机监听
func Config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = APIKey
	cfg.Discord.Email = Email
	cfg.Discord.Password = Password
	cfg.Discord.ChannelURL = ChannelURL
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	return cfg
}

// RequiredEnv 返回必需的环境变量
func RequiredEnv() map[string]string {
	return map[string]string{
		"ANTHROPIC_API_KEY":   APIKey,
		"DISCORD_EMAIL":       Email,
		"DISCORD_PASSWORD":    Password,
		"DISCORD_CHANNEL_URL": ChannelURL,
	}
}

// =============================================================================
// 🖼️ 图片数据
// =============================================================================

// PNG 返回带 PNG 签名的假图片
func PNG() []byte {
	return []byte("\x89PNG\r\n\x1a\nfake-png-payload")
}

// =============================================================================
// 🧠 规划器响应
// =============================================================================

// DoneDecision 规划器报告指令完成
func DoneDecision() string {
	return `{"thought":"the instruction is satisfied","actions":[],"done":true,"success":true}`
}

// GiveUpDecision 规划器放弃指令
func GiveUpDecision(reason string) string {
	return fmt.Sprintf(`{"thought":"stuck","actions":[],"done":true,"success":false,"reason":%q}`, reason)
}

// ClickDecision 规划器点击单个元素
func ClickDecision(element string) string {
	return fmt.Sprintf(`{"thought":"click it","actions":[{"type":"click","element":%q}],"done":false}`, element)
}

// MessageResponse 返回包含单个文本块的 Messages API 响应体
func MessageResponse(text string) string {
	body, err := json.Marshal(map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         config.DefaultModel,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 120, "output_tokens": 30},
	})
	if err != nil {
		panic(err)
	}
	return string(body)
}
