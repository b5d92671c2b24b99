package browser

import (
	"encoding/base64"
	"time"
)

// Action represents a browser action type.
type Action string

const (
	ActionClick    Action = "click"
	ActionType     Action = "type"
	ActionPress    Action = "press"
	ActionUpload   Action = "upload"
	ActionScroll   Action = "scroll"
	ActionNavigate Action = "navigate"
	ActionWait     Action = "wait"
)

// PlannedAction 规划器给出的单个动作。Value 中可以包含 {{key}} 占位符，
// 执行前在客户端替换为真实数据。
type PlannedAction struct {
	Type    Action  `json:"type"`
	Element string  `json:"element,omitempty"` // PageElement.ID
	Value   string  `json:"value,omitempty"`   // 文本、URL、按键或文件路径
	Amount  int     `json:"amount,omitempty"`  // scroll 像素，正数向下
	Seconds float64 `json:"seconds,omitempty"` // wait 时长
}

// Screenshot represents a browser screenshot.
type Screenshot struct {
	Data      []byte    `json:"data"`
	MediaType string    `json:"media_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
}

// Base64 returns the screenshot encoded for the Messages API.
func (s *Screenshot) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Data)
}

// PageElement 页面上可交互的元素。输入框的值不会被采集。
type PageElement struct {
	ID      string `json:"id"`
	Tag     string `json:"tag"`
	Type    string `json:"type,omitempty"` // input type 或 role
	Text    string `json:"text,omitempty"`
	Label   string `json:"label,omitempty"` // aria-label / placeholder / name
	Filled  bool   `json:"filled,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
}

// PageState 一次观察得到的页面状态
type PageState struct {
	URL        string        `json:"url"`
	Title      string        `json:"title"`
	Elements   []PageElement `json:"elements,omitempty"`
	Screenshot *Screenshot   `json:"-"`
}

// ActionRecord 记录已执行动作。Action 保留占位符，不含真实数据。
type ActionRecord struct {
	Action    PlannedAction `json:"action"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
