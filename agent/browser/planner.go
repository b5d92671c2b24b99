package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Planner 根据指令与当前页面决定下一批动作。
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*Decision, error)
}

// PlanRequest 规划输入。DataKeys 只包含数据的键名，真实数据不会发送给规划器。
type PlanRequest struct {
	Instruction string         `json:"instruction"`
	DataKeys    []string       `json:"data_keys,omitempty"`
	Page        *PageState     `json:"page"`
	History     []ActionRecord `json:"history,omitempty"`
	Step        int            `json:"step"`
	MaxSteps    int            `json:"max_steps"`
}

// Decision 规划器输出
type Decision struct {
	Thought string          `json:"thought,omitempty"`
	Actions []PlannedAction `json:"actions,omitempty"`
	Done    bool            `json:"done"`
	Success bool            `json:"success"`
	Reason  string          `json:"reason,omitempty"`
}

// PlannerFunc 函数适配器
type PlannerFunc func(ctx context.Context, req PlanRequest) (*Decision, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (*Decision, error) {
	return f(ctx, req)
}

// =============================================================================
// 🧠 Prompt
// =============================================================================

const systemPrompt = `You control a web browser to complete one instruction at a time.
Each turn you receive the instruction, a screenshot, the current URL and title,
the list of interactive elements (each with an id) and the actions already taken.

Respond with a single JSON object and nothing else:
{"thought": "...", "actions": [...], "done": false, "success": false, "reason": ""}

Supported actions:
  {"type":"click","element":"<id>"}
  {"type":"type","element":"<id>","value":"<text>"}
  {"type":"press","value":"Enter|Tab|Escape"}
  {"type":"upload","element":"<file input id>","value":"<path>"}
  {"type":"scroll","amount":<pixels, positive scrolls down>}
  {"type":"navigate","value":"<url>"}
  {"type":"wait","seconds":<seconds>}

Private data is never shown to you. Refer to it with {{key}} placeholders in
"value" fields, using only the keys listed under "Data keys". The placeholders
are replaced just before the action runs.

Return at most a few actions per turn, then look at the page again.
Set "done": true with "success": true once the instruction is complete, or
"done": true with "success": false and a reason if it cannot be completed.`

// buildPrompt 构建用户消息文本部分
func buildPrompt(req PlanRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Instruction: %s\n\n", req.Instruction)
	if len(req.DataKeys) > 0 {
		keys := append([]string(nil), req.DataKeys...)
		sort.Strings(keys)
		placeholders := make([]string, len(keys))
		for i, k := range keys {
			placeholders[i] = "{{" + k + "}}"
		}
		fmt.Fprintf(&sb, "Data keys: %s\n\n", strings.Join(placeholders, ", "))
	}
	fmt.Fprintf(&sb, "Turn %d of %d\n", req.Step, req.MaxSteps)

	if req.Page != nil {
		fmt.Fprintf(&sb, "URL: %s\nTitle: %s\n\nElements:\n", req.Page.URL, req.Page.Title)
		if len(req.Page.Elements) == 0 {
			sb.WriteString("(none)\n")
		}
		for _, el := range req.Page.Elements {
			sb.WriteString(describeElement(el))
			sb.WriteByte('\n')
		}
	}

	if len(req.History) > 0 {
		sb.WriteString("\nPrevious actions:\n")
		for _, rec := range req.History {
			status := "ok"
			if !rec.Success {
				status = "failed: " + rec.Error
			}
			data, _ := json.Marshal(rec.Action)
			fmt.Fprintf(&sb, "- %s (%s)\n", data, status)
		}
	}

	return sb.String()
}

func describeElement(el PageElement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] <%s", el.ID, el.Tag)
	if el.Type != "" {
		fmt.Fprintf(&sb, " type=%s", el.Type)
	}
	sb.WriteByte('>')
	if el.Label != "" {
		fmt.Fprintf(&sb, " label=%q", el.Label)
	}
	if el.Text != "" {
		fmt.Fprintf(&sb, " text=%q", el.Text)
	}
	if el.Filled {
		sb.WriteString(" (filled)")
	}
	if !el.Visible {
		sb.WriteString(" (hidden)")
	}
	return sb.String()
}

// ParseDecision 从模型输出中提取 JSON 决策，允许代码块包裹与前后说明文字
func ParseDecision(text string) (*Decision, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in planner response")
	}

	var d Decision
	if err := json.Unmarshal([]byte(s[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("invalid planner response: %w", err)
	}
	if !d.Done && len(d.Actions) == 0 {
		return nil, fmt.Errorf("planner response has no actions and is not done")
	}
	return &d, nil
}
