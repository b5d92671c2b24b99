package automation

import "encoding/json"

// State 流程所处的状态
type State int

const (
	StateLoggedOut State = iota
	StateLoggedIn
	StateInChannel
	StatePosted
)

var stateNames = map[State]string{
	StateLoggedOut: "logged_out",
	StateLoggedIn:  "logged_in",
	StateInChannel: "in_channel",
	StatePosted:    "posted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON 以名称序列化
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StepName 步骤名称
type StepName string

const (
	StepLogin    StepName = "login"
	StepNavigate StepName = "navigate"
	StepPost     StepName = "post"
)

// Step 一次状态转移
type Step struct {
	Name StepName
	From State
	To   State
	// Upload 仅对 post 步骤有意义：上传图片并附带文字
	Upload bool
}

// Next 返回从 state 出发的下一步；到达 StatePosted 后返回 false
func Next(state State, post Post) (Step, bool) {
	switch state {
	case StateLoggedOut:
		return Step{Name: StepLogin, From: StateLoggedOut, To: StateLoggedIn}, true
	case StateLoggedIn:
		return Step{Name: StepNavigate, From: StateLoggedIn, To: StateInChannel}, true
	case StateInChannel:
		return Step{Name: StepPost, From: StateInChannel, To: StatePosted, Upload: post.HasImage()}, true
	default:
		return Step{}, false
	}
}
