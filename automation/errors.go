package automation

import "fmt"

// StepError 描述失败的步骤以及失败时已经到达的状态
type StepError struct {
	Step    StepName
	Reached State
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (reached %s): %v", e.Step, e.Reached, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
