package agent

import (
	"github.com/mobigent/agentcore/action"
	"github.com/mobigent/agentcore/planner"
)

// Callbacks is the observer protocol the loop fires events through. Every
// field is optional; a nil field is simply skipped. Implementations MUST
// NOT block the loop for longer than a small bound — if a callback needs
// to ask a human something, it returns immediately and the loop enters
// AwaitingTakeover.
type Callbacks struct {
	OnStepStart     func(step int)
	OnThinkingChunk func(chunk string)
	OnThinking      func(full string)
	OnActionStart   func()
	OnAction        func(a action.Action)
	OnStepComplete  func(step StepResult)
	OnPlanReady     func(p planner.Plan)
	OnVerification  func(v planner.Verification)

	// OnSensitiveAction is a synchronous confirmation gate the loop calls
	// before dispatching an open-deep-link action; no other action kind
	// (taps included) is gated. Returning false cancels the dispatch for
	// this step.
	OnSensitiveAction func(message string) bool

	OnTakeOver           func(message string)
	OnPerformanceMetrics func(ttftMS *int64, totalMS int64)
	OnComplete           func(result Result)
}

func (c Callbacks) fireStepStart(n int) {
	if c.OnStepStart != nil {
		c.OnStepStart(n)
	}
}

func (c Callbacks) fireThinkingChunk(s string) {
	if c.OnThinkingChunk != nil {
		c.OnThinkingChunk(s)
	}
}

func (c Callbacks) fireThinking(s string) {
	if c.OnThinking != nil {
		c.OnThinking(s)
	}
}

func (c Callbacks) fireActionStart() {
	if c.OnActionStart != nil {
		c.OnActionStart()
	}
}

func (c Callbacks) fireAction(a action.Action) {
	if c.OnAction != nil {
		c.OnAction(a)
	}
}

func (c Callbacks) fireStepComplete(r StepResult) {
	if c.OnStepComplete != nil {
		c.OnStepComplete(r)
	}
}

func (c Callbacks) firePlanReady(p planner.Plan) {
	if c.OnPlanReady != nil {
		c.OnPlanReady(p)
	}
}

func (c Callbacks) fireVerification(v planner.Verification) {
	if c.OnVerification != nil {
		c.OnVerification(v)
	}
}

func (c Callbacks) fireSensitiveAction(message string) bool {
	if c.OnSensitiveAction != nil {
		return c.OnSensitiveAction(message)
	}
	return true
}

func (c Callbacks) fireTakeOver(message string) {
	if c.OnTakeOver != nil {
		c.OnTakeOver(message)
	}
}

func (c Callbacks) firePerformanceMetrics(ttftMS *int64, totalMS int64) {
	if c.OnPerformanceMetrics != nil {
		c.OnPerformanceMetrics(ttftMS, totalMS)
	}
}

func (c Callbacks) fireComplete(r Result) {
	if c.OnComplete != nil {
		c.OnComplete(r)
	}
}

// StepResult is what on_step_complete carries: the outcome of one
// completed iteration of the inner loop.
type StepResult struct {
	Number         int
	Classification string
	Thinking       string
	Action         action.Action
	DeviceSuccess  bool
	Method         string
	CoordClamped   bool
	TTFTMS         *int64
	TotalMS        int64
}
