package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mobigent/agentcore/action"
	"github.com/mobigent/agentcore/capture"
	"github.com/mobigent/agentcore/device"
	"github.com/mobigent/agentcore/memory"
	"github.com/mobigent/agentcore/planner"
	"github.com/mobigent/agentcore/record"
	"github.com/mobigent/agentcore/screenshot"
	"github.com/mobigent/agentcore/vlm"
)

// VLMPredictor is the moment-to-moment prediction surface the loop drives.
// *vlm.Client satisfies it; tests substitute a scripted fake so the loop's
// FSM can be exercised without a live HTTP round trip.
type VLMPredictor interface {
	Predict(ctx context.Context, messages []vlm.Message) (string, error)
	PredictStream(ctx context.Context, messages []vlm.Message, sink vlm.Sink)
}

// Loop drives one run of the idle/planning/stepping/takeover state machine.
// It owns no device or network resources itself; everything it touches is
// injected so tests can substitute fakes.
type Loop struct {
	config    Config
	backend   device.Backend
	capture   *capture.Service
	vlmClient VLMPredictor
	planner   *planner.Client // may be nil; Plan runs only with UsePlanning, Verify whenever non-nil
	memory    *memory.Manager
	logger    *Logger
	callbacks Callbacks

	tokens *TokenCounter

	state    State
	record   *record.Writer
	resolver device.AppResolver // may be nil

	// Fields below carry a run's progress across an AwaitingTakeover
	// suspension so Resume can continue the same run instead of starting a
	// new one: same record, same Memory, same step numbering.
	instruction   string
	recentActions []string
	nextStep      int
	taskStart     time.Time
}

// NewLoop assembles a Loop. vlmClient and backend are required; planner,
// logger and resolver may be left nil (planning/app-name-resolution are
// optional, a no-op logger is installed automatically).
func NewLoop(cfg Config, backend device.Backend, vlmClient VLMPredictor, plannerClient *planner.Client, resolver device.AppResolver, logger *Logger, callbacks Callbacks) *Loop {
	cfg.applyDefaults()
	if logger == nil {
		logger = NewNopLogger()
	}
	memCfg := &memory.Config{SystemPrompt: cfg.SystemPrompt, WindowSize: cfg.MemoryWindow}
	return &Loop{
		config:    cfg,
		backend:   backend,
		capture:   capture.NewService(backend),
		vlmClient: vlmClient,
		planner:   plannerClient,
		memory:    memory.NewManager(memCfg),
		logger:    logger,
		callbacks: callbacks,
		tokens:    NewTokenCounter(0),
		resolver:  resolver,
		state:     StateIdle,
	}
}

// State reports the loop's current FSM node.
func (l *Loop) State() State { return l.state }

// SetCallbacks replaces the observer a resumed run reports through. A fresh
// UI session calling Resume after a takeover rarely holds the same callback
// closures the original Run call did (a reconnected client, a new request
// context), so Resume doesn't assume they carry over.
func (l *Loop) SetCallbacks(callbacks Callbacks) { l.callbacks = callbacks }

// Run executes instruction to completion (or cancellation) and returns the
// terminal Result. It never returns a Go error for an agent-level failure;
// those are folded into Result.Err so callers get one place to look. A
// Result in state AwaitingTakeover is not terminal — call Resume to
// continue the same run once a human has intervened.
func (l *Loop) Run(ctx context.Context, instruction string) Result {
	l.taskStart = time.Now()
	l.logger.TaskStart(instruction)

	w, err := record.NewWriter(l.config.RecordDir, l.config.Title, instruction)
	if err != nil {
		return l.finish(StateFailed, newError(ErrDeviceFailed, "could not open execution record", err), 0, "")
	}
	l.record = w
	l.instruction = instruction
	l.recentActions = nil

	if l.config.UsePlanning && l.planner != nil {
		l.state = StatePlanning
		plan, err := l.planner.Plan(ctx, instruction)
		if err != nil {
			return l.finish(StateFailed, newError(ErrPlannerAbort, "initial planning failed", err), 0, w.ID())
		}
		_ = w.SetPlan(record.Plan{Reasoning: plan.Reasoning, Steps: plan.Steps, EstimatedSteps: plan.EstimatedSteps})
		l.callbacks.firePlanReady(plan)
	}

	l.memory.AppendUserTurn(instruction, nil)

	l.state = StateStepping
	return l.runSteps(ctx, 1)
}

// Resume continues a run suspended in AwaitingTakeover with a fresh
// screenshot. After a call_user() pause it picks up at the next step; after
// a sensitive-screen pause, whose step never completed, it retries that same
// step number. It
// reuses the same execution record, Memory and step counter — the same
// run, not a new one. note, if non-empty, is appended to Memory as a user
// turn (e.g. what the human did or said) before the next screenshot is
// captured.
func (l *Loop) Resume(ctx context.Context, note string) Result {
	if l.state != StateAwaitingTakeover || l.record == nil {
		return l.finish(StateFailed, newError(ErrDeviceFailed, "resume called with no run awaiting takeover", nil), 0, "")
	}
	if note != "" {
		l.memory.AppendUserTurn(note, nil)
	}
	l.state = StateStepping
	return l.runSteps(ctx, l.nextStep)
}

// runSteps is the per-step loop shared by Run (starting at step 1) and
// Resume (starting at the step after a takeover pause).
func (l *Loop) runSteps(ctx context.Context, startStep int) Result {
	w := l.record
	instruction := l.instruction
	consecutiveParseErrors := 0

	for step := startStep; step <= l.config.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			_ = w.Finish(record.StatusStopped, "cancelled")
			return l.finish(StateStopped, newError(ErrCancelled, "run cancelled", ctx.Err()), step-1, w.ID())
		default:
		}

		l.callbacks.fireStepStart(step)
		l.logger.StepStart(step)
		stepStart := time.Now()

		frame, err := l.capture.Capture(ctx)
		if err != nil {
			_ = w.Finish(record.StatusFailed, err.Error())
			return l.finish(StateFailed, newError(ErrDeviceFailed, "screen capture failed", err), step-1, w.ID())
		}

		if frame.Status == capture.SensitiveBlocked {
			if l.config.SensitivePolicy == SensitiveStop {
				_ = w.Finish(record.StatusFailed, "sensitive screen")
				return l.finish(StateFailed, newError(ErrScreenSensitive, frame.Cause, nil), step-1, w.ID())
			}
			l.state = StateAwaitingTakeover
			l.nextStep = step
			l.callbacks.fireTakeOver(frame.Cause)
			return l.finish(StateAwaitingTakeover, nil, step-1, w.ID())
		}

		encoded, iw, ih, err := screenshot.EncodeForVLM(frame.PNG, l.config.ScreenshotPreset)
		if err != nil {
			_ = w.Finish(record.StatusFailed, err.Error())
			return l.finish(StateFailed, newError(ErrDeviceFailed, "screenshot encode failed", err), step-1, w.ID())
		}
		l.memory.AppendUserTurn(stepContextText(step, l.recentActions), encoded)
		l.tokens.AddText(instruction)
		l.tokens.Add(l.tokens.EstimateImageTokens(iw, ih))

		classification, thinking, replyText, act, ttftMS, err := l.predictAction(ctx, step)
		if err != nil {
			_ = w.Finish(record.StatusFailed, err.Error())
			return l.finish(StateFailed, err.(*Error), step-1, w.ID())
		}

		if act.Kind == action.KindParseError {
			consecutiveParseErrors++
			l.memory.AppendAssistantTurn(replyText)
			if consecutiveParseErrors > l.config.ParseErrorBudget {
				_ = w.Finish(record.StatusFailed, "parse error budget exceeded")
				return l.finish(StateFailed, newError(ErrParseBudget, act.Reason, nil), step, w.ID())
			}
			l.recordAndReport(w, step, classification, thinking, act, false, "", false, ttftMS, time.Since(stepStart))
			continue
		}
		consecutiveParseErrors = 0
		l.memory.AppendAssistantTurn(replyText)

		if isDestructive(act) && !l.callbacks.fireSensitiveAction(sensitiveMessage(act)) {
			l.recordAndReport(w, step, classification, thinking, act, false, "", false, ttftMS, time.Since(stepStart))
			continue
		}

		switch act.Kind {
		case action.KindFinish:
			_ = w.Finish(record.StatusCompleted, act.Message)
			l.recordAndReport(w, step, classification, thinking, act, true, "", false, ttftMS, time.Since(stepStart))
			return l.finish(StateFinished, nil, step, w.ID())
		case action.KindCallUser:
			l.state = StateAwaitingTakeover
			l.nextStep = step + 1
			l.callbacks.fireTakeOver(act.Message)
			l.recordAndReport(w, step, classification, thinking, act, true, "", false, ttftMS, time.Since(stepStart))
			return l.finish(StateAwaitingTakeover, nil, step, w.ID())
		}

		outcome, clamped, err := l.dispatch(ctx, act)
		if err != nil {
			_ = w.Finish(record.StatusFailed, err.Error())
			return l.finish(StateFailed, newError(ErrDeviceFailed, "device dispatch failed", err), step, w.ID())
		}
		l.recentActions = append(l.recentActions, summarizeAction(act))

		l.recordAndReport(w, step, classification, thinking, act, outcome.OK, string(outcome.Method), clamped, ttftMS, time.Since(stepStart))

		if l.planner != nil && l.config.VerifyEveryNSteps > 0 && step%l.config.VerifyEveryNSteps == 0 {
			v := l.planner.Verify(ctx, instruction, step, l.config.MaxSteps, l.recentActions, thinking)
			l.callbacks.fireVerification(v)
			if !v.ShouldContinue {
				_ = w.Finish(record.StatusFailed, "planner aborted: "+v.Suggestion)
				return l.finish(StateFailed, newError(ErrPlannerAbort, v.Suggestion, nil), step, w.ID())
			}
		}
	}

	_ = w.Finish(record.StatusFailed, "max steps exceeded")
	l.logger.TaskEnd(time.Since(l.taskStart))
	return l.finish(StateFailed, newError(ErrMaxStepsExceeded, fmt.Sprintf("exceeded %d steps", l.config.MaxSteps), nil), l.config.MaxSteps, w.ID())
}

// predictAction issues one prediction and parses the result. replyText is
// the model's complete raw reply for this step (thinking plus action text)
// — the caller appends it verbatim as the assistant turn in Memory, per the
// "each assistant turn is the model's prior full reply" rule, regardless of
// whether the reply parsed into a recognized action.
func (l *Loop) predictAction(ctx context.Context, step int) (classification, thinking, replyText string, act action.Action, ttftMS *int64, err error) {
	messages := l.memory.Messages()
	if !l.config.UseStreaming {
		reply, perr := l.vlmClient.Predict(ctx, messages)
		if perr != nil {
			return "", "", "", action.Action{}, nil, newError(ErrNetworkTransient, "prediction failed", perr)
		}
		parsed, perr := action.ParseText(reply)
		if perr != nil {
			return "no_action", reply, reply, action.Action{Kind: action.KindParseError, Reason: perr.Error()}, nil, nil
		}
		return "action", reply, reply, parsed, nil, nil
	}

	var firstTokenMS *int64
	var sawActionStart bool
	var streamErr error
	var finalText string
	l.vlmClient.PredictStream(ctx, messages, func(ev vlm.StreamEvent) {
		switch ev.Kind {
		case vlm.EventFirstToken:
			ms := ev.ElapsedMS
			firstTokenMS = &ms
		case vlm.EventThinking:
			thinking += ev.Chunk
			l.callbacks.fireThinkingChunk(ev.Chunk)
		case vlm.EventActionStart:
			sawActionStart = true
			l.callbacks.fireActionStart()
		case vlm.EventComplete:
			act = ev.Action
			finalText = ev.FinalText
			if act.Kind != action.KindParseError {
				l.callbacks.fireAction(act)
			}
		case vlm.EventError:
			streamErr = ev.Err
		}
	})
	l.callbacks.fireThinking(thinking)
	if streamErr != nil {
		return "", thinking, thinking, action.Action{}, firstTokenMS, newError(ErrNetworkTransient, "streaming prediction failed", streamErr)
	}
	classification = "action"
	if act.Kind == action.KindParseError {
		classification = "no_action"
	} else if !sawActionStart {
		classification = "thinking_only"
	}
	return classification, thinking, finalText, act, firstTokenMS, nil
}

func (l *Loop) dispatch(ctx context.Context, act action.Action) (device.Outcome, bool, error) {
	switch act.Kind {
	case action.KindTap:
		p, clamped := l.clampForDispatch(ctx, act.Coordinate)
		o, err := l.backend.Tap(ctx, p)
		return o, clamped, err
	case action.KindLongPress:
		p, clamped := l.clampForDispatch(ctx, act.Coordinate)
		o, err := l.backend.LongPress(ctx, p, act.DurationMS)
		return o, clamped, err
	case action.KindSwipe:
		start, c1 := l.clampForDispatch(ctx, act.Start)
		end, c2 := l.clampForDispatch(ctx, act.End)
		o, err := l.backend.Swipe(ctx, start, end, act.DurationMS)
		return o, c1 || c2, err
	case action.KindType:
		o, err := l.backend.TypeText(ctx, act.Text, act.ClearFirst)
		return o, false, err
	case action.KindBack:
		o, err := l.backend.Back(ctx)
		return o, false, err
	case action.KindHome:
		o, err := l.backend.Home(ctx)
		return o, false, err
	case action.KindOpenApp:
		target := act.App
		if !strings.Contains(act.App, ".") && l.resolver != nil {
			if pkg, ok := l.resolver.Resolve(ctx, act.App); ok {
				target = pkg
			}
		}
		o, err := l.backend.OpenApp(ctx, target)
		return o, false, err
	case action.KindOpenDeep:
		o, err := l.backend.OpenDeepLink(ctx, act.URI)
		return o, false, err
	case action.KindWait:
		select {
		case <-ctx.Done():
			return device.Outcome{}, false, ctx.Err()
		case <-time.After(time.Duration(act.DurationMS) * time.Millisecond):
		}
		return device.Outcome{OK: true, Method: device.MethodSystem}, false, nil
	default:
		return device.Outcome{}, false, fmt.Errorf("agent: unhandled action kind %q", act.Kind)
	}
}

func (l *Loop) clampForDispatch(ctx context.Context, p device.Point) (device.Point, bool) {
	size, err := l.backend.ScreenSize(ctx)
	if err != nil {
		return p, false
	}
	return device.Clamp(p, size)
}

func (l *Loop) recordAndReport(w *record.Writer, step int, classification, thinking string, act action.Action, success bool, method string, clamped bool, ttftMS *int64, elapsed time.Duration) {
	sr := StepResult{
		Number:         step,
		Classification: classification,
		Thinking:       thinking,
		Action:         act,
		DeviceSuccess:  success,
		Method:         method,
		CoordClamped:   clamped,
		TTFTMS:         ttftMS,
		TotalMS:        elapsed.Milliseconds(),
	}
	var ttft int64
	if ttftMS != nil {
		ttft = *ttftMS
	}
	_ = w.AppendStep(record.StepRecord{
		Number:         step,
		Timestamp:      time.Now(),
		Classification: classification,
		Thinking:       thinking,
		Action:         act,
		Success:        success,
		Method:         method,
		CoordClamped:   clamped,
		TTFTMS:         ttft,
		TotalMS:        elapsed.Milliseconds(),
	})
	l.callbacks.fireStepComplete(sr)
	l.callbacks.firePerformanceMetrics(ttftMS, elapsed.Milliseconds())
	l.logger.StepEnd(step, elapsed)
}

func (l *Loop) finish(state State, err *Error, steps int, recordID string) Result {
	l.state = state
	res := Result{State: state, Steps: steps, Err: err, RecordID: recordID}
	if err != nil {
		res.Message = err.Message
	}
	l.callbacks.fireComplete(res)
	return res
}

func stepContextText(step int, recentActions []string) string {
	if len(recentActions) == 0 {
		return fmt.Sprintf("step %d: here is the current screen", step)
	}
	return fmt.Sprintf("step %d: here is the current screen after %s", step, recentActions[len(recentActions)-1])
}

func summarizeAction(act action.Action) string {
	switch act.Kind {
	case action.KindTap:
		return fmt.Sprintf("tap(%d,%d)", act.Coordinate.X, act.Coordinate.Y)
	case action.KindType:
		return "type text"
	case action.KindSwipe:
		return "swipe"
	default:
		return string(act.Kind)
	}
}

// isDestructive flags actions worth a human confirmation gate before
// dispatch. Typing is excluded: it is reversible and gating every keystroke
// action would make the confirmation meaningless.
func isDestructive(act action.Action) bool {
	return act.Kind == action.KindOpenDeep
}

func sensitiveMessage(act action.Action) string {
	return fmt.Sprintf("about to open deep link %q — confirm?", act.URI)
}
