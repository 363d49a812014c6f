package planner

import (
	"context"
	"testing"

	"github.com/mobigent/agentcore/vlm"
)

type fakePredictor struct {
	reply string
	err   error
}

func (f *fakePredictor) Predict(ctx context.Context, messages []vlm.Message) (string, error) {
	return f.reply, f.err
}

func TestPlanParsesOutermostObject(t *testing.T) {
	reply := "Sure, here's the plan:\n```json\n" +
		`{"reasoning": "decompose into steps", "steps": ["open settings", "tap wifi"], "estimated_steps": 2}` +
		"\n```"
	p := New(&fakePredictor{reply: reply})

	plan, err := p.Plan(context.Background(), "turn on wifi")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.EstimatedSteps != 2 || len(plan.Steps) != 2 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestPlanFailsHardOnUnparsableReply(t *testing.T) {
	p := New(&fakePredictor{reply: "I cannot comply."})
	if _, err := p.Plan(context.Background(), "do something"); err == nil {
		t.Fatal("expected a hard error for an unparsable plan reply")
	}
}

func TestVerifyFallsBackOnParseFailure(t *testing.T) {
	p := New(&fakePredictor{reply: "not json at all"})
	v := p.Verify(context.Background(), "task", 2, 4, nil, "home screen")
	if !v.ShouldContinue {
		t.Error("expected ShouldContinue=true fallback")
	}
	if v.Progress != 50 {
		t.Errorf("Progress = %d, want 50 (proportional 2/4)", v.Progress)
	}
}

func TestVerifyParsesValidReply(t *testing.T) {
	reply := `{"on_track": false, "progress": 30, "suggestion": "go back", "should_continue": true}`
	p := New(&fakePredictor{reply: reply})
	v := p.Verify(context.Background(), "task", 1, 4, []string{"tap settings"}, "settings screen")
	if v.OnTrack || v.Progress != 30 || v.Suggestion != "go back" || !v.ShouldContinue {
		t.Errorf("unexpected verification: %+v", v)
	}
}

func TestVerifyTruncatesRecentActionsToFive(t *testing.T) {
	actions := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	p := New(&fakePredictor{reply: `{"on_track": true, "progress": 10, "should_continue": true}`})
	v := p.Verify(context.Background(), "task", 1, 10, actions, "screen")
	if !v.OnTrack {
		t.Errorf("unexpected verification: %+v", v)
	}
}

func TestDecideParsesLeadingDigit(t *testing.T) {
	p := New(&fakePredictor{reply: "2. because it matches the task best"})
	choice := p.Decide(context.Background(), "task", "screen", []string{"first", "second", "third"})
	if choice != "second" {
		t.Errorf("Decide() = %q, want second", choice)
	}
}

func TestDecideFallsBackToFirstOption(t *testing.T) {
	p := New(&fakePredictor{reply: "I'm not sure which one."})
	choice := p.Decide(context.Background(), "task", "screen", []string{"first", "second"})
	if choice != "first" {
		t.Errorf("Decide() = %q, want first", choice)
	}
}

func TestDecideClampsOutOfRangeIndex(t *testing.T) {
	p := New(&fakePredictor{reply: "99"})
	choice := p.Decide(context.Background(), "task", "screen", []string{"first", "second"})
	if choice != "second" {
		t.Errorf("Decide() = %q, want second (clamped)", choice)
	}
}
