// Package planner wraps three text-completion operations — plan, verify,
// decide — that the agent loop calls through an optional planning layer on
// top of the moment-to-moment VLM client.
package planner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mobigent/agentcore/vlm"
)

// Predictor is the text-completion surface the planner needs. *vlm.Client
// satisfies it; tests substitute a fake.
type Predictor interface {
	Predict(ctx context.Context, messages []vlm.Message) (string, error)
}

// Client is the planner.
type Client struct {
	predictor Predictor
}

// New builds a Client over a Predictor.
func New(predictor Predictor) *Client {
	return &Client{predictor: predictor}
}

// Plan is the decomposition returned by Plan.
type Plan struct {
	Reasoning      string
	Steps          []string
	EstimatedSteps int
}

// Plan decomposes task into an ordered step list. A malformed reply is a
// hard error — unlike Verify, there is no safe default decomposition.
func (c *Client) Plan(ctx context.Context, task string) (Plan, error) {
	reply, err := c.predictor.Predict(ctx, []vlm.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: task},
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planner: plan: %w", err)
	}

	obj, err := extractOutermostObject(reply)
	if err != nil {
		return Plan{}, fmt.Errorf("planner: plan: %w", err)
	}
	if !gjson.Valid(obj) {
		return Plan{}, fmt.Errorf("planner: plan: invalid JSON in reply")
	}

	parsed := gjson.Parse(obj)
	var steps []string
	for _, s := range parsed.Get("steps").Array() {
		steps = append(steps, s.String())
	}
	return Plan{
		Reasoning:      parsed.Get("reasoning").String(),
		Steps:          steps,
		EstimatedSteps: int(parsed.Get("estimated_steps").Int()),
	}, nil
}

// Verification is the result returned by Verify.
type Verification struct {
	OnTrack        bool
	Progress       int
	Suggestion     string
	ShouldContinue bool
}

// Verify judges whether the agent is on track. Verification must never
// become a blocking fault: a reply that fails to parse yields a default
// "continue at proportional progress" result instead of an error.
func (c *Client) Verify(ctx context.Context, task string, currentStep, totalSteps int, recentActions []string, screenDesc string) Verification {
	if len(recentActions) > 5 {
		recentActions = recentActions[len(recentActions)-5:]
	}
	user := fmt.Sprintf(
		"Task: %s\nStep %d of %d\nRecent actions: %s\nCurrent screen: %s",
		task, currentStep, totalSteps, strings.Join(recentActions, "; "), screenDesc,
	)

	fallback := defaultVerification(currentStep, totalSteps)

	reply, err := c.predictor.Predict(ctx, []vlm.Message{
		{Role: "system", Content: verifySystemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return fallback
	}

	obj, err := extractOutermostObject(reply)
	if err != nil || !gjson.Valid(obj) {
		return fallback
	}

	parsed := gjson.Parse(obj)
	if !parsed.Get("on_track").Exists() {
		return fallback
	}
	return Verification{
		OnTrack:        parsed.Get("on_track").Bool(),
		Progress:       int(parsed.Get("progress").Int()),
		Suggestion:     parsed.Get("suggestion").String(),
		ShouldContinue: parsed.Get("should_continue").Bool(),
	}
}

func defaultVerification(currentStep, totalSteps int) Verification {
	progress := 0
	if totalSteps > 0 {
		progress = (currentStep * 100) / totalSteps
		if progress > 100 {
			progress = 100
		}
	}
	return Verification{OnTrack: true, Progress: progress, ShouldContinue: true}
}

// Decide chooses one of options, given task context and the current
// screen. A reply that fails to resolve to a valid index falls back to
// options[0].
func (c *Client) Decide(ctx context.Context, task, screenDesc string, options []string) string {
	if len(options) == 0 {
		return ""
	}
	var numbered strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, opt)
	}
	user := fmt.Sprintf("Task: %s\nCurrent screen: %s\nOptions:\n%s", task, screenDesc, numbered.String())

	reply, err := c.predictor.Predict(ctx, []vlm.Message{
		{Role: "system", Content: decideSystemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return options[0]
	}

	idx, ok := leadingDigitsIndex(reply, len(options))
	if !ok {
		return options[0]
	}
	return options[idx]
}

// leadingDigitsIndex reads the leading digit run of reply as a 1-based
// option number and converts it to a clamped 0-based index.
func leadingDigitsIndex(reply string, count int) (int, bool) {
	reply = strings.TrimSpace(reply)
	end := 0
	for end < len(reply) && reply[end] >= '0' && reply[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(reply[:end])
	if err != nil {
		return 0, false
	}
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= count {
		idx = count - 1
	}
	return idx, true
}

// extractOutermostObject locates the outermost {...} span in s, tolerating
// leading/trailing prose around a fenced or bare JSON object.
func extractOutermostObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in reply")
	}
	depth := 0
	inQuote := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in reply")
}
