// Package agentcore orchestrates the on-device mobile GUI agent: it owns
// the single active run, wires the VLM, optional planner, device back-end
// and execution record together, and exposes the takeover/stop/snapshot
// surface a host UI drives.
package agentcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/mobigent/agentcore/agent"
	"github.com/mobigent/agentcore/device"
	"github.com/mobigent/agentcore/planner"
	"github.com/mobigent/agentcore/vlm"
)

// Config configures the Agent's wiring: which VLM and device back-end to
// drive, and the loop behavior to apply to every run.
type Config struct {
	VLM      vlm.Config
	Backend  device.Backend
	Resolver device.AppResolver
	Loop     agent.Config

	// Planner, if non-nil, enables the planning/verification layer.
	// Leave nil to run VLM-only.
	Planner *vlm.Config
}

// AgentSnapshot is a read-only view of the current run, safe to poll from
// a UI goroutine.
type AgentSnapshot struct {
	State    agent.State
	Steps    int
	RecordID string
}

// Agent supervises at most one run at a time. Starting a new run while one
// is live cancels and awaits the previous one first, so a stray call from a
// slow UI can never leave two runs driving the same device concurrently.
type Agent struct {
	config Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	loop   *agent.Loop
	last   AgentSnapshot
	closed bool
}

// New builds an Agent from cfg. It does not start a run.
func New(cfg Config) (*Agent, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("agentcore: Backend is required")
	}
	if cfg.VLM.BaseURL == "" {
		return nil, fmt.Errorf("agentcore: VLM.BaseURL is required")
	}
	return &Agent{config: cfg}, nil
}

// Handle is returned by Run and lets the caller wait for the run it
// started. Handle has no cancel method; a run is cancelled through
// Agent.Stop.
type Handle struct {
	agent *Agent
	done  <-chan struct{}
}

// Wait blocks until the run returns (normally, by cancellation, by being
// superseded by a new Run call, or by pausing in AwaitingTakeover) and
// returns Agent.Snapshot() as of that moment. If a newer run has already
// started by then, the snapshot describes that newer run.
func (h *Handle) Wait(ctx context.Context) (AgentSnapshot, error) {
	select {
	case <-h.done:
		return h.agent.Snapshot(), nil
	case <-ctx.Done():
		return AgentSnapshot{}, ctx.Err()
	}
}

// Run starts a new run of instruction. If a run is already active, it is
// cancelled and awaited before the new one starts — only one run is ever
// live at a time.
func (a *Agent) Run(instruction string, overrides agent.Config, callbacks agent.Callbacks) (*Handle, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("agentcore: agent is closed")
	}
	prevCancel := a.cancel
	prevDone := a.done
	a.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	vlmClient := vlm.New(a.config.VLM)

	var plannerClient *planner.Client
	if a.config.Planner != nil {
		plannerPredictor := vlm.New(*a.config.Planner)
		plannerClient = planner.New(plannerPredictor)
	}

	cfg := a.config.Loop
	if overrides.MaxSteps != 0 {
		cfg.MaxSteps = overrides.MaxSteps
	}
	if overrides.SystemPrompt != "" {
		cfg.SystemPrompt = overrides.SystemPrompt
	}
	if overrides.RecordDir != "" {
		cfg.RecordDir = overrides.RecordDir
	}
	if overrides.Title != "" {
		cfg.Title = overrides.Title
	}
	if overrides.SensitivePolicy != "" {
		cfg.SensitivePolicy = overrides.SensitivePolicy
	}
	cfg.UsePlanning = cfg.UsePlanning || plannerClient != nil

	loop := agent.NewLoop(cfg, a.config.Backend, vlmClient, plannerClient, a.config.Resolver, nil, callbacks)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.loop = loop
	a.last = AgentSnapshot{State: agent.StateIdle}
	a.mu.Unlock()

	go func() {
		defer close(done)
		res := loop.Run(ctx, instruction)
		a.mu.Lock()
		a.last = AgentSnapshot{State: res.State, Steps: res.Steps, RecordID: res.RecordID}
		a.mu.Unlock()
	}()

	return &Handle{agent: a, done: done}, nil
}

// ContinueAfterTakeover resumes the run left in AwaitingTakeover with a
// fresh screenshot (at the next step after a call_user() pause, at the same
// step after a sensitive-screen pause; see agent.Loop.Resume) — the same
// run, same execution record and Memory, not a new one. note is appended to
// Memory as a user turn before that screenshot is captured (empty skips
// it); callbacks replaces the observer for the remainder of the run, since
// whatever called Run may no longer be around to receive them.
func (a *Agent) ContinueAfterTakeover(note string, callbacks agent.Callbacks) (*Handle, error) {
	a.mu.Lock()
	if a.last.State != agent.StateAwaitingTakeover || a.loop == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("agentcore: no run is awaiting takeover")
	}
	loop := a.loop
	loop.SetCallbacks(callbacks)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		res := loop.Resume(ctx, note)
		a.mu.Lock()
		a.last = AgentSnapshot{State: res.State, Steps: res.Steps, RecordID: res.RecordID}
		a.mu.Unlock()
	}()

	return &Handle{agent: a, done: done}, nil
}

// Stop cancels the active run, if any, and waits for it to unwind. It is
// idempotent: calling it with no active run is a no-op. The loop's own
// cleanup (finishing the execution record) is non-cancellable — Stop
// guarantees that cleanup has completed by the time it returns.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops any active run and marks the Agent unusable for further Run
// calls.
func (a *Agent) Close() error {
	a.Stop()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// Snapshot returns the most recently observed state of the current or
// last-completed run.
func (a *Agent) Snapshot() AgentSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
