// Command agentrunner demonstrates wiring a mobile GUI agent run end to
// end: a shell-backed device (ADB), an OpenAI-compatible VLM endpoint, and
// console callbacks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"

	"github.com/mobigent/agentcore"
	"github.com/mobigent/agentcore/action"
	"github.com/mobigent/agentcore/agent"
	"github.com/mobigent/agentcore/device"
	"github.com/mobigent/agentcore/vlm"
)

// adbExecutor runs `adb [-s serial] <args...>` and returns its stdout,
// the concrete device.ShellExecutor a real run drives through.
type adbExecutor struct {
	serial string
}

func (e adbExecutor) Run(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if e.serial != "" {
		full = append([]string{"-s", e.serial}, args...)
	}
	cmd := exec.CommandContext(ctx, "adb", full...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return ee.Stderr, err
		}
		return nil, err
	}
	return out, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	instruction := flag.String("instruction", "", "natural language task for the agent")
	serial := flag.String("serial", "", "adb device serial, empty for the default device")
	baseURL := flag.String("vlm-url", os.Getenv("VLM_BASE_URL"), "OpenAI-compatible chat/completions base URL")
	model := flag.String("model", os.Getenv("VLM_MODEL"), "model name")
	maxSteps := flag.Int("max-steps", 50, "maximum steps before giving up")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	if *instruction == "" {
		log.Fatal("-instruction is required")
	}
	if *baseURL == "" {
		log.Fatal("-vlm-url or VLM_BASE_URL is required")
	}

	backend := device.NewShellBackend(adbExecutor{serial: *serial})

	a, err := agentcore.New(agentcore.Config{
		VLM: vlm.Config{
			BaseURL: *baseURL,
			APIKey:  os.Getenv("VLM_API_KEY"),
			Model:   *model,
		},
		Backend: backend,
		Loop: agent.Config{
			MaxSteps:     *maxSteps,
			UseStreaming: true,
			Title:        *instruction,
		},
	})
	if err != nil {
		log.Fatalf("failed to create agent: %v", err)
	}
	defer a.Close()

	callbacks := agent.Callbacks{
		OnStepStart: func(n int) { fmt.Printf("--- step %d ---\n", n) },
		OnThinkingChunk: func(chunk string) {
			fmt.Print(chunk)
		},
		OnActionStart: func() { fmt.Print("\n> ") },
		OnAction:      func(act action.Action) { fmt.Printf("%s\n", act.Kind) },
		OnTakeOver: func(message string) {
			fmt.Printf("\n!! human takeover requested: %s\n", message)
		},
		OnComplete: func(res agent.Result) {
			fmt.Printf("\n=== run finished: %s ===\n", res.State)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	handle, err := a.Run(*instruction, agent.Config{}, callbacks)
	if err != nil {
		log.Fatalf("failed to start run: %v", err)
	}

	snapshot, err := handle.Wait(ctx)
	if err != nil {
		log.Fatalf("run did not complete: %v", err)
	}
	fmt.Printf("final state: %s, steps: %d, record: %s\n", snapshot.State, snapshot.Steps, snapshot.RecordID)
}
