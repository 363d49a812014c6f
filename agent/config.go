package agent

import "github.com/mobigent/agentcore/screenshot"

// Config configures one run of the agent loop.
type Config struct {
	MaxSteps int

	UseStreaming bool
	UsePlanning  bool

	MemoryWindow int // K past turns with images retained; see memory.Config.WindowSize

	SensitivePolicy SensitivePolicy

	// VerifyEveryNSteps controls planner verification cadence; 1 means
	// every step (the default), 0 is treated as 1.
	VerifyEveryNSteps int

	// ParseErrorBudget is the number of consecutive Parse.NoAction errors
	// tolerated before the run fails with Budget.ParseErrors.
	ParseErrorBudget int

	SystemPrompt string

	ScreenshotPreset screenshot.Preset

	// RecordDir is where the execution record JSON document is written.
	RecordDir string

	// Title labels the persisted execution record.
	Title string
}

func (c *Config) applyDefaults() {
	if c.MaxSteps == 0 {
		c.MaxSteps = 50
	}
	if c.MemoryWindow == 0 {
		c.MemoryWindow = 4
	}
	if c.SensitivePolicy == "" {
		c.SensitivePolicy = SensitiveStop
	}
	if c.VerifyEveryNSteps == 0 {
		c.VerifyEveryNSteps = 1
	}
	if c.ParseErrorBudget == 0 {
		c.ParseErrorBudget = 2
	}
	if c.ScreenshotPreset == (screenshot.Preset{}) {
		c.ScreenshotPreset = screenshot.PresetBalanced
	}
	if c.RecordDir == "" {
		c.RecordDir = "./records"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = SystemPrompt()
	}
}
