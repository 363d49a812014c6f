// Package memory holds the conversation the agent loop replays to the VLM
// each step: a fixed system message plus an append-only, rolling-window
// sequence of user/assistant turns. Only the agent loop appends; no other
// component mutates it.
package memory

import (
	"fmt"
	"sync"

	"github.com/mobigent/agentcore/vlm"
)

// Role tags a Turn as a user observation or an assistant reply.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the rolling conversation. User turns pair a context
// string with a screenshot; once a user turn falls outside the retention
// window its ImageJPEG is cleared and ImageSummary takes its place so the
// trajectory is still legible without paying for the image's tokens.
// Assistant turns carry only Text — the model's prior full reply.
type Turn struct {
	Role         Role
	Text         string
	ImageJPEG    []byte
	ImageSummary string
}

// Config configures the Manager.
type Config struct {
	SystemPrompt string
	// WindowSize is K: the number of most recent user turns permitted to
	// keep their screenshot image. Default 4.
	WindowSize int
}

func (c *Config) applyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 4
	}
}

// Manager owns the conversation. Safe for concurrent use: the loop appends
// from its own goroutine while callbacks or a supervisor snapshot may read
// concurrently.
type Manager struct {
	mu     sync.Mutex
	config Config
	turns  []Turn
}

// NewManager builds a Manager, applying defaults.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.applyDefaults()
	return &Manager{config: c}
}

// AppendUserTurn records a new observation: the textual context built for
// this step plus the JPEG-encoded current screenshot. Triggers the rolling
// eviction of older images.
func (m *Manager) AppendUserTurn(contextText string, screenshotJPEG []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: RoleUser, Text: contextText, ImageJPEG: screenshotJPEG})
	m.evictLocked()
}

// AppendAssistantTurn records the model's full prior reply.
func (m *Manager) AppendAssistantTurn(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: RoleAssistant, Text: reply})
}

// evictLocked keeps images on only the most recent WindowSize user turns,
// replacing earlier ones with a short textual summary. Callers must hold m.mu.
func (m *Manager) evictLocked() {
	var userImageIdx []int
	for i, t := range m.turns {
		if t.Role == RoleUser && t.ImageJPEG != nil {
			userImageIdx = append(userImageIdx, i)
		}
	}
	excess := len(userImageIdx) - m.config.WindowSize
	for i := 0; i < excess; i++ {
		idx := userImageIdx[i]
		m.turns[idx].ImageSummary = summarizeTurn(m.turns[idx].Text)
		m.turns[idx].ImageJPEG = nil
	}
}

func summarizeTurn(contextText string) string {
	const maxLen = 120
	if len(contextText) <= maxLen {
		return fmt.Sprintf("[earlier screenshot omitted — %s]", contextText)
	}
	return fmt.Sprintf("[earlier screenshot omitted — %s…]", contextText[:maxLen])
}

// Messages renders the system prompt plus every retained turn as an
// OpenAI-compatible message list, ready to send to vlm.Client.
func (m *Manager) Messages() []vlm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]vlm.Message, 0, len(m.turns)+1)
	if m.config.SystemPrompt != "" {
		messages = append(messages, vlm.Message{Role: "system", Content: m.config.SystemPrompt})
	}
	for _, t := range m.turns {
		switch t.Role {
		case RoleAssistant:
			messages = append(messages, vlm.Message{Role: "assistant", Content: t.Text})
		case RoleUser:
			if t.ImageJPEG != nil {
				messages = append(messages, vlm.Message{
					Role: "user",
					Content: []any{
						vlm.TextPart{Type: "text", Text: t.Text},
						vlm.NewImagePart(t.ImageJPEG),
					},
				})
			} else {
				text := t.Text
				if t.ImageSummary != "" {
					text = t.Text + " " + t.ImageSummary
				}
				messages = append(messages, vlm.Message{Role: "user", Content: text})
			}
		}
	}
	return messages
}

// Turns returns a copy of the retained turns, for inspection/snapshotting.
func (m *Manager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Reset clears all turns, keeping the configured system prompt.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}
