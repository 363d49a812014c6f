package memory

import (
	"testing"
)

func TestNewManagerDefaultWindow(t *testing.T) {
	m := NewManager(&Config{})
	if m.config.WindowSize != 4 {
		t.Errorf("default WindowSize = %d, want 4", m.config.WindowSize)
	}
}

func TestNewManagerCustomWindow(t *testing.T) {
	m := NewManager(&Config{WindowSize: 2})
	if m.config.WindowSize != 2 {
		t.Errorf("WindowSize = %d, want 2", m.config.WindowSize)
	}
}

func TestAppendUserThenAssistantTurn(t *testing.T) {
	m := NewManager(&Config{SystemPrompt: "system"})
	m.AppendUserTurn("step 1 context", []byte("fake-jpeg"))
	m.AppendAssistantTurn(`do(action="tap", coordinate=[1,1])`)

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("len(Turns()) = %d, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %+v", turns)
	}
}

func TestEvictionDowngradesOldestImagesBeyondWindow(t *testing.T) {
	m := NewManager(&Config{WindowSize: 2})
	for i := 0; i < 5; i++ {
		m.AppendUserTurn("context", []byte("jpeg-bytes"))
		m.AppendAssistantTurn("reply")
	}

	turns := m.Turns()
	var withImage, withSummary int
	for _, tn := range turns {
		if tn.Role != RoleUser {
			continue
		}
		if tn.ImageJPEG != nil {
			withImage++
		}
		if tn.ImageSummary != "" {
			withSummary++
		}
	}
	if withImage != 2 {
		t.Errorf("turns with image = %d, want 2 (WindowSize)", withImage)
	}
	if withSummary != 3 {
		t.Errorf("turns with summary = %d, want 3", withSummary)
	}
}

func TestMessagesIncludesSystemPromptAndImageContent(t *testing.T) {
	m := NewManager(&Config{SystemPrompt: "be helpful", WindowSize: 4})
	m.AppendUserTurn("what's on screen", []byte("jpeg-bytes"))

	messages := m.Messages()
	if len(messages) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "be helpful" {
		t.Errorf("system message = %+v", messages[0])
	}
	parts, ok := messages[1].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user message content = %#v, want 2 parts", messages[1].Content)
	}
}

func TestMessagesUsesSummaryOnceImageEvicted(t *testing.T) {
	m := NewManager(&Config{WindowSize: 1})
	m.AppendUserTurn("first screen", []byte("jpeg-1"))
	m.AppendAssistantTurn("reply 1")
	m.AppendUserTurn("second screen", []byte("jpeg-2"))

	messages := m.Messages()
	firstUser := messages[0]
	text, ok := firstUser.Content.(string)
	if !ok {
		t.Fatalf("evicted turn content = %#v, want plain string", firstUser.Content)
	}
	if text == "first screen" {
		t.Error("expected evicted turn text to include the image summary")
	}
}

func TestResetClearsTurns(t *testing.T) {
	m := NewManager(&Config{})
	m.AppendUserTurn("ctx", []byte("jpeg"))
	m.Reset()
	if len(m.Turns()) != 0 {
		t.Error("Reset() should clear all turns")
	}
}
