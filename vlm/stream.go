package vlm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mobigent/agentcore/action"
)

// StreamEventKind tags one event delivered to a Sink during PredictStream,
// in a fixed order: FirstToken once, then Thinking*, then an optional
// ActionStart, then Action*, then exactly one terminal Complete or Error.
type StreamEventKind int

const (
	EventFirstToken StreamEventKind = iota
	EventThinking
	EventActionStart
	EventAction
	EventComplete
	EventError
)

// StreamEvent is delivered to a Sink in order.
type StreamEvent struct {
	Kind StreamEventKind

	ElapsedMS int64 // FirstToken, ActionStart: ms since request start
	Chunk     string

	FinalText string        // Complete
	Action    action.Action // Complete

	Err error // Error
}

// Sink receives StreamEvents as PredictStream progresses.
type Sink func(StreamEvent)

// ErrCancelled is delivered via StreamEvent.Err when the caller's context
// is cancelled mid-stream.
var ErrCancelled = errors.New("vlm: prediction cancelled")

// PredictStream issues a streaming chat/completions request and reports
// thinking/action text incrementally to sink. It never retries internally
// (streaming responses are not idempotently replayable); callers that want
// a retry budget should fall back to Predict.
func (c *Client) PredictStream(ctx context.Context, messages []Message, sink Sink) {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      true,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: encode request: %w", err)})
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: build request: %w", err)})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.config.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			sink(StreamEvent{Kind: EventError, Err: ErrCancelled})
			return
		}
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: request: %w", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: request rejected (%d)", resp.StatusCode)})
		return
	}

	parser := action.NewStreamParser()
	firstTokenSeen := false
	actionStartSeen := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			sink(StreamEvent{Kind: EventError, Err: ErrCancelled})
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // skip malformed keep-alive/heartbeat lines
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		if !firstTokenSeen {
			firstTokenSeen = true
			sink(StreamEvent{Kind: EventFirstToken, ElapsedMS: elapsed()})
		}

		for _, ev := range parser.Feed(delta) {
			switch ev.Kind {
			case action.EventThinking:
				sink(StreamEvent{Kind: EventThinking, Chunk: ev.Text})
			case action.EventActionStart:
				if !actionStartSeen {
					actionStartSeen = true
					sink(StreamEvent{Kind: EventActionStart, ElapsedMS: elapsed()})
				}
			case action.EventAction:
				sink(StreamEvent{Kind: EventAction, Chunk: ev.Text})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			sink(StreamEvent{Kind: EventError, Err: ErrCancelled})
			return
		}
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: read stream: %w", err)})
		return
	}

	for _, ev := range parser.Flush() {
		if ev.Kind == action.EventThinking {
			sink(StreamEvent{Kind: EventThinking, Chunk: ev.Text})
		}
	}

	finalAction, perr := action.ParseText(parser.Text())
	if perr != nil {
		sink(StreamEvent{Kind: EventError, Err: fmt.Errorf("vlm: final parse: %w", perr)})
		return
	}
	sink(StreamEvent{Kind: EventComplete, FinalText: parser.Text(), Action: finalAction})
}
