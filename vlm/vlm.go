// Package vlm is the streaming OpenAI-compatible chat/completions client
// the agent loop calls to get a per-step reply: a full-text Predict for
// non-streaming configurations, and a PredictStream that reports thinking
// and action text incrementally as it arrives.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mobigent/agentcore/action"
)

// MaxRetries bounds the non-streaming client's retry budget for transient
// network failures.
const MaxRetries = 3

// Message is one turn in an OpenAI-compatible chat/completions request.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart and ImagePart are the two content-part shapes a Message.Content
// array may hold.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImagePart struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// NewImagePart JPEG-base64-encodes jpegBytes into an inline data URL. It
// does not resize; the loop passes frames from screenshot.EncodeForVLM,
// which keeps the original screen resolution so the coordinates the model
// returns refer to the screen.
func NewImagePart(jpegBytes []byte) ImagePart {
	encoded := base64.StdEncoding.EncodeToString(jpegBytes)
	return ImagePart{
		Type:     "image_url",
		ImageURL: ImageURL{URL: "data:image/jpeg;base64," + encoded},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Config configures the Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

func (c *Config) applyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
}

// Client is the streaming VLM client.
type Client struct {
	config Config
}

// New builds a Client, applying defaults.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg}
}

// retryableError is a sentinel marking a transient failure (DNS, timeout,
// I/O) eligible for the client's retry budget. 4xx semantic errors and
// decode failures are returned unwrapped and propagate immediately.
type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// linearBackoff grows the delay by attempt*base (go-retry ships constant and
// Fibonacci backoffs but not linear, so this implements retry.Backoff
// directly).
type linearBackoff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackoff) Next() (time.Duration, bool) {
	b.attempt++
	return time.Duration(b.attempt) * b.base, false
}

func newLinearBackoff(base time.Duration) retry.Backoff {
	return &linearBackoff{base: base}
}

// Predict issues a non-streaming chat/completions request, retrying
// transient failures up to MaxRetries times with linear backoff.
func (c *Client) Predict(ctx context.Context, messages []Message) (string, error) {
	var result string
	backoff := retry.WithMaxRetries(MaxRetries, newLinearBackoff(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		text, err := c.doPredict(ctx, messages)
		if err != nil {
			var re *retryableError
			if errors.As(err, &re) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) doPredict(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      false,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("vlm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("vlm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.config.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &retryableError{err: fmt.Errorf("vlm: request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("vlm: read response: %w", err)}
	}

	if delay, limited := parseRateLimitDelay(resp.StatusCode, string(body)); limited {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		return "", &retryableError{err: fmt.Errorf("vlm: rate limited, retry after %s", delay)}
	}

	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("vlm: server error %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("vlm: request rejected (%d): %s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("vlm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vlm: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseRateLimitDelay extracts a Retry-After style delay from a 429
// response. Falls back to 30s if the server signaled a limit but gave no
// parseable hint.
func parseRateLimitDelay(status int, body string) (time.Duration, bool) {
	if status != http.StatusTooManyRequests {
		return 0, false
	}
	if idx := strings.Index(body, `"retry_after":`); idx >= 0 {
		rest := body[idx+len(`"retry_after":`):]
		end := strings.IndexAny(rest, ",}")
		if end > 0 {
			if secs, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64); err == nil {
				return time.Duration(secs * float64(time.Second)), true
			}
		}
	}
	return 30 * time.Second, true
}
