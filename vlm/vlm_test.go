package vlm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPredictSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = make([]struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}, 1)
		resp.Choices[0].Message.Content = `do(action="tap", coordinate=[1,2])`
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "test-model"})
	text, err := client.Predict(context.Background(), []Message{{Role: "user", Content: "go"}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if text != `do(action="tap", coordinate=[1,2])` {
		t.Errorf("Predict() = %q", text)
	}
}

func TestPredictRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := chatResponse{}
		resp.Choices = make([]struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}, 1)
		resp.Choices[0].Message.Content = "finish(message=\"done\")"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "test-model"})
	text, err := client.Predict(context.Background(), nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if text != `finish(message="done")` {
		t.Errorf("Predict() = %q", text)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestPredictPropagates4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad request"}`)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "test-model"})
	_, err := client.Predict(context.Background(), nil)
	if err == nil {
		t.Fatal("expected a non-retryable error for a 400 response")
	}
}

func TestPredictStreamOrdersEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		chunks := []string{"I should ", "tap it. ", `do(action="tap", coordinate=[5,5])`}
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "test-model"})

	var kinds []StreamEventKind
	var thinking strings.Builder
	var final StreamEvent

	client.PredictStream(context.Background(), nil, func(ev StreamEvent) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventThinking {
			thinking.WriteString(ev.Chunk)
		}
		if ev.Kind == EventComplete {
			final = ev
		}
	})

	if len(kinds) == 0 || kinds[0] != EventFirstToken {
		t.Fatalf("expected FirstToken as the first event, got %v", kinds)
	}
	if kinds[len(kinds)-1] != EventComplete {
		t.Fatalf("expected Complete as the last event, got %v", kinds)
	}
	if thinking.String() != "I should tap it. " {
		t.Errorf("thinking = %q, want %q", thinking.String(), "I should tap it. ")
	}
	if final.Action.Kind == "" {
		t.Error("expected a resolved final action")
	}
}

func TestPredictStreamCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "test-model"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan StreamEvent, 1)
	go client.PredictStream(ctx, nil, func(ev StreamEvent) {
		if ev.Kind == EventError {
			done <- ev
		}
	})

	<-started
	cancel()

	select {
	case ev := <-done:
		if ev.Err != ErrCancelled {
			t.Errorf("Err = %v, want ErrCancelled", ev.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation to propagate")
	}
}
