// Package record persists one JSON document per run: the execution record
// the history UI collaborator reads. Every write is an atomic whole-file
// replace so a reader (or a crash) never observes a half-written document.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mobigent/agentcore/action"
)

// Status is the terminal (or running) state of a Record.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
)

// StepRecord is one persisted iteration of the inner loop.
type StepRecord struct {
	Number         int            `json:"number"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification string         `json:"classification"`
	Thinking       string         `json:"thinking"`
	Action         action.Action  `json:"action"`
	Success        bool           `json:"success"`
	Method         string         `json:"method,omitempty"`
	CoordClamped   bool           `json:"coord_clamped,omitempty"`
	TTFTMS         int64          `json:"ttft_ms,omitempty"`
	TotalMS        int64          `json:"total_ms"`
	Verification   map[string]any `json:"verification,omitempty"`
}

// Plan is the persisted decomposition, if planning was enabled.
type Plan struct {
	Reasoning      string   `json:"reasoning"`
	Steps          []string `json:"steps"`
	EstimatedSteps int      `json:"estimated_steps"`
}

// Record is the full execution record document.
type Record struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Instruction  string       `json:"instruction"`
	StartTS      time.Time    `json:"start_ts"`
	EndTS        *time.Time   `json:"end_ts,omitempty"`
	Status       Status       `json:"status"`
	Plan         *Plan        `json:"plan,omitempty"`
	Steps        []StepRecord `json:"steps"`
	FinalMessage string       `json:"final_message,omitempty"`
}

// Writer persists one Record as a JSON file, each write an atomic
// temp-file-then-rename replace.
type Writer struct {
	mu  sync.Mutex
	dir string
	rec Record
}

// NewWriter creates a Writer and the initial RUNNING record for
// instruction, under dir.
func NewWriter(dir, title, instruction string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create dir: %w", err)
	}
	w := &Writer{
		dir: dir,
		rec: Record{
			ID:          uuid.NewString(),
			Title:       title,
			Instruction: instruction,
			StartTS:     time.Now(),
			Status:      StatusRunning,
		},
	}
	if err := w.commit(); err != nil {
		return nil, err
	}
	return w, nil
}

// ID returns the record's UUID.
func (w *Writer) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.ID
}

// SetPlan records the plan once it is ready.
func (w *Writer) SetPlan(p Plan) error {
	w.mu.Lock()
	w.rec.Plan = &p
	w.mu.Unlock()
	return w.commit()
}

// AppendStep records the outcome of one completed step.
func (w *Writer) AppendStep(step StepRecord) error {
	w.mu.Lock()
	w.rec.Steps = append(w.rec.Steps, step)
	w.mu.Unlock()
	return w.commit()
}

// Finish transitions the record to a terminal status. Safe to call more
// than once (idempotent by id): later calls overwrite the terminal state
// and end timestamp.
func (w *Writer) Finish(status Status, finalMessage string) error {
	w.mu.Lock()
	now := time.Now()
	w.rec.Status = status
	w.rec.EndTS = &now
	w.rec.FinalMessage = finalMessage
	w.mu.Unlock()
	return w.commit()
}

// Snapshot returns a copy of the record as currently persisted.
func (w *Writer) Snapshot() Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := w.rec
	cp.Steps = append([]StepRecord(nil), w.rec.Steps...)
	return cp
}

// path is the record's well-known file location, derived from its id so a
// later writer for the same id always replaces the same file.
func (w *Writer) path() string {
	return filepath.Join(w.dir, w.rec.ID+".json")
}

// commit serializes the current record and atomically replaces the file
// on disk: write to a temp file in the same directory, then rename, so a
// reader never observes a partially written document and a crash mid-write
// leaves the previous well-formed version intact.
func (w *Writer) commit() error {
	w.mu.Lock()
	data, err := json.MarshalIndent(w.rec, "", "  ")
	target := w.path()
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("record: encode: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("record: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("record: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("record: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("record: rename into place: %w", err)
	}
	return nil
}

// Load reads a persisted Record by id from dir.
func Load(dir, id string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		return Record{}, fmt.Errorf("record: load %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("record: decode %s: %w", id, err)
	}
	return rec, nil
}
