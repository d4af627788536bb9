package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Result carries one scoring pass over an artifact.
type Result struct {
	RubricScores map[string]float64 `json:"rubric_scores"`
	Total        float64            `json:"total"`
	Tag          Tag                `json:"tag"`
}

// Record is one line of the score history log.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	Scenario      string    `json:"scenario"`
	PromptVersion string    `json:"prompt_version"`
	FastEval      *Result   `json:"fast_eval,omitempty"`
	DeepEval      *Result   `json:"deep_eval,omitempty"`
	Model         string    `json:"model"`
	DurationMS    int64     `json:"duration_ms"`
}

// Total returns the record's authoritative total, preferring the deep eval.
func (r *Record) Total() (float64, bool) {
	if r.DeepEval != nil {
		return r.DeepEval.Total, true
	}
	if r.FastEval != nil {
		return r.FastEval.Total, true
	}
	return 0, false
}

// History is the append-only, line-oriented score log. Records are ordered
// by append time within a scenario and never mutated or deleted.
type History struct {
	path string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

// Append writes one record as a JSON line.
func (h *History) Append(rec *Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal score record: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open score history: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append score record: %w", err)
	}
	return nil
}

// Read loads every parseable record. A corrupted line is skipped, not fatal:
// one bad write must never take down the whole history.
func (h *History) Read() ([]Record, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open score history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan score history: %w", err)
	}
	return records, nil
}
