package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/restage-ai/restage/pkg/genai"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// scoreSchema is the contract the scoring model must satisfy. Parsing is
// strict on purpose: a malformed score must fail loudly, never default.
const scoreSchema = `{
	"type": "object",
	"required": ["scores"],
	"properties": {
		"scores": {
			"type": "object",
			"required": [
				"brief_fidelity", "style_coherence", "spatial_feasibility",
				"functionality", "budget_alignment", "palette_harmony",
				"lighting", "shoppability", "presentation"
			],
			"additionalProperties": {"type": "number"}
		},
		"rationale": {"type": "string"}
	}
}`

var compiledScoreSchema = jsonschema.MustCompileString("score.schema.json", scoreSchema)

// Scorer evaluates artifacts with an independent scoring call.
type Scorer struct {
	gen           genai.Client
	model         string
	promptVersion string
	clock         Clock
}

// NewScorer validates promptVersion as semver so history stays comparable
// across prompt revisions.
func NewScorer(gen genai.Client, model, promptVersion string) (*Scorer, error) {
	if _, err := semver.NewVersion(promptVersion); err != nil {
		return nil, fmt.Errorf("prompt version %q is not semver: %w", promptVersion, err)
	}
	return &Scorer{gen: gen, model: model, promptVersion: promptVersion, clock: wallClock{}}, nil
}

// WithClock replaces the scorer's clock (test isolation).
func (s *Scorer) WithClock(c Clock) *Scorer {
	s.clock = c
	return s
}

// Evaluate scores one artifact against the rubric, given the conversation
// that produced it, and returns a history-ready record.
func (s *Scorer) Evaluate(ctx context.Context, scenario, artifact string, conversation []genai.Message) (*Record, error) {
	start := s.clock.Now()

	var rubricDesc strings.Builder
	for _, c := range Rubric {
		fmt.Fprintf(&rubricDesc, "- %s (max %d points)\n", c.Name, c.Weight)
	}
	msgs := []genai.Message{
		{Role: "system", Content: "Score the artifact against this rubric. Respond with JSON only:\n" + rubricDesc.String()},
	}
	msgs = append(msgs, conversation...)
	msgs = append(msgs, genai.Message{Role: "user", Content: "Artifact to score:\n" + artifact})

	resp, err := s.gen.Generate(ctx, &genai.Request{Model: s.model, Messages: msgs})
	if err != nil {
		return nil, fmt.Errorf("scoring call: %w", err)
	}
	text, ok := resp.Text()
	if !ok {
		return nil, fmt.Errorf("scoring response has no text block")
	}

	result, err := parseScore(text)
	if err != nil {
		return nil, err
	}

	return &Record{
		Timestamp:     start.UTC(),
		Scenario:      scenario,
		PromptVersion: s.promptVersion,
		DeepEval:      result,
		Model:         s.model,
		DurationMS:    s.clock.Now().Sub(start).Milliseconds(),
	}, nil
}

// parseScore decodes and validates the scoring payload against the schema.
func parseScore(text string) (*Result, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("score payload is not JSON: %w", err)
	}
	if err := compiledScoreSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("score payload failed schema validation: %w", err)
	}

	obj := raw.(map[string]any)
	scoresRaw := obj["scores"].(map[string]any)
	scores := make(map[string]float64, len(scoresRaw))
	var total float64
	for _, c := range Rubric {
		v, ok := scoresRaw[c.Name].(float64)
		if !ok {
			return nil, fmt.Errorf("criterion %s is not numeric", c.Name)
		}
		scores[c.Name] = v
		total += v
	}
	return &Result{RubricScores: scores, Total: total, Tag: ClassifyTotal(total)}, nil
}
