package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/emberfall/reckoner/internal/model"
)

// TraceSnapshot is the golden-file form of one scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap strips unset fields so the canonical serialization
// stays minimal and stable.
func (s *TraceSnapshot) toCanonicalMap() (map[string]any, error) {
	events := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{"type": ev.Type}
		if ev.Entity != "" {
			m["entity"] = ev.Entity
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		if ev.Value != nil {
			v, err := normalizeValue(ev.Value)
			if err != nil {
				return nil, fmt.Errorf("trace[%d].value: %w", i, err)
			}
			m["value"] = v
		}
		if ev.Fields != nil {
			v, err := normalizeValue(ev.Fields)
			if err != nil {
				return nil, fmt.Errorf("trace[%d].fields: %w", i, err)
			}
			m["fields"] = v
		}
		if ev.Type == "execute_effects" {
			m["succeeded"] = ev.Succeeded
			m["failed"] = ev.Failed
		}
		events[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         events,
	}, nil
}

// normalizeValue round-trips through JSON so YAML-decoded ints and
// structs collapse into the plain shapes canonical JSON accepts.
func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunWithGolden executes a scenario, fails the test on any expectation
// error, and compares the canonical trace against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	snapshot := TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
	canonical, err := snapshot.toCanonicalMap()
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	traceJSON, err := model.MarshalCanonical(canonical)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
}
