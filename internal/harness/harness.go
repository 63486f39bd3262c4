package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/emberfall/reckoner/internal/cache"
	"github.com/emberfall/reckoner/internal/effect"
	"github.com/emberfall/reckoner/internal/engine"
	"github.com/emberfall/reckoner/internal/model"
	"github.com/emberfall/reckoner/internal/store"
)

// TraceEvent is one entry in a scenario's execution trace.
type TraceEvent struct {
	Type   string `json:"type"`
	Entity string `json:"entity,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  any    `json:"value,omitempty"`
	Fields any    `json:"fields,omitempty"`

	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

// Result collects the trace and expectation failures of one run.
type Result struct {
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// Passed reports whether every step expectation held.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// seqIDGenerator hands out "exec-0001", "exec-0002", ... so audit
// records are stable across runs.
type seqIDGenerator struct {
	n atomic.Int64
}

func (g *seqIDGenerator) Generate() string {
	return fmt.Sprintf("exec-%04d", g.n.Add(1))
}

// fixedEpoch is the clock every scenario runs at.
var fixedEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Run executes a scenario against a fresh in-memory SQLite store and a
// fresh engine, returning the trace and any expectation failures.
// Infrastructure errors (store failures, malformed seeds) abort the run.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, cache.NewMemory(cache.DefaultConfig()),
		engine.WithLogger(logger),
		engine.WithRunnerOptions(
			effect.WithIDGenerator(&seqIDGenerator{}),
			effect.WithNow(func() time.Time { return fixedEpoch }),
		),
	)

	ctx := context.Background()
	if err := Seed(ctx, scenario, st, eng); err != nil {
		return nil, err
	}

	result := &Result{}
	for i, step := range scenario.Steps {
		if err := runStep(ctx, scenario, eng, st, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return result, nil
}

// Seed loads a scenario's entities, variables, conditions, and effects
// into a store through the engine, running full validation on the way
// in. The CLI reuses it to bring fixtures up before ad-hoc commands.
func Seed(ctx context.Context, s *Scenario, st store.Store, eng *engine.Engine) error {
	for i, e := range s.Entities {
		data, err := model.MarshalCanonical(e.Data)
		if err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
		err = st.Save(ctx, &model.EntitySnapshot{
			EntityType: e.Type,
			EntityID:   e.ID,
			Data:       data,
		})
		if err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
	}

	for i, v := range s.Variables {
		row := &model.StateVariable{
			ID:         v.ID,
			CampaignID: s.CampaignID,
			Scope:      model.VariableScope(v.Scope),
			ScopeID:    v.ScopeID,
			Key:        v.Key,
			Value:      v.Value,
		}
		if v.Formula != nil {
			formula, err := decodeExpression(v.Formula)
			if err != nil {
				return fmt.Errorf("variables[%d]: %w", i, err)
			}
			row.Formula = formula
		}
		if err := eng.CreateVariable(ctx, s.BranchID, row); err != nil {
			return fmt.Errorf("variables[%d]: %w", i, err)
		}
	}

	for i, c := range s.Conditions {
		expr, err := decodeExpression(c.Expression)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		err = eng.CreateCondition(ctx, &model.Condition{
			ID:         c.ID,
			CampaignID: s.CampaignID,
			BranchID:   s.BranchID,
			Name:       c.Name,
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			Expression: expr,
			Priority:   c.Priority,
			IsActive:   true,
		})
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
	}

	for i, e := range s.Effects {
		payload, err := decodePayload(e.Payload)
		if err != nil {
			return fmt.Errorf("effects[%d]: %w", i, err)
		}
		err = eng.CreateEffect(ctx, &model.Effect{
			ID:         e.ID,
			CampaignID: s.CampaignID,
			BranchID:   s.BranchID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Timing:     model.Timing(e.Timing),
			Priority:   e.Priority,
			Payload:    payload,
			IsActive:   true,
		})
		if err != nil {
			return fmt.Errorf("effects[%d]: %w", i, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, s *Scenario, eng *engine.Engine, st store.Store, step Step, result *Result) error {
	switch {
	case step.Eval != nil:
		return runEval(ctx, s, eng, step.Eval, result)
	case step.SetVariable != nil:
		return runSetVariable(ctx, s, eng, st, step.SetVariable, result)
	case step.ExecuteEffects != nil:
		return runExecuteEffects(ctx, s, eng, step.ExecuteEffects, result)
	case step.EvalVariable != nil:
		return runEvalVariable(ctx, eng, step.EvalVariable, result)
	default:
		return fmt.Errorf("empty step")
	}
}

func runEval(ctx context.Context, s *Scenario, eng *engine.Engine, step *EvalStep, result *Result) error {
	fields, err := eng.EvaluateComputedFields(ctx, s.CampaignID, s.BranchID, step.EntityType, step.EntityID)
	if err != nil {
		return err
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:   "eval",
		Entity: step.EntityType + "/" + step.EntityID,
		Fields: fields,
	})
	for key, want := range step.Expect {
		got, ok := fields[key]
		if !ok {
			result.addError("eval %s/%s: field %q missing", step.EntityType, step.EntityID, key)
			continue
		}
		if !looseEqual(got, want) {
			result.addError("eval %s/%s: field %q = %v, want %v",
				step.EntityType, step.EntityID, key, got, want)
		}
	}
	return nil
}

func runSetVariable(ctx context.Context, s *Scenario, eng *engine.Engine, st store.Store, step *SetVariableStep, result *Result) error {
	v, err := st.GetVariable(ctx, step.ID)
	if err != nil {
		return err
	}
	v.Value = step.Value
	if err := eng.UpdateVariable(ctx, s.BranchID, v); err != nil {
		return err
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:  "set_variable",
		Key:   v.Key,
		Value: step.Value,
	})
	return nil
}

func runExecuteEffects(ctx context.Context, s *Scenario, eng *engine.Engine, step *ExecuteEffectsStep, result *Result) error {
	actor := step.Actor
	if actor == "" {
		actor = "harness"
	}
	res, err := eng.ExecuteEffects(ctx, s.CampaignID, s.BranchID,
		step.EntityType, step.EntityID, model.Timing(step.Timing), actor)
	if err != nil {
		return err
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:      "execute_effects",
		Entity:    step.EntityType + "/" + step.EntityID,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	})
	return nil
}

func runEvalVariable(ctx context.Context, eng *engine.Engine, step *EvalVariableStep, result *Result) error {
	val, _, err := eng.EvaluateVariable(ctx, step.ID, nil)
	if err != nil {
		return err
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:  "eval_variable",
		Key:   step.ID,
		Value: val,
	})
	if step.Expect != nil && !looseEqual(val, step.Expect) {
		result.addError("eval_variable %s = %v, want %v", step.ID, val, step.Expect)
	}
	return nil
}

// looseEqual compares values across the int/float boundary YAML and
// JSON decoding introduce.
func looseEqual(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
