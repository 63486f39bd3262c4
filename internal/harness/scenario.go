package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emberfall/reckoner/internal/model"
)

// Scenario is one declarative test case: seeded state plus a sequence
// of steps with optional expectations.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// CampaignID and BranchID default to "camp" and "main".
	CampaignID string `yaml:"campaign_id,omitempty"`
	BranchID   string `yaml:"branch_id,omitempty"`

	Entities   []EntitySeed    `yaml:"entities,omitempty"`
	Variables  []VariableSeed  `yaml:"variables,omitempty"`
	Conditions []ConditionSeed `yaml:"conditions,omitempty"`
	Effects    []EffectSeed    `yaml:"effects,omitempty"`

	// Steps run in order. Each step must set exactly one action.
	Steps []Step `yaml:"steps"`
}

// EntitySeed seeds one entity row.
type EntitySeed struct {
	Type string         `yaml:"type"`
	ID   string         `yaml:"id"`
	Data map[string]any `yaml:"data"`
}

// VariableSeed seeds one state variable. Exactly one of value and
// formula must be set.
type VariableSeed struct {
	ID      string `yaml:"id"`
	Scope   string `yaml:"scope"`
	ScopeID string `yaml:"scope_id"`
	Key     string `yaml:"key"`
	Value   any    `yaml:"value,omitempty"`
	Formula any    `yaml:"formula,omitempty"`
}

// ConditionSeed seeds one condition. EntityID empty means class-scoped.
type ConditionSeed struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	EntityType string `yaml:"entity_type"`
	EntityID   string `yaml:"entity_id,omitempty"`
	Expression any    `yaml:"expression"`
	Priority   int    `yaml:"priority,omitempty"`
}

// EffectSeed seeds one effect.
type EffectSeed struct {
	ID         string      `yaml:"id"`
	EntityType string      `yaml:"entity_type"`
	EntityID   string      `yaml:"entity_id"`
	Timing     string      `yaml:"timing"`
	Priority   int         `yaml:"priority,omitempty"`
	Payload    []PatchSeed `yaml:"payload"`
}

// PatchSeed is one patch operation in an effect payload.
type PatchSeed struct {
	Op    string `yaml:"op"`
	Path  string `yaml:"path"`
	Value any    `yaml:"value,omitempty"`
}

// Step is a union: exactly one of the action fields must be set.
type Step struct {
	Eval           *EvalStep           `yaml:"eval,omitempty"`
	SetVariable    *SetVariableStep    `yaml:"set_variable,omitempty"`
	ExecuteEffects *ExecuteEffectsStep `yaml:"execute_effects,omitempty"`
	EvalVariable   *EvalVariableStep   `yaml:"eval_variable,omitempty"`
}

// EvalStep evaluates an entity's computed fields. Expect, if set, is a
// subset match against the result.
type EvalStep struct {
	EntityType string         `yaml:"entity_type"`
	EntityID   string         `yaml:"entity_id"`
	Expect     map[string]any `yaml:"expect,omitempty"`
}

// SetVariableStep updates a stored variable's value through the engine,
// picking up the current version from the store.
type SetVariableStep struct {
	ID    string `yaml:"id"`
	Value any    `yaml:"value"`
}

// ExecuteEffectsStep runs the effects registered for one entity and
// timing phase.
type ExecuteEffectsStep struct {
	EntityType string `yaml:"entity_type"`
	EntityID   string `yaml:"entity_id"`
	Timing     string `yaml:"timing"`
	Actor      string `yaml:"actor,omitempty"`
}

// EvalVariableStep evaluates one variable. Expect, if set, must match
// the value exactly.
type EvalVariableStep struct {
	ID     string `yaml:"id"`
	Expect any    `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario file. Unknown YAML fields
// are rejected so typos fail loudly instead of silently dropping steps.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and applies defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.CampaignID == "" {
		s.CampaignID = "camp"
	}
	if s.BranchID == "" {
		s.BranchID = "main"
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, v := range s.Variables {
		if v.ID == "" || v.Key == "" {
			return fmt.Errorf("variables[%d]: id and key are required", i)
		}
		if (v.Value == nil) == (v.Formula == nil) {
			return fmt.Errorf("variables[%d]: exactly one of value and formula must be set", i)
		}
	}
	for i, c := range s.Conditions {
		if c.ID == "" || c.Name == "" || c.EntityType == "" {
			return fmt.Errorf("conditions[%d]: id, name, and entity_type are required", i)
		}
		if c.Expression == nil {
			return fmt.Errorf("conditions[%d]: expression is required", i)
		}
	}
	for i, e := range s.Effects {
		if e.ID == "" || e.EntityType == "" || e.EntityID == "" {
			return fmt.Errorf("effects[%d]: id, entity_type, and entity_id are required", i)
		}
		if len(e.Payload) == 0 {
			return fmt.Errorf("effects[%d]: payload is required", i)
		}
	}
	for i, step := range s.Steps {
		n := 0
		if step.Eval != nil {
			n++
		}
		if step.SetVariable != nil {
			n++
		}
		if step.ExecuteEffects != nil {
			n++
		}
		if step.EvalVariable != nil {
			n++
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, n)
		}
	}
	return nil
}

// decodeExpression converts a YAML-decoded expression document into a
// Node tree by round-tripping through JSON.
func decodeExpression(v any) (model.Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expression: %w", err)
	}
	return model.DecodeNode(data)
}

// decodePayload converts seeded patch operations into a patch document.
func decodePayload(seeds []PatchSeed) (model.PatchDoc, error) {
	doc := make(model.PatchDoc, 0, len(seeds))
	for i, p := range seeds {
		op := model.PatchOp{Op: p.Op, Path: p.Path}
		if p.Value != nil {
			data, err := json.Marshal(p.Value)
			if err != nil {
				return nil, fmt.Errorf("payload[%d]: encode value: %w", i, err)
			}
			op.Value = data
		}
		doc = append(doc, op)
	}
	return doc, nil
}
