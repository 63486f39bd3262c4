package authoring

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/emberfall/reckoner/internal/model"
)

//go:embed schema/*.cue
var schemaFS embed.FS

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

// schemas compiles the embedded CUE schemas once.
func schemas() (cue.Value, error) {
	schemaOnce.Do(func() {
		var src []byte
		entries, err := schemaFS.ReadDir("schema")
		if err != nil {
			schemaErr = err
			return
		}
		for _, entry := range entries {
			data, err := schemaFS.ReadFile("schema/" + entry.Name())
			if err != nil {
				schemaErr = err
				return
			}
			src = append(src, data...)
			src = append(src, '\n')
		}

		ctx := cuecontext.New()
		schemaValue = ctx.CompileBytes(src)
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("compile schemas: %w", err)
		}
	})
	return schemaValue, schemaErr
}

// validateDocument unifies a decoded document with the named schema
// definition and reports every constraint violation.
func validateDocument(def string, doc any) (cue.Value, error) {
	schema, err := schemas()
	if err != nil {
		return cue.Value{}, err
	}

	defVal := schema.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return cue.Value{}, fmt.Errorf("schema %s not found", def)
	}

	unified := defVal.Unify(schema.Context().Encode(doc))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return cue.Value{}, fmt.Errorf("document does not match %s: %v", def, msgs)
	}
	return unified, nil
}

// decodeYAML parses a YAML or JSON document into a generic map.
func decodeYAML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// expressionNode converts the decoded expression field into a Node.
func expressionNode(v any) (model.Node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expression: %w", err)
	}
	return model.DecodeNode(raw)
}

// DecodeCondition validates a condition document and returns the
// condition it describes.
func DecodeCondition(data []byte) (*model.Condition, error) {
	doc, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	unified, err := validateDocument("#Condition", doc)
	if err != nil {
		return nil, err
	}

	var out struct {
		ID         string `json:"id"`
		CampaignID string `json:"campaign_id"`
		BranchID   string `json:"branch_id"`
		Name       string `json:"name"`
		EntityType string `json:"entity_type"`
		EntityID   string `json:"entity_id"`
		Expression any    `json:"expression"`
		Priority   int    `json:"priority"`
		IsActive   bool   `json:"is_active"`
	}
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}

	expr, err := expressionNode(out.Expression)
	if err != nil {
		return nil, err
	}
	return &model.Condition{
		ID:         out.ID,
		CampaignID: out.CampaignID,
		BranchID:   out.BranchID,
		Name:       out.Name,
		EntityType: out.EntityType,
		EntityID:   out.EntityID,
		Expression: expr,
		Priority:   out.Priority,
		IsActive:   out.IsActive,
	}, nil
}

// DecodeEffect validates an effect document and returns the effect it
// describes.
func DecodeEffect(data []byte) (*model.Effect, error) {
	doc, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	unified, err := validateDocument("#Effect", doc)
	if err != nil {
		return nil, err
	}

	var out struct {
		ID         string `json:"id"`
		CampaignID string `json:"campaign_id"`
		BranchID   string `json:"branch_id"`
		EntityType string `json:"entity_type"`
		EntityID   string `json:"entity_id"`
		Timing     string `json:"timing"`
		Priority   int    `json:"priority"`
		IsActive   bool   `json:"is_active"`
		Payload    []struct {
			Op    string `json:"op"`
			Path  string `json:"path"`
			Value any    `json:"value"`
		} `json:"payload"`
	}
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode effect: %w", err)
	}

	payload := make(model.PatchDoc, 0, len(out.Payload))
	for i, op := range out.Payload {
		p := model.PatchOp{Op: op.Op, Path: op.Path}
		if op.Value != nil {
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return nil, fmt.Errorf("payload[%d]: encode value: %w", i, err)
			}
			p.Value = raw
		}
		payload = append(payload, p)
	}

	return &model.Effect{
		ID:         out.ID,
		CampaignID: out.CampaignID,
		BranchID:   out.BranchID,
		EntityType: out.EntityType,
		EntityID:   out.EntityID,
		Timing:     model.Timing(out.Timing),
		Priority:   out.Priority,
		IsActive:   out.IsActive,
		Payload:    payload,
	}, nil
}

// DecodeVariable validates a variable document and returns the variable
// it describes. Exactly one of value and formula must be present.
func DecodeVariable(data []byte) (*model.StateVariable, error) {
	doc, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	unified, err := validateDocument("#Variable", doc)
	if err != nil {
		return nil, err
	}

	var out struct {
		ID         string `json:"id"`
		CampaignID string `json:"campaign_id"`
		Scope      string `json:"scope"`
		ScopeID    string `json:"scope_id"`
		Key        string `json:"key"`
		Value      any    `json:"value"`
		Formula    any    `json:"formula"`
	}
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode variable: %w", err)
	}

	if (out.Value == nil) == (out.Formula == nil) {
		return nil, fmt.Errorf("variable %s: exactly one of value and formula must be set", out.ID)
	}

	v := &model.StateVariable{
		ID:         out.ID,
		CampaignID: out.CampaignID,
		Scope:      model.VariableScope(out.Scope),
		ScopeID:    out.ScopeID,
		Key:        out.Key,
		Value:      out.Value,
	}
	if out.Formula != nil {
		formula, err := expressionNode(out.Formula)
		if err != nil {
			return nil, err
		}
		v.Formula = formula
	}
	return v, nil
}
