package authoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfall/reckoner/internal/model"
)

func TestDecodeConditionYAML(t *testing.T) {
	c, err := DecodeCondition([]byte(`
id: c-prosperity
campaign_id: camp
branch_id: main
name: prosperity
entity_type: settlement
expression:
  ">":
    - var: population
    - 10000
`))
	require.NoError(t, err)
	assert.Equal(t, "c-prosperity", c.ID)
	assert.Equal(t, "prosperity", c.Name)
	assert.Empty(t, c.EntityID)
	assert.Equal(t, 0, c.Priority)
	assert.True(t, c.IsActive, "is_active defaults to true")
	require.IsType(t, model.Operator{}, c.Expression)
	assert.Equal(t, ">", c.Expression.(model.Operator).Name)
}

func TestDecodeConditionJSON(t *testing.T) {
	c, err := DecodeCondition([]byte(`{
		"id": "c-1",
		"campaign_id": "camp",
		"branch_id": "main",
		"name": "named",
		"entity_type": "party",
		"entity_id": "p1",
		"priority": 5,
		"expression": {"==": [{"var": "name"}, "The Sixfold"]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", c.EntityID)
	assert.Equal(t, 5, c.Priority)
}

func TestDecodeConditionMissingName(t *testing.T) {
	_, err := DecodeCondition([]byte(`
id: c-1
campaign_id: camp
branch_id: main
entity_type: settlement
expression:
  ">":
    - var: population
    - 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#Condition")
}

func TestDecodeConditionUnknownField(t *testing.T) {
	_, err := DecodeCondition([]byte(`
id: c-1
campaign_id: camp
branch_id: main
name: n
entity_type: settlement
expresion:
  ">": [1, 2]
expression:
  ">": [1, 2]
`))
	require.Error(t, err, "misspelled field must be rejected by the closed schema")
}

func TestDecodeConditionTooDeepExpression(t *testing.T) {
	_, err := DecodeCondition([]byte(`{
		"id": "c-deep",
		"campaign_id": "camp",
		"branch_id": "main",
		"name": "deep",
		"entity_type": "settlement",
		"expression": {"+": [{"+": [{"+": [{"+": [{"+": [{"+": [{"+": [{"+": [{"+": [{"+": [{"+": [1, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}, 1]}
	}`))
	require.Error(t, err)
	assert.True(t, model.IsTooComplex(err))
}

func TestDecodeEffect(t *testing.T) {
	e, err := DecodeEffect([]byte(`
id: e-level
campaign_id: camp
branch_id: main
entity_type: settlement
entity_id: s1
timing: ON_RESOLVE
payload:
  - op: test
    path: /level
    value: 3
  - op: replace
    path: /level
    value: 4
`))
	require.NoError(t, err)
	assert.Equal(t, model.TimingOnResolve, e.Timing)
	require.Len(t, e.Payload, 2)
	assert.Equal(t, "test", e.Payload[0].Op)
	assert.Equal(t, "/level", e.Payload[1].Path)
	assert.True(t, e.IsActive)
}

func TestDecodeEffectBadTiming(t *testing.T) {
	_, err := DecodeEffect([]byte(`
id: e-1
campaign_id: camp
branch_id: main
entity_type: settlement
entity_id: s1
timing: WHENEVER
payload:
  - op: remove
    path: /level
`))
	require.Error(t, err)
}

func TestDecodeEffectEmptyPayload(t *testing.T) {
	_, err := DecodeEffect([]byte(`
id: e-1
campaign_id: camp
branch_id: main
entity_type: settlement
entity_id: s1
timing: PRE
payload: []
`))
	require.Error(t, err)
}

func TestDecodeEffectPathWithoutSlash(t *testing.T) {
	_, err := DecodeEffect([]byte(`
id: e-1
campaign_id: camp
branch_id: main
entity_type: settlement
entity_id: s1
timing: PRE
payload:
  - op: replace
    path: level
    value: 4
`))
	require.Error(t, err)
}

func TestDecodeVariableStored(t *testing.T) {
	v, err := DecodeVariable([]byte(`
id: v-pop
campaign_id: camp
scope: SETTLEMENT
scope_id: s1
key: population
value: 12000
`))
	require.NoError(t, err)
	assert.Equal(t, model.ScopeSettlement, v.Scope)
	assert.False(t, v.IsDerived())
}

func TestDecodeVariableDerived(t *testing.T) {
	v, err := DecodeVariable([]byte(`
id: v-density
campaign_id: camp
scope: SETTLEMENT
scope_id: s1
key: density
formula:
  "/":
    - var: population
    - 100
`))
	require.NoError(t, err)
	assert.True(t, v.IsDerived())
}

func TestDecodeVariableBothValueAndFormula(t *testing.T) {
	_, err := DecodeVariable([]byte(`
id: v-x
campaign_id: camp
scope: SETTLEMENT
scope_id: s1
key: x
value: 1
formula:
  "+": [1, 2]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of value and formula")
}

func TestDecodeVariableBadScope(t *testing.T) {
	_, err := DecodeVariable([]byte(`
id: v-x
campaign_id: camp
scope: KINGDOM
scope_id: s1
key: x
value: 1
`))
	require.Error(t, err)
}
