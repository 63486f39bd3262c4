package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenarioDefaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: defaults fill in campaign and branch
steps:
  - eval:
      entity_type: settlement
      entity_id: s1
`))
	require.NoError(t, err)
	assert.Equal(t, "camp", s.CampaignID)
	assert.Equal(t, "main", s.BranchID)
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: assertion instead of steps
stepz:
  - eval: {entity_type: settlement, entity_id: s1}
`))
	require.Error(t, err)
}

func TestParseScenarioRejectsEmptySteps(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: empty
description: no steps
steps: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestParseScenarioRejectsAmbiguousStep(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: ambiguous
description: a step with two actions
steps:
  - eval:
      entity_type: settlement
      entity_id: s1
    set_variable:
      id: v-pop
      value: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one action")
}

func TestParseScenarioRejectsVariableWithValueAndFormula(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: both
description: a variable cannot be stored and derived at once
variables:
  - id: v-x
    scope: SETTLEMENT
    scope_id: s1
    key: x
    value: 1
    formula:
      "+":
        - 1
        - 2
steps:
  - eval_variable:
      id: v-x
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of value and formula")
}
