package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCondition = `
id: c-prosperity
campaign_id: camp
branch_id: main
name: prosperity
entity_type: settlement
expression:
  ">":
    - var: population
    - 10000
`

func TestValidateAcceptsCondition(t *testing.T) {
	path := writeDoc(t, "condition-prosperity.yaml", validCondition)
	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestValidateRejectsMissingField(t *testing.T) {
	path := writeDoc(t, "condition-broken.yaml", `
id: c-1
campaign_id: camp
branch_id: main
entity_type: settlement
expression:
  ">": [1, 2]
`)
	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL")
}

func TestValidateKindOverride(t *testing.T) {
	path := writeDoc(t, "rules.yaml", validCondition)
	_, err := execute(t, "validate", "--kind", "condition", path)
	require.NoError(t, err)
}

func TestValidateUnknownKind(t *testing.T) {
	path := writeDoc(t, "rules.yaml", validCondition)
	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "cannot infer")
}

func TestValidateEffectDocument(t *testing.T) {
	path := writeDoc(t, "effect-level.yaml", `
id: e-level
campaign_id: camp
branch_id: main
entity_type: settlement
entity_id: s1
timing: ON_RESOLVE
payload:
  - op: replace
    path: /level
    value: 4
`)
	_, err := execute(t, "validate", path)
	require.NoError(t, err)
}

func TestValidateJSONFormat(t *testing.T) {
	path := writeDoc(t, "variable-pop.yaml", `
id: v-pop
campaign_id: camp
scope: SETTLEMENT
scope_id: s1
key: population
value: 12000
`)
	out, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, `"valid": true`)
}
