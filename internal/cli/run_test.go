package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
name: cli-fixture
description: settlement with a population-driven condition
entities:
  - type: settlement
    id: s1
    data:
      name: Stagfall
      level: 3
variables:
  - id: v-pop
    scope: SETTLEMENT
    scope_id: s1
    key: population
    value: 12000
conditions:
  - id: c-prosperity
    name: prosperity
    entity_type: settlement
    expression:
      ">":
        - var: population
        - 10000
steps:
  - eval:
      entity_type: settlement
      entity_id: s1
      expect:
        prosperity: true
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))
	return path
}

func TestRunScenarioPasses(t *testing.T) {
	path := writeFixture(t)
	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "settlement/s1")
}

func TestRunScenarioFailsExpectation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: cli-failing
description: expectation does not hold
entities:
  - type: settlement
    id: s1
    data:
      name: Stagfall
variables:
  - id: v-pop
    scope: SETTLEMENT
    scope_id: s1
    key: population
    value: 500
conditions:
  - id: c-prosperity
    name: prosperity
    entity_type: settlement
    expression:
      ">":
        - var: population
        - 10000
steps:
  - eval:
      entity_type: settlement
      entity_id: s1
      expect:
        prosperity: true
`), 0o644))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL")
}

func TestRunMissingScenario(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunJSONFormat(t *testing.T) {
	path := writeFixture(t)
	out, err := execute(t, "--format", "json", "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"passed": true`)
	assert.Contains(t, out, `"scenario": "cli-fixture"`)
}

func TestEvalCommand(t *testing.T) {
	path := writeFixture(t)
	out, err := execute(t, "eval", "-f", path, "settlement", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "prosperity: true")
}

func TestEvalCommandJSON(t *testing.T) {
	path := writeFixture(t)
	out, err := execute(t, "--format", "json", "eval", "-f", path, "settlement", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, `"prosperity": true`)
}

func TestGraphCommand(t *testing.T) {
	path := writeFixture(t)
	out, err := execute(t, "graph", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "population")
	assert.Contains(t, out, "prosperity")
}

func TestGraphMissingFixture(t *testing.T) {
	_, err := execute(t, "graph", "-f", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
