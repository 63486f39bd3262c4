package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const effectsFixtureYAML = `
name: cli-effects
description: settlement with a level-bump effect
entities:
  - type: settlement
    id: s1
    data:
      name: Stagfall
      level: 3
effects:
  - id: e-level
    entity_type: settlement
    entity_id: s1
    timing: ON_RESOLVE
    payload:
      - op: replace
        path: /level
        value: 4
steps:
  - eval:
      entity_type: settlement
      entity_id: s1
`

func writeEffectsFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(effectsFixtureYAML), 0o644))
	return path
}

func TestEffectsCommand(t *testing.T) {
	path := writeEffectsFixture(t)
	out, err := execute(t, "effects", "-f", path, "settlement", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded, 0 failed")
	assert.Contains(t, out, "e-level")
}

func TestEffectsCommandJSON(t *testing.T) {
	path := writeEffectsFixture(t)
	out, err := execute(t, "--format", "json", "effects", "-f", path, "settlement", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, `"succeeded": 1`)
	assert.Contains(t, out, `"effect_id": "e-level"`)
}

func TestEffectsCommandOtherPhaseIsEmpty(t *testing.T) {
	path := writeEffectsFixture(t)
	out, err := execute(t, "effects", "-f", path, "--timing", "PRE", "settlement", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "0 succeeded, 0 failed")
}

func TestEffectsCommandRejectsBadTiming(t *testing.T) {
	path := writeEffectsFixture(t)
	_, err := execute(t, "effects", "-f", path, "--timing", "NEVER", "settlement", "s1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
