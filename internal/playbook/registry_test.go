package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlaybook = `
rules:
  breakout_long:
    description: go long on a 20 bar breakout
    trigger: breakout
    direction: long
    params:
      lookback: 20
      entry_pips: 10
      exit_pips: 120
      stop_pips: 40
    schema:
      type: object
      required: [lookback]
      properties:
        lookback:
          type: number
          minimum: 1
  fade_short:
    trigger: bearish_close
    direction: short
`

func writePlaybook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsRules(t *testing.T) {
	r, err := NewRegistry(writePlaybook(t, samplePlaybook))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Rules, 2)

	rule, ok := r.Rule("breakout_long")
	require.True(t, ok)
	assert.Equal(t, TriggerBreakout, rule.Trigger)
	assert.True(t, rule.IsLong())
	assert.Equal(t, 120.0, rule.FloatParam("exit_pips", 0))
	assert.Equal(t, 1, rule.Version)

	assert.Equal(t, []string{"breakout_long", "fade_short"}, r.RuleIDs())
}

func TestRegistryDropsInvalidRules(t *testing.T) {
	content := `
rules:
  bad_trigger:
    trigger: moon_phase
    direction: long
  bad_params:
    trigger: breakout
    direction: long
    params:
      lookback: -5
    schema:
      type: object
      properties:
        lookback:
          type: number
          minimum: 1
  good:
    trigger: bullish_close
    direction: long
`
	r, err := NewRegistry(writePlaybook(t, content))
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap.Rules, 1)
	_, ok := r.Rule("good")
	assert.True(t, ok)
}

func TestRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistry("  ")
	assert.Error(t, err)
}

func TestRegistryFloatParamFallback(t *testing.T) {
	rule := Rule{Params: map[string]interface{}{"a": "oops", "b": 3}}
	assert.Equal(t, 7.0, rule.FloatParam("missing", 7))
	assert.Equal(t, 7.0, rule.FloatParam("a", 7))
	assert.Equal(t, 3.0, rule.FloatParam("b", 7))
}
