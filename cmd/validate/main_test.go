package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidator_Calibration(t *testing.T) {
	v := &Validator{}
	good := writeFile(t, "calibration.json", `{
		"zones": [
			{"id": "altar", "center": {"x": 100, "y": 100}, "radius": 30},
			{"id": "pedestal", "polygon": [{"x": 0, "y": 0}, {"x": 10, "y": 0}, {"x": 10, "y": 10}]}
		]
	}`)
	assert.NoError(t, v.validateFile(good))
	assert.True(t, v.zones["altar"])

	bad := writeFile(t, "bad.json", `{"zones": [{"id": "Altar"}, {"id": "Altar", "center": {"x": 1, "y": 1}}]}`)
	err := v.validateFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate zone id")
	assert.Contains(t, err.Error(), "needs a polygon")
}

func TestValidator_ScriptStyle(t *testing.T) {
	v := &Validator{}
	path := writeFile(t, "script.json", `{
		"roles": {"79": "Protagonist"},
		"rules": [{"act": "intro", "on": "placed", "to": "investigation", "set": ["StoryBegun"]}]
	}`)
	err := v.validateFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'Protagonist' should be lowercase snake_case")
	assert.Contains(t, err.Error(), "'StoryBegun' should be lowercase snake_case")
}

func TestValidator_CrossCheckZones(t *testing.T) {
	v := &Validator{}
	cal := writeFile(t, "calibration.json", `{"zones": [{"id": "altar", "center": {"x": 0, "y": 0}, "radius": 5}]}`)
	script := writeFile(t, "script.json", `{
		"rules": [{"act": "investigation", "on": "moved", "zone": "pedestal", "set": ["relic_raised"]}]
	}`)
	require.NoError(t, v.validateFile(cal))
	require.NoError(t, v.validateFile(script))

	err := v.crossCheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown zone "pedestal"`)
}

func TestValidator_RejectsNonJSON(t *testing.T) {
	v := &Validator{}
	assert.Error(t, v.validateFile(writeFile(t, "notes.txt", "{}")))
	assert.Error(t, v.validateFile(writeFile(t, "broken.json", "{")))
}
