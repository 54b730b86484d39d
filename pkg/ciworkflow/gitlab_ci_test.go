package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGitLabCIGenerator_Generate(t *testing.T) {
	w, err := Build(testCatalog(), testOptions())
	require.NoError(t, err)

	data, err := NewGitLabCIGenerator().Generate(w)
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "# Configure these in Settings > CI/CD > Variables")
	assert.Contains(t, output, "  - stage-4\n")
	assert.Contains(t, output, "image: golang:latest")
	assert.Contains(t, output, "resource_group: scdctl-dev")
	assert.Contains(t, output, "SCDCTL_STATE_BUCKET: scdctl-state")
	assert.Contains(t, output, "    - scdctl deploy apply -p networking\n")
	assert.NotContains(t, output, "when: manual")

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	app, ok := doc["apply-app"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stage-4", app["stage"])
}

func TestGitLabCIGenerator_GenerateTeardown(t *testing.T) {
	w, err := Build(testCatalog(), testOptions())
	require.NoError(t, err)

	data, err := NewGitLabCIGenerator().GenerateTeardown(w)
	require.NoError(t, err)
	output := string(data)

	assert.Contains(t, output, "destroy:")
	assert.Contains(t, output, "when: manual")
	assert.Contains(t, output, "    - scdctl destroy --force\n")

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "destroy")
}
