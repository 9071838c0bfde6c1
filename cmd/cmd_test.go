package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/kube"
)

func writeEntry(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEnvironmentExtractsManifests(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, "main.jsonnet", `{
  apiVersion: "v1",
  kind: "ConfigMap",
  metadata: { name: "app", namespace: "default" },
  data: { key: "value" },
}`)

	le, err := loadEnvironment(entry, nil, true)
	require.NoError(t, err)
	require.Len(t, le.List, 1)
	assert.Equal(t, "ConfigMap", le.List[0].Kind())
	assert.Equal(t, "app", le.List[0].Name())
}

func TestLoadEnvironmentRequiresSpecWhenNotSkipped(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, "main.jsonnet", `{ apiVersion: "v1", kind: "ConfigMap", metadata: { name: "app" } }`)

	_, err := loadEnvironment(entry, nil, false)
	assert.Error(t, err)
}

func TestLoadEnvironmentAppliesResourceDefaults(t *testing.T) {
	dir := t.TempDir()
	entry := writeEntry(t, dir, "main.jsonnet", `{
  apiVersion: "v1",
  kind: "ConfigMap",
  metadata: { name: "app", namespace: "default", labels: { keep: "yes" } },
}`)
	writeEntry(t, dir, "spec.json", `{
  "apiServer": "https://cluster.example",
  "namespace": "default",
  "resourceDefaults": { "metadata": { "labels": { "team": "platform" } } }
}`)

	le, err := loadEnvironment(entry, nil, false)
	require.NoError(t, err)
	require.Len(t, le.List, 1)
	md := le.List[0]["metadata"].(map[string]interface{})
	labels := md["labels"].(map[string]interface{})
	assert.Equal(t, "yes", labels["keep"])
	assert.Equal(t, "platform", labels["team"])
}

func TestSplitKV(t *testing.T) {
	k, v, ok := splitKV("name=value")
	assert.True(t, ok)
	assert.Equal(t, "name", k)
	assert.Equal(t, "value", v)

	_, _, ok = splitKV("noequals")
	assert.False(t, ok)
}

func TestParseExtVarFlags(t *testing.T) {
	vars, err := parseExtVarFlags([]string{"env=staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", vars["env"].Value)

	_, err = parseExtVarFlags([]string{"bad"})
	assert.Error(t, err)
}

func TestResolveDiffStrategyPrefersFlagThenSpec(t *testing.T) {
	assert.Equal(t, kube.StrategyServer, resolveDiffStrategy("server", "native"))
	assert.Equal(t, kube.StrategyNative, resolveDiffStrategy("", "native"))
	assert.Equal(t, kube.Strategy(""), resolveDiffStrategy("", ""))
}

func TestHasChanges(t *testing.T) {
	assert.False(t, hasChanges([]kube.ResourceDiff{{Status: kube.StatusUnchanged}}))
	assert.True(t, hasChanges([]kube.ResourceDiff{{Status: kube.StatusUnchanged}, {Status: kube.StatusModified}}))
}
