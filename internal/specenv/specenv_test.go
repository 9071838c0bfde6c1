package specenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRequiresNamespaceAndClusterSelector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SpecFileName)

	writeFile(t, path, `{"namespace": "prod"}`)
	_, err := Load(path)
	assert.Error(t, err)

	writeFile(t, path, `{"apiServer": "https://cluster.example", "namespace": "prod"}`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", s.Namespace)
}

func TestApplyResourceDefaultsMergesAndDeletesNulls(t *testing.T) {
	list := manifest.List{
		manifest.Manifest{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"metadata": map[string]interface{}{
				"name":   "app",
				"labels": map[string]interface{}{"keep": "yes", "drop": "me"},
			},
		},
	}
	defaults := map[string]interface{}{
		"metadata": map[string]interface{}{
			"labels": map[string]interface{}{"drop": nil, "team": "platform"},
		},
	}
	out := ApplyResourceDefaults(list, defaults)
	md := out[0]["metadata"].(map[string]interface{})
	labels := md["labels"].(map[string]interface{})
	assert.Equal(t, "yes", labels["keep"])
	assert.Equal(t, "platform", labels["team"])
	_, hasDrop := labels["drop"]
	assert.False(t, hasDrop)
}

func TestFindProjectRootWalksUpward(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "jsonnetfile.json"), "{}")
	nested := filepath.Join(root, "envs", "prod")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	realRoot, _ := filepath.EvalSymlinks(root)
	realFound, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, realRoot, realFound)
}

func TestFindProjectRootErrorsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindProjectRoot(dir)
	assert.Error(t, err)
}
