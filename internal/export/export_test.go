package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

func cm(name, ns string) manifest.Manifest {
	return manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": name, "namespace": ns},
	}
}

func TestExpandPathSubstitutesPlaceholders(t *testing.T) {
	m := cm("app", "prod")
	got := ExpandPath("{namespace}/{kind}-{name}.yaml", m)
	assert.Equal(t, "prod/ConfigMap-app.yaml", got)
}

func TestExportWritesFilesAndIndex(t *testing.T) {
	dir := t.TempDir()
	list := manifest.List{cm("app", "prod"), cm("other", "prod")}

	idx, err := Export(list, Options{
		OutDir:       dir,
		PathTemplate: "{namespace}/{kind}-{name}.yaml",
		WriteIndex:   true,
	})
	require.NoError(t, err)
	assert.Len(t, idx.Entries, 2)

	_, err = os.Stat(filepath.Join(dir, "prod", "ConfigMap-app.yaml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)
}

func TestExportFailsOnCollisionWithoutMerge(t *testing.T) {
	dir := t.TempDir()
	list := manifest.List{cm("app", "prod"), cm("app", "prod")}

	_, err := Export(list, Options{
		OutDir:       dir,
		PathTemplate: "{namespace}/{kind}-{name}.yaml",
	})
	assert.Error(t, err)
}

func TestExportAllowsCollisionWithOverwriteMerge(t *testing.T) {
	dir := t.TempDir()
	list := manifest.List{cm("app", "prod"), cm("app", "prod")}

	idx, err := Export(list, Options{
		OutDir:       dir,
		PathTemplate: "{namespace}/{kind}-{name}.yaml",
		Merge:        MergeOverwrite,
	})
	require.NoError(t, err)
	assert.Len(t, idx.Entries, 2)
}

func TestReadIndexMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	idx, err := ReadIndex(dir)
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}
