package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/source"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveFromSameDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.jsonnet"), "local x = import 'util.libsonnet'; x")
	writeFile(t, filepath.Join(dir, "util.libsonnet"), "42")

	src := source.New()
	from := src.Insert(filepath.Join(dir, "main.jsonnet"), "unused")
	im := New(src)

	id, text, err := im.Resolve(from, "util.libsonnet")
	require.NoError(t, err)
	assert.Equal(t, "42", text)

	id2, _, err := im.Resolve(from, "util.libsonnet")
	require.NoError(t, err)
	assert.Equal(t, id, id2, "repeated resolve must return the same canonical source id")
}

func TestResolveSearchesLibUnderProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "jsonnetfile.json"), "{}")
	writeFile(t, filepath.Join(root, "env", "main.jsonnet"), "import 'k.libsonnet'")
	writeFile(t, filepath.Join(root, "lib", "k.libsonnet"), "{}")

	src := source.New()
	from := src.Insert(filepath.Join(root, "env", "main.jsonnet"), "unused")
	im := New(src)

	_, text, err := im.Resolve(from, "k.libsonnet")
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
}

func TestResolveRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.jsonnet"), "")

	src := source.New()
	from := src.Insert(filepath.Join(dir, "main.jsonnet"), "unused")
	im := New(src)

	_, _, err := im.Resolve(from, "/etc/passwd")
	require.Error(t, err)
}

func TestResolveMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.jsonnet"), "")

	src := source.New()
	from := src.Insert(filepath.Join(dir, "main.jsonnet"), "unused")
	im := New(src)

	_, _, err := im.Resolve(from, "nope.libsonnet")
	require.Error(t, err)
}

func TestResolveBinaryReadsRawBytes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.jsonnet"), "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte{1, 2, 3}, 0o644))

	src := source.New()
	from := src.Insert(filepath.Join(dir, "main.jsonnet"), "unused")
	im := New(src)

	data, err := im.ResolveBinary(from, "data.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestFindProjectRootWalksUpward(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "jsonnetfile.json"), "{}")
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok := findProjectRoot(nested)
	require.True(t, ok)
	assert.Equal(t, root, got)
}

func TestFindProjectRootNotFound(t *testing.T) {
	dir := t.TempDir()
	_, ok := findProjectRoot(dir)
	assert.False(t, ok)
}
