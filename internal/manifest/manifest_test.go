package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func field(in *interner.Interner, obj *value.Object, name string, v value.Value) {
	obj.SetField(in.Intern(name), value.Field{Bound: value.Evaluated(v)})
}

func newManifestObj(in *interner.Interner, kind, name, namespace string) *value.Object {
	obj := value.NewObject()
	field(in, obj, "apiVersion", value.NewString("v1"))
	field(in, obj, "kind", value.NewString(kind))
	md := value.NewObject()
	field(in, md, "name", value.NewString(name))
	if namespace != "" {
		field(in, md, "namespace", value.NewString(namespace))
	}
	field(in, obj, "metadata", md)
	return obj
}

func TestExtractSingleManifest(t *testing.T) {
	in := interner.New()
	root := value.NewObject()
	field(in, root, "cm", newManifestObj(in, "ConfigMap", "app-config", "default"))

	list, err := Extract(in, root)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ConfigMap", list[0].Kind())
	assert.Equal(t, "app-config", list[0].Name())
	assert.Equal(t, "default", list[0].Namespace())
}

func TestExtractExpandsList(t *testing.T) {
	in := interner.New()
	root := value.NewObject()
	field(in, root, "apiVersion", value.NewString("v1"))
	field(in, root, "kind", value.NewString("List"))
	items := &value.EagerArray{Elems: []*value.Thunk{
		value.Evaluated(newManifestObj(in, "ConfigMap", "a", "")),
		value.Evaluated(newManifestObj(in, "Secret", "b", "")),
	}}
	field(in, root, "items", items)

	list, err := Extract(in, root)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ConfigMap", list[0].Kind())
	assert.Equal(t, "Secret", list[1].Kind())
}

func TestExtractDoesNotRecurseIntoManifestInterior(t *testing.T) {
	in := interner.New()
	m := newManifestObj(in, "ConfigMap", "outer", "")
	nested := newManifestObj(in, "Secret", "inner", "")
	field(in, m, "spec", nested)

	list, err := Extract(in, m)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ConfigMap", list[0].Kind())
}

func TestIdentifierAndKindSlashName(t *testing.T) {
	m := Manifest{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      "web",
			"namespace": "prod",
		},
	}
	id := m.Identifier()
	assert.Equal(t, "apps", id.Group)
	assert.Equal(t, "v1", id.Version)
	assert.Equal(t, "Deployment", id.Kind)
	assert.Equal(t, "web", id.Name)
	assert.Equal(t, "prod", id.Namespace)
	assert.Equal(t, "Deployment/web", m.KindSlashName())
	assert.Equal(t, "prod/Deployment/web", id.String())
}

func TestFilterTargets(t *testing.T) {
	list := List{
		Manifest{"kind": "Deployment", "metadata": map[string]interface{}{"name": "web"}},
		Manifest{"kind": "Service", "metadata": map[string]interface{}{"name": "web"}},
	}
	out, err := FilterTargets(list, []string{"^Deployment/.*$"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Deployment", out[0].Kind())
}

func TestInjectLabelAndStripEmptyMeta(t *testing.T) {
	list := List{
		Manifest{"metadata": map[string]interface{}{
			"name":        "web",
			"labels":      map[string]interface{}{},
			"annotations": map[string]interface{}{"a": nil},
		}},
	}
	InjectLabel(list, EnvironmentLabelKey, "abc123")
	md := list[0]["metadata"].(map[string]interface{})
	assert.Equal(t, "abc123", md["labels"].(map[string]interface{})[EnvironmentLabelKey])

	StripEmptyMeta(list)
	_, hasAnnotations := md["annotations"]
	assert.False(t, hasAnnotations)
}

func TestEnvironmentLabelIsStableHash(t *testing.T) {
	a := EnvironmentLabel("prod", "default")
	b := EnvironmentLabel("prod", "default")
	c := EnvironmentLabel("staging", "default")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
