package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic/fake"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

func configMapGVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
}

func newFakeResource(objs ...runtime.Object) dynamicResource {
	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{
		configMapGVR(): "ConfigMapList",
	}
	client := fake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind, objs...)
	return client.Resource(configMapGVR()).Namespace("default")
}

func unstructuredConfigMap(name string, data map[string]interface{}) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "default",
		},
		"data": data,
	}}
}

func TestApplyClientSideCreatesWhenMissing(t *testing.T) {
	rc := newFakeResource()
	m := manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": "app", "namespace": "default"},
		"data":       map[string]interface{}{"key": "value"},
	}
	status, err := applyClientSide(context.Background(), rc, m, ApplyOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAdded, status)

	got, err := rc.Get(context.Background(), "app", metav1.GetOptions{})
	require.NoError(t, err)
	ann := got.GetAnnotations()
	assert.Contains(t, ann, lastAppliedConfigAnnotation)
}

func TestApplyClientSidePatchesWhenPresent(t *testing.T) {
	existing := unstructuredConfigMap("app", map[string]interface{}{"key": "old"})
	rc := newFakeResource(existing)

	m := manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": "app", "namespace": "default"},
		"data":       map[string]interface{}{"key": "new"},
	}
	status, err := applyClientSide(context.Background(), rc, m, ApplyOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusModified, status)

	got, err := rc.Get(context.Background(), "app", metav1.GetOptions{})
	require.NoError(t, err)
	data, _, _ := unstructured.NestedMap(got.Object, "data")
	assert.Equal(t, "new", data["key"])
}

func TestDiffNativeDetectsUnchanged(t *testing.T) {
	current := unstructuredConfigMap("app", map[string]interface{}{"key": "value"})
	m := manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": "app", "namespace": "default"},
		"data":       map[string]interface{}{"key": "value"},
	}
	id := m.Identifier()
	rd, err := diffNative(current, m, id, DiffOptions{}, false)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, rd.Status)
}

func TestDiffNativeDetectsModifiedAndStripsManagedFields(t *testing.T) {
	current := unstructuredConfigMap("app", map[string]interface{}{"key": "old"})
	current.Object["metadata"].(map[string]interface{})["resourceVersion"] = "123"
	m := manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": "app", "namespace": "default"},
		"data":       map[string]interface{}{"key": "new"},
	}
	id := m.Identifier()
	rd, err := diffNative(current, m, id, DiffOptions{}, false)
	require.NoError(t, err)
	assert.Equal(t, StatusModified, rd.Status)
	assert.NotContains(t, rd.Text, "resourceVersion")
}

func TestProjectSubsetIgnoresExtraLiveFields(t *testing.T) {
	current := map[string]interface{}{
		"spec": map[string]interface{}{"replicas": float64(3), "extra": "ignored"},
		"status": map[string]interface{}{"ready": true},
	}
	desired := map[string]interface{}{
		"spec": map[string]interface{}{"replicas": float64(3)},
	}
	out := projectSubset(current, desired)
	_, hasStatus := out["status"]
	assert.False(t, hasStatus)
	spec := out["spec"].(map[string]interface{})
	_, hasExtra := spec["extra"]
	assert.False(t, hasExtra)
	assert.Equal(t, float64(3), spec["replicas"])
}

func TestStripFieldsRemovesDottedPaths(t *testing.T) {
	m := map[string]interface{}{
		"metadata": map[string]interface{}{
			"resourceVersion": "1",
			"name":            "keep",
		},
		"status": map[string]interface{}{"phase": "Running"},
	}
	stripFields(m, DefaultServerManagedFields)
	md := m["metadata"].(map[string]interface{})
	_, hasRV := md["resourceVersion"]
	assert.False(t, hasRV)
	assert.Equal(t, "keep", md["name"])
	_, hasStatus := m["status"]
	assert.False(t, hasStatus)
}
