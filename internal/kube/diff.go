package kube

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/multierr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// DefaultConcurrency bounds how many resources a reconciliation loop
// (Diff, Apply, Prune) touches at once, per spec.md §5's "configurable,
// default 8" fan-out degree.
const DefaultConcurrency = 8

// Strategy selects how a resource's diff is computed, per spec.md §4.10.
type Strategy string

const (
	StrategyNative   Strategy = "native"
	StrategySubset   Strategy = "subset"
	StrategyServer   Strategy = "server"
	StrategyValidate Strategy = "validate"
)

// Status is a per-resource diff outcome, per spec.md §4.13.
type Status string

const (
	StatusUnchanged Status = "Unchanged"
	StatusAdded     Status = "Added"
	StatusModified  Status = "Modified"
	StatusDeleted   Status = "Deleted"
	StatusSoonAdded Status = "SoonAdded"
)

// ResourceDiff is the outcome of diffing one manifest against the cluster.
type ResourceDiff struct {
	Identifier manifest.Identifier
	Status     Status
	Text       string
	// ValidationErrors is populated only by StrategyValidate.
	ValidationErrors []string
}

// DefaultServerManagedFields is stripped from both sides before
// normalization and comparison, per spec.md §4.10's Native strategy. It is
// the default for DiffOptions.ManagedFields, which a caller can set to
// extend the list per cluster version, resolving Open Question 1 (spec.md §9).
var DefaultServerManagedFields = []string{
	"metadata.creationTimestamp",
	"metadata.resourceVersion",
	"metadata.uid",
	"metadata.generation",
	"metadata.managedFields",
	"status",
}

// DiffOptions configures a diff run.
type DiffOptions struct {
	Strategy      Strategy
	ManagedFields []string
	FieldManager  string
	// Concurrency bounds how many manifests are diffed at once. Zero uses
	// DefaultConcurrency.
	Concurrency int
}

func (o DiffOptions) managedFields() []string {
	if len(o.ManagedFields) > 0 {
		return o.ManagedFields
	}
	return DefaultServerManagedFields
}

func (o DiffOptions) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

// Diff computes the per-resource diff for every manifest in list, per
// spec.md §4.10's per-resource flow and §5's bounded-concurrency
// reconciliation requirement. Strategy selection (when opts.Strategy is
// empty) follows §4.10: explicit env choice first, then Server if the
// cluster advertises SSA, else Native.
func Diff(ctx context.Context, c *Client, cache *DiscoveryCache, list manifest.List, opts DiffOptions) ([]ResourceDiff, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyNative
		if c.SupportsServerSideApply() {
			strategy = StrategyServer
		}
	}

	out := make([]ResourceDiff, len(list))
	errs := make([]error, len(list))
	var wg sync.WaitGroup
	sem := make(chan struct{}, opts.concurrency())
	for i, m := range list {
		wg.Add(1)
		go func(i int, m manifest.Manifest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			rd, err := diffOne(ctx, c, cache, m, strategy, opts)
			out[i] = rd
			errs[i] = err
		}(i, m)
	}
	wg.Wait()

	var combinedErr error
	for _, err := range errs {
		combinedErr = multierr.Append(combinedErr, err)
	}
	if combinedErr != nil {
		return nil, combinedErr
	}
	return out, nil
}

func diffOne(ctx context.Context, c *Client, cache *DiscoveryCache, m manifest.Manifest, strategy Strategy, opts DiffOptions) (ResourceDiff, error) {
	group, version := m.GroupVersion()
	gvk := schema.GroupVersionKind{Group: group, Version: version, Kind: m.Kind()}

	ri, err := cache.Resolve(gvk)
	if err != nil {
		return ResourceDiff{}, errors.Wrapf(err, "resolving GVK for %s", m.KindSlashName())
	}

	ns := m.Namespace()
	if ns == "" && ri.Namespaced {
		ns = c.DefaultNamespace
	}
	id := m.Identifier()
	id.Namespace = ns

	var rc dynamicResource = c.Dynamic.Resource(ri.GVR)
	if ri.Namespaced {
		rc = c.Dynamic.Resource(ri.GVR).Namespace(ns)
	}

	current, err := rc.Get(ctx, m.Name(), metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return ResourceDiff{}, errors.Wrapf(err, "fetching current state of %s", id)
		}
		nsExists := !ri.Namespaced || ns == "" || namespaceExists(ctx, c, ns)
		status := StatusAdded
		if !nsExists {
			status = StatusSoonAdded
		}
		desiredYAML, _ := sigsyaml.Marshal(map[string]interface{}(m))
		return ResourceDiff{Identifier: id, Status: status, Text: string(desiredYAML)}, nil
	}

	switch strategy {
	case StrategyServer, StrategyValidate:
		return diffServer(ctx, c, rc, m, id, opts, strategy == StrategyValidate)
	case StrategySubset:
		return diffNative(current, m, id, opts, true)
	default:
		return diffNative(current, m, id, opts, false)
	}
}

// dynamicResource is the subset of dynamic.ResourceInterface diff/apply
// need, narrowed so diff.go and apply.go can share fakes in tests.
type dynamicResource interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions, subresources ...string) (*unstructured.Unstructured, error)
	Create(ctx context.Context, obj *unstructured.Unstructured, opts metav1.CreateOptions, subresources ...string) (*unstructured.Unstructured, error)
	Update(ctx context.Context, obj *unstructured.Unstructured, opts metav1.UpdateOptions, subresources ...string) (*unstructured.Unstructured, error)
	Patch(ctx context.Context, name string, pt types.PatchType, data []byte, opts metav1.PatchOptions, subresources ...string) (*unstructured.Unstructured, error)
	Delete(ctx context.Context, name string, opts metav1.DeleteOptions, subresources ...string) error
}

func namespaceExists(ctx context.Context, c *Client, ns string) bool {
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}
	_, err := c.Dynamic.Resource(gvr).Get(ctx, ns, metav1.GetOptions{})
	return err == nil
}

func diffNative(current *unstructured.Unstructured, m manifest.Manifest, id manifest.Identifier, opts DiffOptions, subset bool) (ResourceDiff, error) {
	currentGeneric := current.UnstructuredContent()
	stripFields(currentGeneric, opts.managedFields())

	desiredGeneric := map[string]interface{}(m)
	stripFields(desiredGeneric, opts.managedFields())

	if subset {
		currentGeneric = projectSubset(currentGeneric, desiredGeneric)
	}

	currentYAML, err := canonicalYAML(currentGeneric)
	if err != nil {
		return ResourceDiff{}, err
	}
	desiredYAML, err := canonicalYAML(desiredGeneric)
	if err != nil {
		return ResourceDiff{}, err
	}

	if currentYAML == desiredYAML {
		return ResourceDiff{Identifier: id, Status: StatusUnchanged}, nil
	}

	text, err := unifiedDiff(currentYAML, desiredYAML, id.String())
	if err != nil {
		return ResourceDiff{}, err
	}
	return ResourceDiff{Identifier: id, Status: StatusModified, Text: text}, nil
}

// diffServer asks the API server to dry-run apply the desired manifest and
// compares its normalized result to the current object, per spec.md
// §4.10's Server/Validate strategies.
func diffServer(ctx context.Context, c *Client, rc dynamicResource, m manifest.Manifest, id manifest.Identifier, opts DiffOptions, validate bool) (ResourceDiff, error) {
	fieldManager := opts.FieldManager
	if fieldManager == "" {
		fieldManager = "jkube"
	}

	desiredJSON, err := sigsyaml.Marshal(map[string]interface{}(m))
	if err != nil {
		return ResourceDiff{}, err
	}

	dryRun := []string{metav1.DryRunAll}
	patchOpts := metav1.PatchOptions{FieldManager: fieldManager, DryRun: dryRun, Force: boolPtr(true)}
	serverResult, err := rc.Patch(ctx, m.Name(), types.ApplyPatchType, desiredJSON, patchOpts)
	var validationErrors []string
	if err != nil {
		if !validate {
			return ResourceDiff{}, errors.Wrapf(err, "server-side dry-run apply of %s", id)
		}
		validationErrors = append(validationErrors, err.Error())
		rd, diffErr := diffNative(&unstructured.Unstructured{}, m, id, opts, false)
		if diffErr != nil {
			return ResourceDiff{}, diffErr
		}
		rd.ValidationErrors = validationErrors
		return rd, nil
	}

	current, err := rc.Get(ctx, m.Name(), metav1.GetOptions{})
	if err != nil {
		current = &unstructured.Unstructured{}
	}

	rd, err := diffNative(current, manifest.Manifest(serverResult.UnstructuredContent()), id, opts, false)
	if err != nil {
		return ResourceDiff{}, err
	}
	rd.ValidationErrors = validationErrors
	return rd, nil
}

func boolPtr(b bool) *bool { return &b }

func stripFields(m map[string]interface{}, paths []string) {
	for _, p := range paths {
		deleteDotted(m, p)
	}
}

func deleteDotted(m map[string]interface{}, path string) {
	parts := splitDotted(path)
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
}

func splitDotted(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// projectSubset restricts current to only the keys present in desired, per
// spec.md §4.10's Subset strategy: fields the live object has that the
// desired manifest doesn't mention are treated as absent.
func projectSubset(current, desired map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(desired))
	for k, dv := range desired {
		cv, ok := current[k]
		if !ok {
			continue
		}
		dMap, dIsMap := dv.(map[string]interface{})
		cMap, cIsMap := cv.(map[string]interface{})
		if dIsMap && cIsMap {
			out[k] = projectSubset(cMap, dMap)
		} else {
			out[k] = cv
		}
	}
	return out
}

// canonicalYAML renders m with sorted keys for stable, bit-compatible
// diffing, per spec.md §4.10.
func canonicalYAML(m map[string]interface{}) (string, error) {
	sorted := sortedCopy(m)
	b, err := sigsyaml.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("canonicalizing manifest: %w", err)
	}
	return string(b), nil
}

func sortedCopy(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(x))
		for _, k := range keys {
			out[k] = sortedCopy(x[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = sortedCopy(e)
		}
		return out
	default:
		return v
	}
}

func unifiedDiff(a, b, label string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: label + " (live)",
		ToFile:   label + " (desired)",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
