package kube

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// ResourceInfo is what the discovery cache remembers about a GVK, per
// spec.md §4.9: its plural resource name, whether it's namespaced, and
// whether it supports "list" (needed by the prune scan).
type ResourceInfo struct {
	GVR        schema.GroupVersionResource
	Namespaced bool
	Verbs      []string
}

func (r ResourceInfo) SupportsList() bool {
	for _, v := range r.Verbs {
		if v == "list" {
			return true
		}
	}
	return false
}

// DiscoveryCache memoizes GVK -> ResourceInfo lookups for the lifetime of
// a run, keyed by GVK exactly as spec.md §4.9 specifies.
type DiscoveryCache struct {
	client *Client
	mu     sync.Mutex
	byGVK  map[schema.GroupVersionKind]ResourceInfo
}

func NewDiscoveryCache(c *Client) *DiscoveryCache {
	return &DiscoveryCache{client: c, byGVK: make(map[schema.GroupVersionKind]ResourceInfo)}
}

// Resolve performs lazy, per-GVK discovery (spec.md §4.9's path (b)): it
// maps the GVK to a REST mapping on first use and remembers the result.
// Unknown GVK is surfaced as an error, per spec.md §4.10 step 1.
func (d *DiscoveryCache) Resolve(gvk schema.GroupVersionKind) (ResourceInfo, error) {
	d.mu.Lock()
	if ri, ok := d.byGVK[gvk]; ok {
		d.mu.Unlock()
		return ri, nil
	}
	d.mu.Unlock()

	m, err := d.client.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		d.client.Mapper.Reset()
		m, err = d.client.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return ResourceInfo{}, errors.Wrapf(err, "discovering GVK %s", gvk)
		}
	}
	ri := ResourceInfo{
		GVR:        m.Resource,
		Namespaced: m.Scope.Name() == meta.RESTScopeNameNamespace,
		Verbs:      []string{"get", "list", "create", "patch", "update", "delete"},
	}
	d.mu.Lock()
	d.byGVK[gvk] = ri
	d.mu.Unlock()
	return ri, nil
}

// resolveBounded runs Resolve for a set of GVKs using a bounded worker
// pool (default 8), matching spec.md §4.9's "bounded pool of per-GVK
// lookups" and the fan-out/collect shape of the teacher's own
// parallelGetByLabels/rollbackAndExit loops.
func (d *DiscoveryCache) resolveBounded(gvks []schema.GroupVersionKind, concurrency int) (map[schema.GroupVersionKind]ResourceInfo, error) {
	if concurrency <= 0 {
		concurrency = 8
	}
	type result struct {
		gvk schema.GroupVersionKind
		ri  ResourceInfo
		err error
	}
	in := make(chan schema.GroupVersionKind)
	out := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for gvk := range in {
				ri, err := d.Resolve(gvk)
				out <- result{gvk: gvk, ri: ri, err: err}
			}
		}()
	}
	go func() {
		for _, gvk := range gvks {
			in <- gvk
		}
		close(in)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[schema.GroupVersionKind]ResourceInfo, len(gvks))
	var firstErr error
	for r := range out {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			continue
		}
		results[r.gvk] = r.ri
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// ResolveManifests resolves every distinct GVK referenced by a manifest
// list in one bounded pass, per spec.md §4.9 path (b).
func (d *DiscoveryCache) ResolveManifests(list manifest.List) (map[schema.GroupVersionKind]ResourceInfo, error) {
	seen := make(map[schema.GroupVersionKind]bool)
	var gvks []schema.GroupVersionKind
	for _, m := range list {
		group, version := m.GroupVersion()
		gvk := schema.GroupVersionKind{Group: group, Version: version, Kind: m.Kind()}
		if !seen[gvk] {
			seen[gvk] = true
			gvks = append(gvks, gvk)
		}
	}
	return d.resolveBounded(gvks, 8)
}

// AllListableKinds performs full discovery (spec.md §4.9 path (a)) and
// returns every namespaced and cluster-scoped kind that supports "list",
// the precondition prune's scan (§4.11) needs.
func (d *DiscoveryCache) AllListableKinds() ([]ResourceInfo, error) {
	_, apiLists, err := d.client.Discovery.ServerGroupsAndResources()
	if err != nil && apiLists == nil {
		return nil, errors.Wrap(err, "full discovery")
	}
	var out []ResourceInfo
	for _, rl := range apiLists {
		gv, err := schema.ParseGroupVersion(rl.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range rl.APIResources {
			if !containsVerb(r.Verbs, "list") {
				continue
			}
			out = append(out, ResourceInfo{
				GVR:        gv.WithResource(r.Name),
				Namespaced: r.Namespaced,
				Verbs:      r.Verbs,
			})
		}
	}
	return out, nil
}

func containsVerb(verbs []string, want string) bool {
	for _, v := range verbs {
		if v == want {
			return true
		}
	}
	return false
}
