package kube

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// PruneOptions configures a prune scan.
type PruneOptions struct {
	// Concurrency bounds how many kinds are listed at once during the
	// full-discovery scan. Zero uses DefaultConcurrency.
	Concurrency int
}

func (o PruneOptions) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

// Prune runs the prune detector, per spec.md §4.11. The precondition
// (label injection enabled) is the caller's responsibility to check before
// calling, since it needs the environment spec, not just a Client.
func Prune(ctx context.Context, c *Client, cache *DiscoveryCache, desired manifest.List, envLabel string, opts PruneOptions) ([]ResourceDiff, error) {
	kinds, err := cache.AllListableKinds()
	if err != nil {
		return nil, errors.Wrap(err, "full discovery for prune scan")
	}

	known := make(map[manifest.Identifier]bool, len(desired))
	for _, m := range desired {
		known[m.Identifier()] = true
	}

	type listResult struct {
		items []manifest.Manifest
		err   error
	}

	results := make(chan listResult, len(kinds))
	var wg sync.WaitGroup
	sem := make(chan struct{}, opts.concurrency())
	for _, ri := range kinds {
		wg.Add(1)
		go func(ri ResourceInfo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			items, err := listByLabel(ctx, c, ri, manifest.EnvironmentLabelKey, envLabel)
			results <- listResult{items: items, err: err}
		}(ri)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var combinedErr error
	var orphaned []manifest.Manifest
	for r := range results {
		if r.err != nil {
			combinedErr = multierr.Append(combinedErr, r.err)
			continue
		}
		for _, m := range r.items {
			if known[m.Identifier()] {
				continue
			}
			orphaned = append(orphaned, m)
		}
	}
	if combinedErr != nil {
		return nil, combinedErr
	}

	out := make([]ResourceDiff, 0, len(orphaned))
	for _, m := range orphaned {
		out = append(out, ResourceDiff{Identifier: m.Identifier(), Status: StatusDeleted})
	}
	return out, nil
}

func listByLabel(ctx context.Context, c *Client, ri ResourceInfo, labelKey, labelVal string) ([]manifest.Manifest, error) {
	sel := fmt.Sprintf("%s=%s", labelKey, labelVal)
	var items []manifest.Manifest

	lister := c.Dynamic.Resource(ri.GVR)
	list, err := lister.List(ctx, metav1.ListOptions{LabelSelector: sel})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s by label", ri.GVR)
	}
	for _, u := range list.Items {
		items = append(items, manifest.Manifest(u.UnstructuredContent()))
	}
	return items, nil
}

// ForegroundDelete deletes id from the cluster using foreground
// propagation, the default prune behavior per spec.md §4.12.
func ForegroundDelete(ctx context.Context, c *Client, cache *DiscoveryCache, id manifest.Identifier) error {
	ri, err := cache.Resolve(schema.GroupVersionKind{Group: id.Group, Version: id.Version, Kind: id.Kind})
	if err != nil {
		return err
	}
	policy := metav1.DeletePropagationForeground
	var rc dynamicResource = c.Dynamic.Resource(ri.GVR)
	if ri.Namespaced {
		rc = c.Dynamic.Resource(ri.GVR).Namespace(id.Namespace)
	}
	return rc.Delete(ctx, id.Name, metav1.DeleteOptions{PropagationPolicy: &policy})
}
