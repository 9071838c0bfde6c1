// Package apply adds optional wait-for-ready and rollback behavior on top
// of internal/kube's apply engine: after a batch of manifests has been
// applied, the caller can wait until every resource reaches kstatus's
// Current status, and roll back to the pre-apply state if it doesn't.
package apply

import (
	"context"
	goerrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling/aggregator"
	"sigs.k8s.io/cli-utils/pkg/kstatus/polling/collector"
	pollEvent "sigs.k8s.io/cli-utils/pkg/kstatus/polling/event"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"
	"sigs.k8s.io/cli-utils/pkg/object"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

const defaultPollInterval = 2 * time.Second

// WaitOptions configures WaitForReady.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (o WaitOptions) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return defaultPollInterval
}

// WaitForReady polls every manifest in list until each reaches kstatus's
// Current status or opts.Timeout elapses, mirroring the teacher's own
// waitStatus/statusObserver pair but driven off an already-applied
// manifest.List rather than freshly-read files.
func WaitForReady(ctx context.Context, c *kube.Client, list manifest.List, opts WaitOptions) error {
	if len(list) == 0 {
		return nil
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		cancelCtx, timeoutCancel = context.WithTimeout(cancelCtx, opts.Timeout)
		defer timeoutCancel()
	}

	resources := make([]object.ObjMetadata, 0, len(list))
	for _, m := range list {
		u := &unstructured.Unstructured{Object: map[string]interface{}(m)}
		id, err := object.RuntimeToObjMeta(u)
		if err != nil {
			return errors.Wrapf(err, "building identity for %s", m.KindSlashName())
		}
		resources = append(resources, id)
	}

	poller := polling.NewStatusPoller(c.Reader, c.Mapper, polling.Options{})
	eventCh := poller.Poll(cancelCtx, resources, polling.PollOptions{PollInterval: opts.pollInterval()})

	statusCollector := collector.NewResourceStatusCollector(resources)
	done := statusCollector.ListenWithObserver(eventCh, statusObserver(cancel, kstatus.CurrentStatus))
	<-done

	if statusCollector.Error != nil {
		return statusCollector.Error
	}

	if cancelCtx.Err() != nil {
		var errs []error
		for _, id := range resources {
			rs := statusCollector.ResourceStatuses[id]
			if rs != nil && rs.Status != kstatus.CurrentStatus {
				errs = append(errs, fmt.Errorf("resource not ready: %s (%s)", id.String(), rs.Status))
			}
		}
		errs = append(errs, cancelCtx.Err())
		return errors.WithStack(goerrors.Join(errs...))
	}
	return nil
}

func statusObserver(cancel context.CancelFunc, desired kstatus.Status) collector.ObserverFunc {
	return func(c *collector.ResourceStatusCollector, _ pollEvent.Event) {
		var rss []*pollEvent.ResourceStatus
		var nonReady []*pollEvent.ResourceStatus

		for _, rs := range c.ResourceStatuses {
			if rs == nil {
				continue
			}
			if rs.Status == kstatus.UnknownStatus && desired == kstatus.NotFoundStatus {
				continue
			}
			rss = append(rss, rs)
			if rs.Status != desired {
				nonReady = append(nonReady, rs)
			}
		}

		if aggregator.AggregateStatus(rss, desired) == desired {
			cancel()
			return
		}

		if len(nonReady) > 0 {
			sort.Slice(nonReady, func(i, j int) bool {
				return nonReady[i].Identifier.Name < nonReady[j].Identifier.Name
			})
			first := nonReady[0]
			fmt.Printf("[watch] waiting: %s %s -> %s\n",
				first.Identifier.GroupKind.Kind,
				first.Identifier.Name,
				first.Status)
		}
	}
}

// Backup captures a resource's state immediately before it was touched by
// apply, so Rollback can restore it afterward.
type Backup struct {
	Identifier manifest.Identifier
	Existed    bool
	Snapshot   *unstructured.Unstructured
}

// CaptureBackups records the pre-apply state of every manifest in list,
// stripping server-managed fields from existing objects to minimize PATCH
// conflicts on rollback, per the teacher's own prepareApplyPlan/stripMeta.
func CaptureBackups(ctx context.Context, c *kube.Client, cache *kube.DiscoveryCache, list manifest.List) ([]Backup, error) {
	out := make([]Backup, 0, len(list))
	for _, m := range list {
		group, version := m.GroupVersion()
		gvk := schema.GroupVersionKind{Group: group, Version: version, Kind: m.Kind()}
		ri, err := cache.Resolve(gvk)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving GVK for %s", m.KindSlashName())
		}

		ns := m.Namespace()
		if ns == "" && ri.Namespaced {
			ns = c.DefaultNamespace
		}
		id := m.Identifier()
		id.Namespace = ns

		rc := c.Dynamic.Resource(ri.GVR)
		var cur *unstructured.Unstructured
		if ri.Namespaced {
			cur, err = c.Dynamic.Resource(ri.GVR).Namespace(ns).Get(ctx, m.Name(), metav1.GetOptions{})
		} else {
			cur, err = rc.Get(ctx, m.Name(), metav1.GetOptions{})
		}
		if err != nil {
			if !apierrors.IsNotFound(err) {
				return nil, errors.Wrapf(err, "capturing backup for %s", id)
			}
			out = append(out, Backup{Identifier: id, Existed: false})
			continue
		}
		stripManagedFields(cur.Object)
		out = append(out, Backup{Identifier: id, Existed: true, Snapshot: cur})
	}
	return out, nil
}

// Rollback restores every backup: existing resources are updated back to
// their captured snapshot, resources that didn't exist before are deleted.
// Errors are collected rather than returning on the first failure, so a
// partial rollback doesn't abandon the rest of the batch.
func Rollback(ctx context.Context, c *kube.Client, cache *kube.DiscoveryCache, backups []Backup) error {
	var errs []error
	for _, b := range backups {
		gvk := schema.GroupVersionKind{Group: b.Identifier.Group, Version: b.Identifier.Version, Kind: b.Identifier.Kind}
		ri, err := cache.Resolve(gvk)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rc := c.Dynamic.Resource(ri.GVR)
		if ri.Namespaced {
			rc = c.Dynamic.Resource(ri.GVR).Namespace(b.Identifier.Namespace)
		}

		if b.Existed {
			if _, err := rc.Update(ctx, b.Snapshot, metav1.UpdateOptions{}); err != nil {
				errs = append(errs, errors.Wrapf(err, "restoring %s", b.Identifier))
			}
			continue
		}
		if err := rc.Delete(ctx, b.Identifier.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			errs = append(errs, errors.Wrapf(err, "deleting %s created before rollback", b.Identifier))
		}
	}
	return goerrors.Join(errs...)
}

// stripManagedFields removes fields that should not be carried back into a
// rollback Update, matching the teacher's own stripMeta.
func stripManagedFields(o map[string]interface{}) {
	delete(o, "status")
	if md, ok := o["metadata"].(map[string]interface{}); ok {
		for _, k := range []string{"managedFields", "resourceVersion", "uid", "creationTimestamp"} {
			delete(md, k)
		}
	}
}
