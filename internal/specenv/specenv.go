// Package specenv loads an environment's spec.json (spec.md §6.2), applies
// its resourceDefaults to a manifest list, and detects the project root
// import paths are resolved against (§6.3).
package specenv

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// SpecFileName is the conventional environment spec file name.
const SpecFileName = "spec.json"

// ProjectRootMarkers are the files whose presence marks a project root,
// per spec.md §6.3.
var ProjectRootMarkers = []string{"jsonnetfile.json", "jkube.json"}

// Spec is an environment's spec.json, per spec.md §6.2.
type Spec struct {
	APIServer        string                 `json:"apiServer,omitempty"`
	ContextNames     []string               `json:"contextNames,omitempty"`
	Namespace        string                 `json:"namespace"`
	DiffStrategy     string                 `json:"diffStrategy,omitempty"`
	ApplyStrategy    string                 `json:"applyStrategy,omitempty"`
	InjectLabels     bool                   `json:"injectLabels,omitempty"`
	ResourceDefaults map[string]interface{} `json:"resourceDefaults,omitempty"`
	ExpectVersions   []string               `json:"expectVersions,omitempty"`
}

// Load reads and parses an environment's spec.json.
func Load(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if s.Namespace == "" {
		return nil, errors.Errorf("%s: namespace is required", path)
	}
	if s.APIServer == "" && len(s.ContextNames) == 0 {
		return nil, errors.Errorf("%s: one of apiServer or contextNames is required", path)
	}
	return &s, nil
}

// ApplyResourceDefaults merges spec.ResourceDefaults into every manifest in
// list via an RFC 7386 JSON merge patch (the same algorithm std.mergePatch
// implements for in-language values, re-expressed here over the generic
// map[string]interface{} form manifests take after extraction). Null
// leaves in ResourceDefaults delete the corresponding key, per RFC 7386.
func ApplyResourceDefaults(list manifest.List, defaults map[string]interface{}) manifest.List {
	if len(defaults) == 0 {
		return list
	}
	out := make(manifest.List, len(list))
	for i, m := range list {
		out[i] = manifest.Manifest(mergePatch(map[string]interface{}(m), defaults).(map[string]interface{}))
	}
	return out
}

// mergePatch is RFC 7386's merge algorithm: maps are merged key-by-key
// (null values delete), anything else is replaced wholesale by patch.
func mergePatch(base, patch interface{}) interface{} {
	patchMap, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		baseMap = map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(baseMap)+len(patchMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, pv := range patchMap {
		if pv == nil {
			delete(out, k)
			continue
		}
		out[k] = mergePatch(out[k], pv)
	}
	return out
}

// FindProjectRoot walks upward from start looking for one of
// ProjectRootMarkers, per spec.md §6.3. Returns the directory containing
// the marker, or an error if none is found before reaching the filesystem
// root.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range ProjectRootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Errorf("no project root marker found above %s", start)
		}
		dir = parent
	}
}
