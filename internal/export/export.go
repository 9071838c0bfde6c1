// Package export writes a manifest list to disk, one file per manifest,
// using a user-supplied path template, and writes a manifest.json index of
// path -> manifest identity. Path collisions are detected among the
// manifests of a single run; an earlier run's output is not consulted.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hashmap-kz/jkube/internal/manifest"
)

// IndexFileName is the conventional name of the path -> identity index
// written alongside an export tree, per spec.md §6.4.
const IndexFileName = "manifest.json"

// MergeStrategy selects what happens when two manifests render to the same
// path. The zero value (MergeNone) makes a collision a hard error.
type MergeStrategy string

const (
	MergeNone      MergeStrategy = ""
	MergeOverwrite MergeStrategy = "overwrite"
)

// Options configures an export run.
type Options struct {
	// OutDir is the root directory manifests are written under.
	OutDir string
	// PathTemplate is expanded per-manifest via ExpandPath.
	PathTemplate string
	Merge        MergeStrategy
	WriteIndex   bool
}

// IndexEntry is one manifest.json row.
type IndexEntry struct {
	Path       string `json:"path"`
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
}

// Index is the full manifest.json document.
type Index struct {
	Entries []IndexEntry `json:"entries"`
}

// ExpandPath renders a path template against a manifest's apiVersion, kind,
// and metadata, per spec.md §6.4. Recognized placeholders:
// {apiVersion} {kind} {name} {namespace} {generateName}.
func ExpandPath(tmpl string, m manifest.Manifest) string {
	name := m.Name()
	if name == "" {
		if md, ok := m["metadata"].(map[string]interface{}); ok {
			if gn, ok := md["generateName"].(string); ok {
				name = gn
			}
		}
	}
	r := strings.NewReplacer(
		"{apiVersion}", sanitizeSegment(m.APIVersion()),
		"{kind}", sanitizeSegment(m.Kind()),
		"{name}", sanitizeSegment(name),
		"{namespace}", sanitizeSegment(m.Namespace()),
		"{generateName}", sanitizeSegment(name),
	)
	return r.Replace(tmpl)
}

func sanitizeSegment(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

// Export renders every manifest in list to a file under opts.OutDir, per
// spec.md §6.4. Collisions (two manifests rendering to the same path) fail
// the export unless opts.Merge allows overwriting. When opts.WriteIndex is
// set, a manifest.json recording path -> identity is written alongside.
func Export(list manifest.List, opts Options) (*Index, error) {
	if opts.PathTemplate == "" {
		return nil, errors.New("export: PathTemplate is required")
	}

	seen := make(map[string]manifest.Identifier, len(list))
	idx := &Index{Entries: make([]IndexEntry, 0, len(list))}

	for _, m := range list {
		rel := ExpandPath(opts.PathTemplate, m)
		abs := filepath.Join(opts.OutDir, rel)
		id := m.Identifier()

		if prior, ok := seen[rel]; ok {
			if opts.Merge != MergeOverwrite {
				return nil, fmt.Errorf("export: path collision at %q between %s and %s", rel, prior, id)
			}
		}
		seen[rel] = id

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating directory for %s", rel)
		}
		data, err := yaml.Marshal(map[string]interface{}(m))
		if err != nil {
			return nil, errors.Wrapf(err, "marshaling %s", id)
		}
		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return nil, errors.Wrapf(err, "writing %s", rel)
		}

		idx.Entries = append(idx.Entries, IndexEntry{
			Path:       rel,
			APIVersion: m.APIVersion(),
			Kind:       m.Kind(),
			Name:       id.Name,
			Namespace:  id.Namespace,
		})
	}

	if opts.WriteIndex {
		raw, err := json.MarshalIndent(idx, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(opts.OutDir, IndexFileName), raw, 0o644); err != nil {
			return nil, errors.Wrap(err, "writing manifest.json")
		}
	}
	return idx, nil
}

// ReadIndex loads a previously-written manifest.json. Export does not call
// it, so collision detection covers only the manifests of a single run.
func ReadIndex(outDir string) (*Index, error) {
	raw, err := os.ReadFile(filepath.Join(outDir, IndexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{}, nil
		}
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, errors.Wrap(err, "parsing manifest.json")
	}
	return &idx, nil
}
