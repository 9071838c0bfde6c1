// Package printer renders diff and environment summaries to a terminal.
package printer

import (
	"fmt"
	"io"
	"sort"

	"github.com/aquasecurity/table"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

// Len holds the column widths that CalcLen computes for a list of
// identifiers.
type Len struct {
	KindNameMaxLen  int
	NamespaceMaxLen int
}

// CalcLen computes the column widths needed to align a list of identifiers,
// one row per resource, without truncating any of them.
func CalcLen(ids []manifest.Identifier) *Len {
	k := 0
	n := 0
	for _, id := range ids {
		kn := fmt.Sprintf("%s/%s", id.Kind, id.Name)
		if len(kn) > k {
			k = len(kn)
		}
		ns := id.Namespace
		if ns == "" {
			ns = "(cluster)"
		}
		if len(ns) > n {
			n = len(ns)
		}
	}
	return &Len{KindNameMaxLen: k, NamespaceMaxLen: n}
}

// statusGlyph gives each diff status a single-character marker, matching
// kubectl diff/apply's +/-/~ convention.
func statusGlyph(s kube.Status) string {
	switch s {
	case kube.StatusAdded, kube.StatusSoonAdded:
		return "+"
	case kube.StatusDeleted:
		return "-"
	case kube.StatusModified:
		return "~"
	default:
		return " "
	}
}

// PrintDiffSummary writes a one-line-per-resource table: status glyph,
// namespace, kind/name. Unchanged resources are included so the caller can
// see the full desired set, not just what moved.
func PrintDiffSummary(w io.Writer, diffs []kube.ResourceDiff) {
	sorted := make([]kube.ResourceDiff, len(diffs))
	copy(sorted, diffs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Identifier.String() < sorted[j].Identifier.String()
	})

	t := table.New(w)
	t.SetHeaders("", "NAMESPACE", "RESOURCE", "STATUS")
	for _, d := range sorted {
		ns := d.Identifier.Namespace
		if ns == "" {
			ns = "(cluster)"
		}
		kn := fmt.Sprintf("%s/%s", d.Identifier.Kind, d.Identifier.Name)
		t.AddRow(statusGlyph(d.Status), ns, kn, string(d.Status))
	}
	t.Render()
}

// PrintDiffText writes the full unified diff text for every changed
// resource, skipping Unchanged ones.
func PrintDiffText(w io.Writer, diffs []kube.ResourceDiff) {
	for _, d := range diffs {
		if d.Status == kube.StatusUnchanged || d.Text == "" {
			continue
		}
		fmt.Fprintf(w, "--- %s (%s) ---\n%s\n", d.Identifier, d.Status, d.Text)
	}
}

// EnvSummary is one row of `env list` output.
type EnvSummary struct {
	Name      string
	Namespace string
	Label     string
	Manifests int
}

// PrintEnvList renders the environments known to a project as a table.
func PrintEnvList(w io.Writer, envs []EnvSummary) {
	sorted := make([]EnvSummary, len(envs))
	copy(sorted, envs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	t := table.New(w)
	t.SetHeaders("NAME", "NAMESPACE", "LABEL", "MANIFESTS")
	for _, e := range sorted {
		t.AddRow(e.Name, e.Namespace, e.Label, fmt.Sprintf("%d", e.Manifests))
	}
	t.Render()
}
