package printer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/manifest"
)

func TestCalcLenAccountsForClusterScoped(t *testing.T) {
	ids := []manifest.Identifier{
		{Kind: "ConfigMap", Name: "app", Namespace: "default"},
		{Kind: "ClusterRole", Name: "very-long-cluster-role-name"},
	}
	l := CalcLen(ids)
	assert.Equal(t, len("ClusterRole/very-long-cluster-role-name"), l.KindNameMaxLen)
	assert.Equal(t, len("(cluster)"), l.NamespaceMaxLen)
}

func TestStatusGlyph(t *testing.T) {
	assert.Equal(t, "+", statusGlyph(kube.StatusAdded))
	assert.Equal(t, "+", statusGlyph(kube.StatusSoonAdded))
	assert.Equal(t, "-", statusGlyph(kube.StatusDeleted))
	assert.Equal(t, "~", statusGlyph(kube.StatusModified))
	assert.Equal(t, " ", statusGlyph(kube.StatusUnchanged))
}

func TestPrintDiffSummaryRendersRows(t *testing.T) {
	diffs := []kube.ResourceDiff{
		{Identifier: manifest.Identifier{Kind: "ConfigMap", Name: "app", Namespace: "default"}, Status: kube.StatusModified},
		{Identifier: manifest.Identifier{Kind: "Secret", Name: "creds", Namespace: "default"}, Status: kube.StatusAdded},
	}
	var buf bytes.Buffer
	PrintDiffSummary(&buf, diffs)
	out := buf.String()
	assert.Contains(t, out, "ConfigMap/app")
	assert.Contains(t, out, "Secret/creds")
}

func TestPrintDiffTextSkipsUnchanged(t *testing.T) {
	diffs := []kube.ResourceDiff{
		{Identifier: manifest.Identifier{Kind: "ConfigMap", Name: "app"}, Status: kube.StatusUnchanged, Text: "should not appear"},
		{Identifier: manifest.Identifier{Kind: "ConfigMap", Name: "other"}, Status: kube.StatusModified, Text: "diff text here"},
	}
	var buf bytes.Buffer
	PrintDiffText(&buf, diffs)
	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "diff text here")
}

func TestPrintEnvListRendersRows(t *testing.T) {
	envs := []EnvSummary{
		{Name: "staging", Namespace: "app-staging", Label: "abc123", Manifests: 5},
	}
	var buf bytes.Buffer
	PrintEnvList(&buf, envs)
	assert.Contains(t, buf.String(), "staging")
}
