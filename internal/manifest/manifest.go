// Package manifest extracts Kubernetes objects from an evaluated
// configuration-language value tree and assigns them an identity, per
// spec.md §3.6, §3.7 and §4.8.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashmap-kz/jkube/internal/lang/eval"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// Manifest is a single decoded Kubernetes object, keyed the way
// apimachinery's unstructured.Unstructured is: a generic field tree ready
// to hand to encoding/json or the dynamic client.
type Manifest map[string]interface{}

// List is an ordered collection of manifests, in extraction order.
type List []Manifest

// Identifier uniquely addresses a Manifest for diff/apply/prune purposes,
// grounded on tanka's pkg/kubernetes/manifest/identifier.go.
type Identifier struct {
	Group     string
	Version   string
	Kind      string
	Name      string
	Namespace string
}

func (id Identifier) String() string {
	if id.Namespace == "" {
		return fmt.Sprintf("%s/%s", id.Kind, id.Name)
	}
	return fmt.Sprintf("%s/%s/%s", id.Namespace, id.Kind, id.Name)
}

// APIVersion returns the manifest's apiVersion field, or "" if absent.
func (m Manifest) APIVersion() string {
	s, _ := m["apiVersion"].(string)
	return s
}

// Kind returns the manifest's kind field, or "" if absent.
func (m Manifest) Kind() string {
	s, _ := m["kind"].(string)
	return s
}

// GroupVersion splits APIVersion on "/", per spec.md §3.6: the empty group
// is the core API.
func (m Manifest) GroupVersion() (group, version string) {
	av := m.APIVersion()
	if i := strings.IndexByte(av, '/'); i >= 0 {
		return av[:i], av[i+1:]
	}
	return "", av
}

func (m Manifest) metadata() map[string]interface{} {
	md, _ := m["metadata"].(map[string]interface{})
	return md
}

// Name returns metadata.name, or "" if absent.
func (m Manifest) Name() string {
	s, _ := m.metadata()["name"].(string)
	return s
}

// Namespace returns metadata.namespace, or "" if absent.
func (m Manifest) Namespace() string {
	s, _ := m.metadata()["namespace"].(string)
	return s
}

// Identifier builds this manifest's Identifier, per spec.md §3.6's
// "resource identity" (GVK, namespace-or-null, name). Namespace defaulting
// for namespaced kinds happens later, once discovery knows the kind's
// scope (internal/kube resolves that).
func (m Manifest) Identifier() Identifier {
	group, version := m.GroupVersion()
	return Identifier{
		Group:     group,
		Version:   version,
		Kind:      m.Kind(),
		Name:      m.Name(),
		Namespace: m.Namespace(),
	}
}

// KindSlashName renders "<kind>/<name>" for target-filtering and
// human-readable diffing, per spec.md §4.8.
func (m Manifest) KindSlashName() string {
	return fmt.Sprintf("%s/%s", m.Kind(), m.Name())
}

// EnvironmentLabel computes the prune-ownership label value for a named
// environment, per spec.md §3.7: the lowercase hex SHA-256 of
// "<name>/<namespace>".
func EnvironmentLabel(name, namespace string) string {
	sum := sha256.Sum256([]byte(name + "/" + namespace))
	return hex.EncodeToString(sum[:])
}

// EnvironmentLabelKey is the fixed label key prune uses to identify
// ownership of cluster objects, per spec.md §3.7.
const EnvironmentLabelKey = "jkube.dev/environment"

// Extract walks the depth-first value tree per spec.md §4.8: an object
// with both apiVersion and kind is a manifest (kind=="List" expands
// .items instead of being emitted itself); arrays recurse element by
// element; any other object recurses field by field; everything else is
// ignored.
func Extract(in *interner.Interner, root value.Value) (List, error) {
	var out List
	if err := walk(in, root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(in *interner.Interner, v value.Value, out *List) error {
	switch x := v.(type) {
	case *value.Object:
		if err := x.RunAssertions(x); err != nil {
			return err
		}
		if isManifestShaped(in, x) {
			if kindOf(in, x) == "List" {
				items, ok, err := value.ResolveFieldValue(x, in.Intern("items"), x, eval.Add)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("manifest: List object missing items field")
				}
				arr, ok := items.(value.Array)
				if !ok {
					return fmt.Errorf("manifest: List.items is not an array")
				}
				for i := 0; i < arr.Len(); i++ {
					ev, err := arr.Get(i)
					if err != nil {
						return err
					}
					if err := walk(in, ev, out); err != nil {
						return err
					}
				}
				return nil
			}
			m, err := toManifest(in, x)
			if err != nil {
				return err
			}
			*out = append(*out, m)
			return nil
		}
		for _, id := range x.VisibleFields(x) {
			fv, ok, err := value.ResolveFieldValue(x, id, x, eval.Add)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := walk(in, fv, out); err != nil {
				return err
			}
		}
		return nil
	case value.Array:
		for i := 0; i < x.Len(); i++ {
			ev, err := x.Get(i)
			if err != nil {
				return err
			}
			if err := walk(in, ev, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func isManifestShaped(in *interner.Interner, o *value.Object) bool {
	_, hasAPIVersion, _ := value.ResolveFieldValue(o, in.Intern("apiVersion"), o, eval.Add)
	_, hasKind, _ := value.ResolveFieldValue(o, in.Intern("kind"), o, eval.Add)
	return hasAPIVersion && hasKind
}

func kindOf(in *interner.Interner, o *value.Object) string {
	v, ok, err := value.ResolveFieldValue(o, in.Intern("kind"), o, eval.Add)
	if err != nil || !ok {
		return ""
	}
	if s, ok := v.(*value.String); ok {
		return s.Text()
	}
	return ""
}

// toManifest converts a manifest-shaped object subtree into a generic
// map[string]interface{} tree, ready for encoding/json or
// unstructured.Unstructured.
func toManifest(in *interner.Interner, o *value.Object) (Manifest, error) {
	g, err := toGeneric(in, o)
	if err != nil {
		return nil, err
	}
	m, ok := g.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("manifest: expected object at root, got %T", g)
	}
	return Manifest(m), nil
}

// ToGeneric converts any evaluated value to its plain-Go representation
// (map[string]interface{}, []interface{}, string, float64, bool, nil),
// suitable for json.Marshal. Used by callers that need the raw evaluation
// result rather than an extracted manifest list (e.g. `eval`/`show`).
func ToGeneric(in *interner.Interner, v value.Value) (interface{}, error) {
	return toGeneric(in, v)
}

func toGeneric(in *interner.Interner, v value.Value) (interface{}, error) {
	switch x := v.(type) {
	case value.Null:
		return nil, nil
	case value.Bool:
		return bool(x), nil
	case value.Number:
		return float64(x), nil
	case *value.String:
		return x.Text(), nil
	case value.Array:
		out := make([]interface{}, x.Len())
		for i := range out {
			ev, err := x.Get(i)
			if err != nil {
				return nil, err
			}
			g, err := toGeneric(in, ev)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case *value.Object:
		if err := x.RunAssertions(x); err != nil {
			return nil, err
		}
		out := make(map[string]interface{})
		for _, id := range x.VisibleFields(x) {
			fv, ok, err := value.ResolveFieldValue(x, id, x, eval.Add)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			g, err := toGeneric(in, fv)
			if err != nil {
				return nil, err
			}
			out[in.Lookup(id)] = g
		}
		return out, nil
	default:
		return nil, fmt.Errorf("manifest: value of kind %s cannot appear in a manifest tree", v.Kind())
	}
}

// FilterTargets removes every manifest whose "<kind>/<name>" does not
// match any of the given regexes, per spec.md §4.8. A nil/empty patterns
// list is a no-op (keeps everything).
func FilterTargets(list List, patterns []string) (List, error) {
	if len(patterns) == 0 {
		return list, nil
	}
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("manifest: invalid target pattern %q: %w", p, err)
		}
		res[i] = re
	}
	var out List
	for _, m := range list {
		kn := m.KindSlashName()
		for _, re := range res {
			if re.MatchString(kn) {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// InjectLabel sets metadata.labels[key] = value on every manifest in
// place, per spec.md §4.8's label-injection post-process.
func InjectLabel(list List, key, val string) {
	for _, m := range list {
		md, ok := m["metadata"].(map[string]interface{})
		if !ok {
			md = make(map[string]interface{})
			m["metadata"] = md
		}
		labels, ok := md["labels"].(map[string]interface{})
		if !ok {
			labels = make(map[string]interface{})
			md["labels"] = labels
		}
		labels[key] = val
	}
}

// StripEmptyMeta removes metadata.labels and metadata.annotations when
// they are empty or hold only null values, per spec.md §4.8.
func StripEmptyMeta(list List) {
	for _, m := range list {
		md, ok := m["metadata"].(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range []string{"labels", "annotations"} {
			if isEmptyOrAllNil(md[key]) {
				delete(md, key)
			}
		}
	}
}

func isEmptyOrAllNil(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	if len(m) == 0 {
		return true
	}
	for _, v := range m {
		if v != nil {
			return false
		}
	}
	return true
}
