package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// manifestJSON renders v as JSON text with indent prepended at every nesting
// level, honoring field declaration order (not sorted) the way jsonnet's
// manifestJsonEx does.
func manifestJSON(in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value, indent string) (string, error) {
	var sb strings.Builder
	if err := writeJSON(&sb, in, add, v, 0, indent); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// manifestJSONCompact renders v as single-line JSON, used by std.format's
// %s substitution for non-scalar values.
func manifestJSONCompact(in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value) (string, error) {
	var sb strings.Builder
	if err := writeJSON(&sb, in, add, v, 0, ""); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeJSON(sb *strings.Builder, in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value, depth int, indent string) error {
	pad := strings.Repeat(indent, depth+1)
	closePad := strings.Repeat(indent, depth)
	nl, sp := "", ""
	if indent != "" {
		nl, sp = "\n", " "
	}

	switch x := v.(type) {
	case value.Null:
		sb.WriteString("null")
	case value.Bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case value.Number:
		sb.WriteString(formatNumber(float64(x)))
	case *value.String:
		sb.WriteString(jsonString(x.Text()))
	case value.Array:
		if x.Len() == 0 {
			sb.WriteString("[]")
			return nil
		}
		sb.WriteString("[" + nl)
		for i := 0; i < x.Len(); i++ {
			el, err := x.Get(i)
			if err != nil {
				return err
			}
			sb.WriteString(pad)
			if err := writeJSON(sb, in, add, el, depth+1, indent); err != nil {
				return err
			}
			if i < x.Len()-1 {
				sb.WriteString(",")
			}
			sb.WriteString(nl)
		}
		sb.WriteString(closePad + "]")
	case *value.Object:
		if err := x.RunAssertions(x); err != nil {
			return err
		}
		fields := x.VisibleFields(x)
		if len(fields) == 0 {
			sb.WriteString("{}")
			return nil
		}
		sb.WriteString("{" + nl)
		for i, id := range fields {
			fv, ok, err := value.ResolveFieldValue(x, id, x, add)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sb.WriteString(pad)
			sb.WriteString(jsonString(in.Lookup(id)))
			sb.WriteString(":" + sp)
			if err := writeJSON(sb, in, add, fv, depth+1, indent); err != nil {
				return err
			}
			if i < len(fields)-1 {
				sb.WriteString(",")
			}
			sb.WriteString(nl)
		}
		sb.WriteString(closePad + "}")
	case *value.Function:
		return fmt.Errorf("cannot manifest a function")
	default:
		return fmt.Errorf("cannot manifest value of kind %s", v.Kind())
	}
	return nil
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func jsonString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if r < 0x20 {
				sb.WriteString(fmt.Sprintf(`\u%04x`, r))
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// renderYAML implements the bit-compatible formatting rules of spec.md
// §4.6: strings needing quoting (empty, non-safe characters, or would parse
// as bool/null/number) are quoted; strings ending in \n use block scalar |;
// other multi-line strings use |-; empty arrays/objects render as []/{};
// QuoteAll forces quoting every scalar key and string value.
func renderYAML(sb *strings.Builder, in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value, depth int, opts ManifestOptions) error {
	pad := strings.Repeat(opts.Indent, depth)

	switch x := v.(type) {
	case value.Array:
		if x.Len() == 0 {
			sb.WriteString("[]\n")
			return nil
		}
		for i := 0; i < x.Len(); i++ {
			el, err := x.Get(i)
			if err != nil {
				return err
			}
			sb.WriteString(pad + "-")
			if err := renderYAMLInline(sb, in, add, el, depth+1, opts); err != nil {
				return err
			}
		}
	case *value.Object:
		if err := x.RunAssertions(x); err != nil {
			return err
		}
		fields := x.VisibleFields(x)
		if len(fields) == 0 {
			sb.WriteString("{}\n")
			return nil
		}
		for _, id := range fields {
			fv, ok, err := value.ResolveFieldValue(x, id, x, add)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sb.WriteString(pad + yamlKey(in.Lookup(id), opts) + ":")
			if err := renderYAMLInline(sb, in, add, fv, depth+1, opts); err != nil {
				return err
			}
		}
	default:
		sb.WriteString(pad)
		sb.WriteString(yamlScalar(v, opts))
		sb.WriteString("\n")
	}
	return nil
}

// renderYAMLInline appends the ": value" or "- value" continuation for a
// nested container (newline then indented block) or scalar (same line).
func renderYAMLInline(sb *strings.Builder, in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value, depth int, opts ManifestOptions) error {
	switch x := v.(type) {
	case value.Array:
		if x.Len() == 0 {
			sb.WriteString(" []\n")
			return nil
		}
		sb.WriteString("\n")
		return renderYAML(sb, in, add, v, depth-1, opts)
	case *value.Object:
		fields := x.VisibleFields(x)
		if len(fields) == 0 {
			sb.WriteString(" {}\n")
			return nil
		}
		sb.WriteString("\n")
		return renderYAML(sb, in, add, v, depth, opts)
	default:
		s := yamlScalar(v, opts)
		if strings.Contains(s, "\n") {
			sb.WriteString(" " + s)
		} else {
			sb.WriteString(" " + s + "\n")
		}
	}
	return nil
}

func yamlKey(k string, opts ManifestOptions) string {
	if opts.QuoteAll || needsYAMLQuote(k) {
		return jsonString(k)
	}
	return k
}

func yamlScalar(v value.Value, opts ManifestOptions) string {
	switch x := v.(type) {
	case value.Null:
		return "null"
	case value.Bool:
		if x {
			return "true"
		}
		return "false"
	case value.Number:
		return formatNumber(float64(x))
	case *value.String:
		s := x.Text()
		if strings.HasSuffix(s, "\n") {
			return blockScalar(s, "|")
		}
		if strings.Contains(s, "\n") {
			return blockScalar(s, "|-")
		}
		if opts.QuoteAll || needsYAMLQuote(s) {
			return jsonString(s)
		}
		return s
	default:
		return ""
	}
}

func blockScalar(s, marker string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var sb strings.Builder
	sb.WriteString(marker + "\n")
	for i, l := range lines {
		sb.WriteString("  " + l)
		if i < len(lines)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// needsYAMLQuote reports whether a plain scalar would be ambiguous as YAML
// (parses as bool/null/number, is empty, or has unsafe leading/embedded
// characters), per spec.md §4.6's bit-compatibility rule.
func needsYAMLQuote(s string) bool {
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "true", "false", "null", "~", "yes", "no", "on", "off":
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	if strings.ContainsRune("!&*-?|>%@`\"'#,[]{}:", rune(s[0])) {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	if strings.ContainsAny(s, ":#") {
		return true
	}
	return false
}
