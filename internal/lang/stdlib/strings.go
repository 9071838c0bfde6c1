package stdlib

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (b *Builder) installStrings(set func(string, *value.Function)) {
	in := b.in

	set("codepoint", builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("codepoint", 0, v)
		if err != nil {
			return nil, err
		}
		r, _ := utf8.DecodeRuneInString(s)
		return value.Number(r), nil
	}))

	set("char", builtin(in, []string{"n"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("char", 0, v)
		if err != nil {
			return nil, err
		}
		return value.NewString(string(rune(int(n)))), nil
	}))

	set("substr", builtin(in, []string{"str", "from", "len"}, func(args []*value.Thunk) (value.Value, error) {
		sv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("substr", 0, sv)
		if err != nil {
			return nil, err
		}
		fv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		from, err := asNumber("substr", 1, fv)
		if err != nil {
			return nil, err
		}
		lv, err := args[2].Force()
		if err != nil {
			return nil, err
		}
		length, err := asNumber("substr", 2, lv)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		f := int(from)
		l := int(length)
		if f < 0 {
			f = 0
		}
		if f > len(runes) {
			f = len(runes)
		}
		end := f + l
		if end > len(runes) {
			end = len(runes)
		}
		if end < f {
			end = f
		}
		return value.NewString(string(runes[f:end])), nil
	}))

	set("strReplace", builtin(in, []string{"str", "from", "to"}, func(args []*value.Thunk) (value.Value, error) {
		sv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("strReplace", 0, sv)
		if err != nil {
			return nil, err
		}
		fv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		from, err := asString("strReplace", 1, fv)
		if err != nil {
			return nil, err
		}
		tv, err := args[2].Force()
		if err != nil {
			return nil, err
		}
		to, err := asString("strReplace", 2, tv)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.ReplaceAll(s, from, to)), nil
	}))

	set("splitLimit", builtin(in, []string{"str", "sep", "maxSplits"}, func(args []*value.Thunk) (value.Value, error) {
		sv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("splitLimit", 0, sv)
		if err != nil {
			return nil, err
		}
		sepv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		sep, err := asString("splitLimit", 1, sepv)
		if err != nil {
			return nil, err
		}
		mv, err := args[2].Force()
		if err != nil {
			return nil, err
		}
		maxSplits, err := asNumber("splitLimit", 2, mv)
		if err != nil {
			return nil, err
		}
		n := int(maxSplits)
		var parts []string
		if n < 0 {
			parts = strings.Split(s, sep)
		} else {
			parts = strings.SplitN(s, sep, n+1)
		}
		elems := make([]*value.Thunk, len(parts))
		for i, p := range parts {
			elems[i] = value.Evaluated(value.NewString(p))
		}
		return &value.EagerArray{Elems: elems}, nil
	}))

	set("split", builtin(in, []string{"str", "sep"}, func(args []*value.Thunk) (value.Value, error) {
		sv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("split", 0, sv)
		if err != nil {
			return nil, err
		}
		sepv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		sep, err := asString("split", 1, sepv)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, sep)
		elems := make([]*value.Thunk, len(parts))
		for i, p := range parts {
			elems[i] = value.Evaluated(value.NewString(p))
		}
		return &value.EagerArray{Elems: elems}, nil
	}))

	set("findSubstr", builtin(in, []string{"pat", "str"}, func(args []*value.Thunk) (value.Value, error) {
		pv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		pat, err := asString("findSubstr", 0, pv)
		if err != nil {
			return nil, err
		}
		sv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("findSubstr", 1, sv)
		if err != nil {
			return nil, err
		}
		var out []*value.Thunk
		if pat != "" {
			start := 0
			for {
				idx := strings.Index(s[start:], pat)
				if idx < 0 {
					break
				}
				pos := start + idx
				out = append(out, value.Evaluated(value.Number(utf8.RuneCountInString(s[:pos]))))
				start = pos + len(pat)
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	predicate := func(name string, fn func(s, prefix string) bool) {
		set(name, builtin(in, []string{"a", "b"}, func(args []*value.Thunk) (value.Value, error) {
			av, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			a, err := asString(name, 0, av)
			if err != nil {
				return nil, err
			}
			bv, err := args[1].Force()
			if err != nil {
				return nil, err
			}
			bs, err := asString(name, 1, bv)
			if err != nil {
				return nil, err
			}
			return value.Bool(fn(a, bs)), nil
		}))
	}
	predicate("startsWith", strings.HasPrefix)
	predicate("endsWith", strings.HasSuffix)

	caseFn := func(name string, fn func(string) string) {
		set(name, builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
			v, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			s, err := asString(name, 0, v)
			if err != nil {
				return nil, err
			}
			return value.NewString(fn(s)), nil
		}))
	}
	caseFn("asciiUpper", strings.ToUpper)
	caseFn("asciiLower", strings.ToLower)

	set("format", builtin(in, []string{"str", "vals"}, func(args []*value.Thunk) (value.Value, error) {
		fv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		format, err := asString("format", 0, fv)
		if err != nil {
			return nil, err
		}
		av, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		out, err := sprintf(in, b.opts.Add, format, av)
		if err != nil {
			return nil, err
		}
		return value.NewString(out), nil
	}))

	parseFn := func(name string, base int) {
		set(name, builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
			v, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			s, err := asString(name, 0, v)
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(s, base, 64)
			if err != nil {
				return nil, fmt.Errorf("std.%s: %w", name, err)
			}
			return value.Number(n), nil
		}))
	}
	parseFn("parseInt", 10)
	parseFn("parseHex", 16)
	parseFn("parseOctal", 8)
}

// sprintf implements spec.md §4.6's printf-style substitution, shared by
// `str % args` and std.format: %s %d %o %x %X %e %f %g %c %%, plus flags
// `#` `0` `-` `+` ` `, width and `.precision`.
func sprintf(in *interner.Interner, add func(a, b value.Value) (value.Value, error), format string, args value.Value) (string, error) {
	vals, single := flattenFormatArgs(args)

	var out strings.Builder
	ai := 0
	next := func() (value.Value, error) {
		if single {
			if ai > 0 {
				return nil, fmt.Errorf("std.format: not enough arguments for format string")
			}
			ai++
			return args, nil
		}
		if ai >= len(vals) {
			return nil, fmt.Errorf("std.format: not enough arguments for format string")
		}
		v := vals[ai]
		ai++
		return v, nil
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("std.format: trailing %%")
		}
		if format[i] == '%' {
			out.WriteByte('%')
			i++
			continue
		}

		start := i
		for i < len(format) && strings.ContainsRune("#0- +", rune(format[i])) {
			i++
		}
		flags := format[start:i]

		widthStart := i
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		width := format[widthStart:i]

		precision := ""
		hasPrecision := false
		if i < len(format) && format[i] == '.' {
			hasPrecision = true
			i++
			precStart := i
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
			precision = format[precStart:i]
		}

		if i >= len(format) {
			return "", fmt.Errorf("std.format: missing conversion verb")
		}
		verb := format[i]
		i++

		v, err := next()
		if err != nil {
			return "", err
		}

		goVerb, err := formatOne(in, add, flags, width, precision, hasPrecision, verb, v)
		if err != nil {
			return "", err
		}
		out.WriteString(goVerb)
	}
	return out.String(), nil
}

func flattenFormatArgs(args value.Value) ([]value.Value, bool) {
	if arr, ok := args.(value.Array); ok {
		vs := make([]value.Value, arr.Len())
		for i := range vs {
			vs[i], _ = arr.Get(i)
		}
		return vs, false
	}
	return nil, true
}

func formatOne(in *interner.Interner, add func(a, b value.Value) (value.Value, error), flags, width, precision string, hasPrecision bool, verb byte, v value.Value) (string, error) {
	spec := "%" + flags + width
	if hasPrecision {
		spec += "." + precision
	}

	switch verb {
	case 's':
		return fmt.Sprintf(spec+"s", displayValue(in, add, v)), nil
	case 'd', 'i':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"d", int64(n)), nil
	case 'o':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"o", int64(n)), nil
	case 'x':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"x", int64(n)), nil
	case 'X':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"X", int64(n)), nil
	case 'e':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"e", n), nil
	case 'f':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"f", n), nil
	case 'g':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(spec+"g", n), nil
	case 'c':
		n, err := asNumber("format", 0, v)
		if err != nil {
			return "", err
		}
		return string(rune(int(n))), nil
	default:
		return "", fmt.Errorf("std.format: unknown verb %%%c", verb)
	}
}

// displayValue renders v the way `%s` substitution expects: strings pass
// through verbatim, everything else renders as its manifest form.
func displayValue(in *interner.Interner, add func(a, b value.Value) (value.Value, error), v value.Value) string {
	switch x := v.(type) {
	case *value.String:
		return x.Text()
	case value.Number:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case value.Bool:
		if x {
			return "true"
		}
		return "false"
	case value.Null:
		return "null"
	default:
		s, err := manifestJSONCompact(in, add, v)
		if err != nil {
			return ""
		}
		return s
	}
}
