// Package stdlib builds the std object bound into every source's default
// context, per spec.md §4.6. It depends only on internal/lang/value (never
// on eval), and supplies eval's injection points (StdFactory, Format) so
// eval in turn never imports stdlib directly.
package stdlib

import (
	"fmt"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// ExtVar is one entry of the process-wide external-variable table read by
// std.extVar, per spec.md §4.6. Code is jsonnet-style: with IsCode set,
// Value is a config-language expression rather than a plain string, and it
// is evaluated through Options.EvalCode on each std.extVar call.
type ExtVar struct {
	IsCode bool
	Value  string
}

// Options bundles the process-wide inputs a single evaluator run supplies to
// every std object it builds: external variables, host-registered natives
// and the std.trace sink. Supplied once at construction time (spec.md §9:
// "external mutable state lives in a per-evaluator handle").
type Options struct {
	ExtVars map[string]ExtVar
	Natives map[string]*value.Function
	Trace   func(msg string)
	// EvalCode evaluates a jsonnet-style extVar whose IsCode is true. It is
	// supplied by the caller (which owns an eval.Env) since stdlib cannot
	// import eval without a cycle.
	EvalCode func(code string) (value.Value, error)
	// Add implements the `+` operator on two values, used by manifest
	// rendering (std.manifestJsonEx/manifestYamlDoc, std.format's %s) to
	// read a field's additive-merge-combined value across `+:` layers
	// rather than just the top layer's own binder. Supplied by the caller
	// for the same reason as EvalCode: stdlib doesn't import eval.
	Add func(a, b value.Value) (value.Value, error)
}

// Builder constructs fresh std objects bound to one interner, honoring opts.
type Builder struct {
	in   *interner.Interner
	opts Options
}

func New(in *interner.Interner, opts Options) *Builder {
	return &Builder{in: in, opts: opts}
}

// Factory returns a value usable as eval.Env's StdFactory field.
func (b *Builder) Factory() func(thisFile string) *value.Object {
	return b.Build
}

// Build constructs the std object for one source file, with thisFile set to
// its display path per spec.md §4.6.
func (b *Builder) Build(thisFile string) *value.Object {
	obj := value.NewObject()
	set := func(name string, fn *value.Function) {
		fn.Name = name
		obj.SetField(b.in.Intern(name), value.Field{Bound: value.Evaluated(fn)})
	}
	setVal := func(name string, v value.Value) {
		obj.SetField(b.in.Intern(name), value.Field{Bound: value.Evaluated(v)})
	}

	setVal("thisFile", value.NewString(thisFile))

	b.installIntrospection(set)
	b.installArrays(set)
	b.installMath(set)
	b.installStrings(set)
	b.installHash(set)
	b.installObjects(set)
	b.installManifest(set)
	b.installRegex(set)
	b.installProcess(set, thisFile)

	return obj
}

// Format implements the printf-style substitution shared by std.format and
// the `%` binary operator on strings (injected as eval.Env.Format).
func (b *Builder) Format(format string, args value.Value) (string, error) {
	return sprintf(b.in, b.opts.Add, format, args)
}

// builtin is a small helper for defining a *value.Function with positional,
// all-required parameters named for diagnostics only (std functions are
// normally called positionally).
func builtin(in *interner.Interner, names []string, fn value.NativeFunc) *value.Function {
	params := make([]value.Param, len(names))
	for i, n := range names {
		params[i] = value.Param{Name: in.Intern(n), Required: true}
	}
	return &value.Function{Params: params, Call: fn}
}

func argError(fn string, i int, want string, got value.Value) error {
	return fmt.Errorf("std.%s: argument %d must be %s, got %s", fn, i, want, got.Kind())
}

func forceAll(args []*value.Thunk) ([]value.Value, error) {
	out := make([]value.Value, len(args))
	for i, a := range args {
		if a == nil {
			out[i] = value.Null{}
			continue
		}
		v, err := a.Force()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func asNumber(fn string, i int, v value.Value) (float64, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, argError(fn, i, "a number", v)
	}
	return float64(n), nil
}

func asString(fn string, i int, v value.Value) (string, error) {
	s, ok := v.(*value.String)
	if !ok {
		return "", argError(fn, i, "a string", v)
	}
	return s.Text(), nil
}

func asBool(fn string, i int, v value.Value) (bool, error) {
	bl, ok := v.(value.Bool)
	if !ok {
		return false, argError(fn, i, "a boolean", v)
	}
	return bool(bl), nil
}

func asArray(fn string, i int, v value.Value) (value.Array, error) {
	a, ok := v.(value.Array)
	if !ok {
		return nil, argError(fn, i, "an array", v)
	}
	return a, nil
}

func asObject(fn string, i int, v value.Value) (*value.Object, error) {
	o, ok := v.(*value.Object)
	if !ok {
		return nil, argError(fn, i, "an object", v)
	}
	return o, nil
}

func asFunction(fn string, i int, v value.Value) (*value.Function, error) {
	f, ok := v.(*value.Function)
	if !ok {
		return nil, argError(fn, i, "a function", v)
	}
	return f, nil
}

// materialize forces every element of an array into a plain Go slice,
// needed by builtins that sort or otherwise need random access to all
// elements at once (std.sort, std.uniq).
func materialize(a value.Array) ([]value.Value, error) {
	out := make([]value.Value, a.Len())
	for i := range out {
		v, err := a.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toThunks(vs []value.Value) []*value.Thunk {
	out := make([]*value.Thunk, len(vs))
	for i, v := range vs {
		out[i] = value.Evaluated(v)
	}
	return out
}

// defaultCompare orders two values the way std.sort's default keyF=id does:
// numbers and strings compare natively, and any two values of another kind
// compare equal, so a stable sort keeps them in input order (mixed-kind
// arrays are not a case spec.md requires ordering for).
func defaultCompare(a, b value.Value) int {
	switch av := a.(type) {
	case value.Number:
		bv := b.(value.Number)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case *value.String:
		bv := b.(*value.String)
		return compareStrings(av.Text(), bv.Text())
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
