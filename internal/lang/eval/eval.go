// Package eval reduces a parsed AST to a value.Value under a context,
// enforcing field laziness, object-merge semantics, and the stack-depth
// discipline described by spec.md §4.5.
package eval

import (
	"fmt"
	"math"

	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/context"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/source"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// Importer resolves import/importstr/importbin paths. internal/lang/importer
// implements it; kept as an interface here so eval never imports the
// filesystem-facing package directly (mirrors how stdlib's extVar/native/
// trace hooks are injected rather than imported).
type Importer interface {
	// Resolve finds the source for path relative to "from" and returns its
	// registered id and full text, parsing/caching being the caller's job.
	Resolve(from source.ID, path string) (source.ID, string, error)
	// ResolveBinary is like Resolve but for importbin, returning raw bytes.
	ResolveBinary(from source.ID, path string) ([]byte, error)
}

// StdFactory builds the std object bound into a source's default context,
// with thisFile set to that source's display path (spec.md §4.6).
type StdFactory func(thisFile string) *value.Object

// Env bundles everything evaluation needs beyond the expression and context
// being reduced: the shared interner/source registry, the import resolver,
// the std object factory, and run-wide limits.
type Env struct {
	In       *interner.Interner
	Src      *source.Registry
	Importer Importer
	Std      StdFactory

	// Format implements the printf-style substitution behind both the `%`
	// binary operator on strings and std.format; injected from
	// internal/lang/stdlib at construction time so eval never imports it
	// directly (stdlib already depends on value, not eval).
	Format func(format string, args value.Value) (string, error)

	// MaxDepth bounds the nesting depth of function calls (default 500, per
	// spec.md); object assertions and other evaluation steps do not count
	// toward it.
	MaxDepth int

	depth int

	// codeCache memoizes the evaluated value of an `import`ed source by id,
	// per spec.md §4.5 ("evaluate and cache the value per resolved source
	// id"); importstr text is cached by the importer by resolved path, and
	// importbin bytes are read from disk on every import.
	codeCache map[source.ID]*value.Thunk
}

func NewEnv(in *interner.Interner, src *source.Registry, imp Importer, std StdFactory) *Env {
	return &Env{
		In: in, Src: src, Importer: imp, Std: std,
		MaxDepth:  500,
		codeCache: make(map[source.ID]*value.Thunk),
	}
}

// Error is an alias of value.EvalError, not a separate type: errors raised
// in eval already carry their location as the first Frame of the trace, and
// callers match them as *value.EvalError.
type Error = value.EvalError

func (e *Env) errf(n ast.Node, format string, args ...interface{}) error {
	pos := e.Src.Locate(n.Span().Source, n.Span().Begin)
	return &value.EvalError{
		Message: fmt.Sprintf(format, args...),
		Trace:   []value.Frame{{Loc: pos, Desc: ""}},
	}
}

// pushFrame increments the depth counter, returning an error if it would
// exceed MaxDepth, and a pop function the caller must defer.
func (e *Env) pushFrame() (func(), error) {
	if e.depth >= e.MaxDepth {
		return func() {}, value.ErrStackOverflow
	}
	e.depth++
	return func() { e.depth-- }, nil
}

// EvalSource evaluates a fully parsed source file in its own root context,
// with std bound per spec.md §4.6 ("each source's default context binds
// std to the base stdlib with a thisFile field"). This is the entry point
// used both by the top-level CLI driver and, indirectly, by evalCodeImport
// for imported files.
func (e *Env) EvalSource(tree ast.Node, srcID source.ID) (value.Value, error) {
	std := e.Std(e.Src.Path(srcID))
	rootCtx := context.Root().ExtendOne(e.In.Intern("std"), value.Evaluated(std))
	return e.Eval(tree, rootCtx)
}

// Eval reduces node to a value under ctx. It is the single recursive entry
// point used by every node kind, by object field binders, and by stdlib
// callbacks that need to force user-supplied functions indirectly through
// arguments already bound as thunks (stdlib itself never calls Eval; it
// only forces thunks it's handed).
func (e *Env) Eval(n ast.Node, ctx *context.Context) (value.Value, error) {
	switch node := n.(type) {
	case *ast.Null:
		return value.Null{}, nil
	case *ast.True:
		return value.Bool(true), nil
	case *ast.False:
		return value.Bool(false), nil
	case *ast.Number:
		return value.Number(node.Value), nil
	case *ast.String:
		return value.NewString(node.Value), nil
	case *ast.Dollar:
		d, ok := ctx.Dollar()
		if !ok {
			return nil, e.errf(n, "'$' used outside any object")
		}
		return d, nil
	case *ast.Self:
		_, this, ok := ctx.SupThis()
		if !ok {
			return nil, e.errf(n, "'self' used outside any object")
		}
		return this, nil
	case *ast.Super:
		sup, _, ok := ctx.SupThis()
		if !ok || sup == nil {
			return nil, e.errf(n, "'super' used without a base object")
		}
		return sup, nil
	case *ast.Var:
		th, err := ctx.Lookup(e.In, node.Name)
		if err != nil {
			return nil, e.wrapLookup(n, err)
		}
		return th.Force()
	case *ast.Array:
		return e.evalArray(node, ctx), nil
	case *ast.ArrayComp:
		return e.evalArrayComp(node, ctx)
	case *ast.Object:
		return e.evalObject(node, ctx)
	case *ast.ObjectComp:
		return e.evalObjectComp(node, ctx)
	case *ast.Index:
		return e.evalIndex(node, ctx)
	case *ast.FieldAccess:
		return e.evalFieldAccess(node, ctx)
	case *ast.Slice:
		return e.evalSlice(node, ctx)
	case *ast.Function:
		return e.evalFunctionLit(node, ctx), nil
	case *ast.Apply:
		return e.evalApply(node, ctx)
	case *ast.Unary:
		return e.evalUnary(node, ctx)
	case *ast.Binary:
		return e.evalBinary(node, ctx)
	case *ast.If:
		return e.evalIf(node, ctx)
	case *ast.Local:
		return e.evalLocal(node, ctx)
	case *ast.AssertExpr:
		return e.evalAssertExpr(node, ctx)
	case *ast.ErrorExpr:
		return e.evalErrorExpr(node, ctx)
	case *ast.Import:
		return e.evalImport(node, ctx)
	}
	return nil, e.errf(n, "internal error: unhandled node %T", n)
}

func (e *Env) wrapLookup(n ast.Node, err error) error {
	return e.errf(n, "%s", err.Error())
}

// Thunk wraps n/ctx as a lazy value.Thunk, for contexts that need an
// unevaluated handle (array elements, local bindings, call arguments).
func (e *Env) Thunk(n ast.Node, ctx *context.Context) *value.Thunk {
	return value.Lazy(func() (value.Value, error) { return e.Eval(n, ctx) })
}

func (e *Env) evalArray(node *ast.Array, ctx *context.Context) value.Value {
	elems := make([]*value.Thunk, len(node.Elements))
	for i, el := range node.Elements {
		elems[i] = e.Thunk(el, ctx)
	}
	return &value.EagerArray{Elems: elems}
}

func (e *Env) evalIf(node *ast.If, ctx *context.Context) (value.Value, error) {
	cond, err := e.Eval(node.Cond, ctx)
	if err != nil {
		return nil, err
	}
	b, ok := cond.(value.Bool)
	if !ok {
		return nil, e.errf(node, "condition must be boolean, got %s", value.Value(cond).Kind())
	}
	if bool(b) {
		return e.Eval(node.Then, ctx)
	}
	if node.Else == nil {
		return value.Null{}, nil
	}
	return e.Eval(node.Else, ctx)
}

func (e *Env) evalLocal(node *ast.Local, ctx *context.Context) (value.Value, error) {
	newCtx := e.bindLocals(node.Binds, ctx)
	return e.Eval(node.Body, newCtx)
}

// bindLocals builds a context extended with one thunk per bind, using a
// future context so the binds may reference each other (and `self`/`super`
// if nested in an object), per spec.md §3.4.
func (e *Env) bindLocals(binds []ast.LocalBind, ctx *context.Context) *context.Context {
	fc := context.NewFutureContext()
	names := make([]interner.ID, len(binds))
	thunks := make([]*value.Thunk, len(binds))
	for i, b := range binds {
		b := b
		names[i] = b.Name
		if b.Params != nil {
			thunks[i] = value.Evaluated(e.makeFunction(b.Name, b.Params, b.Value, fc))
		} else {
			thunks[i] = value.Lazy(func() (value.Value, error) { return e.Eval(b.Value, fc.Get()) })
		}
	}
	newCtx := ctx.Extend(names, thunks)
	fc.IntoFuture(newCtx)
	return newCtx
}

func (e *Env) evalAssertExpr(node *ast.AssertExpr, ctx *context.Context) (value.Value, error) {
	if err := e.runAssert(node.Assert, ctx); err != nil {
		return nil, err
	}
	return e.Eval(node.Body, ctx)
}

func (e *Env) runAssert(a ast.Assert, ctx *context.Context) error {
	v, err := e.Eval(a.Cond, ctx)
	if err != nil {
		return err
	}
	b, ok := v.(value.Bool)
	if !ok {
		return e.errf(a.Cond, "assert condition must be boolean, got %s", value.Value(v).Kind())
	}
	if bool(b) {
		return nil
	}
	if a.Msg == nil {
		return e.errf(a.Cond, "assertion failed")
	}
	msgV, err := e.Eval(a.Msg, ctx)
	if err != nil {
		return err
	}
	return e.errf(a.Cond, "assertion failed: %s", displayString(msgV))
}

func (e *Env) evalErrorExpr(node *ast.ErrorExpr, ctx *context.Context) (value.Value, error) {
	v, err := e.Eval(node.Expr, ctx)
	if err != nil {
		return nil, err
	}
	return nil, e.errf(node, "%s", displayString(v))
}

// displayString renders a value as a user-facing message for assert/error:
// strings pass through verbatim, everything else uses a short description.
func displayString(v value.Value) string {
	switch s := v.(type) {
	case *value.String:
		return s.Text()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (e *Env) evalFieldAccess(node *ast.FieldAccess, ctx *context.Context) (value.Value, error) {
	target, err := e.Eval(node.Target, ctx)
	if err != nil {
		return nil, err
	}
	obj, ok := target.(*value.Object)
	if !ok {
		return nil, e.errf(node, "field access on non-object (%s)", value.Value(target).Kind())
	}
	return e.lookupField(node, obj, node.Name)
}

func (e *Env) lookupField(n ast.Node, obj *value.Object, name interner.ID) (value.Value, error) {
	if err := obj.RunAssertions(obj); err != nil {
		return nil, err
	}
	return e.resolveFieldValue(n, obj, name, obj)
}

func (e *Env) evalIndex(node *ast.Index, ctx *context.Context) (value.Value, error) {
	target, err := e.Eval(node.Target, ctx)
	if err != nil {
		return nil, err
	}
	idxV, err := e.Eval(node.Index, ctx)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case value.Array:
		num, ok := idxV.(value.Number)
		if !ok {
			return nil, e.errf(node, "array index must be a number")
		}
		i := int(num)
		if i < 0 || i >= t.Len() {
			return nil, e.errf(node, "array index %d out of bounds [0, %d)", i, t.Len())
		}
		return t.Get(i)
	case *value.Object:
		s, ok := idxV.(*value.String)
		if !ok {
			return nil, e.errf(node, "object index must be a string")
		}
		return e.lookupField(node, t, e.In.Intern(s.Text()))
	case *value.String:
		num, ok := idxV.(value.Number)
		if !ok {
			return nil, e.errf(node, "string index must be a number")
		}
		runes := []rune(t.Text())
		i := int(num)
		if i < 0 || i >= len(runes) {
			return nil, e.errf(node, "string index %d out of bounds", i)
		}
		return value.NewString(string(runes[i])), nil
	}
	return nil, e.errf(node, "cannot index a %s", value.Value(target).Kind())
}

func (e *Env) evalSlice(node *ast.Slice, ctx *context.Context) (value.Value, error) {
	target, err := e.Eval(node.Target, ctx)
	if err != nil {
		return nil, err
	}
	arr, ok := target.(value.Array)
	if !ok {
		return nil, e.errf(node, "slice target must be an array, got %s", value.Value(target).Kind())
	}
	n := arr.Len()
	step := 1
	if node.Step != nil {
		sv, err := e.evalInt(node.Step, ctx)
		if err != nil {
			return nil, err
		}
		if sv == 0 {
			return nil, e.errf(node, "slice step must not be zero")
		}
		step = sv
	}
	from := 0
	if step < 0 {
		from = n - 1
	}
	if node.From != nil {
		from, err = e.evalInt(node.From, ctx)
		if err != nil {
			return nil, err
		}
	}
	to := n
	if step < 0 {
		to = -1
	}
	if node.To != nil {
		to, err = e.evalInt(node.To, ctx)
		if err != nil {
			return nil, err
		}
	}
	return &value.SliceArray{Base: arr, From: clampIndex(from, n), To: clampIndex(to, n), Step: step}, nil
}

func clampIndex(i, n int) int {
	if i < -1 {
		i = -1
	}
	if i > n {
		i = n
	}
	return i
}

func (e *Env) evalInt(n ast.Node, ctx *context.Context) (int, error) {
	v, err := e.Eval(n, ctx)
	if err != nil {
		return 0, err
	}
	num, ok := v.(value.Number)
	if !ok {
		return 0, e.errf(n, "expected a number, got %s", value.Value(v).Kind())
	}
	if math.Trunc(float64(num)) != float64(num) {
		return 0, e.errf(n, "expected an integer, got %v", float64(num))
	}
	return int(num), nil
}
