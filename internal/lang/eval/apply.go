package eval

import (
	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/context"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// evalFunctionLit builds a *value.Function from a `function(params) body`
// literal, closing over ctx directly (no future context needed since a
// bare function literal can't mutually refer to sibling bindings the way a
// `local` group or object member list can).
func (e *Env) evalFunctionLit(node *ast.Function, ctx *context.Context) value.Value {
	fc := context.NewFutureContext()
	fc.IntoFuture(ctx)
	return e.makeFunction(0, node.Params, node.Body, fc)
}

// makeFunction builds a lambda *value.Function whose body closes over fc,
// a future context filled once the enclosing binding group (a `local`'s
// mutually-recursive binds, an object's field list, or a plain function
// literal) has been fully constructed. name is used only for diagnostics.
func (e *Env) makeFunction(name interner.ID, params *ast.Params, body ast.Node, fc *context.FutureContext) *value.Function {
	sig := make([]value.Param, len(params.Positional))
	for i, p := range params.Positional {
		sig[i] = value.Param{Name: p.Name, Required: p.Default == nil}
	}
	fn := &value.Function{Params: sig}
	if name != 0 {
		fn.Name = e.In.Lookup(name)
	}
	fn.Call = func(args []*value.Thunk) (value.Value, error) {
		callCtx, err := e.bindParams(body, params, args, fc.Get())
		if err != nil {
			return nil, err
		}
		return e.Eval(body, callCtx)
	}
	return fn
}

// bindParams extends baseCtx with one binding per parameter: positional
// args fill params left to right (by construction, evalApply has already
// resolved named args into this same positional order), and any trailing
// omitted parameters are bound to their lazily-evaluated default, itself
// evaluated in a context that already sees the earlier parameters (so
// `function(a, b=a+1)` works), per spec.md §4.5 step 3. anchor is used only
// to locate a missing-argument error, since ast.Param carries no span of
// its own.
func (e *Env) bindParams(anchor ast.Node, params *ast.Params, args []*value.Thunk, baseCtx *context.Context) (*context.Context, error) {
	ctx := baseCtx
	for i, p := range params.Positional {
		if i < len(args) && args[i] != nil {
			ctx = ctx.ExtendOne(p.Name, args[i])
			continue
		}
		if p.Default == nil {
			return nil, e.errf(anchor, "missing required argument %q", e.In.Lookup(p.Name))
		}
		defExpr := p.Default
		defCtx := ctx
		ctx = ctx.ExtendOne(p.Name, value.Lazy(func() (value.Value, error) { return e.Eval(defExpr, defCtx) }))
	}
	return ctx, nil
}

// evalApply implements function application per spec.md §4.5: compile the
// call shape, validate against the callee's signature, bind positionally
// then by name, and evaluate (forcing eagerly first under `tailstrict`).
func (e *Env) evalApply(node *ast.Apply, ctx *context.Context) (value.Value, error) {
	targetV, err := e.Eval(node.Target, ctx)
	if err != nil {
		return nil, err
	}
	fn, ok := targetV.(*value.Function)
	if !ok {
		return nil, e.errf(node, "cannot call a %s", value.Value(targetV).Kind())
	}

	bound, err := e.compileArgs(node, fn, ctx)
	if err != nil {
		return nil, err
	}

	if node.TailStrict {
		for i, th := range bound {
			if th == nil {
				continue
			}
			if _, err := th.Force(); err != nil {
				return nil, err
			}
			bound[i] = th
		}
	}

	pop, err := e.pushFrame()
	if err != nil {
		return nil, e.errf(node, "%s", err.Error())
	}
	defer pop()

	v, err := fn.Call(bound)
	if err != nil {
		if ee, ok := err.(*value.EvalError); ok {
			pos := e.Src.Locate(node.Span().Source, node.Span().Begin)
			return nil, ee.WithFrame(value.Frame{Loc: pos, Desc: "function call"})
		}
		return nil, err
	}
	return v, nil
}

// compileArgs resolves a call's positional and named arguments into a
// slice indexed by the callee's parameter position, catching each of the
// distinct error cases spec.md §4.5 calls out: too many positionals,
// unknown named, duplicate named, and (deferred to bindParams) missing
// required.
func (e *Env) compileArgs(node *ast.Apply, fn *value.Function, ctx *context.Context) ([]*value.Thunk, error) {
	bound := make([]*value.Thunk, len(fn.Params))
	positional := 0
	for _, arg := range node.Args {
		if !arg.HasName {
			if positional >= len(fn.Params) {
				return nil, e.errf(node, "too many positional arguments")
			}
			bound[positional] = e.Thunk(arg.Value, ctx)
			positional++
			continue
		}
		idx := -1
		for i, p := range fn.Params {
			if p.Name == arg.Name {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, e.errf(node, "unknown named argument %q", e.In.Lookup(arg.Name))
		}
		if bound[idx] != nil {
			return nil, e.errf(node, "duplicate argument %q", e.In.Lookup(arg.Name))
		}
		bound[idx] = e.Thunk(arg.Value, ctx)
	}
	return bound, nil
}
