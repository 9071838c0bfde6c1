package eval

import (
	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/context"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// evalObject builds a *value.Object from a plain object literal. Each field
// becomes an Unbound binding wrapped in a CachedUnbound closure capturing
// ctx.WithSupThis(sup, this), per spec.md §4.5 and §3.3. The object's own
// `local` binds share a future context so they can reference `self`; the
// future is filled with a context whose dollar/sup-this is the object being
// built, once that object exists.
func (e *Env) evalObject(node *ast.Object, ctx *context.Context) (value.Value, error) {
	obj := value.NewObject()
	fc := context.NewFutureContext()

	baseCtx := ctx.WithThis(obj).WithDollar(obj)
	if len(node.Locals) > 0 {
		names := make([]interner.ID, len(node.Locals))
		thunks := make([]*value.Thunk, len(node.Locals))
		for i, b := range node.Locals {
			b := b
			names[i] = b.Name
			if b.Params != nil {
				thunks[i] = value.Evaluated(e.makeFunction(b.Name, b.Params, b.Value, fc))
			} else {
				thunks[i] = value.Lazy(func() (value.Value, error) { return e.Eval(b.Value, fc.Get()) })
			}
		}
		baseCtx = baseCtx.Extend(names, thunks)
	}
	fc.IntoFuture(baseCtx)

	for _, a := range node.Asserts {
		a := a
		obj.Asserts = append(obj.Asserts, func(this *value.Object) error {
			return e.runAssert(a, fc.Get())
		})
	}

	for _, field := range node.Fields {
		if err := e.addField(obj, field, fc); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// addField installs one field definition onto obj as a CachedUnbound
// binding. Dynamic (`[expr]:`) names are evaluated once against the
// object's own future context; a null name drops the field entirely, per
// spec.md §4.5 ("null drops the field").
func (e *Env) addField(obj *value.Object, field ast.Field, fc *context.FutureContext) error {
	vis := convertVisibility(field.Visibility)

	valueExpr := field.Value
	params := field.Params
	binder := func(sup, this *value.Object) (value.Value, error) {
		ctx := fc.Get().WithSupThis(sup, this)
		if params != nil {
			return e.makeFunction(0, params, valueExpr, fieldCtxFuture(ctx)), nil
		}
		return e.Eval(valueExpr, ctx)
	}

	if field.HasName {
		obj.SetField(field.NameID, value.Field{
			Visibility: vis, Plus: field.Plus,
			Unbound: value.NewCachedUnbound(binder),
		})
		return nil
	}

	nameV, err := e.Eval(field.NameExpr, fc.Get())
	if err != nil {
		return err
	}
	switch n := nameV.(type) {
	case value.Null:
		return nil
	case *value.String:
		obj.SetField(e.In.Intern(n.Text()), value.Field{
			Visibility: vis, Plus: field.Plus,
			Unbound: value.NewCachedUnbound(binder),
		})
		return nil
	default:
		return e.errf(field.NameExpr, "field name must be a string, got %s", value.Value(nameV).Kind())
	}
}

func convertVisibility(v ast.FieldVisibility) value.Visibility {
	switch v {
	case ast.VisHidden:
		return value.VisHidden
	case ast.VisUnhide:
		return value.VisUnhide
	default:
		return value.VisNormal
	}
}

// fieldCtxFuture wraps an already-resolved context as a FutureContext so
// makeFunction (which always takes a future, for mutual-recursion support
// in `local` groups) can be reused for method-sugar fields too.
func fieldCtxFuture(ctx *context.Context) *context.FutureContext {
	fc := context.NewFutureContext()
	fc.IntoFuture(ctx)
	return fc
}

// Merge implements `A + B` on two objects per spec.md §3.5: the result's
// field list is B's, its super chain is B's own chain with A pushed at the
// bottom ("B-with-A-pushed-at-the-bottom"). Every layer of B's existing
// chain is cloned rather than mutated, since each already has field
// binders (and a CachedUnbound cache) keyed by its own identity.
func Merge(a, b *value.Object) *value.Object {
	return rebase(b, a)
}

func rebase(obj, newBase *value.Object) *value.Object {
	clone := &value.Object{Fields: obj.Fields, Order: obj.Order, Asserts: obj.Asserts}
	if obj.Super == nil {
		clone.Super = newBase
	} else {
		clone.Super = rebase(obj.Super, newBase)
	}
	return clone
}

// resolveFieldValue finds name on root's merge chain and returns its value
// with effective this, combining additive (`+:`) fields with the next
// layer's definition of the same name per spec.md §3.5: if the field
// found is additive and the layer below (sup) also defines name, the
// result is (sup's value) + (this layer's value), recursively — a chain of
// three or more merges with `+:` at every layer folds right-to-left.
func (e *Env) resolveFieldValue(n ast.Node, root *value.Object, name interner.ID, this *value.Object) (value.Value, error) {
	_, _, ok := root.ResolveChain(name)
	if !ok {
		return nil, e.errf(n, "object has no field %q", e.In.Lookup(name))
	}
	v, _, err := value.ResolveFieldValue(root, name, this, Add)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// evalArrayComp evaluates `[body for x in arr if cond ...]`: the clause chain
// is walked once, eagerly, and each surviving binding contributes a thunk of
// body that is evaluated only when that element is forced.
func (e *Env) evalArrayComp(node *ast.ArrayComp, ctx *context.Context) (value.Value, error) {
	var elems []*value.Thunk
	err := e.runCompClauses(node.Clauses, 0, ctx, func(c *context.Context) error {
		elems = append(elems, e.Thunk(node.Body, c))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &value.EagerArray{Elems: elems}, nil
}

// runCompClauses recursively expands the `for`/`if` clause chain starting
// at index i, invoking emit once per surviving binding of the loop
// variables with a context extended by all of them.
func (e *Env) runCompClauses(clauses []ast.CompClause, i int, ctx *context.Context, emit func(*context.Context) error) error {
	if i >= len(clauses) {
		return emit(ctx)
	}
	cl := clauses[i]
	if cl.If != nil {
		v, err := e.Eval(cl.If.Expr, ctx)
		if err != nil {
			return err
		}
		b, ok := v.(value.Bool)
		if !ok {
			return e.errf(cl.If.Expr, "comprehension if must be boolean, got %s", value.Value(v).Kind())
		}
		if !bool(b) {
			return nil
		}
		return e.runCompClauses(clauses, i+1, ctx, emit)
	}
	arrV, err := e.Eval(cl.For.Expr, ctx)
	if err != nil {
		return err
	}
	arr, ok := arrV.(value.Array)
	if !ok {
		return e.errf(cl.For.Expr, "comprehension source must be an array, got %s", value.Value(arrV).Kind())
	}
	for idx := 0; idx < arr.Len(); idx++ {
		loopCtx := ctx.ExtendOne(cl.For.Var, arr.GetLazy(idx))
		if err := e.runCompClauses(clauses, i+1, loopCtx, emit); err != nil {
			return err
		}
	}
	return nil
}

// evalObjectComp evaluates `{[k]: v for x in arr if cond}`: each surviving
// binding contributes one field whose name is computed eagerly (names must
// be known to detect duplicates and build Order) but whose value stays lazy.
func (e *Env) evalObjectComp(node *ast.ObjectComp, ctx *context.Context) (value.Value, error) {
	obj := value.NewObject()
	baseCtx := ctx.WithThis(obj).WithDollar(obj)
	if len(node.Locals) > 0 {
		fc := context.NewFutureContext()
		names := make([]interner.ID, len(node.Locals))
		thunks := make([]*value.Thunk, len(node.Locals))
		for i, b := range node.Locals {
			b := b
			names[i] = b.Name
			thunks[i] = value.Lazy(func() (value.Value, error) { return e.Eval(b.Value, fc.Get()) })
		}
		baseCtx = baseCtx.Extend(names, thunks)
		fc.IntoFuture(baseCtx)
	}

	err := e.runCompClauses(node.Clauses, 0, baseCtx, func(c *context.Context) error {
		keyV, err := e.Eval(node.KeyExpr, c)
		if err != nil {
			return err
		}
		keyS, ok := keyV.(*value.String)
		if !ok {
			if _, isNull := keyV.(value.Null); isNull {
				return nil
			}
			return e.errf(node.KeyExpr, "object comprehension key must be a string, got %s", value.Value(keyV).Kind())
		}
		name := e.In.Intern(keyS.Text())
		if _, dup := obj.Fields[name]; dup {
			return e.errf(node.KeyExpr, "duplicate field name %q in object comprehension", keyS.Text())
		}
		c := c
		valExpr := node.ValExpr
		obj.SetField(name, value.Field{
			Bound: value.Lazy(func() (value.Value, error) { return e.Eval(valExpr, c) }),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
