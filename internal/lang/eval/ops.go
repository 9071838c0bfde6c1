package eval

import (
	"fmt"
	"math"

	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/context"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (e *Env) evalUnary(node *ast.Unary, ctx *context.Context) (value.Value, error) {
	v, err := e.Eval(node.Expr, ctx)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case ast.UnaryPlus:
		n, ok := v.(value.Number)
		if !ok {
			return nil, e.errf(node, "unary + requires a number, got %s", value.Value(v).Kind())
		}
		return n, nil
	case ast.UnaryMinus:
		n, ok := v.(value.Number)
		if !ok {
			return nil, e.errf(node, "unary - requires a number, got %s", value.Value(v).Kind())
		}
		return -n, nil
	case ast.UnaryNot:
		b, ok := v.(value.Bool)
		if !ok {
			return nil, e.errf(node, "! requires a boolean, got %s", value.Value(v).Kind())
		}
		return !b, nil
	case ast.UnaryBitNot:
		n, ok := v.(value.Number)
		if !ok {
			return nil, e.errf(node, "~ requires a number, got %s", value.Value(v).Kind())
		}
		return value.Number(^toInt64(float64(n))), nil
	}
	return nil, e.errf(node, "internal error: unhandled unary op")
}

func toInt64(f float64) int64 { return int64(f) }

func (e *Env) evalBinary(node *ast.Binary, ctx *context.Context) (value.Value, error) {
	// `&&`/`||` short-circuit, so both sides can't be eagerly evaluated.
	if node.Op == ast.OpAnd || node.Op == ast.OpOr {
		left, err := e.Eval(node.Left, ctx)
		if err != nil {
			return nil, err
		}
		lb, ok := left.(value.Bool)
		if !ok {
			return nil, e.errf(node, "boolean operator requires a boolean, got %s", value.Value(left).Kind())
		}
		if node.Op == ast.OpAnd && !bool(lb) {
			return value.Bool(false), nil
		}
		if node.Op == ast.OpOr && bool(lb) {
			return value.Bool(true), nil
		}
		right, err := e.Eval(node.Right, ctx)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(value.Bool)
		if !ok {
			return nil, e.errf(node, "boolean operator requires a boolean, got %s", value.Value(right).Kind())
		}
		return rb, nil
	}

	left, err := e.Eval(node.Left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := e.Eval(node.Right, ctx)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case ast.OpAdd:
		v, err := Add(left, right)
		if err != nil {
			return nil, e.errf(node, "%s", err.Error())
		}
		return v, nil
	case ast.OpEq:
		return value.Bool(DeepEqual(left, right)), nil
	case ast.OpNeq:
		return value.Bool(!DeepEqual(left, right)), nil
	case ast.OpIn:
		obj, ok := right.(*value.Object)
		if !ok {
			return nil, e.errf(node, "'in' requires an object on the right, got %s", value.Value(right).Kind())
		}
		s, ok := left.(*value.String)
		if !ok {
			return nil, e.errf(node, "'in' requires a string on the left, got %s", value.Value(left).Kind())
		}
		_, _, found := obj.ResolveChain(e.In.Intern(s.Text()))
		return value.Bool(found), nil
	}

	ln, lok := left.(value.Number)
	rn, rok := right.(value.Number)
	switch node.Op {
	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod,
		ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe,
		ast.OpShl, ast.OpShr, ast.OpBitOr, ast.OpBitXor, ast.OpBitAnd:
		if node.Op == ast.OpMod {
			if ls, lok2 := left.(*value.String); lok2 {
				return e.formatString(node, ls, right)
			}
		}
		if !lok || !rok {
			return nil, e.errf(node, "operator requires numbers, got %s and %s", value.Value(left).Kind(), value.Value(right).Kind())
		}
	}

	switch node.Op {
	case ast.OpSub:
		return checkFinite(node, e, float64(ln)-float64(rn))
	case ast.OpMul:
		return checkFinite(node, e, float64(ln)*float64(rn))
	case ast.OpDiv:
		if rn == 0 {
			return nil, e.errf(node, "division by zero")
		}
		return checkFinite(node, e, float64(ln)/float64(rn))
	case ast.OpMod:
		if rn == 0 {
			return nil, e.errf(node, "division by zero")
		}
		return value.Number(math.Mod(float64(ln), float64(rn))), nil
	case ast.OpLt:
		return value.Bool(ln < rn), nil
	case ast.OpGt:
		return value.Bool(ln > rn), nil
	case ast.OpLe:
		return value.Bool(ln <= rn), nil
	case ast.OpGe:
		return value.Bool(ln >= rn), nil
	case ast.OpShl:
		return value.Number(int64(ln) << uint(int64(rn))), nil
	case ast.OpShr:
		return value.Number(int64(ln) >> uint(int64(rn))), nil
	case ast.OpBitOr:
		return value.Number(int64(ln) | int64(rn)), nil
	case ast.OpBitXor:
		return value.Number(int64(ln) ^ int64(rn)), nil
	case ast.OpBitAnd:
		return value.Number(int64(ln) & int64(rn)), nil
	}
	return nil, e.errf(node, "internal error: unhandled binary op")
}

func checkFinite(n ast.Node, e *Env, f float64) (value.Value, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, e.errf(n, "arithmetic overflow")
	}
	return value.Number(f), nil
}

// formatString implements `"fmt" % args`, deferring the actual printf-style
// substitution to the std.format logic shared with the stdlib builtin of
// the same name (wired in by internal/lang/stdlib at Env construction, via
// the Env.Format field, to avoid an import cycle between eval and stdlib).
func (e *Env) formatString(n ast.Node, format *value.String, args value.Value) (value.Value, error) {
	if e.Format == nil {
		return nil, e.errf(n, "string formatting is unavailable")
	}
	out, err := e.Format(format.Text(), args)
	if err != nil {
		return nil, e.errf(n, "%s", err.Error())
	}
	return value.NewString(out), nil
}

// Add implements the `+` operator's non-boolean, non-comparison cases,
// shared between the `+` binary operator and additive (`+:`) field
// composition: numbers add, strings concatenate, arrays concatenate,
// objects merge (spec.md §3.5/§4.5).
func Add(a, b value.Value) (value.Value, error) {
	switch av := a.(type) {
	case value.Number:
		bv, ok := b.(value.Number)
		if !ok {
			return nil, fmt.Errorf("cannot add number and %s", b.Kind())
		}
		f := float64(av) + float64(bv)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("arithmetic overflow")
		}
		return value.Number(f), nil
	case *value.String:
		return value.ConcatStrings(av, stringify(b)), nil
	case value.Array:
		bv, ok := b.(value.Array)
		if !ok {
			return nil, fmt.Errorf("cannot add array and %s", b.Kind())
		}
		return &value.ConcatArray{A: av, B: bv}, nil
	case *value.Object:
		bv, ok := b.(*value.Object)
		if !ok {
			return nil, fmt.Errorf("cannot add object and %s", b.Kind())
		}
		return Merge(av, bv), nil
	}
	return nil, fmt.Errorf("cannot add %s and %s", a.Kind(), b.Kind())
}

// stringify renders any value as its string form for `"a" + b`-style
// coercion (jsonnet's `+` coerces the right-hand side to a string when the
// left is already a string).
func stringify(v value.Value) *value.String {
	if s, ok := v.(*value.String); ok {
		return s
	}
	return value.NewString(displayString(v))
}

// DeepEqual implements `==`: structural equality over the full value tree,
// with arrays and objects compared element/field-wise.
func DeepEqual(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case value.Null:
		return true
	case value.Bool:
		return av == b.(value.Bool)
	case value.Number:
		return av == b.(value.Number)
	case *value.String:
		return av.Text() == b.(*value.String).Text()
	case value.Array:
		bv := b.(value.Array)
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			ea, err := av.Get(i)
			if err != nil {
				return false
			}
			eb, err := bv.Get(i)
			if err != nil {
				return false
			}
			if !DeepEqual(ea, eb) {
				return false
			}
		}
		return true
	case *value.Object:
		bv := b.(*value.Object)
		fa := av.VisibleFields(av)
		fb := bv.VisibleFields(bv)
		if len(fa) != len(fb) {
			return false
		}
		for _, name := range fa {
			xv, ok, err := value.ResolveFieldValue(av, name, av, Add)
			if err != nil || !ok {
				return false
			}
			yv, ok, err := value.ResolveFieldValue(bv, name, bv, Add)
			if err != nil || !ok {
				return false
			}
			if !DeepEqual(xv, yv) {
				return false
			}
		}
		return true
	case *value.Function:
		return false // functions are never equal, including to themselves
	}
	return false
}
