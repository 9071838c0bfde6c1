package stdlib

import (
	"math"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (b *Builder) installMath(set func(string, *value.Function)) {
	in := b.in

	unary := func(name string, fn func(float64) float64) {
		set(name, builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
			v, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			n, err := asNumber(name, 0, v)
			if err != nil {
				return nil, err
			}
			return value.Number(fn(n)), nil
		}))
	}

	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("exp", math.Exp)
	unary("abs", math.Abs)
	unary("round", math.Round)
	unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	})

	set("log", builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("log", 0, v)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Log(n)), nil
	}))

	set("pow", builtin(in, []string{"x", "n"}, func(args []*value.Thunk) (value.Value, error) {
		xv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		nv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		x, err := asNumber("pow", 0, xv)
		if err != nil {
			return nil, err
		}
		n, err := asNumber("pow", 1, nv)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Pow(x, n)), nil
	}))

	set("modulo", builtin(in, []string{"a", "b"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		bv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		a, err := asNumber("modulo", 0, av)
		if err != nil {
			return nil, err
		}
		bn, err := asNumber("modulo", 1, bv)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Mod(a, bn)), nil
	}))

	set("min", builtin(in, []string{"a", "b"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		bv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		a, err := asNumber("min", 0, av)
		if err != nil {
			return nil, err
		}
		bn, err := asNumber("min", 1, bv)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Min(a, bn)), nil
	}))

	set("max", builtin(in, []string{"a", "b"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		bv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		a, err := asNumber("max", 0, av)
		if err != nil {
			return nil, err
		}
		bn, err := asNumber("max", 1, bv)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Max(a, bn)), nil
	}))

	set("sum", builtin(in, []string{"arr"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("sum", 0, v)
		if err != nil {
			return nil, err
		}
		total := 0.0
		for i := 0; i < arr.Len(); i++ {
			el, err := arr.Get(i)
			if err != nil {
				return nil, err
			}
			n, err := asNumber("sum", 0, el)
			if err != nil {
				return nil, err
			}
			total += n
		}
		return value.Number(total), nil
	}))

	set("mantissa", builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("mantissa", 0, v)
		if err != nil {
			return nil, err
		}
		frac, _ := math.Frexp(n)
		return value.Number(frac), nil
	}))

	set("exponent", builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("exponent", 0, v)
		if err != nil {
			return nil, err
		}
		_, exp := math.Frexp(n)
		return value.Number(exp), nil
	}))
}
