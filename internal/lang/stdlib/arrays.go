package stdlib

import (
	"sort"

	"github.com/samber/lo"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (b *Builder) installArrays(set func(string, *value.Function)) {
	in := b.in

	set("makeArray", builtin(in, []string{"n", "func"}, func(args []*value.Thunk) (value.Value, error) {
		nv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("makeArray", 0, nv)
		if err != nil {
			return nil, err
		}
		fv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		fn, err := asFunction("makeArray", 1, fv)
		if err != nil {
			return nil, err
		}
		elems := make([]*value.Thunk, int(n))
		for i := range elems {
			i := i
			elems[i] = value.Lazy(func() (value.Value, error) {
				return fn.Call([]*value.Thunk{value.Evaluated(value.Number(i))})
			})
		}
		return &value.EagerArray{Elems: elems}, nil
	}))

	set("map", builtin(in, []string{"func", "arr"}, func(args []*value.Thunk) (value.Value, error) {
		fv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		fn, err := asFunction("map", 0, fv)
		if err != nil {
			return nil, err
		}
		av, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("map", 1, av)
		if err != nil {
			return nil, err
		}
		return &value.MappedArray{Base: arr, Fn: func(t *value.Thunk) (value.Value, error) {
			return fn.Call([]*value.Thunk{t})
		}}, nil
	}))

	set("flatMap", builtin(in, []string{"func", "arr"}, func(args []*value.Thunk) (value.Value, error) {
		fv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		fn, err := asFunction("flatMap", 0, fv)
		if err != nil {
			return nil, err
		}
		av, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("flatMap", 1, av)
		if err != nil {
			return nil, err
		}
		var out []*value.Thunk
		for i := 0; i < arr.Len(); i++ {
			rv, err := fn.Call([]*value.Thunk{arr.GetLazy(i)})
			if err != nil {
				return nil, err
			}
			sub, ok := rv.(value.Array)
			if !ok {
				return nil, argError("flatMap", 0, "a function returning an array", rv)
			}
			for j := 0; j < sub.Len(); j++ {
				out = append(out, sub.GetLazy(j))
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	set("filter", builtin(in, []string{"func", "arr"}, func(args []*value.Thunk) (value.Value, error) {
		fv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		fn, err := asFunction("filter", 0, fv)
		if err != nil {
			return nil, err
		}
		av, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("filter", 1, av)
		if err != nil {
			return nil, err
		}
		var out []*value.Thunk
		for i := 0; i < arr.Len(); i++ {
			el := arr.GetLazy(i)
			rv, err := fn.Call([]*value.Thunk{el})
			if err != nil {
				return nil, err
			}
			keep, ok := rv.(value.Bool)
			if !ok {
				return nil, argError("filter", 0, "a predicate returning boolean", rv)
			}
			if bool(keep) {
				out = append(out, el)
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	set("foldl", builtin(in, []string{"func", "arr", "init"}, func(args []*value.Thunk) (value.Value, error) {
		return foldArray(args, false)
	}))
	set("foldr", builtin(in, []string{"func", "arr", "init"}, func(args []*value.Thunk) (value.Value, error) {
		return foldArray(args, true)
	}))

	set("range", builtin(in, []string{"from", "to"}, func(args []*value.Thunk) (value.Value, error) {
		fv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		tv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		from, err := asNumber("range", 0, fv)
		if err != nil {
			return nil, err
		}
		to, err := asNumber("range", 1, tv)
		if err != nil {
			return nil, err
		}
		return &value.RangeArray{From: int(from), To: int(to)}, nil
	}))

	set("join", builtin(in, []string{"sep", "arr"}, func(args []*value.Thunk) (value.Value, error) {
		sepV, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arrV, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("join", 1, arrV)
		if err != nil {
			return nil, err
		}
		switch sep := sepV.(type) {
		case *value.String:
			parts := make([]string, 0, arr.Len())
			for i := 0; i < arr.Len(); i++ {
				v, err := arr.Get(i)
				if err != nil {
					return nil, err
				}
				if _, isNull := v.(value.Null); isNull {
					continue
				}
				s, ok := v.(*value.String)
				if !ok {
					return nil, argError("join", 1, "an array of strings", v)
				}
				parts = append(parts, s.Text())
			}
			out := ""
			for i, p := range parts {
				if i > 0 {
					out += sep.Text()
				}
				out += p
			}
			return value.NewString(out), nil
		case value.Array:
			var out []*value.Thunk
			first := true
			for i := 0; i < arr.Len(); i++ {
				v, err := arr.Get(i)
				if err != nil {
					return nil, err
				}
				if _, isNull := v.(value.Null); isNull {
					continue
				}
				sub, ok := v.(value.Array)
				if !ok {
					return nil, argError("join", 1, "an array of arrays", v)
				}
				if !first {
					for j := 0; j < sep.Len(); j++ {
						out = append(out, sep.GetLazy(j))
					}
				}
				first = false
				for j := 0; j < sub.Len(); j++ {
					out = append(out, sub.GetLazy(j))
				}
			}
			return &value.EagerArray{Elems: out}, nil
		default:
			return nil, argError("join", 0, "a string or array", sepV)
		}
	}))

	set("reverse", builtin(in, []string{"arr"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("reverse", 0, v)
		if err != nil {
			return nil, err
		}
		return &value.ReversedArray{Base: arr}, nil
	}))

	set("any", builtin(in, []string{"arr"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("any", 0, v)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		return value.Bool(lo.SomeBy(vs, func(x value.Value) bool {
			bl, _ := x.(value.Bool)
			return bool(bl)
		})), nil
	}))

	set("all", builtin(in, []string{"arr"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("all", 0, v)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		return value.Bool(lo.EveryBy(vs, func(x value.Value) bool {
			bl, _ := x.(value.Bool)
			return bool(bl)
		})), nil
	}))

	memberFn := func(name string) {
		set(name, builtin(in, []string{"arr", "x"}, func(args []*value.Thunk) (value.Value, error) {
			av, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			xv, err := args[1].Force()
			if err != nil {
				return nil, err
			}
			arr, err := asArray(name, 0, av)
			if err != nil {
				return nil, err
			}
			vs, err := materialize(arr)
			if err != nil {
				return nil, err
			}
			return value.Bool(lo.ContainsBy(vs, func(x value.Value) bool { return deepEqual(b.opts.Add, x, xv) })), nil
		}))
	}
	memberFn("member")
	memberFn("contains")

	set("count", builtin(in, []string{"arr", "x"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		xv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("count", 0, av)
		if err != nil {
			return nil, err
		}
		n := 0
		for i := 0; i < arr.Len(); i++ {
			v, err := arr.Get(i)
			if err != nil {
				return nil, err
			}
			if deepEqual(b.opts.Add, v, xv) {
				n++
			}
		}
		return value.Number(n), nil
	}))

	set("slice", builtin(in, []string{"arr", "from", "to", "step"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("slice", 0, av)
		if err != nil {
			return nil, err
		}
		from, to, step := 0, arr.Len(), 1
		if args[1] != nil {
			v, err := args[1].Force()
			if err != nil {
				return nil, err
			}
			if n, ok := v.(value.Number); ok {
				from = int(n)
			}
		}
		if args[2] != nil {
			v, err := args[2].Force()
			if err != nil {
				return nil, err
			}
			if n, ok := v.(value.Number); ok {
				to = int(n)
			}
		}
		if args[3] != nil {
			v, err := args[3].Force()
			if err != nil {
				return nil, err
			}
			if n, ok := v.(value.Number); ok {
				step = int(n)
			}
		}
		if step <= 0 {
			step = 1
		}
		return &value.SliceArray{Base: arr, From: from, To: to, Step: step}, nil
	}))

	set("repeat", builtin(in, []string{"arr", "count"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("repeat", 0, av)
		if err != nil {
			return nil, err
		}
		cv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		n, err := asNumber("repeat", 1, cv)
		if err != nil {
			return nil, err
		}
		return &value.RepeatedArray{Base: arr, Times: int(n)}, nil
	}))

	set("sort", builtin(in, []string{"arr", "keyF"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("sort", 0, av)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		keys := vs
		if args[1] != nil {
			kv, err := args[1].Force()
			if err != nil {
				return nil, err
			}
			if fn, ok := kv.(*value.Function); ok {
				keys = make([]value.Value, len(vs))
				for i, v := range vs {
					kv, err := fn.Call([]*value.Thunk{value.Evaluated(v)})
					if err != nil {
						return nil, err
					}
					keys[i] = kv
				}
			}
		}
		idx := make([]int, len(vs))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool {
			return defaultCompare(keys[idx[i]], keys[idx[j]]) < 0
		})
		out := make([]*value.Thunk, len(vs))
		for i, k := range idx {
			out[i] = value.Evaluated(vs[k])
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	set("uniq", builtin(in, []string{"arr", "keyF"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("uniq", 0, av)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		var out []*value.Thunk
		for i, v := range vs {
			if i == 0 || !deepEqual(b.opts.Add, vs[i-1], v) {
				out = append(out, value.Evaluated(v))
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	set("set", builtin(in, []string{"arr", "keyF"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("set", 0, av)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		idx := make([]int, len(vs))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return defaultCompare(vs[idx[i]], vs[idx[j]]) < 0 })
		var out []*value.Thunk
		for i, k := range idx {
			if i == 0 || !deepEqual(b.opts.Add, vs[idx[i-1]], vs[k]) {
				out = append(out, value.Evaluated(vs[k]))
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))

	set("setMember", builtin(in, []string{"x", "arr"}, func(args []*value.Thunk) (value.Value, error) {
		xv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		av, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arr, err := asArray("setMember", 1, av)
		if err != nil {
			return nil, err
		}
		vs, err := materialize(arr)
		if err != nil {
			return nil, err
		}
		return value.Bool(lo.ContainsBy(vs, func(x value.Value) bool { return deepEqual(b.opts.Add, x, xv) })), nil
	}))

	set("setInter", builtin(in, []string{"a", "b"}, func(args []*value.Thunk) (value.Value, error) {
		av, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		bv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		arrA, err := asArray("setInter", 0, av)
		if err != nil {
			return nil, err
		}
		arrB, err := asArray("setInter", 1, bv)
		if err != nil {
			return nil, err
		}
		as, err := materialize(arrA)
		if err != nil {
			return nil, err
		}
		bs, err := materialize(arrB)
		if err != nil {
			return nil, err
		}
		var out []*value.Thunk
		for _, x := range as {
			if lo.ContainsBy(bs, func(y value.Value) bool { return deepEqual(b.opts.Add, x, y) }) {
				out = append(out, value.Evaluated(x))
			}
		}
		return &value.EagerArray{Elems: out}, nil
	}))
}

func foldArray(args []*value.Thunk, right bool) (value.Value, error) {
	fv, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	fn, ok := fv.(*value.Function)
	if !ok {
		return nil, argError("foldl", 0, "a function", fv)
	}
	av, err := args[1].Force()
	if err != nil {
		return nil, err
	}
	arr, ok := av.(value.Array)
	if !ok {
		return nil, argError("foldl", 1, "an array", av)
	}
	acc := args[2]
	if right {
		for i := arr.Len() - 1; i >= 0; i-- {
			v, err := fn.Call([]*value.Thunk{arr.GetLazy(i), acc})
			if err != nil {
				return nil, err
			}
			acc = value.Evaluated(v)
		}
	} else {
		for i := 0; i < arr.Len(); i++ {
			v, err := fn.Call([]*value.Thunk{acc, arr.GetLazy(i)})
			if err != nil {
				return nil, err
			}
			acc = value.Evaluated(v)
		}
	}
	return acc.Force()
}

// deepEqual is a minimal structural equality used by stdlib's set/member
// builtins. eval.DeepEqual (used for the `==` operator) is not reachable
// here since stdlib never imports eval; the two implementations cover the
// same cases (Null/Bool/Number/String direct, Array/Object recursive).
func deepEqual(add func(a, b value.Value) (value.Value, error), a, b value.Value) bool {
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
			x, err := av.Get(i)
			if err != nil {
				return false
			}
			y, err := bv.Get(i)
			if err != nil {
				return false
			}
			if !deepEqual(add, x, y) {
				return false
			}
		}
		return true
	case *value.Object:
		bv := b.(*value.Object)
		af := av.VisibleFields(av)
		bf := bv.VisibleFields(bv)
		if len(af) != len(bf) {
			return false
		}
		for _, name := range af {
			x, ok, err := value.ResolveFieldValue(av, name, av, add)
			if err != nil || !ok {
				return false
			}
			y, ok, err := value.ResolveFieldValue(bv, name, bv, add)
			if err != nil || !ok {
				return false
			}
			if !deepEqual(add, x, y) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
