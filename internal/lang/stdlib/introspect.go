package stdlib

import "github.com/hashmap-kz/jkube/internal/lang/value"

func (b *Builder) installIntrospection(set func(string, *value.Function)) {
	in := b.in
	one := func(name string, pred func(value.Value) bool) {
		set(name, builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
			v, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			return value.Bool(pred(v)), nil
		}))
	}

	one("isString", func(v value.Value) bool { _, ok := v.(*value.String); return ok })
	one("isNumber", func(v value.Value) bool { _, ok := v.(value.Number); return ok })
	one("isBoolean", func(v value.Value) bool { _, ok := v.(value.Bool); return ok })
	one("isObject", func(v value.Value) bool { _, ok := v.(*value.Object); return ok })
	one("isArray", func(v value.Value) bool { _, ok := v.(value.Array); return ok })
	one("isFunction", func(v value.Value) bool { _, ok := v.(*value.Function); return ok })

	set("type", builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		return value.NewString(v.Kind().String()), nil
	}))
}
