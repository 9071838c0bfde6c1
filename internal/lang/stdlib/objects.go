package stdlib

import (
	"sort"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (b *Builder) installObjects(set func(string, *value.Function)) {
	in := b.in

	set("length", builtin(in, []string{"x"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case *value.String:
			return value.Number(len([]rune(x.Text()))), nil
		case value.Array:
			return value.Number(x.Len()), nil
		case *value.Object:
			return value.Number(len(x.VisibleFields(x))), nil
		case *value.Function:
			return value.Number(len(x.Params)), nil
		default:
			return nil, argError("length", 0, "a string, array, object or function", v)
		}
	}))

	set("objectFieldsEx", builtin(in, []string{"obj", "hidden"}, func(args []*value.Thunk) (value.Value, error) {
		ov, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		obj, err := asObject("objectFieldsEx", 0, ov)
		if err != nil {
			return nil, err
		}
		hv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		incHidden, err := asBool("objectFieldsEx", 1, hv)
		if err != nil {
			return nil, err
		}
		var names []string
		if incHidden {
			seen := make(map[string]bool)
			for cur := obj; cur != nil; cur = cur.Super {
				for _, id := range cur.Order {
					n := in.Lookup(id)
					if !seen[n] {
						seen[n] = true
						names = append(names, n)
					}
				}
			}
		} else {
			for _, id := range obj.VisibleFields(obj) {
				names = append(names, in.Lookup(id))
			}
		}
		sort.Strings(names)
		elems := make([]*value.Thunk, len(names))
		for i, n := range names {
			elems[i] = value.Evaluated(value.NewString(n))
		}
		return &value.EagerArray{Elems: elems}, nil
	}))

	set("objectHasEx", builtin(in, []string{"obj", "field", "hidden"}, func(args []*value.Thunk) (value.Value, error) {
		ov, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		obj, err := asObject("objectHasEx", 0, ov)
		if err != nil {
			return nil, err
		}
		fv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		field, err := asString("objectHasEx", 1, fv)
		if err != nil {
			return nil, err
		}
		hv, err := args[2].Force()
		if err != nil {
			return nil, err
		}
		incHidden, err := asBool("objectHasEx", 2, hv)
		if err != nil {
			return nil, err
		}
		name := in.Intern(field)
		f, _, ok := obj.ResolveChain(name)
		if !ok {
			return value.Bool(false), nil
		}
		if f.Visibility == value.VisHidden && !incHidden {
			return value.Bool(false), nil
		}
		return value.Bool(true), nil
	}))

	set("objectRemoveKey", builtin(in, []string{"obj", "key"}, func(args []*value.Thunk) (value.Value, error) {
		ov, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		obj, err := asObject("objectRemoveKey", 0, ov)
		if err != nil {
			return nil, err
		}
		kv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		key, err := asString("objectRemoveKey", 1, kv)
		if err != nil {
			return nil, err
		}
		out := value.NewObject()
		removeID := in.Intern(key)
		for _, id := range obj.VisibleFields(obj) {
			if id == removeID {
				continue
			}
			v, ok, err := value.ResolveFieldValue(obj, id, obj, b.opts.Add)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out.SetField(id, value.Field{Bound: value.Evaluated(v)})
		}
		return out, nil
	}))

	set("get", builtin(in, []string{"obj", "field", "default", "inc_hidden"}, func(args []*value.Thunk) (value.Value, error) {
		ov, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		obj, err := asObject("get", 0, ov)
		if err != nil {
			return nil, err
		}
		fv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		field, err := asString("get", 1, fv)
		if err != nil {
			return nil, err
		}
		incHidden := true
		if args[3] != nil {
			hv, err := args[3].Force()
			if err != nil {
				return nil, err
			}
			incHidden, err = asBool("get", 3, hv)
			if err != nil {
				return nil, err
			}
		}
		name := in.Intern(field)
		f, _, chainOk := obj.ResolveChain(name)
		if !chainOk || (f.Visibility == value.VisHidden && !incHidden) {
			if args[2] == nil {
				return value.Null{}, nil
			}
			return args[2].Force()
		}
		v, _, err := value.ResolveFieldValue(obj, name, obj, b.opts.Add)
		if err != nil {
			return nil, err
		}
		return v, nil
	}))
}
