package stdlib

import (
	"fmt"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// installProcess wires spec.md §4.6's process-wide inputs: extVar reads from
// b.opts.ExtVars, native returns a host-registered builtin, and trace writes
// through b.opts.Trace and returns its second argument unchanged.
func (b *Builder) installProcess(set func(string, *value.Function), thisFile string) {
	in := b.in

	set("extVar", builtin(in, []string{"name"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		name, err := asString("extVar", 0, v)
		if err != nil {
			return nil, err
		}
		ev, ok := b.opts.ExtVars[name]
		if !ok {
			return nil, fmt.Errorf("std.extVar: undefined external variable %q", name)
		}
		if !ev.IsCode {
			return value.NewString(ev.Value), nil
		}
		if b.opts.EvalCode == nil {
			return nil, fmt.Errorf("std.extVar: code variable %q requires an evaluator", name)
		}
		return b.opts.EvalCode(ev.Value)
	}))

	set("native", builtin(in, []string{"name"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		name, err := asString("native", 0, v)
		if err != nil {
			return nil, err
		}
		fn, ok := b.opts.Natives[name]
		if !ok {
			return nil, fmt.Errorf("std.native: no such native function %q", name)
		}
		return fn, nil
	}))

	set("trace", builtin(in, []string{"msg", "rest"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		msg, err := asString("trace", 0, v)
		if err != nil {
			return nil, err
		}
		if b.opts.Trace != nil {
			b.opts.Trace(fmt.Sprintf("%s: %s", thisFile, msg))
		}
		return args[1].Force()
	}))
}
