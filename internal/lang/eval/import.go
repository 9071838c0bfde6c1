package eval

import (
	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/context"
	"github.com/hashmap-kz/jkube/internal/lang/parser"
	"github.com/hashmap-kz/jkube/internal/lang/source"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// evalImport resolves and evaluates `import`/`importstr`/`importbin`, per
// spec.md §4.5 and §4.7. Resolution and text loading are delegated to
// e.Importer; parsing and evaluation (for plain `import`) are cached here
// by resolved source id so a library imported from many files is only
// parsed and evaluated once.
func (e *Env) evalImport(node *ast.Import, ctx *context.Context) (value.Value, error) {
	from := node.Span().Source
	switch node.Kind {
	case ast.ImportString:
		_, text, err := e.Importer.Resolve(from, node.Path)
		if err != nil {
			return nil, e.errf(node, "%s", err.Error())
		}
		return value.NewString(text), nil
	case ast.ImportBinary:
		data, err := e.Importer.ResolveBinary(from, node.Path)
		if err != nil {
			return nil, e.errf(node, "%s", err.Error())
		}
		return &value.BytesArray{Bytes: data}, nil
	default:
		return e.evalCodeImport(node, from)
	}
}

// evalCodeImport handles plain `import`: the resolved source is parsed and
// evaluated in a fresh root context (its own std binding, no access to the
// importer's locals), and the resulting thunk is cached by resolved source
// id so re-importing the same file is free.
func (e *Env) evalCodeImport(node *ast.Import, from source.ID) (value.Value, error) {
	srcID, text, err := e.Importer.Resolve(from, node.Path)
	if err != nil {
		return nil, e.errf(node, "%s", err.Error())
	}
	if th, ok := e.codeCache[srcID]; ok {
		return th.Force()
	}
	tree, perr := parser.Parse(e.In, srcID, text)
	if perr != nil {
		return nil, e.errf(node, "%s", perr.Error())
	}
	th := value.Lazy(func() (value.Value, error) { return e.EvalSource(tree, srcID) })
	e.codeCache[srcID] = th
	return th.Force()
}
