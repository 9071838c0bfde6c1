package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashmap-kz/jkube/internal/lang/eval"
	"github.com/hashmap-kz/jkube/internal/lang/importer"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/parser"
	"github.com/hashmap-kz/jkube/internal/lang/source"
	"github.com/hashmap-kz/jkube/internal/lang/stdlib"
	"github.com/hashmap-kz/jkube/internal/lang/value"
	"github.com/hashmap-kz/jkube/internal/manifest"
	"github.com/hashmap-kz/jkube/internal/specenv"
)

// loadedEnv is the result of evaluating an environment's entry file: the
// raw value, the extracted manifest list, and its spec.json, per spec.md
// §6.2/§6.3.
type loadedEnv struct {
	Value value.Value
	List  manifest.List
	Spec  *specenv.Spec
	In    *interner.Interner
	// Name is the environment's name, taken from its directory's base
	// name, used as the "<name>" half of the §3.7 environment-label hash.
	Name string
}

// loadEnvironment parses and evaluates entryFile (an environment's entry
// point), resolving imports per §6.3 against its own directory (treated as
// the environment base), and loads the sibling spec.json (§6.2) unless
// skipSpec is set (eval/show don't require cluster configuration).
func loadEnvironment(entryFile string, extVars map[string]stdlib.ExtVar, skipSpec bool) (*loadedEnv, error) {
	absEntry, err := filepath.Abs(entryFile)
	if err != nil {
		return nil, err
	}

	in := interner.New()
	src := source.New()
	imp := importer.New(src)

	text, err := readFile(absEntry)
	if err != nil {
		return nil, err
	}
	srcID := src.Insert(absEntry, text)

	tree, err := parser.Parse(in, srcID, text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", entryFile, err)
	}

	var env *eval.Env
	b := stdlib.New(in, stdlib.Options{
		ExtVars: extVars,
		EvalCode: func(code string) (value.Value, error) {
			codeSrc := src.Insert(absEntry+"#extVar", code)
			codeTree, err := parser.Parse(in, codeSrc, code)
			if err != nil {
				return nil, err
			}
			return env.EvalSource(codeTree, codeSrc)
		},
		Add: eval.Add,
	})
	env = eval.NewEnv(in, src, imp, b.Factory())
	env.Format = b.Format

	v, err := env.EvalSource(tree, srcID)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", entryFile, err)
	}

	list, err := manifest.Extract(in, v)
	if err != nil {
		return nil, fmt.Errorf("extracting manifests from %s: %w", entryFile, err)
	}

	result := &loadedEnv{Value: v, List: list, In: in, Name: filepath.Base(filepath.Dir(absEntry))}

	if !skipSpec {
		specPath := filepath.Join(filepath.Dir(absEntry), specenv.SpecFileName)
		sp, err := specenv.Load(specPath)
		if err != nil {
			return nil, err
		}
		result.Spec = sp
		if len(sp.ResourceDefaults) > 0 {
			result.List = specenv.ApplyResourceDefaults(result.List, sp.ResourceDefaults)
		}
	}

	return result, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
