package eval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/parser"
	"github.com/hashmap-kz/jkube/internal/lang/source"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// stubImporter resolves a fixed table of path -> text, registering each
// distinct path under its own source.ID so import caching (by resolved id)
// can be observed.
type stubImporter struct {
	src   *source.Registry
	files map[string]string
	bins  map[string][]byte
}

func (s *stubImporter) Resolve(_ source.ID, path string) (source.ID, string, error) {
	text, ok := s.files[path]
	if !ok {
		return 0, "", fmt.Errorf("no such import %q", path)
	}
	return s.src.Insert(path, text), text, nil
}

func (s *stubImporter) ResolveBinary(_ source.ID, path string) ([]byte, error) {
	data, ok := s.bins[path]
	if !ok {
		return nil, fmt.Errorf("no such import %q", path)
	}
	return data, nil
}

// evalText parses and evaluates text against a fresh Env with no std object and
// no formatter, sufficient for exercising core language semantics that
// don't touch std.
func evalText(t *testing.T, text string) (value.Value, error) {
	t.Helper()
	in := interner.New()
	src := source.New()
	srcID := src.Insert("test.jsonnet", text)
	tree, err := parser.Parse(in, srcID, text)
	require.NoError(t, err)

	imp := &stubImporter{src: src, files: map[string]string{}, bins: map[string][]byte{}}
	env := NewEnv(in, src, imp, func(string) *value.Object { return value.NewObject() })
	return env.EvalSource(tree, srcID)
}

func mustEval(t *testing.T, text string) value.Value {
	t.Helper()
	v, err := evalText(t, text)
	require.NoError(t, err, "evaluating %q", text)
	return v
}

// evalField evaluates exprText and immediately reads name off the result
// through real `.field` access (parsed and evaluated the same way user code
// is), not Object.Lookup — Lookup's own doc comment says it skips additive
// (`+:`) combination across merge layers, so a helper built on it wouldn't
// exercise what field access actually does.
func evalField(t *testing.T, exprText, name string) value.Value {
	t.Helper()
	return mustEval(t, fmt.Sprintf("(%s).%s", exprText, name))
}

func asNum(t *testing.T, v value.Value) float64 {
	t.Helper()
	n, ok := v.(value.Number)
	require.True(t, ok, "expected number, got %T", v)
	return float64(n)
}

func asStr(t *testing.T, v value.Value) string {
	t.Helper()
	s, ok := v.(*value.String)
	require.True(t, ok, "expected string, got %T", v)
	return s.Text()
}

func TestObjectFieldsEvaluate(t *testing.T) {
	expr := `local a = 1; { a: a, b: "x", c: a + 1 }`
	assert.Equal(t, float64(1), asNum(t, evalField(t, expr, "a")))
	assert.Equal(t, "x", asStr(t, evalField(t, expr, "b")))
	assert.Equal(t, float64(2), asNum(t, evalField(t, expr, "c")))
}

func TestObjectMergeOverridesAndKeepsFields(t *testing.T) {
	expr := `{ a: 1, b: 2 } + { b: 3, c: 4 }`
	assert.Equal(t, float64(1), asNum(t, evalField(t, expr, "a")))
	assert.Equal(t, float64(3), asNum(t, evalField(t, expr, "b")))
	assert.Equal(t, float64(4), asNum(t, evalField(t, expr, "c")))
}

func TestObjectAdditiveFieldSumsAcrossMerge(t *testing.T) {
	expr := `{ items: [1, 2] } + { items+: [3] }`
	arr, ok := evalField(t, expr, "items").(value.Array)
	require.True(t, ok)
	assert.Equal(t, 3, arr.Len())
}

func TestObjectHiddenFieldExcludedFromEquality(t *testing.T) {
	a := mustEval(t, `{ a: 1, b:: 2 }`)
	b := mustEval(t, `{ a: 1 }`)
	assert.True(t, DeepEqual(a, b))
}

func TestObjectUnhideOverridesHiddenFromSuper(t *testing.T) {
	expr := `{ a:: 1 } + { a::: super.a + 1 }`
	assert.Equal(t, float64(2), asNum(t, evalField(t, expr, "a")))
}

func TestObjectSelfReferenceAcrossFields(t *testing.T) {
	expr := `{ a: 1, b: self.a + 1 }`
	assert.Equal(t, float64(2), asNum(t, evalField(t, expr, "b")))
}

func TestArrayComprehensionFiltersAndMaps(t *testing.T) {
	v := mustEval(t, `[x * 2 for x in [1, 2, 3, 4] if x > 1]`)
	arr, ok := v.(value.Array)
	require.True(t, ok)
	require.Equal(t, 3, arr.Len())
	e0, _ := arr.Get(0)
	assert.Equal(t, float64(4), asNum(t, e0))
}

func TestObjectComprehensionBuildsFieldsFromIteration(t *testing.T) {
	expr := `{ [k]: k + k for k in ["a", "b"] }`
	assert.Equal(t, "aa", asStr(t, evalField(t, expr, "a")))
	assert.Equal(t, "bb", asStr(t, evalField(t, expr, "b")))
}

func TestFunctionDefaultParameterUsesEarlierParam(t *testing.T) {
	v := mustEval(t, `local f(x, y=x+1) = x + y; f(2)`)
	assert.Equal(t, float64(5), asNum(t, v))
}

func TestFunctionMissingRequiredArgumentErrors(t *testing.T) {
	_, err := evalText(t, `local f(x, y) = x + y; f(1)`)
	assert.Error(t, err)
}

func TestFunctionTooManyPositionalArgumentsErrors(t *testing.T) {
	_, err := evalText(t, `local f(x) = x; f(1, 2)`)
	assert.Error(t, err)
}

func TestFunctionNamedArgumentBinding(t *testing.T) {
	v := mustEval(t, `local f(x, y) = x - y; f(y=1, x=10)`)
	assert.Equal(t, float64(9), asNum(t, v))
}

func TestFunctionUnusedArgumentStaysLazyWithoutTailstrict(t *testing.T) {
	v := mustEval(t, `local f(x, y) = x; f(1, error "boom")`)
	assert.Equal(t, float64(1), asNum(t, v))
}

func TestFunctionTailstrictForcesAllArgumentsEagerly(t *testing.T) {
	_, err := evalText(t, `local f(x, y) = x; f(1, error "boom") tailstrict`)
	assert.Error(t, err)
}

func TestBinaryAddOnEachType(t *testing.T) {
	assert.Equal(t, float64(3), asNum(t, mustEval(t, "1 + 2")))
	assert.Equal(t, "ab", asStr(t, mustEval(t, `"a" + "b"`)))

	arr, ok := mustEval(t, "[1] + [2]").(value.Array)
	require.True(t, ok)
	assert.Equal(t, 2, arr.Len())

	assert.Equal(t, float64(2), asNum(t, evalField(t, "{a: 1} + {b: 2}", "b")))
}

func TestBinaryAddCoercesStringConcatRHS(t *testing.T) {
	assert.Equal(t, "count: 3", asStr(t, mustEval(t, `"count: " + 3`)))
}

func TestBinaryAddMismatchedTypesErrors(t *testing.T) {
	_, err := evalText(t, `1 + "a"`)
	assert.Error(t, err)
}

func TestEqualityIsStructural(t *testing.T) {
	assert.True(t, bool(mustEval(t, "[1, 2] == [1, 2]").(value.Bool)))
	assert.True(t, bool(mustEval(t, "{a: 1, b: 2} == {b: 2, a: 1}").(value.Bool)))
	assert.False(t, bool(mustEval(t, "[1, 2] == [1, 3]").(value.Bool)))
	assert.True(t, bool(mustEval(t, "1 != 2").(value.Bool)))
}

func TestInOperatorChecksObjectFields(t *testing.T) {
	assert.True(t, bool(mustEval(t, `"a" in {a: 1}`).(value.Bool)))
	assert.False(t, bool(mustEval(t, `"z" in {a: 1}`).(value.Bool)))
}

func TestArithmeticOverflowErrors(t *testing.T) {
	_, err := evalText(t, "1e308 * 1e308")
	assert.Error(t, err)
}

func TestDivisionByZeroErrors(t *testing.T) {
	_, err := evalText(t, "1 / 0")
	assert.Error(t, err)
}

func TestImportDispatchesToImporter(t *testing.T) {
	in := interner.New()
	src := source.New()
	text := `(import "lib.libsonnet").x`
	srcID := src.Insert("main.jsonnet", text)
	tree, err := parser.Parse(in, srcID, text)
	require.NoError(t, err)

	imp := &stubImporter{src: src, files: map[string]string{"lib.libsonnet": "{ x: 42 }"}}
	env := NewEnv(in, src, imp, func(string) *value.Object { return value.NewObject() })
	v, err := env.EvalSource(tree, srcID)
	require.NoError(t, err)
	assert.Equal(t, float64(42), asNum(t, v))
}

func TestImportstrReturnsRawText(t *testing.T) {
	in := interner.New()
	src := source.New()
	text := `importstr "notes.txt"`
	srcID := src.Insert("main.jsonnet", text)
	tree, err := parser.Parse(in, srcID, text)
	require.NoError(t, err)

	imp := &stubImporter{src: src, files: map[string]string{"notes.txt": "hello\n"}}
	env := NewEnv(in, src, imp, func(string) *value.Object { return value.NewObject() })
	v, err := env.EvalSource(tree, srcID)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", asStr(t, v))
}

func TestImportMissingPathErrors(t *testing.T) {
	_, err := evalText(t, `import "nope.libsonnet"`)
	assert.Error(t, err)
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	_, err := evalText(t, `local f(x) = f(x) + 1; f(0)`)
	assert.Error(t, err)
}

func TestAssertFailureCarriesMessage(t *testing.T) {
	_, err := evalText(t, `assert 1 > 2 : "one is not greater than two"; 0`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one is not greater than two")
}
