package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func call(t *testing.T, obj *value.Object, in *interner.Interner, name string, args ...value.Value) value.Value {
	t.Helper()
	f, ok := obj.Lookup(in.Intern(name), obj)
	require.True(t, ok, "std.%s must exist", name)
	fn := f.Bound
	require.NotNil(t, fn)
	fv, err := fn.Force()
	require.NoError(t, err)
	fnv, ok := fv.(*value.Function)
	require.True(t, ok)
	thunks := make([]*value.Thunk, len(args))
	for i, a := range args {
		thunks[i] = value.Evaluated(a)
	}
	v, err := fnv.Call(thunks)
	require.NoError(t, err)
	return v
}

func newStd(t *testing.T) (*value.Object, *interner.Interner) {
	in := interner.New()
	b := New(in, Options{})
	return b.Build("test.jsonnet"), in
}

func TestThisFile(t *testing.T) {
	obj, in := newStd(t)
	f, ok := obj.Lookup(in.Intern("thisFile"), obj)
	require.True(t, ok)
	v, err := f.Bound.Force()
	require.NoError(t, err)
	assert.Equal(t, "test.jsonnet", v.(*value.String).Text())
}

func TestTypeAndIsFns(t *testing.T) {
	obj, in := newStd(t)
	assert.Equal(t, "number", call(t, obj, in, "type", value.Number(1)).(*value.String).Text())
	assert.Equal(t, value.Bool(true), call(t, obj, in, "isString", value.NewString("x")))
	assert.Equal(t, value.Bool(false), call(t, obj, in, "isString", value.Number(1)))
}

func TestArrayRangeAndJoin(t *testing.T) {
	obj, in := newStd(t)
	r := call(t, obj, in, "range", value.Number(1), value.Number(3))
	arr := r.(value.Array)
	assert.Equal(t, 3, arr.Len())

	strs := &value.EagerArray{Elems: []*value.Thunk{
		value.Evaluated(value.NewString("1")),
		value.Evaluated(value.NewString("2")),
		value.Evaluated(value.NewString("3")),
	}}
	joined := call(t, obj, in, "join", value.NewString(","), strs)
	assert.Equal(t, "1,2,3", joined.(*value.String).Text())
}

func TestArraySortAndUniq(t *testing.T) {
	obj, in := newStd(t)
	elems := &value.EagerArray{Elems: []*value.Thunk{
		value.Evaluated(value.Number(3)), value.Evaluated(value.Number(1)), value.Evaluated(value.Number(1)),
	}}
	sorted := call(t, obj, in, "sort", elems, value.Null{}).(value.Array)
	v0, _ := sorted.Get(0)
	v2, _ := sorted.Get(2)
	assert.Equal(t, value.Number(1), v0)
	assert.Equal(t, value.Number(3), v2)

	uniq := call(t, obj, in, "uniq", sorted, value.Null{}).(value.Array)
	assert.Equal(t, 2, uniq.Len())
}

func TestMathFns(t *testing.T) {
	obj, in := newStd(t)
	assert.Equal(t, value.Number(3), call(t, obj, in, "abs", value.Number(-3)))
	assert.Equal(t, value.Number(2), call(t, obj, in, "max", value.Number(1), value.Number(2)))
	assert.Equal(t, value.Number(4), call(t, obj, in, "floor", value.Number(4.7)))
}

func TestStringFns(t *testing.T) {
	obj, in := newStd(t)
	assert.Equal(t, "ABC", call(t, obj, in, "asciiUpper", value.NewString("abc")).(*value.String).Text())
	assert.Equal(t, value.Bool(true), call(t, obj, in, "startsWith", value.NewString("hello"), value.NewString("he")))
	out := call(t, obj, in, "substr", value.NewString("hello"), value.Number(1), value.Number(3))
	assert.Equal(t, "ell", out.(*value.String).Text())
}

func TestFormatBasic(t *testing.T) {
	b := New(interner.New(), Options{})
	out, err := b.Format("%s is %d", &value.EagerArray{Elems: []*value.Thunk{
		value.Evaluated(value.NewString("x")), value.Evaluated(value.Number(5)),
	}})
	require.NoError(t, err)
	assert.Equal(t, "x is 5", out)
}

func TestHashFns(t *testing.T) {
	obj, in := newStd(t)
	out := call(t, obj, in, "sha256", value.NewString("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", out.(*value.String).Text()[:1]+out.(*value.String).Text()[1:])
}

func TestObjectFns(t *testing.T) {
	obj, in := newStd(t)
	target := value.NewObject()
	target.SetField(in.Intern("a"), value.Field{Bound: value.Evaluated(value.Number(1))})
	target.SetField(in.Intern("b"), value.Field{Visibility: value.VisHidden, Bound: value.Evaluated(value.Number(2))})

	length := call(t, obj, in, "length", target)
	assert.Equal(t, value.Number(1), length)

	has := call(t, obj, in, "objectHasEx", target, value.NewString("b"), value.Bool(false))
	assert.Equal(t, value.Bool(false), has)
	hasHidden := call(t, obj, in, "objectHasEx", target, value.NewString("b"), value.Bool(true))
	assert.Equal(t, value.Bool(true), hasHidden)
}

func TestManifestJsonEx(t *testing.T) {
	obj, in := newStd(t)
	target := value.NewObject()
	target.SetField(in.Intern("a"), value.Field{Bound: value.Evaluated(value.Number(1))})
	out := call(t, obj, in, "manifestJsonEx", target, value.NewString("  "))
	assert.Contains(t, out.(*value.String).Text(), `"a": 1`)
}

func TestParseJsonRoundtrip(t *testing.T) {
	obj, in := newStd(t)
	out := call(t, obj, in, "parseJson", value.NewString(`{"a": [1, 2, "x"]}`))
	asObj, ok := out.(*value.Object)
	require.True(t, ok)
	f, ok := asObj.Lookup(in.Intern("a"), asObj)
	require.True(t, ok)
	v, err := f.Bound.Force()
	require.NoError(t, err)
	arr, ok := v.(value.Array)
	require.True(t, ok)
	assert.Equal(t, 3, arr.Len())
}

func TestMergePatchRemovesNullFields(t *testing.T) {
	in := interner.New()
	base := value.NewObject()
	base.SetField(in.Intern("a"), value.Field{Bound: value.Evaluated(value.Number(1))})
	base.SetField(in.Intern("b"), value.Field{Bound: value.Evaluated(value.Number(2))})

	patch := value.NewObject()
	patch.SetField(in.Intern("b"), value.Field{Bound: value.Evaluated(value.Null{})})
	patch.SetField(in.Intern("c"), value.Field{Bound: value.Evaluated(value.Number(3))})

	out := mergePatch(in, nil, base, patch).(*value.Object)
	fields := out.VisibleFields(out)
	names := make([]string, len(fields))
	for i, id := range fields {
		names[i] = in.Lookup(id)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, names)
}

func TestRegexFns(t *testing.T) {
	obj, in := newStd(t)
	assert.Equal(t, value.Bool(true), call(t, obj, in, "regexFullMatch", value.NewString("[a-z]+"), value.NewString("abc")))
	assert.Equal(t, value.Bool(false), call(t, obj, in, "regexFullMatch", value.NewString("[a-z]+"), value.NewString("abc1")))
	out := call(t, obj, in, "regexGlobalReplace", value.NewString("a-b-c"), value.NewString("-"), value.NewString("_"))
	assert.Equal(t, "a_b_c", out.(*value.String).Text())
}

func TestExtVarMissingErrors(t *testing.T) {
	b := New(interner.New(), Options{ExtVars: map[string]ExtVar{"known": {Value: "v"}}})
	obj := b.Build("x.jsonnet")
	in := b.in
	f, ok := obj.Lookup(in.Intern("extVar"), obj)
	require.True(t, ok)
	fn, _ := f.Bound.Force()
	_, err := fn.(*value.Function).Call([]*value.Thunk{value.Evaluated(value.NewString("missing"))})
	require.Error(t, err)
}
