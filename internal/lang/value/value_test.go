package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
)

func TestThunkIdempotence(t *testing.T) {
	calls := 0
	th := Lazy(func() (Value, error) {
		calls++
		return Number(42), nil
	})
	v1, err1 := th.Force()
	v2, err2 := th.Force()
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls, "second force must not re-run the computation")
}

func TestThunkErrorIsSticky(t *testing.T) {
	calls := 0
	th := Lazy(func() (Value, error) {
		calls++
		return nil, ErrInfiniteRecursion
	})
	_, err1 := th.Force()
	_, err2 := th.Force()
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, 1, calls)
}

func TestThunkPendingDetectsCycle(t *testing.T) {
	var th *Thunk
	th = Lazy(func() (Value, error) {
		return th.Force()
	})
	_, err := th.Force()
	require.ErrorIs(t, err, ErrInfiniteRecursion)
}

func TestStringConcatFlattens(t *testing.T) {
	a := NewString("foo")
	b := NewString("bar")
	c := ConcatStrings(a, b)
	assert.Equal(t, "foobar", c.Text())
}

func TestEagerArray(t *testing.T) {
	arr := &EagerArray{Elems: []*Thunk{Evaluated(Number(1)), Evaluated(Number(2))}}
	assert.Equal(t, 2, arr.Len())
	v, err := arr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, Number(2), v)
}

func TestRangeArray(t *testing.T) {
	r := &RangeArray{From: 3, To: 5}
	require.Equal(t, 3, r.Len())
	v, err := r.Get(0)
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)
	v, err = r.Get(2)
	require.NoError(t, err)
	assert.Equal(t, Number(5), v)
}

func TestSliceArray(t *testing.T) {
	base := &EagerArray{Elems: []*Thunk{
		Evaluated(Number(0)), Evaluated(Number(1)), Evaluated(Number(2)),
		Evaluated(Number(3)), Evaluated(Number(4)),
	}}
	s := &SliceArray{Base: base, From: 1, To: 4, Step: 2}
	require.Equal(t, 2, s.Len())
	v0, _ := s.Get(0)
	v1, _ := s.Get(1)
	assert.Equal(t, Number(1), v0)
	assert.Equal(t, Number(3), v1)
}

func TestReversedArray(t *testing.T) {
	base := &EagerArray{Elems: []*Thunk{Evaluated(Number(1)), Evaluated(Number(2)), Evaluated(Number(3))}}
	r := &ReversedArray{Base: base}
	v, _ := r.Get(0)
	assert.Equal(t, Number(3), v)
}

func TestConcatArray(t *testing.T) {
	a := &EagerArray{Elems: []*Thunk{Evaluated(Number(1))}}
	b := &EagerArray{Elems: []*Thunk{Evaluated(Number(2)), Evaluated(Number(3))}}
	c := &ConcatArray{A: a, B: b}
	require.Equal(t, 3, c.Len())
	v, _ := c.Get(2)
	assert.Equal(t, Number(3), v)
}

func TestRepeatedArray(t *testing.T) {
	base := &EagerArray{Elems: []*Thunk{Evaluated(Number(1)), Evaluated(Number(2))}}
	r := &RepeatedArray{Base: base, Times: 3}
	require.Equal(t, 6, r.Len())
	v, _ := r.Get(5)
	assert.Equal(t, Number(2), v)
}

func TestBytesArray(t *testing.T) {
	b := &BytesArray{Bytes: []byte{10, 20, 30}}
	v, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, Number(20), v)
}

func TestCachedUnboundMemoizesPerPair(t *testing.T) {
	calls := 0
	c := NewCachedUnbound(func(sup, this *Object) (Value, error) {
		calls++
		return Number(1), nil
	})
	this := NewObject()
	t1 := c.Bind(nil, this)
	t2 := c.Bind(nil, this)
	_, _ = t1.Force()
	_, _ = t2.Force()
	assert.Equal(t, 1, calls)

	other := NewObject()
	t3 := c.Bind(nil, other)
	_, _ = t3.Force()
	assert.Equal(t, 2, calls, "distinct this identity must rebind")
}

func TestObjectSimpleLookup(t *testing.T) {
	in := interner.New()
	name := in.Intern("a")
	obj := NewObject()
	obj.SetField(name, Field{Bound: Evaluated(Number(5))})

	f, ok := obj.Lookup(name, obj)
	require.True(t, ok)
	v, err := f.Bound.Force()
	require.NoError(t, err)
	assert.Equal(t, Number(5), v)
}

func TestObjectInheritsFromSuper(t *testing.T) {
	in := interner.New()
	nameA := in.Intern("a")
	nameB := in.Intern("b")

	super := NewObject()
	super.SetField(nameA, Field{Bound: Evaluated(Number(1))})

	child := NewObject()
	child.Super = super
	child.SetField(nameB, Field{Bound: Evaluated(Number(2))})

	f, ok := child.Lookup(nameA, child)
	require.True(t, ok)
	v, _ := f.Bound.Force()
	assert.Equal(t, Number(1), v)

	_, ok = super.Lookup(nameB, super)
	assert.False(t, ok, "super must not see child-only fields")
}

func TestVisibilityMergeHiddenForcesHidden(t *testing.T) {
	in := interner.New()
	name := in.Intern("secret")

	super := NewObject()
	super.SetField(name, Field{Visibility: VisNormal, Bound: Evaluated(Number(1))})

	child := NewObject()
	child.Super = super
	child.SetField(name, Field{Visibility: VisHidden, Bound: Evaluated(Number(2))})

	visible := child.VisibleFields(child)
	assert.NotContains(t, visible, name)
}

func TestVisibilityMergeNormalDoesNotOverrideSuperHidden(t *testing.T) {
	in := interner.New()
	name := in.Intern("secret")

	super := NewObject()
	super.SetField(name, Field{Visibility: VisHidden, Bound: Evaluated(Number(1))})

	child := NewObject()
	child.Super = super
	child.SetField(name, Field{Visibility: VisNormal, Bound: Evaluated(Number(2))})

	visible := child.VisibleFields(child)
	assert.NotContains(t, visible, name, "normal must not override super's hidden")
}

func TestVisibilityUnhideForcesVisible(t *testing.T) {
	in := interner.New()
	name := in.Intern("secret")

	super := NewObject()
	super.SetField(name, Field{Visibility: VisHidden, Bound: Evaluated(Number(1))})

	child := NewObject()
	child.Super = super
	child.SetField(name, Field{Visibility: VisUnhide, Bound: Evaluated(Number(2))})

	visible := child.VisibleFields(child)
	assert.Contains(t, visible, name, "unhide must force visible regardless of super's hidden")
}

func TestRunAssertionsRunsOncePerEffectiveThis(t *testing.T) {
	calls := 0
	obj := NewObject()
	obj.Asserts = []AssertFunc{func(this *Object) error {
		calls++
		return nil
	}}
	require.NoError(t, obj.RunAssertions(obj))
	require.NoError(t, obj.RunAssertions(obj))
	assert.Equal(t, 1, calls)

	other := NewObject()
	require.NoError(t, obj.RunAssertions(other))
	assert.Equal(t, 2, calls, "distinct effective this must re-run assertions")
}

func TestEvalErrorWithFrame(t *testing.T) {
	base := &EvalError{Message: "boom"}
	withFrame := base.WithFrame(Frame{Desc: "calling f"})
	require.Len(t, withFrame.Frames(), 1)
	assert.Equal(t, "calling f", withFrame.Frames()[0].Desc)
}
