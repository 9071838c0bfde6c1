package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func TestExtendShadowsOuterBinding(t *testing.T) {
	in := interner.New()
	x := in.Intern("x")

	root := Root().ExtendOne(x, value.Evaluated(value.Number(1)))
	inner := root.ExtendOne(x, value.Evaluated(value.Number(2)))

	th, err := inner.Lookup(in, x)
	require.NoError(t, err)
	v, _ := th.Force()
	assert.Equal(t, value.Number(2), v)

	th, err = root.Lookup(in, x)
	require.NoError(t, err)
	v, _ = th.Force()
	assert.Equal(t, value.Number(1), v)
}

func TestLookupMissingReturnsSuggestions(t *testing.T) {
	in := interner.New()
	name := in.Intern("namespace")
	ctx := Root().ExtendOne(name, value.Evaluated(value.Number(1)))

	_, err := ctx.Lookup(in, in.Intern("namspace"))
	require.Error(t, err)
	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, lerr.Suggestions, "namespace")
}

func TestLookupMissingNoSimilarName(t *testing.T) {
	in := interner.New()
	ctx := Root().ExtendOne(in.Intern("namespace"), value.Evaluated(value.Number(1)))

	_, err := ctx.Lookup(in, in.Intern("zzz"))
	require.Error(t, err)
	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Empty(t, lerr.Suggestions)
}

func TestDollarIsFixedAtOutermost(t *testing.T) {
	outer := value.NewObject()
	inner := value.NewObject()

	c := Root().WithDollar(outer)
	c2 := c.WithDollar(inner)

	got, ok := c2.Dollar()
	require.True(t, ok)
	assert.Same(t, outer, got, "dollar must not be overwritten once set")
}

func TestWithSupThis(t *testing.T) {
	sup := value.NewObject()
	this := value.NewObject()
	c := Root().WithSupThis(sup, this)

	gotSup, gotThis, ok := c.SupThis()
	require.True(t, ok)
	assert.Same(t, sup, gotSup)
	assert.Same(t, this, gotThis)

	_, _, ok = Root().SupThis()
	assert.False(t, ok)
}

func TestFutureContextRoundtrip(t *testing.T) {
	fc := NewFutureContext()
	ctx := Root()
	fc.IntoFuture(ctx)
	assert.Same(t, ctx, fc.Get())
}

func TestFutureContextDoubleFillPanics(t *testing.T) {
	fc := NewFutureContext()
	fc.IntoFuture(Root())
	assert.Panics(t, func() { fc.IntoFuture(Root()) })
}

func TestJaroWinklerIdentical(t *testing.T) {
	assert.Equal(t, 1.0, jaroWinkler("martha", "martha"))
}

func TestJaroWinklerKnownPair(t *testing.T) {
	// classic textbook example; Jaro-Winkler(MARTHA, MARHTA) ~= 0.961
	score := jaroWinkler("MARTHA", "MARHTA")
	assert.InDelta(t, 0.961, score, 0.01)
}
