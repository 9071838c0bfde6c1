// Package context implements lexical scoping for the evaluator: immutable
// variable-binding chains, the late-bound self/super/$ triple, and future
// contexts that let mutually recursive `local` groups see each other.
package context

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// bind is one (name -> thunk) pair in a Context's binding chain.
type bind struct {
	name  interner.ID
	thunk *value.Thunk
}

// supThis is the effective (super, this) pair visible inside an object
// field's binder. Either may be nil: a top-level context has neither, and
// the root layer of a merge chain has a nil super.
type supThis struct {
	sup  *value.Object
	this *value.Object
}

// Context is an immutable lexical scope: a singly-linked chain of bindings,
// plus the dollar object (the outermost enclosing object, for `$`) and the
// current sup/this pair (for `self`/`super`). Extending a context produces a
// new Context that shares the parent's chain, so sibling scopes never see
// each other's extensions.
type Context struct {
	parent  *Context
	binds   []bind // bindings introduced at this link, later entries shadow earlier ones at the same link
	dollar  *value.Object
	hasDollar bool
	st      *supThis
}

// Root returns an empty context with no bindings, no dollar, and no
// sup/this — the context a top-level source file starts evaluation in
// before std and external variables are bound into it.
func Root() *Context {
	return &Context{}
}

// Extend returns a new context with additional (name -> thunk) bindings
// layered on top of c; later entries in names/thunks shadow earlier ones
// and anything from c, matching local-binding shadowing semantics.
func (c *Context) Extend(names []interner.ID, thunks []*value.Thunk) *Context {
	binds := make([]bind, len(names))
	for i := range names {
		binds[i] = bind{name: names[i], thunk: thunks[i]}
	}
	return &Context{parent: c, binds: binds, dollar: c.dollar, hasDollar: c.hasDollar, st: c.st}
}

// ExtendOne is a convenience for the common single-binding case (e.g. a
// comprehension's loop variable).
func (c *Context) ExtendOne(name interner.ID, thunk *value.Thunk) *Context {
	return c.Extend([]interner.ID{name}, []*value.Thunk{thunk})
}

// WithThis sets the effective this to obj with no super (used for the
// outermost layer of a merge chain, and for plain, non-inherited objects).
func (c *Context) WithThis(obj *value.Object) *Context {
	return c.WithSupThis(nil, obj)
}

// WithSupThis sets the effective (super, this) pair seen by `super` and
// `self` within an object's field binders.
func (c *Context) WithSupThis(sup, this *value.Object) *Context {
	nc := &Context{parent: c.parent, binds: c.binds, dollar: c.dollar, hasDollar: c.hasDollar}
	nc.st = &supThis{sup: sup, this: this}
	return nc
}

// WithDollar sets dollar to obj, but only if it is not already set — dollar
// is fixed at the outermost enclosing object and must not be overwritten by
// nested objects, per spec.md §4.4 ("dollar is taken from the first
// binding, i.e. set only if currently unset").
func (c *Context) WithDollar(obj *value.Object) *Context {
	if c.hasDollar {
		return c
	}
	return &Context{parent: c.parent, binds: c.binds, dollar: obj, hasDollar: true, st: c.st}
}

// Dollar returns the outermost enclosing object, and whether one is set.
func (c *Context) Dollar() (*value.Object, bool) { return c.dollar, c.hasDollar }

// SupThis returns the effective (super, this) pair, and whether one is set
// (false outside any object).
func (c *Context) SupThis() (sup, this *value.Object, ok bool) {
	if c.st == nil {
		return nil, nil, false
	}
	return c.st.sup, c.st.this, true
}

// LookupError is returned by Lookup on a missing name; it carries a
// suggestion list of similarly spelled bindings currently in scope.
type LookupError struct {
	Name        string
	Suggestions []string
}

func (e *LookupError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown variable %q", e.Name)
	}
	return fmt.Sprintf("unknown variable %q; did you mean: %s?", e.Name, strings.Join(e.Suggestions, ", "))
}

// Lookup finds the innermost binding of name, walking outward through
// parent links. On a miss, it builds a suggestion list of in-scope names
// that are similar by Jaro-Winkler distance (>= 0.8), per spec.md §4.4.
func (c *Context) Lookup(in *interner.Interner, name interner.ID) (*value.Thunk, error) {
	for cur := c; cur != nil; cur = cur.parent {
		for i := len(cur.binds) - 1; i >= 0; i-- {
			if cur.binds[i].name == name {
				return cur.binds[i].thunk, nil
			}
		}
	}
	return nil, &LookupError{Name: in.Lookup(name), Suggestions: c.suggest(in, name)}
}

// suggest returns in-scope names within Jaro-Winkler distance 0.8 of name,
// most similar first, capped at 5 to keep error messages short.
func (c *Context) suggest(in *interner.Interner, target interner.ID) []string {
	targetStr := in.Lookup(target)
	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	seen := make(map[interner.ID]bool)
	for cur := c; cur != nil; cur = cur.parent {
		for _, b := range cur.binds {
			if seen[b.name] {
				continue
			}
			seen[b.name] = true
			s := in.Lookup(b.name)
			score := jaroWinkler(targetStr, s)
			if score >= 0.8 {
				candidates = append(candidates, scored{name: s, score: score})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	var out []string
	for i, c := range candidates {
		if i >= 5 {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// jaroWinkler computes the Jaro-Winkler similarity of a and b in [0, 1].
// No pack example wires a string-similarity library for this kind of
// diagnostic lookup, so this is a direct, unexported implementation of the
// standard algorithm (Winkler's prefix boost, max prefix length 4).
func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}
	prefix := 0
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	if max > 4 {
		max = 4
	}
	for prefix < max && a[prefix] == b[prefix] {
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	matchDist := la
	if lb > la {
		matchDist = lb
	}
	matchDist = matchDist/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}
	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		start := i - matchDist
		if start < 0 {
			start = 0
		}
		end := i + matchDist + 1
		if end > lb {
			end = lb
		}
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}
	var transpositions int
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}

// FutureContext is a write-once cell holding a *Context, used to evaluate a
// group of mutually referring bindings (a `local` group, or an object's own
// member list) in a context that the bindings themselves appear in. Forcing
// a thunk that reads from an unfilled FutureContext before it is filled is a
// caller bug; in practice every binder closes over the future and isn't
// forced until after IntoFuture runs, since field construction mints the
// future before any field is returned as a Value.
type FutureContext struct {
	ctx *Context
}

// NewFutureContext returns an unfilled future.
func NewFutureContext() *FutureContext { return &FutureContext{} }

// IntoFuture installs ctx into a previously unfilled future. Calling it
// twice is a programming error and panics, since it would silently change
// the context already-built thunks were closed over.
func (fc *FutureContext) IntoFuture(ctx *Context) {
	if fc.ctx != nil {
		panic("context: future context filled twice")
	}
	fc.ctx = ctx
}

// Get returns the filled context. Calling it before IntoFuture is a
// programming error and panics rather than silently returning an
// uninitialized Context, since that would mask binding bugs as "unknown
// variable" errors far from their cause.
func (fc *FutureContext) Get() *Context {
	if fc.ctx == nil {
		panic("context: future context read before it was filled")
	}
	return fc.ctx
}
