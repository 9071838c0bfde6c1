// Package value defines the runtime representation produced by
// internal/lang/eval: the tagged Value union, lazy Thunk cells, and the
// Object/Field model that implements inheritance and late-bound self/super.
package value

import (
	"fmt"
	"sync"

	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/source"
)

// Value is implemented by every runtime value: Null, Bool, Number, String,
// *Array, *Object, *Function. It is a marker interface rather than a method
// set because dispatch on value kind is done with type switches throughout
// eval and stdlib, matching how the parser's ast.Node is consumed.
type Value interface {
	Kind() Kind
}

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

type Null struct{}

func (Null) Kind() Kind { return KindNull }

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Number float64

func (Number) Kind() Kind { return KindNumber }

// String is logically a sequence of Unicode scalars. Concatenation is kept
// O(1) by representing it as a binary tree of Go strings rather than
// eagerly copying; Text() flattens it on demand and the flattened form is
// cached so repeated reads don't re-walk the tree.
type String struct {
	mu   sync.Mutex
	flat string
	left, right *String
}

func NewString(s string) *String { return &String{flat: s} }

func ConcatStrings(a, b *String) *String {
	if a.isFlat() && b.isFlat() {
		return &String{flat: a.flat + b.flat}
	}
	return &String{left: a, right: b}
}

func (s *String) isFlat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left == nil && s.right == nil
}

// Text flattens the string, memoizing the result on the node.
func (s *String) Text() string {
	s.mu.Lock()
	if s.left == nil && s.right == nil {
		defer s.mu.Unlock()
		return s.flat
	}
	left, right := s.left, s.right
	s.mu.Unlock()

	flat := left.Text() + right.Text()

	s.mu.Lock()
	s.flat = flat
	s.left, s.right = nil, nil
	s.mu.Unlock()
	return flat
}

func (*String) Kind() Kind { return KindString }

// --- Thunks ---

type thunkState int

const (
	thunkWaiting thunkState = iota
	thunkPending
	thunkComputed
)

// EvalFunc produces a Value or an error; it is supplied by internal/lang/eval
// and closes over the expression and context it needs to evaluate.
type EvalFunc func() (Value, error)

// Thunk is a memoizing cell with three states: waiting (unevaluated,
// holding an EvalFunc), pending (currently being forced, used to detect
// self-referential cycles), and computed (holds either a value or a sticky
// error). The evaluator is single-threaded per file evaluation, so no
// locking is needed around state transitions (spec.md's thunk rule:
// "Implementations MUST ensure thread safety is unnecessary").
type Thunk struct {
	state thunkState
	fn    EvalFunc
	val   Value
	err   error
}

// Evaluated returns an already-computed thunk wrapping v.
func Evaluated(v Value) *Thunk { return &Thunk{state: thunkComputed, val: v} }

// Errored returns an already-computed thunk wrapping an error.
func Errored(err error) *Thunk { return &Thunk{state: thunkComputed, err: err} }

// Lazy returns a waiting thunk that will call fn the first time it is forced.
func Lazy(fn EvalFunc) *Thunk { return &Thunk{state: thunkWaiting, fn: fn} }

// ErrInfiniteRecursion is returned by Force when a thunk is forced while it
// is already being forced (a self-referential binding with no base case).
var ErrInfiniteRecursion = fmt.Errorf("infinite recursion detected")

// Force evaluates the thunk if needed and returns its cached result. A
// second call never re-runs the underlying computation or performs
// side-effecting I/O again, including when the first call produced an error.
func (t *Thunk) Force() (Value, error) {
	switch t.state {
	case thunkComputed:
		return t.val, t.err
	case thunkPending:
		t.state = thunkComputed
		t.err = ErrInfiniteRecursion
		return nil, t.err
	}
	t.state = thunkPending
	val, err := t.fn()
	t.state = thunkComputed
	t.fn = nil
	t.val, t.err = val, err
	return val, err
}

// --- Arrays ---

// Array is implemented by every array representation. Variants share the
// {Len, Get, GetLazy} capability set described in spec.md §9 and are
// distinguished by a type switch rather than a method-per-variant
// hierarchy, matching how Value kinds are dispatched throughout eval.
type Array interface {
	Value
	Len() int
	// Get forces and returns element i.
	Get(i int) (Value, error)
	// GetLazy returns a thunk for element i without forcing it.
	GetLazy(i int) *Thunk
}

// EagerArray holds already-built thunks, e.g. from a literal `[a, b, c]`.
type EagerArray struct {
	Elems []*Thunk
}

func (*EagerArray) Kind() Kind          { return KindArray }
func (a *EagerArray) Len() int          { return len(a.Elems) }
func (a *EagerArray) Get(i int) (Value, error) { return a.Elems[i].Force() }
func (a *EagerArray) GetLazy(i int) *Thunk     { return a.Elems[i] }

// RangeArray is the inclusive integer range produced by std.range-style
// builtins without materializing every element.
type RangeArray struct {
	From, To int // inclusive
}

func (*RangeArray) Kind() Kind { return KindArray }
func (r *RangeArray) Len() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

func (r *RangeArray) Get(i int) (Value, error) { return Number(r.From + i), nil }
func (r *RangeArray) GetLazy(i int) *Thunk     { return Evaluated(Number(r.From + i)) }

// SliceArray is a lazy view `base[from:to:step]` with no copy of base.
type SliceArray struct {
	Base           Array
	From, To, Step int
}

func (*SliceArray) Kind() Kind { return KindArray }
func (s *SliceArray) Len() int {
	if s.Step > 0 {
		if s.To <= s.From {
			return 0
		}
		return (s.To-s.From-1)/s.Step + 1
	}
	if s.Step < 0 {
		if s.From <= s.To {
			return 0
		}
		return (s.From-s.To-1)/(-s.Step) + 1
	}
	return 0
}

func (s *SliceArray) index(i int) int { return s.From + i*s.Step }
func (s *SliceArray) Get(i int) (Value, error) { return s.Base.Get(s.index(i)) }
func (s *SliceArray) GetLazy(i int) *Thunk     { return s.Base.GetLazy(s.index(i)) }

// ReversedArray is a lazy view of Base in reverse order.
type ReversedArray struct{ Base Array }

func (*ReversedArray) Kind() Kind { return KindArray }
func (r *ReversedArray) Len() int { return r.Base.Len() }

func (r *ReversedArray) Get(i int) (Value, error) {
	return r.Base.Get(r.Base.Len() - 1 - i)
}

func (r *ReversedArray) GetLazy(i int) *Thunk {
	return r.Base.GetLazy(r.Base.Len() - 1 - i)
}

// ConcatArray is a lazy view of A followed by B with no copy.
type ConcatArray struct{ A, B Array }

func (*ConcatArray) Kind() Kind { return KindArray }
func (c *ConcatArray) Len() int { return c.A.Len() + c.B.Len() }

func (c *ConcatArray) Get(i int) (Value, error) {
	if i < c.A.Len() {
		return c.A.Get(i)
	}
	return c.B.Get(i - c.A.Len())
}

func (c *ConcatArray) GetLazy(i int) *Thunk {
	if i < c.A.Len() {
		return c.A.GetLazy(i)
	}
	return c.B.GetLazy(i - c.A.Len())
}

// MappedArray is `std.map(f, base)`: applying f is deferred to element
// access so an unconsumed map never calls f at all.
type MappedArray struct {
	Base Array
	Fn   func(*Thunk) (Value, error)
}

func (*MappedArray) Kind() Kind { return KindArray }
func (m *MappedArray) Len() int { return m.Base.Len() }

func (m *MappedArray) Get(i int) (Value, error) { return m.Fn(m.Base.GetLazy(i)) }

func (m *MappedArray) GetLazy(i int) *Thunk {
	base := m.Base.GetLazy(i)
	fn := m.Fn
	return Lazy(func() (Value, error) { return fn(base) })
}

// RepeatedArray is `std.repeat`-style: Base repeated Times times.
type RepeatedArray struct {
	Base  Array
	Times int
}

func (*RepeatedArray) Kind() Kind { return KindArray }
func (r *RepeatedArray) Len() int { return r.Base.Len() * r.Times }

func (r *RepeatedArray) Get(i int) (Value, error) {
	if r.Base.Len() == 0 {
		return nil, fmt.Errorf("index out of range")
	}
	return r.Base.Get(i % r.Base.Len())
}

func (r *RepeatedArray) GetLazy(i int) *Thunk {
	return r.Base.GetLazy(i % r.Base.Len())
}

// BytesArray is the result of importbin: each element is an integer 0-255.
// Kept as its own variant (rather than an EagerArray of Number thunks) so
// large binary imports don't allocate one Thunk per byte; this mirrors the
// supplemental BytesArray noted for manifestJsonEx's binary-safe roundtrip.
type BytesArray struct {
	Bytes []byte
}

func (*BytesArray) Kind() Kind { return KindArray }
func (b *BytesArray) Len() int { return len(b.Bytes) }

func (b *BytesArray) Get(i int) (Value, error) { return Number(b.Bytes[i]), nil }
func (b *BytesArray) GetLazy(i int) *Thunk     { return Evaluated(Number(b.Bytes[i])) }

// --- Objects & fields ---

// Visibility is a field's OWN declared visibility, as parsed from `:`,
// `::`, or `:::`. It is never collapsed in place: ResolveChain always
// returns a field carrying the merged Normal/Hidden result, but the
// per-layer Unhide distinction only matters while computing that merge
// (see mergeVisibility), so a field stored in Object.Fields keeps its
// original declared kind forever.
type Visibility int

const (
	VisNormal Visibility = iota
	VisHidden
	VisUnhide
)

// Binder produces a field's value given the effective super/this pair. Both
// may be nil if the field is bound outside any object (e.g. a top-level
// `local`), though in practice every object field binder receives non-nil
// `this`.
type Binder func(sup, this *Object) (Value, error)

// CachedUnbound wraps a Binder so repeated reads of the same field through
// the same (super, this) pair re-run the binder only once, per spec.md's
// "Bindings are wrapped in a CachedUnbound that memoizes on (sup-identity,
// this-identity)".
type CachedUnbound struct {
	bind  Binder
	cache map[cacheKey]*Thunk
}

type cacheKey struct{ sup, this *Object }

func NewCachedUnbound(bind Binder) *CachedUnbound {
	return &CachedUnbound{bind: bind, cache: make(map[cacheKey]*Thunk)}
}

// Bind returns the memoized thunk for (sup, this), building and caching a
// fresh lazy thunk the first time this pair is seen.
func (c *CachedUnbound) Bind(sup, this *Object) *Thunk {
	key := cacheKey{sup, this}
	if t, ok := c.cache[key]; ok {
		return t
	}
	bind := c.bind
	t := Lazy(func() (Value, error) { return bind(sup, this) })
	c.cache[key] = t
	return t
}

// Field is a single member of an object: its declared visibility, whether
// it is additive (`+:`), and its binding. Exactly one of Bound/Unbound is
// set: plain values (e.g. already-evaluated comprehension results) use
// Bound; ordinary `name: expr` members use Unbound so they can see
// self/super at lookup time.
type Field struct {
	Visibility Visibility
	Plus       bool
	Bound      *Thunk
	Unbound    *CachedUnbound
}

// Resolve returns this field's value thunk given the effective (sup, this).
func (f Field) Resolve(sup, this *Object) *Thunk {
	if f.Bound != nil {
		return f.Bound
	}
	return f.Unbound.Bind(sup, this)
}

// AssertFunc runs one `assert` clause against the effective this, returning
// an error (carrying the assert's custom message, if any) on failure.
type AssertFunc func(this *Object) error

// Object is a mapping from interned field name to Field, plus an optional
// super link forming an inheritance chain (see spec.md §3.5) and the
// object's own assertion list. Merge via `+` is implemented in eval, which
// builds a new Object whose Super points at the left operand; Object itself
// only stores the chain and resolves lookups, it does not perform merges.
type Object struct {
	Fields  map[interner.ID]Field
	// Order preserves field declaration order for iteration (objectFields,
	// manifest rendering) independent of map iteration order.
	Order []interner.ID
	Super *Object
	Asserts []AssertFunc

	mu            sync.Mutex
	assertionsRan map[*Object]bool // keyed by effective-this identity
}

func NewObject() *Object {
	return &Object{Fields: make(map[interner.ID]Field)}
}

// SetField appends name if new, or overwrites in place if it already exists
// (preserving original position), matching how a plain object literal's
// fields are declared in source order with no duplicates expected.
func (o *Object) SetField(name interner.ID, f Field) {
	if _, ok := o.Fields[name]; !ok {
		o.Order = append(o.Order, name)
	}
	o.Fields[name] = f
}

func (*Object) Kind() Kind { return KindObject }

// Lookup finds field name on the merge chain starting at o and binds it
// against (sup, this) with no additive-field combination; this is the
// simple form used by VisibleFields and by callers that only need a
// field's own definition. Additive (`+:`) combination across merge layers
// is performed by internal/lang/eval, which walks ResolveChain itself
// since combining requires the `+` operator eval implements.
func (o *Object) Lookup(name interner.ID, this *Object) (*Field, bool) {
	f, sup, ok := o.ResolveChain(name)
	if !ok {
		return nil, false
	}
	bound := f.Resolve(sup, this)
	out := Field{Visibility: f.Visibility, Plus: f.Plus, Bound: bound}
	return &out, true
}

// ResolveFieldValue finds name on root's merge chain and returns its
// effective value, combining an additive (`+:`) field with the layer below
// via add — recursively, so a chain of three or more `+:` layers folds
// right-to-left, per spec.md §3.5. Every reader that needs a field's
// combined value (not just its own layer's raw definition) must go through
// this, not Lookup, which deliberately stops at the top layer's binder.
// add implements `+`; it is supplied by the caller because combining values
// needs the `+` operator, which lives in eval, and Object stays independent
// of it (see ResolveChain's doc comment).
func ResolveFieldValue(root *Object, name interner.ID, this *Object, add func(a, b Value) (Value, error)) (Value, bool, error) {
	f, sup, ok := root.ResolveChain(name)
	if !ok {
		return nil, false, nil
	}
	vb, err := f.Resolve(sup, this).Force()
	if err != nil {
		return nil, true, err
	}
	if f.Plus && sup != nil {
		if _, _, hasA := sup.ResolveChain(name); hasA {
			va, _, err := ResolveFieldValue(sup, name, this, add)
			if err != nil {
				return nil, true, err
			}
			v, err := add(va, vb)
			if err != nil {
				return nil, true, err
			}
			return v, true, nil
		}
	}
	return vb, true, nil
}

// ResolveChain walks the super chain collecting the field definition and
// its merged visibility (always Normal or Hidden in the returned Field,
// regardless of how many layers of Unhide/Normal/Hidden contributed),
// returning the sup object to bind the found field against (the layer
// directly below the one that defines it). Exported so eval can implement
// additive-field combination without Object needing to know about the `+`
// operator.
func (o *Object) ResolveChain(name interner.ID) (Field, *Object, bool) {
	f, ok := o.Fields[name]
	if !ok {
		if o.Super == nil {
			return Field{}, nil, false
		}
		return o.Super.ResolveChain(name)
	}
	if mergedHidden(f.Visibility, o.Super, name) {
		f.Visibility = VisHidden
	} else {
		f.Visibility = VisNormal
	}
	return f, o.Super, true
}

// mergedHidden implements spec.md §3.3's visibility-merge rule: hidden
// always forces hidden; unhide always forces visible, ignoring whatever is
// below; normal defers to the super chain's own merged result for this
// name (recursively, so a field hidden several layers down stays hidden
// until an intervening layer explicitly re-declares `:::`).
func mergedHidden(own Visibility, super *Object, name interner.ID) bool {
	switch own {
	case VisHidden:
		return true
	case VisUnhide:
		return false
	default:
		if super == nil {
			return false
		}
		supF, _, ok := super.ResolveChain(name)
		if !ok {
			return false
		}
		return supF.Visibility == VisHidden
	}
}

// VisibleFields returns field names in iteration order (o.Order, extended
// with any super-only names in the super's order) that are visible given
// the merged visibility, i.e. not hidden. Per spec.md, a field listed in
// iteration order is visible iff the merged visibility is not hidden;
// "last wins in iteration order" means a name's position comes from the
// outermost (most-derived) layer that declares it.
func (o *Object) VisibleFields(this *Object) []interner.ID {
	seen := make(map[interner.ID]bool)
	var names []interner.ID
	for cur := o; cur != nil; cur = cur.Super {
		for _, name := range cur.Order {
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	var out []interner.ID
	for _, name := range names {
		f, ok := o.Lookup(name, this)
		if ok && f.Visibility != VisHidden {
			out = append(out, name)
		}
	}
	return out
}

// RunAssertions runs every assertion on the merge chain exactly once per
// effective this, per spec.md's "Assertions on any layer of the chain must
// be evaluated the first time any field of that chain is read through a
// given effective this".
func (o *Object) RunAssertions(this *Object) error {
	o.mu.Lock()
	if o.assertionsRan == nil {
		o.assertionsRan = make(map[*Object]bool)
	}
	if o.assertionsRan[this] {
		o.mu.Unlock()
		return nil
	}
	o.assertionsRan[this] = true
	o.mu.Unlock()

	if o.Super != nil {
		if err := o.Super.RunAssertions(this); err != nil {
			return err
		}
	}
	for _, a := range o.Asserts {
		if err := a(this); err != nil {
			return err
		}
	}
	return nil
}

// --- Functions ---

// Param describes one positional parameter of a Function's signature, used
// by eval's call-site arity/name validation. Required is false when the
// parameter has a default; the default expression itself is not stored
// here (it belongs to the ast.Param on the lambda side) since builtins have
// no such expression to evaluate — only whether an argument may be omitted.
type Param struct {
	Name     interner.ID
	Required bool
}

// NativeFunc is the Go implementation of a builtin: it receives already
// thunked, positionally-bound arguments and returns a value or error.
type NativeFunc func(args []*Thunk) (Value, error)

// Function is either a user-defined lambda or a builtin; both are invoked
// through Call and share the same Params shape so
// application-site arity/name validation in eval doesn't need to branch on
// which kind it is.
type Function struct {
	Name   string
	Params []Param
	// Call invokes the function with already-bound, positionally-ordered
	// argument thunks (defaults already substituted by the caller in eval).
	// Lambdas set this to a closure evaluating Body in an extended context;
	// builtins set it directly to their NativeFunc.
	Call NativeFunc
}

func (*Function) Kind() Kind { return KindFunction }

// --- Errors ---

// Frame is one entry of an EvalError's trace: a source location plus a
// short human-readable description of what was being evaluated there.
type Frame struct {
	Loc  source.Pos
	Desc string
}

// EvalError is the error type produced by the evaluator and propagated
// through thunks. It carries a trace: the Frame where it was raised, plus
// one Frame prepended at each function call it propagates out of, per
// spec.md §4.5's stack discipline; object-assertion runs add no frame.
type EvalError struct {
	Message string
	Trace   []Frame
}

func (e *EvalError) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Trace[0].Loc)
}

// Frames returns the error's trace, outermost frame first.
func (e *EvalError) Frames() []Frame { return e.Trace }

// WithFrame returns a copy of e with f prepended to the trace.
func (e *EvalError) WithFrame(f Frame) *EvalError {
	trace := make([]Frame, 0, len(e.Trace)+1)
	trace = append(trace, f)
	trace = append(trace, e.Trace...)
	return &EvalError{Message: e.Message, Trace: trace}
}

// ErrStackOverflow is returned when the evaluator's frame depth exceeds its
// configured maximum (default 500).
var ErrStackOverflow = fmt.Errorf("stack overflow")
