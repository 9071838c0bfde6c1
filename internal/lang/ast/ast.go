// Package ast defines the typed, span-tagged syntax tree produced by
// internal/lang/parser and consumed by internal/lang/eval.
package ast

import (
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/source"
)

// Node is implemented by every AST node. Span returns the node's byte range
// within its source file, used to build error traces.
type Node interface {
	Span() source.Span
}

// Base is embedded by every concrete node type to carry its span. It is
// exported so the parser package can set it directly in struct literals.
type Base struct {
	span source.Span
}

func (b Base) Span() source.Span { return b.span }

// NewBase is used by the parser to construct the embedded span for a node.
func NewBase(span source.Span) Base { return Base{span: span} }

// --- Literals ---

type Null struct{ Base }
type True struct{ Base }
type False struct{ Base }
type Self struct{ Base }
type Super struct{ Base }
type Dollar struct{ Base }

type Number struct {
	Base
	Value float64
}

// StringKind records which quoting form produced a String literal; it does
// not affect evaluation, only diagnostics/round-tripping.
type StringKind int

const (
	StringDouble StringKind = iota
	StringSingle
	StringVerbatimDouble
	StringVerbatimSingle
	StringBlock
)

type String struct {
	Base
	Value string
	Kind  StringKind
}

// --- Names ---

type Var struct {
	Base
	Name interner.ID
}

// --- Compound expressions ---

type Array struct {
	Base
	Elements []Node
}

// CompFor is one `for x in expr` clause of a comprehension.
type CompFor struct {
	Var  interner.ID
	Expr Node
}

// CompIf is one `if expr` filter clause of a comprehension.
type CompIf struct {
	Expr Node
}

// CompClause is either a CompFor or a CompIf, in source order; the first
// clause of any comprehension is always a CompFor.
type CompClause struct {
	For *CompFor
	If  *CompIf
}

type ArrayComp struct {
	Base
	Body    Node
	Clauses []CompClause
}

// ObjectComp is `{[k]: v for x in arr [if cond]}`.
type ObjectComp struct {
	Base
	KeyExpr   Node
	ValExpr   Node
	Hidden    bool
	Plus      bool
	Clauses   []CompClause
	Locals    []LocalBind
}

type FieldVisibility int

const (
	VisNormal FieldVisibility = iota
	VisHidden
	VisUnhide
)

// Field is a single `name: expr`, `name+: expr`, `name:: expr`, ... member of
// an object literal.
type Field struct {
	// Exactly one of NameID/NameExpr is set: static names are interned once
	// at parse time, computed ("dynamic") names are evaluated at object
	// construction time.
	NameID   interner.ID
	HasName  bool
	NameExpr Node // non-nil iff this is a `[expr]: value` field

	Visibility FieldVisibility
	Plus       bool // `+:` additive field
	Params     *Params // non-nil for method sugar `f(x): body`
	Value      Node
}

// LocalBind is one binding of a `local a = e, b = f; ...` group, or of an
// object's `local` members.
type LocalBind struct {
	Name   interner.ID
	Params *Params // non-nil for function sugar `local f(x) = body`
	Value  Node
}

type Assert struct {
	Cond Node
	Msg  Node // nil if no `: message` given
}

type Object struct {
	Base
	Locals  []LocalBind
	Asserts []Assert
	Fields  []Field
}

// --- Access ---

type Index struct {
	Base
	Target Node
	Index  Node
}

type FieldAccess struct { // field access `a.b`, kept distinct from computed index
	Base
	Target Node
	Name   interner.ID
}

type Slice struct {
	Base
	Target     Node
	From       Node // nil = start
	To         Node // nil = end
	Step       Node // nil = 1
}

// --- Functions ---

type Param struct {
	Name    interner.ID
	Default Node // nil if required
}

type Params struct {
	Positional []Param
}

type Function struct {
	Base
	Params *Params
	Body   Node
}

// Arg is one argument to a call; Name is set for named arguments.
type Arg struct {
	Name  interner.ID
	HasName bool
	Value Node
}

type Apply struct {
	Base
	Target     Node
	Args       []Arg
	TailStrict bool
}

// --- Operators ---

type UnaryOp int

const (
	UnaryPlus UnaryOp = iota
	UnaryMinus
	UnaryNot
	UnaryBitNot
)

type Unary struct {
	Base
	Op   UnaryOp
	Expr Node
}

type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpBitOr
	OpBitXor
	OpBitAnd
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpShl
	OpShr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpIn
)

type Binary struct {
	Base
	Op    BinaryOp
	Left  Node
	Right Node
}

// --- Control flow ---

type If struct {
	Base
	Cond Node
	Then Node
	Else Node // nil if no `else` branch; evaluates to null
}

type Local struct {
	Base
	Binds []LocalBind
	Body  Node
}

type AssertExpr struct {
	Base
	Assert Assert
	Body   Node
}

type ErrorExpr struct {
	Base
	Expr Node
}

// --- Imports ---

type ImportKind int

const (
	ImportCode ImportKind = iota
	ImportString
	ImportBinary
)

type Import struct {
	Base
	Kind ImportKind
	Path string
}
