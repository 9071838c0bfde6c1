// Package parser turns jsonnet source text into the AST defined by
// internal/lang/ast. It is a hand-written recursive-descent parser with
// precedence climbing for binary operators (spec.md §4.1's full table,
// lowest to highest: `||`, `&&`, `|`, `^`, `&`, `==`/`!=`, comparisons,
// shifts, `+`/`-`, `*`/`/`/`%`).
package parser

import (
	"fmt"

	"github.com/hashmap-kz/jkube/internal/lang/ast"
	"github.com/hashmap-kz/jkube/internal/lang/interner"
	"github.com/hashmap-kz/jkube/internal/lang/source"
)

// Parse parses the text of a single source file into an AST. srcID is
// embedded in every node's Span so evaluator errors can be traced back to
// a precise location via a source.Registry.
func Parse(in *interner.Interner, srcID source.ID, text string) (ast.Node, error) {
	toks, lexErr := lex(text)
	if lexErr != nil {
		return nil, &Error{Source: srcID, Offset: lexErr.Offset, Message: lexErr.Message}
	}
	p := &parser{toks: toks, in: in, src: srcID}
	expr := p.parseExpr()
	if p.err == nil && p.cur().kind != tkEOF {
		p.failAt(p.cur(), "unexpected trailing input %q", p.cur().text)
	}
	if p.err != nil {
		return nil, p.err
	}
	return expr, nil
}

// Error is a parser-level syntax error: a source id plus byte offset, per
// spec.md §7 ("Syntax: source id + offset; non-recoverable for that file").
type Error struct {
	Source  source.ID
	Offset  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Message)
}

type parser struct {
	toks []token
	pos  int
	in   *interner.Interner
	src  source.ID
	err  *Error
}

func (p *parser) cur() token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) failAt(t token, format string, args ...interface{}) {
	if p.err == nil {
		p.err = &Error{Source: p.src, Offset: t.begin, Message: fmt.Sprintf(format, args...)}
	}
}

func (p *parser) span(begin int) source.Span {
	return source.Span{Source: p.src, Begin: begin, End: p.cur().begin}
}

func (p *parser) isSym(s string) bool  { return p.cur().kind == tkSymbol && p.cur().text == s }
func (p *parser) isKw(s string) bool   { return p.cur().kind == tkKeyword && p.cur().text == s }

func (p *parser) expectSym(s string) token {
	if !p.isSym(s) {
		p.failAt(p.cur(), "expected %q, found %q", s, p.cur().text)
		return p.cur()
	}
	return p.advance()
}

func (p *parser) expectKw(s string) token {
	if !p.isKw(s) {
		p.failAt(p.cur(), "expected keyword %q, found %q", s, p.cur().text)
		return p.cur()
	}
	return p.advance()
}

func (p *parser) expectIdent() interner.ID {
	if p.cur().kind != tkIdent {
		p.failAt(p.cur(), "expected identifier, found %q", p.cur().text)
		return 0
	}
	return p.in.Intern(p.advance().text)
}

// --- Pratt-style binary operator table, lowest precedence first. ---

type opInfo struct {
	op   ast.BinaryOp
	prec int
}

var binOps = map[string]opInfo{
	"||": {ast.OpOr, 1},
	"&&": {ast.OpAnd, 2},
	"|":  {ast.OpBitOr, 3},
	"^":  {ast.OpBitXor, 4},
	"&":  {ast.OpBitAnd, 5},
	"==": {ast.OpEq, 6},
	"!=": {ast.OpNeq, 6},
	"<":  {ast.OpLt, 7},
	">":  {ast.OpGt, 7},
	"<=": {ast.OpLe, 7},
	">=": {ast.OpGe, 7},
	"<<": {ast.OpShl, 8},
	">>": {ast.OpShr, 8},
	"+":  {ast.OpAdd, 9},
	"-":  {ast.OpSub, 9},
	"*":  {ast.OpMul, 10},
	"/":  {ast.OpDiv, 10},
	"%":  {ast.OpMod, 10},
}

const inPrec = 1 // `in` binds as loosely as `||` per spec.md's precedence note

func (p *parser) parseExpr() ast.Node {
	return p.parseBinary(0)
}

func (p *parser) parseBinary(minPrec int) ast.Node {
	left := p.parseUnary()
	for p.err == nil {
		if p.isKw("in") && inPrec >= minPrec {
			begin := left.Span().Begin
			p.advance()
			right := p.parseBinary(inPrec + 1)
			left = &ast.Binary{Base: ast.NewBase(p.span(begin)), Op: ast.OpIn, Left: left, Right: right}
			continue
		}
		if p.cur().kind != tkSymbol {
			break
		}
		info, ok := binOps[p.cur().text]
		if !ok || info.prec < minPrec {
			break
		}
		begin := left.Span().Begin
		p.advance()
		right := p.parseBinary(info.prec + 1)
		left = &ast.Binary{Base: ast.NewBase(p.span(begin)), Op: info.op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseUnary() ast.Node {
	if p.cur().kind == tkSymbol {
		var op ast.UnaryOp
		ok := true
		switch p.cur().text {
		case "+":
			op = ast.UnaryPlus
		case "-":
			op = ast.UnaryMinus
		case "!":
			op = ast.UnaryNot
		case "~":
			op = ast.UnaryBitNot
		default:
			ok = false
		}
		if ok {
			begin := p.cur().begin
			p.advance()
			expr := p.parseUnary()
			return &ast.Unary{Base: ast.NewBase(p.span(begin)), Op: op, Expr: expr}
		}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() ast.Node {
	begin := p.cur().begin
	expr := p.parsePrimary()
	for p.err == nil {
		switch {
		case p.isSym("."):
			p.advance()
			name := p.expectIdent()
			expr = &ast.FieldAccess{Base: ast.NewBase(p.span(begin)), Target: expr, Name: name}
		case p.isSym("("):
			expr = p.parseApply(begin, expr)
		case p.isSym("["):
			p.advance()
			expr = p.parseIndexOrSlice(begin, expr)
		default:
			return expr
		}
	}
	return expr
}

func (p *parser) parseIndexOrSlice(begin int, target ast.Node) ast.Node {
	var from, to, step ast.Node
	if !p.isSym(":") && !p.isSym("]") {
		from = p.parseExpr()
	}
	if p.isSym(":") {
		p.advance()
		if !p.isSym(":") && !p.isSym("]") {
			to = p.parseExpr()
		}
		if p.isSym(":") {
			p.advance()
			if !p.isSym("]") {
				step = p.parseExpr()
			}
		}
		p.expectSym("]")
		return &ast.Slice{Base: ast.NewBase(p.span(begin)), Target: target, From: from, To: to, Step: step}
	}
	p.expectSym("]")
	if from == nil {
		p.failAt(p.cur(), "empty index expression")
	}
	return &ast.Index{Base: ast.NewBase(p.span(begin)), Target: target, Index: from}
}

func (p *parser) parseApply(begin int, target ast.Node) ast.Node {
	p.expectSym("(")
	var args []ast.Arg
	for !p.isSym(")") && p.err == nil {
		if len(args) > 0 {
			p.expectSym(",")
			if p.isSym(")") {
				break // trailing comma
			}
		}
		// named-arg lookahead: IDENT '=' not followed by '=='
		if p.cur().kind == tkIdent && p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tkSymbol && p.toks[p.pos+1].text == "=" {
			name := p.in.Intern(p.advance().text)
			p.advance() // '='
			val := p.parseExpr()
			args = append(args, ast.Arg{Name: name, HasName: true, Value: val})
			continue
		}
		args = append(args, ast.Arg{Value: p.parseExpr()})
	}
	p.expectSym(")")
	tailStrict := false
	if p.isKw("tailstrict") {
		p.advance()
		tailStrict = true
	}
	return &ast.Apply{Base: ast.NewBase(p.span(begin)), Target: target, Args: args, TailStrict: tailStrict}
}

func (p *parser) parsePrimary() ast.Node {
	begin := p.cur().begin
	t := p.cur()
	switch {
	case t.kind == tkNumber:
		p.advance()
		return &ast.Number{Base: ast.NewBase(p.span(begin)), Value: t.num}
	case t.kind == tkString:
		p.advance()
		return &ast.String{Base: ast.NewBase(p.span(begin)), Value: t.str}
	case t.kind == tkIdent:
		p.advance()
		return &ast.Var{Base: ast.NewBase(p.span(begin)), Name: p.in.Intern(t.text)}
	case t.kind == tkKeyword:
		return p.parseKeywordPrimary(begin, t)
	case p.isSym("("):
		p.advance()
		expr := p.parseExpr()
		p.expectSym(")")
		return expr
	case p.isSym("["):
		return p.parseArray(begin)
	case p.isSym("{"):
		return p.parseObject(begin)
	case p.isSym("$"):
		p.advance()
		return &ast.Dollar{Base: ast.NewBase(p.span(begin))}
	}
	p.failAt(t, "unexpected token %q", t.text)
	p.advance()
	return &ast.Null{Base: ast.NewBase(p.span(begin))}
}

func (p *parser) parseKeywordPrimary(begin int, t token) ast.Node {
	switch t.text {
	case "null":
		p.advance()
		return &ast.Null{Base: ast.NewBase(p.span(begin))}
	case "true":
		p.advance()
		return &ast.True{Base: ast.NewBase(p.span(begin))}
	case "false":
		p.advance()
		return &ast.False{Base: ast.NewBase(p.span(begin))}
	case "self":
		p.advance()
		return &ast.Self{Base: ast.NewBase(p.span(begin))}
	case "super":
		p.advance()
		return &ast.Super{Base: ast.NewBase(p.span(begin))}
	case "function":
		p.advance()
		params := p.parseParams()
		body := p.parseExpr()
		return &ast.Function{Base: ast.NewBase(p.span(begin)), Params: params, Body: body}
	case "if":
		p.advance()
		cond := p.parseExpr()
		p.expectKw("then")
		then := p.parseExpr()
		var els ast.Node
		if p.isKw("else") {
			p.advance()
			els = p.parseExpr()
		}
		return &ast.If{Base: ast.NewBase(p.span(begin)), Cond: cond, Then: then, Else: els}
	case "local":
		p.advance()
		binds := p.parseLocalBinds(true)
		p.expectSym(";")
		body := p.parseExpr()
		return &ast.Local{Base: ast.NewBase(p.span(begin)), Binds: binds, Body: body}
	case "assert":
		p.advance()
		a := p.parseAssert()
		p.expectSym(";")
		body := p.parseExpr()
		return &ast.AssertExpr{Base: ast.NewBase(p.span(begin)), Assert: a, Body: body}
	case "error":
		p.advance()
		expr := p.parseExpr()
		return &ast.ErrorExpr{Base: ast.NewBase(p.span(begin)), Expr: expr}
	case "import":
		p.advance()
		path := p.expectStringLiteral()
		return &ast.Import{Base: ast.NewBase(p.span(begin)), Kind: ast.ImportCode, Path: path}
	case "importstr":
		p.advance()
		path := p.expectStringLiteral()
		return &ast.Import{Base: ast.NewBase(p.span(begin)), Kind: ast.ImportString, Path: path}
	case "importbin":
		p.advance()
		path := p.expectStringLiteral()
		return &ast.Import{Base: ast.NewBase(p.span(begin)), Kind: ast.ImportBinary, Path: path}
	}
	p.failAt(t, "unexpected keyword %q in expression position", t.text)
	p.advance()
	return &ast.Null{Base: ast.NewBase(p.span(begin))}
}

func (p *parser) expectStringLiteral() string {
	if p.cur().kind != tkString {
		p.failAt(p.cur(), "expected string literal, found %q", p.cur().text)
		return ""
	}
	return p.advance().str
}

func (p *parser) parseAssert() ast.Assert {
	cond := p.parseExpr()
	var msg ast.Node
	if p.isSym(":") {
		p.advance()
		msg = p.parseExpr()
	}
	return ast.Assert{Cond: cond, Msg: msg}
}

// parseLocalBinds parses the comma-separated bind list of `local a = e, ...`,
// supporting function sugar `local f(x, y=1) = body`. With multi false it
// parses a single bind, as an object-body `local` takes, and leaves a
// following ',' to the caller as the member separator.
func (p *parser) parseLocalBinds(multi bool) []ast.LocalBind {
	var binds []ast.LocalBind
	for {
		name := p.expectIdent()
		var params *ast.Params
		if p.isSym("(") {
			params = p.parseParams()
		}
		p.expectSym("=")
		val := p.parseExpr()
		binds = append(binds, ast.LocalBind{Name: name, Params: params, Value: val})
		if multi && p.isSym(",") {
			p.advance()
			continue
		}
		break
	}
	return binds
}

func (p *parser) parseParams() *ast.Params {
	p.expectSym("(")
	params := &ast.Params{}
	for !p.isSym(")") && p.err == nil {
		if len(params.Positional) > 0 {
			p.expectSym(",")
			if p.isSym(")") {
				break
			}
		}
		name := p.expectIdent()
		var def ast.Node
		if p.isSym("=") {
			p.advance()
			def = p.parseExpr()
		}
		params.Positional = append(params.Positional, ast.Param{Name: name, Default: def})
	}
	p.expectSym(")")
	return params
}

func (p *parser) parseArray(begin int) ast.Node {
	p.expectSym("[")
	if p.isSym("]") {
		p.advance()
		return &ast.Array{Base: ast.NewBase(p.span(begin))}
	}
	first := p.parseExpr()
	if p.isKw("for") {
		return p.parseArrayComp(begin, first)
	}
	elems := []ast.Node{first}
	for p.isSym(",") {
		p.advance()
		if p.isSym("]") {
			break
		}
		elems = append(elems, p.parseExpr())
	}
	p.expectSym("]")
	return &ast.Array{Base: ast.NewBase(p.span(begin)), Elements: elems}
}

func (p *parser) parseCompClauses() []ast.CompClause {
	var clauses []ast.CompClause
	for p.isKw("for") || p.isKw("if") {
		if p.isKw("for") {
			p.advance()
			v := p.expectIdent()
			p.expectKw("in")
			e := p.parseExpr()
			clauses = append(clauses, ast.CompClause{For: &ast.CompFor{Var: v, Expr: e}})
		} else {
			p.advance()
			e := p.parseExpr()
			clauses = append(clauses, ast.CompClause{If: &ast.CompIf{Expr: e}})
		}
	}
	return clauses
}

func (p *parser) parseArrayComp(begin int, body ast.Node) ast.Node {
	clauses := p.parseCompClauses()
	p.expectSym("]")
	return &ast.ArrayComp{Base: ast.NewBase(p.span(begin)), Body: body, Clauses: clauses}
}

func (p *parser) parseObject(begin int) ast.Node {
	p.expectSym("{")
	if p.isSym("}") {
		p.advance()
		return &ast.Object{Base: ast.NewBase(p.span(begin))}
	}

	// Object comprehension: `{ [k]: v for x in arr ... }` or
	// `{ [k]: v for x in arr ... }` with leading `local`s.
	var locals []ast.LocalBind
	for p.isKw("local") {
		p.advance()
		locals = append(locals, p.parseLocalBinds(false)...)
		if !p.isSym("}") {
			p.expectSym(",")
		}
	}
	if p.isSym("[") {
		keyBegin := p.pos
		save := p.pos
		p.advance()
		key := p.parseExpr()
		if p.isSym("]") {
			p.advance()
			plus := false
			if p.isSym("+") {
				p.advance()
				plus = true
			}
			p.expectSym(":")
			val := p.parseExpr()
			if p.isKw("for") {
				clauses := p.parseCompClauses()
				p.expectSym("}")
				return &ast.ObjectComp{
					Base: ast.NewBase(p.span(begin)), KeyExpr: key, ValExpr: val,
					Plus: plus, Clauses: clauses, Locals: locals,
				}
			}
			// not a comprehension: fall through to regular object parsing
			// with this computed field as the first member.
			return p.parseObjectFields(begin, locals, &ast.Field{NameExpr: key, Plus: plus, Value: val})
		}
		_ = keyBegin
		p.pos = save // backtrack: wasn't `[expr]:`, reparse as normal member
	}
	return p.parseObjectFields(begin, locals, nil)
}

// parseObjectFields parses the remaining `name: value, ...` members of a
// plain (non-comprehension) object literal. If first is non-nil it is the
// already-parsed leading computed field consumed by parseObject's lookahead,
// and the first separating comma (if any) has not yet been consumed.
func (p *parser) parseObjectFields(begin int, locals []ast.LocalBind, first *ast.Field) ast.Node {
	obj := &ast.Object{Base: ast.NewBase(source.Span{Source: p.src, Begin: begin}), Locals: locals}
	if first != nil {
		obj.Fields = append(obj.Fields, *first)
	}
	needComma := first != nil
	for !p.isSym("}") && p.err == nil {
		if needComma {
			p.expectSym(",")
			if p.isSym("}") {
				break // trailing comma
			}
		}
		needComma = true

		switch {
		case p.isKw("local"):
			p.advance()
			obj.Locals = append(obj.Locals, p.parseLocalBinds(false)...)
		case p.isKw("assert"):
			p.advance()
			obj.Asserts = append(obj.Asserts, p.parseAssert())
		case p.isSym("["):
			p.advance()
			key := p.parseExpr()
			p.expectSym("]")
			obj.Fields = append(obj.Fields, p.parseFieldTail(nil, true, key))
		case p.cur().kind == tkIdent || p.cur().kind == tkString || p.cur().kind == tkKeyword:
			var nameID interner.ID
			if p.cur().kind == tkString {
				nameID = p.in.Intern(p.advance().str)
			} else {
				nameID = p.in.Intern(p.advance().text)
			}
			var params *ast.Params
			if p.isSym("(") {
				params = p.parseParams()
			}
			field := p.parseFieldTail(&nameID, false, nil)
			field.Params = params
			obj.Fields = append(obj.Fields, field)
		default:
			p.failAt(p.cur(), "unexpected token %q in object body", p.cur().text)
			return obj
		}
	}
	p.expectSym("}")
	obj.Base = ast.NewBase(p.span(begin))
	return obj
}

// parseFieldTail parses the `[+]:[:[:]] value` suffix common to both named
// and computed fields.
func (p *parser) parseFieldTail(nameID *interner.ID, dynamic bool, nameExpr ast.Node) ast.Field {
	plus := false
	if p.isSym("+") {
		p.advance()
		plus = true
	}
	vis := ast.VisNormal
	if p.isSym(":") {
		p.advance()
		if p.isSym(":") {
			p.advance()
			vis = ast.VisHidden
			if p.isSym(":") {
				p.advance()
				vis = ast.VisUnhide
			}
		}
	} else {
		p.failAt(p.cur(), "expected ':' in object field")
	}
	val := p.parseExpr()
	f := ast.Field{Visibility: vis, Plus: plus, Value: val}
	if dynamic {
		f.NameExpr = nameExpr
	} else {
		f.HasName = true
		f.NameID = *nameID
	}
	return f
}
