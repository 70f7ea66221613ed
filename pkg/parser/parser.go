// Package parser implements a recursive descent parser for C
package parser

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/lexer"
)

// Parser parses C source code into a Cabs AST. Pragma tokens are taken
// out of the token stream and collected separately.
type Parser struct {
	l         *lexer.Lexer
	prevToken lexer.Token
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
	typedefs  map[string]bool // typedef names in scope
	pragmas   []cabs.Pragma
}

// New creates a new Parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:        l,
		typedefs: make(map[string]bool),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	for {
		tok := p.l.NextToken()
		if tok.Type != lexer.TokenPragma {
			p.peekToken = tok
			return
		}
		p.pragmas = append(p.pragmas, cabs.Pragma{
			Span: cabs.Span{Start: tok.Offset, End: tok.End, Line: tok.Line, Column: tok.Column, EndLine: tok.Line},
			Text: tok.Literal,
		})
	}
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.curToken.Type))
	return false
}

// span covers the tokens from start up to the last consumed token.
func (p *Parser) span(start lexer.Token) cabs.Span {
	return cabs.Span{
		Start: start.Offset, End: p.prevToken.End,
		Line: start.Line, Column: start.Column,
		EndLine: p.prevToken.Line,
	}
}

func (p *Parser) spanFrom(n cabs.Node) cabs.Span {
	if n == nil {
		return p.span(p.prevToken)
	}
	s := n.Range()
	s.End = p.prevToken.End
	s.EndLine = p.prevToken.Line
	return s
}

// ParseProgram parses a whole translation unit.
func (p *Parser) ParseProgram() *cabs.Program {
	prog := &cabs.Program{}
	for !p.curTokenIs(lexer.TokenEOF) {
		n := len(p.errors)
		prog.Definitions = append(prog.Definitions, p.parseExternal()...)
		if len(p.errors) > n {
			p.synchronize()
		}
	}
	prog.Pragmas = p.pragmas
	return prog
}

// ParseDefinition parses a single top-level declaration and returns its
// first definition.
func (p *Parser) ParseDefinition() cabs.Definition {
	defs := p.parseExternal()
	if len(defs) == 0 {
		return nil
	}
	return defs[0]
}

// synchronize skips to the end of the current declaration after an error.
func (p *Parser) synchronize() {
	depth := 0
	for !p.curTokenIs(lexer.TokenEOF) {
		switch p.curToken.Type {
		case lexer.TokenLBrace:
			depth++
		case lexer.TokenRBrace:
			depth--
			if depth <= 0 {
				p.nextToken()
				return
			}
		case lexer.TokenSemicolon:
			if depth == 0 {
				p.nextToken()
				return
			}
		}
		p.nextToken()
	}
}

// declSpec holds the parsed declaration specifiers.
type declSpec struct {
	storage string
	typedef bool
	inline  bool
	typ     string
	attrs   []cabs.Attribute
	tagDef  cabs.Definition
}

// declarator holds one parsed declarator.
type declarator struct {
	name     string
	typ      string
	dims     []cabs.Expr
	isFunc   bool
	params   []cabs.Param
	variadic bool
	attrs    []cabs.Attribute
}

func (p *Parser) parseExternal() []cabs.Definition {
	start := p.curToken
	if p.curTokenIs(lexer.TokenSemicolon) {
		p.nextToken()
		return nil
	}
	spec, ok := p.parseDeclSpec()
	if !ok {
		return nil
	}
	var defs []cabs.Definition
	if spec.tagDef != nil && !spec.typedef {
		defs = append(defs, spec.tagDef)
	}
	if p.curTokenIs(lexer.TokenSemicolon) {
		p.nextToken()
		return defs
	}
	for {
		d, ok := p.parseDeclarator(spec.typ, false)
		if !ok {
			return defs
		}
		switch {
		case d.isFunc:
			fd := cabs.FunDef{
				Storage:    spec.storage,
				Inline:     spec.inline,
				ReturnType: d.typ,
				Name:       d.name,
				Params:     d.params,
				Variadic:   d.variadic,
				Attrs:      append(append([]cabs.Attribute(nil), spec.attrs...), d.attrs...),
			}
			if p.curTokenIs(lexer.TokenLBrace) {
				fd.Body = p.parseBlock()
				fd.Span = p.span(start)
				return append(defs, fd)
			}
			fd.Span = p.span(start)
			defs = append(defs, fd)
		case spec.typedef:
			p.typedefs[d.name] = true
			defs = append(defs, cabs.TypedefDef{
				Span:       p.span(start),
				Name:       d.name,
				TypeSpec:   d.typ,
				ArrayDims:  d.dims,
				InlineType: spec.tagDef,
			})
		default:
			decl := cabs.Decl{Storage: spec.storage, TypeSpec: d.typ, Name: d.name, ArrayDims: d.dims}
			if p.curTokenIs(lexer.TokenAssign) {
				p.nextToken()
				decl.Initializer = p.parseInitializer()
			}
			decl.Span = p.span(start)
			defs = append(defs, cabs.VarDef{Decl: decl})
		}
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(lexer.TokenSemicolon)
	return defs
}

func isBaseType(t lexer.TokenType) bool {
	switch t {
	case lexer.TokenVoid, lexer.TokenChar, lexer.TokenShort, lexer.TokenInt_,
		lexer.TokenLong, lexer.TokenFloat, lexer.TokenDouble,
		lexer.TokenSigned, lexer.TokenUnsigned, lexer.TokenBool:
		return true
	}
	return false
}

// isTypeStart reports whether tok can begin a declaration.
func (p *Parser) isTypeStart(tok lexer.Token) bool {
	if isBaseType(tok.Type) {
		return true
	}
	switch tok.Type {
	case lexer.TokenStruct, lexer.TokenUnion, lexer.TokenEnum,
		lexer.TokenConst, lexer.TokenVolatile, lexer.TokenRestrict,
		lexer.TokenStatic, lexer.TokenExtern, lexer.TokenAuto, lexer.TokenRegister,
		lexer.TokenTypedef, lexer.TokenInline, lexer.TokenAttribute:
		return true
	case lexer.TokenIdent:
		return p.typedefs[tok.Literal]
	}
	return false
}

func (p *Parser) parseDeclSpec() (declSpec, bool) {
	var spec declSpec
	var words []string
loop:
	for {
		tok := p.curToken
		switch {
		case tok.Type == lexer.TokenTypedef:
			spec.typedef = true
		case tok.Type == lexer.TokenStatic || tok.Type == lexer.TokenExtern ||
			tok.Type == lexer.TokenAuto || tok.Type == lexer.TokenRegister:
			spec.storage = tok.Literal
		case tok.Type == lexer.TokenInline:
			spec.inline = true
		case tok.Type == lexer.TokenConst || tok.Type == lexer.TokenVolatile ||
			tok.Type == lexer.TokenRestrict:
		case tok.Type == lexer.TokenAttribute:
			spec.attrs = append(spec.attrs, p.parseAttributes()...)
			continue
		case isBaseType(tok.Type):
			lit := tok.Literal
			if lit == "bool" {
				lit = "_Bool"
			}
			words = append(words, lit)
		case tok.Type == lexer.TokenStruct || tok.Type == lexer.TokenUnion ||
			tok.Type == lexer.TokenEnum:
			if len(words) > 0 {
				break loop
			}
			typ, def, ok := p.parseTagged()
			if !ok {
				return spec, false
			}
			words = append(words, typ)
			spec.tagDef = def
			continue
		case tok.Type == lexer.TokenIdent && p.typedefs[tok.Literal] && len(words) == 0:
			words = append(words, tok.Literal)
		default:
			break loop
		}
		p.nextToken()
	}
	if len(words) == 0 {
		p.addError(fmt.Sprintf("expected type specifier, got %s", p.curToken.Type))
		return spec, false
	}
	spec.typ = strings.Join(words, " ")
	return spec, true
}

// parseTagged parses struct, union and enum specifiers, with or without a
// body.
func (p *Parser) parseTagged() (string, cabs.Definition, bool) {
	start := p.curToken
	kind := p.curToken.Literal
	p.nextToken()
	for p.curTokenIs(lexer.TokenAttribute) {
		p.parseAttributes()
	}
	name := ""
	if p.curTokenIs(lexer.TokenIdent) {
		name = p.curToken.Literal
		p.nextToken()
	}
	typ := strings.TrimSpace(kind + " " + name)
	if !p.curTokenIs(lexer.TokenLBrace) {
		if name == "" {
			p.addError(fmt.Sprintf("expected %s tag or body, got %s", kind, p.curToken.Type))
			return "", nil, false
		}
		return typ, nil, true
	}
	p.nextToken()
	if kind == "enum" {
		var vals []cabs.EnumVal
		for p.curTokenIs(lexer.TokenIdent) {
			v := cabs.EnumVal{Name: p.curToken.Literal}
			p.nextToken()
			if p.curTokenIs(lexer.TokenAssign) {
				p.nextToken()
				v.Value = p.parseConditional()
			}
			vals = append(vals, v)
			if !p.curTokenIs(lexer.TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.expect(lexer.TokenRBrace) {
			return "", nil, false
		}
		return typ, cabs.EnumDef{Span: p.span(start), Name: name, Values: vals}, true
	}
	var fields []cabs.Field
	for !p.curTokenIs(lexer.TokenRBrace) && !p.curTokenIs(lexer.TokenEOF) {
		spec, ok := p.parseDeclSpec()
		if !ok {
			return "", nil, false
		}
		for {
			d, ok := p.parseDeclarator(spec.typ, false)
			if !ok {
				return "", nil, false
			}
			if p.curTokenIs(lexer.TokenColon) {
				p.nextToken()
				p.parseConditional()
			}
			fields = append(fields, cabs.Field{TypeSpec: d.typ, Name: d.name, ArrayDims: d.dims})
			if !p.curTokenIs(lexer.TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.expect(lexer.TokenSemicolon) {
			return "", nil, false
		}
	}
	if !p.expect(lexer.TokenRBrace) {
		return "", nil, false
	}
	if kind == "union" {
		return typ, cabs.UnionDef{Span: p.span(start), Name: name, Fields: fields}, true
	}
	return typ, cabs.StructDef{Span: p.span(start), Name: name, Fields: fields}, true
}

// parseAttributes parses __attribute__((a, b(x, y))).
func (p *Parser) parseAttributes() []cabs.Attribute {
	p.nextToken()
	if !p.expect(lexer.TokenLParen) || !p.expect(lexer.TokenLParen) {
		return nil
	}
	var attrs []cabs.Attribute
	for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
		a := cabs.Attribute{Name: p.curToken.Literal}
		p.nextToken()
		if p.curTokenIs(lexer.TokenLParen) {
			p.nextToken()
			depth := 0
			var arg []string
			for !p.curTokenIs(lexer.TokenEOF) && (depth > 0 || !p.curTokenIs(lexer.TokenRParen)) {
				switch {
				case p.curTokenIs(lexer.TokenLParen):
					depth++
				case p.curTokenIs(lexer.TokenRParen):
					depth--
				case p.curTokenIs(lexer.TokenComma) && depth == 0:
					a.Args = append(a.Args, strings.Join(arg, " "))
					arg = nil
					p.nextToken()
					continue
				}
				arg = append(arg, p.curToken.Literal)
				p.nextToken()
			}
			if len(arg) > 0 {
				a.Args = append(a.Args, strings.Join(arg, " "))
			}
			p.expect(lexer.TokenRParen)
		}
		attrs = append(attrs, a)
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenRParen)
	return attrs
}

// parseDeclarator parses pointers, the declared name, array dimensions
// and function parameter lists. Abstract declarators (without a name) are
// accepted when abstract is set.
func (p *Parser) parseDeclarator(base string, abstract bool) (declarator, bool) {
	d := declarator{typ: base}
	for p.curTokenIs(lexer.TokenStar) {
		if strings.HasSuffix(d.typ, "*") {
			d.typ += "*"
		} else {
			d.typ += " *"
		}
		p.nextToken()
		for p.curTokenIs(lexer.TokenConst) || p.curTokenIs(lexer.TokenVolatile) || p.curTokenIs(lexer.TokenRestrict) {
			p.nextToken()
		}
	}
	for p.curTokenIs(lexer.TokenAttribute) {
		d.attrs = append(d.attrs, p.parseAttributes()...)
	}
	switch {
	case p.curTokenIs(lexer.TokenIdent):
		d.name = p.curToken.Literal
		p.nextToken()
	case p.curTokenIs(lexer.TokenLParen) && !abstract:
		p.addError("unsupported declarator")
		return d, false
	case !abstract:
		p.addError(fmt.Sprintf("expected identifier, got %s", p.curToken.Type))
		return d, false
	}
	for p.curTokenIs(lexer.TokenLBracket) {
		p.nextToken()
		for p.curTokenIs(lexer.TokenStatic) || p.curTokenIs(lexer.TokenConst) || p.curTokenIs(lexer.TokenRestrict) {
			p.nextToken()
		}
		if p.curTokenIs(lexer.TokenRBracket) {
			d.dims = append(d.dims, nil)
		} else {
			d.dims = append(d.dims, p.parseAssignment())
		}
		if !p.expect(lexer.TokenRBracket) {
			return d, false
		}
	}
	if p.curTokenIs(lexer.TokenLParen) && d.name != "" {
		d.isFunc = true
		if !p.parseParams(&d) {
			return d, false
		}
	}
	for p.curTokenIs(lexer.TokenAttribute) {
		d.attrs = append(d.attrs, p.parseAttributes()...)
	}
	return d, true
}

func (p *Parser) parseParams(d *declarator) bool {
	p.nextToken() // consume '('
	if p.curTokenIs(lexer.TokenVoid) && p.peekTokenIs(lexer.TokenRParen) {
		p.nextToken()
	}
	for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
		if p.curTokenIs(lexer.TokenEllipsis) {
			d.variadic = true
			p.nextToken()
			break
		}
		start := p.curToken
		spec, ok := p.parseDeclSpec()
		if !ok {
			return false
		}
		pd, ok := p.parseDeclarator(spec.typ, true)
		if !ok {
			return false
		}
		d.params = append(d.params, cabs.Param{Span: p.span(start), TypeSpec: pd.typ, Name: pd.name, ArrayDims: pd.dims})
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	return p.expect(lexer.TokenRParen)
}

func (p *Parser) parseInitializer() cabs.Expr {
	if !p.curTokenIs(lexer.TokenLBrace) {
		return p.parseAssignment()
	}
	start := p.curToken
	p.nextToken()
	var items []cabs.Expr
	for !p.curTokenIs(lexer.TokenRBrace) && !p.curTokenIs(lexer.TokenEOF) {
		items = append(items, p.parseInitializer())
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(lexer.TokenRBrace)
	return cabs.InitList{Span: p.span(start), Items: items}
}

func (p *Parser) parseBlock() *cabs.Block {
	start := p.curToken
	block := &cabs.Block{Items: []cabs.Stmt{}}

	p.nextToken() // consume '{'

	for !p.curTokenIs(lexer.TokenRBrace) && !p.curTokenIs(lexer.TokenEOF) {
		before := p.curToken.Offset
		stmt := p.parseStatement()
		if stmt != nil {
			block.Items = append(block.Items, stmt)
		}
		if p.curToken.Offset == before && !p.curTokenIs(lexer.TokenRBrace) {
			p.nextToken()
		}
	}

	p.expect(lexer.TokenRBrace)
	block.Span = p.span(start)
	return block
}

func (p *Parser) parseStatement() cabs.Stmt {
	start := p.curToken
	switch p.curToken.Type {
	case lexer.TokenLBrace:
		return p.parseBlock()
	case lexer.TokenReturn:
		p.nextToken()
		var expr cabs.Expr
		if !p.curTokenIs(lexer.TokenSemicolon) {
			expr = p.parseExpression()
		}
		p.expect(lexer.TokenSemicolon)
		return cabs.Return{Span: p.span(start), Expr: expr}
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		p.nextToken()
		cond := p.parseCondition()
		body := p.parseStatement()
		return cabs.While{Span: p.span(start), Cond: cond, Body: body}
	case lexer.TokenDo:
		p.nextToken()
		body := p.parseStatement()
		if !p.expect(lexer.TokenWhile) {
			return nil
		}
		cond := p.parseCondition()
		p.expect(lexer.TokenSemicolon)
		return cabs.DoWhile{Span: p.span(start), Body: body, Cond: cond}
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenBreak:
		p.nextToken()
		p.expect(lexer.TokenSemicolon)
		return cabs.Break{Span: p.span(start)}
	case lexer.TokenContinue:
		p.nextToken()
		p.expect(lexer.TokenSemicolon)
		return cabs.Continue{Span: p.span(start)}
	case lexer.TokenSwitch:
		p.nextToken()
		expr := p.parseCondition()
		body := p.parseStatement()
		return cabs.Switch{Span: p.span(start), Expr: expr, Body: body}
	case lexer.TokenCase, lexer.TokenDefault:
		var expr cabs.Expr
		if p.curTokenIs(lexer.TokenCase) {
			p.nextToken()
			expr = p.parseConditional()
		} else {
			p.nextToken()
		}
		p.expect(lexer.TokenColon)
		stmt := p.parseStatement()
		return cabs.Case{Span: p.span(start), Expr: expr, Stmt: stmt}
	case lexer.TokenGoto:
		p.nextToken()
		label := p.curToken.Literal
		p.expect(lexer.TokenIdent)
		p.expect(lexer.TokenSemicolon)
		return cabs.Goto{Span: p.span(start), Label: label}
	case lexer.TokenSemicolon:
		p.nextToken()
		return cabs.Empty{Span: p.span(start)}
	case lexer.TokenIdent:
		if p.peekTokenIs(lexer.TokenColon) && !p.typedefs[p.curToken.Literal] {
			name := p.curToken.Literal
			p.nextToken()
			p.nextToken()
			stmt := p.parseStatement()
			return cabs.Label{Span: p.span(start), Name: name, Stmt: stmt}
		}
	}
	if p.isTypeStart(p.curToken) {
		decls, ok := p.parseLocalDecls()
		if !ok {
			return nil
		}
		p.expect(lexer.TokenSemicolon)
		return cabs.DeclStmt{Span: p.span(start), Decls: decls}
	}
	expr := p.parseExpression()
	p.expect(lexer.TokenSemicolon)
	return cabs.Computation{Span: p.span(start), Expr: expr}
}

// parseCondition parses a parenthesized controlling expression.
func (p *Parser) parseCondition() cabs.Expr {
	if !p.expect(lexer.TokenLParen) {
		return nil
	}
	cond := p.parseExpression()
	p.expect(lexer.TokenRParen)
	return cond
}

func (p *Parser) parseIf() cabs.Stmt {
	start := p.curToken
	p.nextToken()
	cond := p.parseCondition()
	then := p.parseStatement()
	var els cabs.Stmt
	if p.curTokenIs(lexer.TokenElse) {
		p.nextToken()
		els = p.parseStatement()
	}
	return cabs.If{Span: p.span(start), Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseFor() cabs.Stmt {
	start := p.curToken
	p.nextToken()
	if !p.expect(lexer.TokenLParen) {
		return nil
	}
	f := cabs.For{}
	if p.isTypeStart(p.curToken) {
		decls, ok := p.parseLocalDecls()
		if !ok {
			return nil
		}
		f.InitDecl = decls
	} else if !p.curTokenIs(lexer.TokenSemicolon) {
		f.Init = p.parseExpression()
	}
	p.expect(lexer.TokenSemicolon)
	if !p.curTokenIs(lexer.TokenSemicolon) {
		f.Cond = p.parseExpression()
	}
	p.expect(lexer.TokenSemicolon)
	if !p.curTokenIs(lexer.TokenRParen) {
		f.Step = p.parseExpression()
	}
	p.expect(lexer.TokenRParen)
	f.Body = p.parseStatement()
	f.Span = p.span(start)
	return f
}

// parseLocalDecls parses a declaration inside a function, without the
// terminating semicolon. Local typedefs are registered and produce no
// declarations.
func (p *Parser) parseLocalDecls() ([]cabs.Decl, bool) {
	start := p.curToken
	spec, ok := p.parseDeclSpec()
	if !ok {
		return nil, false
	}
	var decls []cabs.Decl
	if p.curTokenIs(lexer.TokenSemicolon) {
		return decls, true
	}
	for {
		d, ok := p.parseDeclarator(spec.typ, false)
		if !ok {
			return nil, false
		}
		if spec.typedef {
			p.typedefs[d.name] = true
		} else {
			decl := cabs.Decl{Storage: spec.storage, TypeSpec: d.typ, Name: d.name, ArrayDims: d.dims}
			if p.curTokenIs(lexer.TokenAssign) {
				p.nextToken()
				decl.Initializer = p.parseInitializer()
			}
			decl.Span = p.span(start)
			decls = append(decls, decl)
		}
		if !p.curTokenIs(lexer.TokenComma) {
			return decls, true
		}
		p.nextToken()
		start = p.curToken
	}
}

// parseExpression parses a full expression, including the comma operator.
func (p *Parser) parseExpression() cabs.Expr {
	left := p.parseAssignment()
	for p.curTokenIs(lexer.TokenComma) {
		p.nextToken()
		right := p.parseAssignment()
		left = cabs.Binary{Span: p.spanFrom(left), Op: cabs.OpComma, Left: left, Right: right}
	}
	return left
}

var assignOps = map[lexer.TokenType]cabs.BinaryOp{
	lexer.TokenAssign:        cabs.OpAssign,
	lexer.TokenPlusAssign:    cabs.OpAddAssign,
	lexer.TokenMinusAssign:   cabs.OpSubAssign,
	lexer.TokenStarAssign:    cabs.OpMulAssign,
	lexer.TokenSlashAssign:   cabs.OpDivAssign,
	lexer.TokenPercentAssign: cabs.OpModAssign,
	lexer.TokenAndAssign:     cabs.OpAndAssign,
	lexer.TokenOrAssign:      cabs.OpOrAssign,
	lexer.TokenXorAssign:     cabs.OpXorAssign,
	lexer.TokenShlAssign:     cabs.OpShlAssign,
	lexer.TokenShrAssign:     cabs.OpShrAssign,
}

func (p *Parser) parseAssignment() cabs.Expr {
	left := p.parseConditional()
	if op, ok := assignOps[p.curToken.Type]; ok {
		p.nextToken()
		right := p.parseAssignment()
		return cabs.Binary{Span: p.spanFrom(left), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseConditional() cabs.Expr {
	cond := p.parseBinary(1)
	if !p.curTokenIs(lexer.TokenQuestion) {
		return cond
	}
	p.nextToken()
	then := p.parseExpression()
	p.expect(lexer.TokenColon)
	els := p.parseConditional()
	return cabs.Conditional{Span: p.spanFrom(cond), Cond: cond, Then: then, Else: els}
}

type binaryInfo struct {
	op   cabs.BinaryOp
	prec int
}

var binaryOps = map[lexer.TokenType]binaryInfo{
	lexer.TokenOr:        {cabs.OpOr, 1},
	lexer.TokenAnd:       {cabs.OpAnd, 2},
	lexer.TokenPipe:      {cabs.OpBitOr, 3},
	lexer.TokenCaret:     {cabs.OpBitXor, 4},
	lexer.TokenAmpersand: {cabs.OpBitAnd, 5},
	lexer.TokenEq:        {cabs.OpEq, 6},
	lexer.TokenNe:        {cabs.OpNe, 6},
	lexer.TokenLt:        {cabs.OpLt, 7},
	lexer.TokenLe:        {cabs.OpLe, 7},
	lexer.TokenGt:        {cabs.OpGt, 7},
	lexer.TokenGe:        {cabs.OpGe, 7},
	lexer.TokenShl:       {cabs.OpShl, 8},
	lexer.TokenShr:       {cabs.OpShr, 8},
	lexer.TokenPlus:      {cabs.OpAdd, 9},
	lexer.TokenMinus:     {cabs.OpSub, 9},
	lexer.TokenStar:      {cabs.OpMul, 10},
	lexer.TokenSlash:     {cabs.OpDiv, 10},
	lexer.TokenPercent:   {cabs.OpMod, 10},
}

// parseBinary parses binary operators of precedence at least minPrec by
// precedence climbing; all of them are left associative.
func (p *Parser) parseBinary(minPrec int) cabs.Expr {
	left := p.parseCast()
	for {
		info, ok := binaryOps[p.curToken.Type]
		if !ok || info.prec < minPrec {
			return left
		}
		p.nextToken()
		right := p.parseBinary(info.prec + 1)
		left = cabs.Binary{Span: p.spanFrom(left), Op: info.op, Left: left, Right: right}
	}
}

func (p *Parser) parseCast() cabs.Expr {
	if p.curTokenIs(lexer.TokenLParen) && p.isTypeStart(p.peekToken) {
		start := p.curToken
		p.nextToken()
		name := p.parseTypeName()
		p.expect(lexer.TokenRParen)
		operand := p.parseCast()
		return cabs.Cast{Span: p.span(start), TypeName: name, Expr: operand}
	}
	return p.parseUnary()
}

func (p *Parser) parseTypeName() string {
	spec, ok := p.parseDeclSpec()
	if !ok {
		return ""
	}
	d, _ := p.parseDeclarator(spec.typ, true)
	return d.typ
}

var unaryOps = map[lexer.TokenType]cabs.UnaryOp{
	lexer.TokenMinus:     cabs.OpNeg,
	lexer.TokenPlus:      cabs.OpPlus,
	lexer.TokenNot:       cabs.OpNot,
	lexer.TokenTilde:     cabs.OpBitNot,
	lexer.TokenAmpersand: cabs.OpAddrOf,
	lexer.TokenStar:      cabs.OpDeref,
	lexer.TokenIncrement: cabs.OpPreInc,
	lexer.TokenDecrement: cabs.OpPreDec,
}

func (p *Parser) parseUnary() cabs.Expr {
	start := p.curToken
	if op, ok := unaryOps[p.curToken.Type]; ok {
		p.nextToken()
		var operand cabs.Expr
		if op == cabs.OpPreInc || op == cabs.OpPreDec {
			operand = p.parseUnary()
		} else {
			operand = p.parseCast()
		}
		return cabs.Unary{Span: p.span(start), Op: op, Expr: operand}
	}
	if p.curTokenIs(lexer.TokenSizeof) {
		p.nextToken()
		if p.curTokenIs(lexer.TokenLParen) && p.isTypeStart(p.peekToken) {
			p.nextToken()
			name := p.parseTypeName()
			p.expect(lexer.TokenRParen)
			return cabs.SizeofType{Span: p.span(start), TypeName: name}
		}
		operand := p.parseUnary()
		return cabs.SizeofExpr{Span: p.span(start), Expr: operand}
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePostfix(expr cabs.Expr) cabs.Expr {
	for expr != nil {
		switch p.curToken.Type {
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpression()
			p.expect(lexer.TokenRBracket)
			expr = cabs.Index{Span: p.spanFrom(expr), Array: expr, Index: idx}
		case lexer.TokenLParen:
			p.nextToken()
			var args []cabs.Expr
			for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
				args = append(args, p.parseAssignment())
				if !p.curTokenIs(lexer.TokenComma) {
					break
				}
				p.nextToken()
			}
			p.expect(lexer.TokenRParen)
			expr = cabs.Call{Span: p.spanFrom(expr), Func: expr, Args: args}
		case lexer.TokenDot, lexer.TokenArrow:
			arrow := p.curTokenIs(lexer.TokenArrow)
			p.nextToken()
			name := p.curToken.Literal
			if !p.expect(lexer.TokenIdent) {
				return expr
			}
			expr = cabs.Member{Span: p.spanFrom(expr), Expr: expr, Name: name, IsArrow: arrow}
		case lexer.TokenIncrement:
			p.nextToken()
			expr = cabs.Unary{Span: p.spanFrom(expr), Op: cabs.OpPostInc, Expr: expr}
		case lexer.TokenDecrement:
			p.nextToken()
			expr = cabs.Unary{Span: p.spanFrom(expr), Op: cabs.OpPostDec, Expr: expr}
		default:
			return expr
		}
	}
	return expr
}

func (p *Parser) parsePrimary() cabs.Expr {
	start := p.curToken
	switch p.curToken.Type {
	case lexer.TokenIdent:
		p.nextToken()
		return cabs.Variable{Span: p.span(start), Name: start.Literal}
	case lexer.TokenInt:
		p.nextToken()
		return cabs.Constant{Span: p.span(start), Text: start.Literal}
	case lexer.TokenFloatConst:
		p.nextToken()
		return cabs.FloatConst{Span: p.span(start), Text: start.Literal}
	case lexer.TokenCharConst:
		p.nextToken()
		return cabs.CharLiteral{Span: p.span(start), Value: start.Literal}
	case lexer.TokenString:
		value := ""
		for p.curTokenIs(lexer.TokenString) {
			value += p.curToken.Literal
			p.nextToken()
		}
		return cabs.StringLiteral{Span: p.span(start), Value: value}
	case lexer.TokenLParen:
		p.nextToken()
		inner := p.parseExpression()
		p.expect(lexer.TokenRParen)
		return cabs.Paren{Span: p.span(start), Expr: inner}
	}
	p.addError(fmt.Sprintf("expected expression, got %s", p.curToken.Type))
	return nil
}
