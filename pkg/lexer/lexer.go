package lexer

import (
	"strconv"
	"strings"
	"unicode"
)

// Lexer tokenizes C source code. Preprocessor directives are handled
// here: #pragma lines become TokenPragma, line markers update the
// reported position, object-like macros are expanded and simple
// conditionals are evaluated. Everything else (#include, function-like
// macros) is expected to have been dealt with by an external
// preprocessor and is skipped.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // next reading position
	ch      byte // current character
	line    int
	column  int
	file    string

	lineStart bool // only whitespace seen since the last newline

	macros    map[string]string
	expanding map[string]bool
	pending   []Token
	conds     []cond
}

type cond struct {
	active bool // this branch is being compiled
	taken  bool // some branch of this group was taken
	parent bool // the enclosing group is active
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0, lineStart: true, macros: map[string]string{}}
	l.readChar()
	return l
}

// Define registers an object-like macro, as with -DNAME=value.
func (l *Lexer) Define(name, value string) {
	l.macros[name] = value
}

// File returns the file name set by the most recent line marker.
func (l *Lexer) File() string { return l.file }

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.lineStart = true
	} else if l.ch != ' ' && l.ch != '\t' && l.ch != '\r' && l.pos < len(l.input) && l.readPos > 0 {
		l.lineStart = false
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipping() bool {
	return len(l.conds) > 0 && !l.conds[len(l.conds)-1].active
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}
	for {
		l.skipWhitespace()
		l.skipComments()
		l.skipWhitespace()
		if l.ch == '#' && l.lineStart {
			if tok, ok := l.directive(); ok {
				return tok
			}
			continue
		}
		if l.skipping() && l.ch != 0 {
			l.readChar()
			continue
		}
		break
	}

	tok := l.scan()
	if tok.Type == TokenIdent {
		if exp, ok := l.expand(tok); ok {
			return exp
		}
	}
	return tok
}

func (l *Lexer) scan() Token {
	tok := Token{Line: l.line, Column: l.column, Offset: l.pos}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
		tok.Literal = ""
		tok.End = l.pos
		return tok
	case '"':
		tok.Type = TokenString
		tok.Literal = l.readString()
		tok.End = l.pos
		return tok
	case '\'':
		tok.Type = TokenCharConst
		tok.Literal = l.readCharConst()
		tok.End = l.pos
		return tok
	case '.':
		if isDigit(l.peekChar()) {
			tok.Type = TokenFloatConst
			tok.Literal = l.readNumber()
			tok.End = l.pos
			return tok
		}
	}
	if isLetter(l.ch) {
		tok.Literal = l.readIdentifier()
		tok.Type = LookupIdent(tok.Literal)
		tok.End = l.pos
		return tok
	}
	if isDigit(l.ch) {
		tok.Literal = l.readNumber()
		tok.Type = TokenInt
		if isFloatLiteral(tok.Literal) {
			tok.Type = TokenFloatConst
		}
		tok.End = l.pos
		return tok
	}

	typ, n := l.operator()
	tok.Type = typ
	tok.Literal = l.input[l.pos : l.pos+n]
	for i := 0; i < n; i++ {
		l.readChar()
	}
	tok.End = l.pos
	return tok
}

// operators lists punctuators longest first so that maximal munch picks
// "<<=" before "<<" before "<".
var operators = []struct {
	text string
	typ  TokenType
}{
	{"<<=", TokenShlAssign}, {">>=", TokenShrAssign}, {"...", TokenEllipsis},
	{"->", TokenArrow}, {"++", TokenIncrement}, {"--", TokenDecrement},
	{"<<", TokenShl}, {">>", TokenShr}, {"<=", TokenLe}, {">=", TokenGe},
	{"==", TokenEq}, {"!=", TokenNe}, {"&&", TokenAnd}, {"||", TokenOr},
	{"+=", TokenPlusAssign}, {"-=", TokenMinusAssign}, {"*=", TokenStarAssign},
	{"/=", TokenSlashAssign}, {"%=", TokenPercentAssign}, {"&=", TokenAndAssign},
	{"|=", TokenOrAssign}, {"^=", TokenXorAssign},
	{"+", TokenPlus}, {"-", TokenMinus}, {"*", TokenStar}, {"/", TokenSlash},
	{"%", TokenPercent}, {"=", TokenAssign}, {"<", TokenLt}, {">", TokenGt},
	{"!", TokenNot}, {"&", TokenAmpersand}, {"|", TokenPipe}, {"^", TokenCaret},
	{"~", TokenTilde}, {"?", TokenQuestion}, {":", TokenColon},
	{"(", TokenLParen}, {")", TokenRParen}, {"{", TokenLBrace}, {"}", TokenRBrace},
	{"[", TokenLBracket}, {"]", TokenRBracket}, {";", TokenSemicolon},
	{",", TokenComma}, {".", TokenDot},
}

func (l *Lexer) operator() (TokenType, int) {
	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			return op.typ, len(op.text)
		}
	}
	return TokenIllegal, 1
}

// expand replaces an object-like macro by its replacement tokens, all of
// which are reported at the position of the macro name.
func (l *Lexer) expand(tok Token) (Token, bool) {
	body, ok := l.macros[tok.Literal]
	if !ok || l.expanding[tok.Literal] {
		return tok, false
	}
	sub := New(body)
	sub.macros = l.macros
	sub.expanding = map[string]bool{tok.Literal: true}
	for k := range l.expanding {
		sub.expanding[k] = true
	}
	var toks []Token
	for {
		t := sub.NextToken()
		if t.Type == TokenEOF {
			break
		}
		t.Line, t.Column, t.Offset, t.End = tok.Line, tok.Column, tok.Offset, tok.End
		toks = append(toks, t)
	}
	if len(toks) == 0 {
		return l.NextToken(), true
	}
	l.pending = append(toks[1:], l.pending...)
	return toks[0], true
}

// directive consumes a preprocessor line starting at '#'. It returns a
// token for #pragma lines that are not skipped.
func (l *Lexer) directive() (Token, bool) {
	tok := Token{Type: TokenPragma, Line: l.line, Column: l.column, Offset: l.pos}
	start := l.pos
	for l.ch != 0 && l.ch != '\n' {
		if l.ch == '\\' && l.peekChar() == '\n' {
			l.readChar()
		}
		l.readChar()
	}
	tok.End = l.pos
	text := strings.TrimSpace(strings.ReplaceAll(l.input[start+1:l.pos], "\\\n", " "))
	name, rest := splitWord(text)

	switch name {
	case "ifdef", "ifndef", "if":
		parent := !l.skipping()
		active := parent && l.condition(name, rest)
		l.conds = append(l.conds, cond{active: active, taken: active, parent: parent})
		return tok, false
	case "elif", "else":
		if len(l.conds) == 0 {
			return tok, false
		}
		c := &l.conds[len(l.conds)-1]
		c.active = c.parent && !c.taken && (name == "else" || l.condition("if", rest))
		c.taken = c.taken || c.active
		return tok, false
	case "endif":
		if len(l.conds) > 0 {
			l.conds = l.conds[:len(l.conds)-1]
		}
		return tok, false
	}
	if l.skipping() {
		return tok, false
	}

	switch name {
	case "pragma":
		tok.Literal = strings.Join(strings.Fields(rest), " ")
		return tok, true
	case "define":
		macro, body := splitWord(rest)
		if macro != "" && !strings.Contains(macro, "(") {
			l.macros[macro] = stripComments(body)
		}
	case "undef":
		delete(l.macros, strings.TrimSpace(rest))
	case "line":
		l.lineMarker(rest)
	default:
		if name != "" && isDigit(name[0]) {
			l.lineMarker(text)
		}
	}
	return tok, false
}

// lineMarker handles "# 12 "file.c"": the line after the marker is line 12
// of file.c.
func (l *Lexer) lineMarker(text string) {
	num, rest := splitWord(text)
	n, err := strconv.Atoi(num)
	if err != nil {
		return
	}
	// the newline ending the marker has already been counted
	l.line = n
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "\"") {
		if end := strings.Index(rest[1:], "\""); end >= 0 {
			l.file = rest[1 : end+1]
		}
	}
}

// condition evaluates the controlling expression of #if, #ifdef and
// #ifndef. Only constants, defined() tests, macros with a constant value
// and their negation are understood; anything else is taken to be true.
func (l *Lexer) condition(kind, text string) bool {
	text = strings.TrimSpace(stripComments(text))
	switch kind {
	case "ifdef":
		_, ok := l.macros[text]
		return ok
	case "ifndef":
		_, ok := l.macros[text]
		return !ok
	}
	neg := false
	for strings.HasPrefix(text, "!") {
		neg = !neg
		text = strings.TrimSpace(text[1:])
	}
	val := true
	switch {
	case strings.HasPrefix(text, "defined"):
		name := strings.Trim(strings.TrimSpace(text[len("defined"):]), "() ")
		_, val = l.macros[name]
	default:
		if body, ok := l.macros[text]; ok {
			text = strings.TrimSpace(body)
		}
		if n, err := strconv.ParseInt(text, 0, 64); err == nil {
			val = n != 0
		}
	}
	return val != neg
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func stripComments(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	for {
		i := strings.Index(s, "/*")
		if i < 0 {
			return s
		}
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + " " + s[i+2+j+2:]
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' ||
		(l.ch == '\\' && l.peekChar() == '\n') {
		l.readChar()
	}
}

func (l *Lexer) skipComments() {
	for l.ch == '/' {
		if l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			l.skipWhitespace()
		} else if l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
			l.skipWhitespace()
		} else {
			break
		}
	}
}

func (l *Lexer) readIdentifier() string {
	pos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

// readNumber reads an integer or floating constant including its suffix.
func (l *Lexer) readNumber() string {
	pos := l.pos
	hex := l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X')
	if hex {
		l.readChar()
		l.readChar()
	}
	for {
		switch {
		case isDigit(l.ch) || l.ch == '.':
		case hex && isHexDigit(l.ch):
		case !hex && (l.ch == 'e' || l.ch == 'E'):
			if l.peekChar() == '+' || l.peekChar() == '-' {
				l.readChar()
			}
		case hex && (l.ch == 'p' || l.ch == 'P'):
			if l.peekChar() == '+' || l.peekChar() == '-' {
				l.readChar()
			}
		case isLetter(l.ch):
			// suffix
		default:
			return l.input[pos:l.pos]
		}
		l.readChar()
	}
}

func isFloatLiteral(lit string) bool {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		return strings.ContainsAny(lit, ".pP")
	}
	return strings.ContainsAny(lit, ".eE")
}

func (l *Lexer) readString() string {
	l.readChar() // consume opening quote
	pos := l.pos
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar() // skip escape char
		}
		l.readChar()
	}
	str := l.input[pos:l.pos]
	l.readChar() // consume closing quote
	return str
}

func (l *Lexer) readCharConst() string {
	l.readChar()
	pos := l.pos
	for l.ch != '\'' && l.ch != 0 && l.ch != '\n' {
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	str := l.input[pos:l.pos]
	if l.ch == '\'' {
		l.readChar()
	}
	return str
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
