// Package sqlparse performs lexical structural analysis of native query
// strings: enough to summarize verb, tables, columns and clause presence
// for defensive validation, deliberately far short of a full SQL parser.
package sqlparse

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenWord
	tokenNumber
	tokenString
	tokenComma
	tokenLParen
	tokenRParen
	tokenSymbol
)

// token carries the literal text and its byte offset in the input, so
// clause regions can be cut from the original string.
type token struct {
	typ  tokenType
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// next returns the next token, skipping whitespace. Words include
// qualified names (users.id) and the star. String literals keep their
// quotes and honor the doubled-quote escape.
func (l *lexer) next() token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	if isWordStart(ch) {
		for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
			l.pos++
		}
		return token{typ: tokenWord, text: l.input[start:l.pos], pos: start}
	}

	if isDigit(ch) {
		for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{typ: tokenNumber, text: l.input[start:l.pos], pos: start}
	}

	if ch == '\'' {
		l.pos++
		for l.pos < len(l.input) {
			if l.input[l.pos] == '\'' {
				if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
					l.pos += 2
					continue
				}
				l.pos++
				break
			}
			l.pos++
		}
		return token{typ: tokenString, text: l.input[start:l.pos], pos: start}
	}

	if ch == '"' {
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != '"' {
			l.pos++
		}
		if l.pos < len(l.input) {
			l.pos++
		}
		return token{typ: tokenString, text: l.input[start:l.pos], pos: start}
	}

	l.pos++
	switch ch {
	case ',':
		return token{typ: tokenComma, text: ",", pos: start}
	case '(':
		return token{typ: tokenLParen, text: "(", pos: start}
	case ')':
		return token{typ: tokenRParen, text: ")", pos: start}
	}
	return token{typ: tokenSymbol, text: string(ch), pos: start}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

func lexAll(input string) []token {
	lx := newLexer(input)
	var toks []token
	for {
		t := lx.next()
		if t.typ == tokenEOF {
			return toks
		}
		toks = append(toks, t)
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isWordStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '*'
}

func isWordChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '.' || ch == '*'
}
