// Package irtext reads and writes the textual form of IR functions. The
// format is line-oriented: a function header naming the signature and calling
// convention, then labeled blocks of instructions over numbered values.
//
//	function %fib(i64) -> i64 aapcs64 {
//	block0(v0: i64):
//	    v1 = iconst.i64 2
//	    v2 = icmp ult v0, v1
//	    brif v2, block1, block2
//	...
//	}
package irtext

import "fmt"

// TokenType classifies one lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenIdent
	TokenSym // %name
	TokenInt
	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenComma
	TokenColon
	TokenAssign
	TokenArrow
	TokenPlus
	TokenDot
)

var tokenNames = map[TokenType]string{
	TokenEOF: "EOF", TokenIllegal: "ILLEGAL", TokenIdent: "IDENT",
	TokenSym: "SYM", TokenInt: "INT",
	TokenLParen: "(", TokenRParen: ")", TokenLBrace: "{", TokenRBrace: "}",
	TokenComma: ",", TokenColon: ":", TokenAssign: "=", TokenArrow: "->",
	TokenPlus: "+", TokenDot: ".",
}

func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexical token with its source position.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// Scanner tokenizes IR text.
type Scanner struct {
	input   string
	pos     int
	readPos int
	ch      byte
	line    int
	column  int
}

// NewScanner creates a Scanner for the given input.
func NewScanner(input string) *Scanner {
	s := &Scanner{input: input, line: 1, column: 0}
	s.readChar()
	return s
}

func (s *Scanner) readChar() {
	if s.readPos >= len(s.input) {
		s.ch = 0
	} else {
		s.ch = s.input[s.readPos]
	}
	s.pos = s.readPos
	s.readPos++
	s.column++

	if s.ch == '\n' {
		s.line++
		s.column = 0
	}
}

func (s *Scanner) peekChar() byte {
	if s.readPos >= len(s.input) {
		return 0
	}
	return s.input[s.readPos]
}

func (s *Scanner) skipSpaceAndComments() {
	for {
		for s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r' {
			s.readChar()
		}
		if s.ch == ';' {
			for s.ch != '\n' && s.ch != 0 {
				s.readChar()
			}
			continue
		}
		return
	}
}

// Next returns the next token from the input.
func (s *Scanner) Next() Token {
	s.skipSpaceAndComments()

	tok := Token{Line: s.line, Column: s.column}

	switch {
	case s.ch == 0:
		tok.Type = TokenEOF
	case s.ch == '(':
		tok = s.punct(TokenLParen)
	case s.ch == ')':
		tok = s.punct(TokenRParen)
	case s.ch == '{':
		tok = s.punct(TokenLBrace)
	case s.ch == '}':
		tok = s.punct(TokenRBrace)
	case s.ch == ',':
		tok = s.punct(TokenComma)
	case s.ch == ':':
		tok = s.punct(TokenColon)
	case s.ch == '=':
		tok = s.punct(TokenAssign)
	case s.ch == '+':
		tok = s.punct(TokenPlus)
	case s.ch == '.':
		tok = s.punct(TokenDot)
	case s.ch == '-':
		if s.peekChar() == '>' {
			tok.Type = TokenArrow
			tok.Literal = "->"
			s.readChar()
			s.readChar()
		} else if isDigit(s.peekChar()) {
			tok.Type = TokenInt
			tok.Literal = s.readNumber()
		} else {
			tok = s.punct(TokenIllegal)
		}
	case s.ch == '%':
		s.readChar()
		tok.Type = TokenSym
		tok.Literal = s.readIdent()
	case isDigit(s.ch):
		tok.Type = TokenInt
		tok.Literal = s.readNumber()
	case isLetter(s.ch):
		tok.Type = TokenIdent
		tok.Literal = s.readIdent()
	default:
		tok = s.punct(TokenIllegal)
	}
	return tok
}

func (s *Scanner) punct(t TokenType) Token {
	tok := Token{Type: t, Literal: string(s.ch), Line: s.line, Column: s.column}
	s.readChar()
	return tok
}

func (s *Scanner) readIdent() string {
	start := s.pos
	for isLetter(s.ch) || isDigit(s.ch) {
		s.readChar()
	}
	return s.input[start:s.pos]
}

func (s *Scanner) readNumber() string {
	start := s.pos
	if s.ch == '-' {
		s.readChar()
	}
	if s.ch == '0' && (s.peekChar() == 'x' || s.peekChar() == 'X') {
		s.readChar()
		s.readChar()
		for isHexDigit(s.ch) {
			s.readChar()
		}
		return s.input[start:s.pos]
	}
	for isDigit(s.ch) {
		s.readChar()
	}
	return s.input[start:s.pos]
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}
