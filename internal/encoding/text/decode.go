// Package text provides a token scanner and string escaping helpers for the
// protobuf text format. Grammar decisions above the token level (field names,
// nesting, separators) are made by the caller.
package text

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Kind identifies the kind of a Token.
type Kind uint8

const (
	EOF Kind = iota
	// Ident is an identifier: field names, enum value names, and the literals
	// true, false, inf and nan.
	Ident
	// Number is a numeric literal. A leading minus sign is included when it
	// immediately precedes the digits.
	Number
	// String is one or more adjacent quoted strings, already unescaped and
	// concatenated.
	String
	// Punct is a single punctuation character.
	Punct
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "eof"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case Punct:
		return "punctuation"
	}
	return "<invalid>"
}

// Token is a single lexical element of text format input.
type Token struct {
	Kind Kind
	// Raw is the input text of the token. For strings, this includes the
	// quotes of every concatenated literal.
	Raw string
	// Value is the unescaped contents of a String token.
	Value string
	// Pos is the offset of the token in the original input.
	Pos int
}

// IsPunct returns true if the token is the given punctuation character.
func (t Token) IsPunct(c byte) bool {
	return t.Kind == Punct && len(t.Raw) == 1 && t.Raw[0] == c
}

// ErrUnexpectedEOF is returned when the input ends in the middle of a token.
var ErrUnexpectedEOF = fmt.Errorf("unexpected end of input: %w", io.ErrUnexpectedEOF)

// SyntaxError describes malformed input along with its position.
type SyntaxError struct {
	Line, Column int
	Msg          string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error (line %d:%d): %s", e.Line, e.Column, e.Msg)
}

// Decoder reads tokens from text format input.
type Decoder struct {
	orig []byte
	in   []byte

	peeked  bool
	peekTok Token
	peekErr error
}

// NewDecoder returns a Decoder that reads the given input.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{orig: b, in: b}
}

// Peek returns the next token without consuming it.
func (d *Decoder) Peek() (Token, error) {
	if !d.peeked {
		d.peekTok, d.peekErr = d.next()
		d.peeked = true
	}
	return d.peekTok, d.peekErr
}

// Read consumes and returns the next token.
func (d *Decoder) Read() (Token, error) {
	if d.peeked {
		d.peeked = false
		return d.peekTok, d.peekErr
	}
	return d.next()
}

// Offset returns the position of the next unread token.
func (d *Decoder) Offset() int {
	if d.peeked {
		return d.peekTok.Pos
	}
	d.skipSpace()
	return len(d.orig) - len(d.in)
}

// NewSyntaxError returns an error that reports the line and column of the
// given input offset.
func (d *Decoder) NewSyntaxError(pos int, f string, args ...interface{}) error {
	line, col := d.Position(pos)
	return &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf(f, args...)}
}

// Position returns the 1-based line and column of the given offset.
func (d *Decoder) Position(pos int) (line, column int) {
	if pos > len(d.orig) {
		pos = len(d.orig)
	}
	b := d.orig[:pos]
	line = bytes.Count(b, []byte("\n")) + 1
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return line, utf8.RuneCount(b) + 1
}

func (d *Decoder) pos() int {
	return len(d.orig) - len(d.in)
}

func (d *Decoder) skipSpace() {
	for len(d.in) > 0 {
		switch d.in[0] {
		case ' ', '\n', '\r', '\t', '\f', '\v':
			d.in = d.in[1:]
		case '#':
			if i := bytes.IndexByte(d.in, '\n'); i >= 0 {
				d.in = d.in[i+1:]
			} else {
				d.in = d.in[len(d.in):]
			}
		default:
			return
		}
	}
}

func (d *Decoder) next() (Token, error) {
	d.skipSpace()
	start := d.pos()
	if len(d.in) == 0 {
		return Token{Kind: EOF, Pos: start}, nil
	}
	c := d.in[0]
	switch {
	case c == '"' || c == '\'':
		return d.readStrings()
	case isDigit(c), c == '.' && len(d.in) > 1 && isDigit(d.in[1]):
		return d.readNumber(0), nil
	case c == '-' && len(d.in) > 1 && (isDigit(d.in[1]) || d.in[1] == '.'):
		return d.readNumber(1), nil
	case isIdentStart(c):
		n := 1
		for n < len(d.in) && isIdentChar(d.in[n]) {
			n++
		}
		return d.consume(Ident, n), nil
	}
	switch c {
	case '{', '}', '<', '>', '[', ']', ':', ',', ';', '/', '.', '-':
		return d.consume(Punct, 1), nil
	}
	r, _ := utf8.DecodeRune(d.in)
	return Token{}, d.NewSyntaxError(start, "unexpected character %q", r)
}

func (d *Decoder) consume(k Kind, n int) Token {
	tok := Token{Kind: k, Raw: string(d.in[:n]), Pos: d.pos()}
	d.in = d.in[n:]
	return tok
}

func (d *Decoder) readNumber(n int) Token {
	hex := false
	if n+1 < len(d.in) && d.in[n] == '0' && (d.in[n+1] == 'x' || d.in[n+1] == 'X') {
		hex = true
		n += 2
	}
	for n < len(d.in) {
		c := d.in[n]
		switch {
		case isIdentChar(c), c == '.':
			n++
		case (c == '+' || c == '-') && !hex && (d.in[n-1] == 'e' || d.in[n-1] == 'E'):
			n++
		default:
			return d.consume(Number, n)
		}
	}
	return d.consume(Number, n)
}

func (d *Decoder) readStrings() (Token, error) {
	start := d.pos()
	end := start
	var out []byte
	for len(d.in) > 0 && (d.in[0] == '"' || d.in[0] == '\'') {
		s, n, err := unquote(d.in)
		if err != nil {
			var se *SyntaxError
			if errors.As(err, &se) {
				return Token{}, d.NewSyntaxError(d.pos(), "%s", se.Msg)
			}
			return Token{}, err
		}
		out = append(out, s...)
		d.in = d.in[n:]
		end = d.pos()
		d.skipSpace()
	}
	return Token{Kind: String, Raw: string(d.orig[start:end]), Value: string(out), Pos: start}, nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
