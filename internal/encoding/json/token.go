package json

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind represents a token kind expressible in the JSON format.
type Kind uint16

const (
	Invalid Kind = (1 << iota) / 2
	EOF
	Null
	Bool
	Number
	String
	Name
	ObjectOpen
	ObjectClose
	ArrayOpen
	ArrayClose

	// comma separates tokens and is never returned from Read or Peek.
	comma
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "eof"
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Name:
		return "name"
	case ObjectOpen:
		return "{"
	case ObjectClose:
		return "}"
	case ArrayOpen:
		return "["
	case ArrayClose:
		return "]"
	case comma:
		return ","
	}
	return "<invalid>"
}

// ErrNotInteger is returned when a number token is asked for an integer
// value but has a fractional part.
var ErrNotInteger = errors.New("number is not an integer")

// Token provides a parsed token kind and value. Values are provided by the
// different accessor methods.
type Token struct {
	kind Kind
	// pos is the position of the token in the original input.
	pos int
	// raw is a subslice of the original input.
	raw []byte
	boo bool
	str string
}

// Kind returns the token kind.
func (t Token) Kind() Kind {
	return t.kind
}

// RawString returns the read value in string.
func (t Token) RawString() string {
	return string(t.raw)
}

// Pos returns the token position from the input.
func (t Token) Pos() int {
	return t.pos
}

// Name returns the object name if token is Name, else it panics.
func (t Token) Name() string {
	if t.kind == Name {
		return t.str
	}
	panic(fmt.Sprintf("Token is not a Name: %v", t.RawString()))
}

// Bool returns the bool value if token kind is Bool, else it panics.
func (t Token) Bool() bool {
	if t.kind == Bool {
		return t.boo
	}
	panic(fmt.Sprintf("Token is not a Bool: %v", t.RawString()))
}

// ParsedString returns the string value for a JSON string token or the read
// value in string if token is not a string.
func (t Token) ParsedString() string {
	if t.kind == String {
		return t.str
	}
	panic(fmt.Sprintf("Token is not a String: %v", t.RawString()))
}

// Float returns the floating-point number if token kind is Number. Values
// that do not fit in bitSize produce an error wrapping strconv.ErrRange.
func (t Token) Float(bitSize int) (float64, error) {
	if t.kind != Number {
		return 0, fmt.Errorf("%v is not a number", t.kind)
	}
	return strconv.ParseFloat(t.RawString(), bitSize)
}

// Int returns a signed integer of the given bitSize if token is a Number.
// Numbers written with an exponent are accepted when their value is integral.
// Values that do not fit produce an error wrapping strconv.ErrRange.
func (t Token) Int(bitSize int) (int64, error) {
	s, err := t.intString()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, bitSize)
}

// Uint returns an unsigned integer of the given bitSize if token is a Number.
// Numbers written with an exponent are accepted when their value is integral.
// Values that do not fit produce an error wrapping strconv.ErrRange.
func (t Token) Uint(bitSize int) (uint64, error) {
	s, err := t.intString()
	if err != nil {
		return 0, err
	}
	return ParseUint(s, bitSize)
}

// ParseUint is like strconv.ParseUint in base 10, except that a negative
// value is reported as out of range. Negative zero is zero.
func ParseUint(s string, bitSize int) (uint64, error) {
	abs, neg := strings.CutPrefix(s, "-")
	v, err := strconv.ParseUint(abs, 10, bitSize)
	if !neg || (err == nil && v == 0) {
		return v, err
	}
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return 0, &strconv.NumError{Func: "ParseUint", Num: s, Err: strconv.ErrRange}
}

func (t Token) intString() (string, error) {
	if t.kind != Number {
		return "", fmt.Errorf("%v is not a number", t.kind)
	}
	parts, _, ok := parseNumber(t.raw)
	if !ok {
		return "", fmt.Errorf("invalid number %s", t.raw)
	}
	return parts.intString()
}

// ParseNumberString parses s, which must hold exactly one JSON number, into a
// Number token. It is used for quoted numbers.
func ParseNumberString(s string) (Token, bool) {
	b := []byte(s)
	if _, n, ok := parseNumber(b); ok && n == len(b) {
		return Token{kind: Number, raw: b}, true
	}
	return Token{}, false
}
