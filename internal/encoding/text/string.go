package text

import (
	"bytes"
	"strconv"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// unquote decodes the single quoted string at the start of in. It returns the
// decoded bytes and the number of input bytes consumed, closing quote included.
func unquote(in []byte) ([]byte, int, error) {
	in0 := in
	quote := in[0]
	in = in[1:]
	var out []byte
	for len(in) > 0 {
		r, n := utf8.DecodeRune(in)
		switch {
		case r == utf8.RuneError && n == 1:
			return nil, 0, &SyntaxError{Msg: "invalid UTF-8 in string"}
		case r == '\n' || r == 0:
			return nil, 0, &SyntaxError{Msg: "unterminated string"}
		case r == rune(quote):
			return out, len(in0) - len(in) + 1, nil
		case r == '\\':
			var err error
			if out, in, err = unescape(out, in); err != nil {
				return nil, 0, err
			}
		default:
			out = append(out, in[:n]...)
			in = in[n:]
		}
	}
	return nil, 0, ErrUnexpectedEOF
}

// unescape decodes the escape sequence at the start of in, which begins with
// a backslash.
func unescape(out, in []byte) ([]byte, []byte, error) {
	if len(in) < 2 {
		return nil, nil, ErrUnexpectedEOF
	}
	switch c := in[1]; c {
	case '"', '\'', '\\', '?':
		return append(out, c), in[2:], nil
	case 'a':
		return append(out, '\a'), in[2:], nil
	case 'b':
		return append(out, '\b'), in[2:], nil
	case 'f':
		return append(out, '\f'), in[2:], nil
	case 'n':
		return append(out, '\n'), in[2:], nil
	case 'r':
		return append(out, '\r'), in[2:], nil
	case 't':
		return append(out, '\t'), in[2:], nil
	case 'v':
		return append(out, '\v'), in[2:], nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := len(in[1:]) - len(bytes.TrimLeft(in[1:], "01234567"))
		if n > 3 {
			n = 3
		}
		// values above \377 wrap into a single byte
		v, _ := strconv.ParseUint(string(in[1:1+n]), 8, 16)
		return append(out, byte(v)), in[1+n:], nil
	case 'x', 'X':
		n := len(in[2:]) - len(bytes.TrimLeft(in[2:], "0123456789abcdefABCDEF"))
		if n > 2 {
			n = 2
		}
		if n == 0 {
			return nil, nil, &SyntaxError{Msg: "invalid hex escape in string"}
		}
		v, _ := strconv.ParseUint(string(in[2:2+n]), 16, 8)
		return append(out, byte(v)), in[2+n:], nil
	case 'u', 'U':
		n := 6
		if c == 'U' {
			n = 10
		}
		if len(in) < n {
			return nil, nil, ErrUnexpectedEOF
		}
		v, err := strconv.ParseUint(string(in[2:n]), 16, 32)
		if err != nil || v > utf8.MaxRune {
			return nil, nil, &SyntaxError{Msg: "invalid unicode escape " + strconv.Quote(string(in[:n]))}
		}
		in = in[n:]
		r := rune(v)
		if utf16.IsSurrogate(r) {
			if len(in) < 6 || in[0] != '\\' || in[1] != 'u' {
				return nil, nil, &SyntaxError{Msg: "unpaired surrogate in unicode escape"}
			}
			lo, err := strconv.ParseUint(string(in[2:6]), 16, 16)
			r = utf16.DecodeRune(r, rune(lo))
			if err != nil || r == unicode.ReplacementChar {
				return nil, nil, &SyntaxError{Msg: "invalid surrogate pair in unicode escape"}
			}
			in = in[6:]
		}
		return utf8.AppendRune(out, r), in, nil
	}
	return nil, nil, &SyntaxError{Msg: "invalid escape " + strconv.Quote(string(in[:2]))}
}

// UnescapeBytes decodes C-style escape sequences in s, which is not quoted.
// It is used for the default values of bytes fields in descriptors.
func UnescapeBytes(s string) ([]byte, error) {
	in := []byte(s)
	out := make([]byte, 0, len(in))
	for len(in) > 0 {
		if in[0] != '\\' {
			out = append(out, in[0])
			in = in[1:]
			continue
		}
		var err error
		if out, in, err = unescape(out, in); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppendString appends s to out as a double-quoted text format string. If
// utf8Text is true, printable non-ASCII runes are written as is. Otherwise,
// every byte outside of printable ASCII is written as an octal escape.
func AppendString(out []byte, s string, utf8Text bool) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); {
		c := s[i]
		switch c {
		case '\n':
			out = append(out, `\n`...)
		case '\r':
			out = append(out, `\r`...)
		case '\t':
			out = append(out, `\t`...)
		case '"':
			out = append(out, `\"`...)
		case '\'':
			out = append(out, `\'`...)
		case '\\':
			out = append(out, `\\`...)
		default:
			if c >= 0x20 && c < 0x7f {
				out = append(out, c)
				break
			}
			if utf8Text && c >= utf8.RuneSelf {
				r, n := utf8.DecodeRuneInString(s[i:])
				if r != utf8.RuneError && unicode.IsPrint(r) {
					out = append(out, s[i:i+n]...)
					i += n
					continue
				}
			}
			out = append(out, '\\', '0'+(c>>6), '0'+((c>>3)&7), '0'+(c&7))
		}
		i++
	}
	return append(out, '"')
}
