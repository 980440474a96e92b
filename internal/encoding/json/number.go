package json

import (
	"bytes"
	"math"
	"strconv"
)

// numberParts holds the components of a JSON number, as needed for integer
// conversion.
type numberParts struct {
	neg  bool
	intp []byte
	frac []byte
	exp  []byte
}

// parseNumber reads a JSON number from the start of input, following the
// grammar of RFC 7159 section 6. It returns the parts of the number and its
// length. The number must be followed by a delimiter or the end of input.
func parseNumber(input []byte) (numberParts, int, bool) {
	var p numberParts
	s := input
	n := 0
	if len(s) > 0 && s[0] == '-' {
		p.neg = true
		s = s[1:]
		n++
	}
	switch {
	case len(s) == 0:
		return p, 0, false
	case s[0] == '0':
		// a leading zero must stand alone
		s = s[1:]
		n++
	case '1' <= s[0] && s[0] <= '9':
		i := 1
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		p.intp = s[:i]
		s = s[i:]
		n += i
	default:
		return p, 0, false
	}

	if len(s) >= 2 && s[0] == '.' && isDigit(s[1]) {
		i := 2
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		p.frac = bytes.TrimRight(s[1:i], "0")
		s = s[i:]
		n += i
	}

	if len(s) >= 2 && (s[0] == 'e' || s[0] == 'E') {
		i := 1
		if s[i] == '+' || s[i] == '-' {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return p, 0, false
		}
		p.exp = s[1:i]
		s = s[i:]
		n += i
	}

	if n < len(input) && isNotDelim(input[n]) {
		return p, 0, false
	}
	return p, n, true
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// intString returns the number as a plain base-10 integer string, with any
// exponent applied. It fails if the number is not integral.
func (p numberParts) intString() (string, error) {
	intp := bytes.TrimLeft(p.intp, "0")
	// trailing zeros of the fraction carry no value
	p.frac = bytes.TrimRight(p.frac, "0")
	if len(intp) == 0 && len(p.frac) == 0 {
		return "0", nil
	}

	var exp int
	if len(p.exp) > 0 {
		i, err := strconv.ParseInt(string(p.exp), 10, 32)
		if err != nil {
			return "", ErrNotInteger
		}
		exp = int(i)
	}

	num := append([]byte(nil), intp...)
	if exp >= 0 {
		// shift fraction digits into the integer part, padding with zeros
		if len(p.frac) > exp {
			return "", ErrNotInteger
		}
		if exp > 400 {
			// far outside the range of any integer type
			return "", strconv.ErrRange
		}
		num = append(num, p.frac...)
		for i := 0; i < exp-len(p.frac); i++ {
			num = append(num, '0')
		}
	} else {
		// shift digits out of the integer part; they must all be zero
		if len(p.frac) > 0 {
			return "", ErrNotInteger
		}
		index := len(num) + exp
		if index < 0 {
			return "", ErrNotInteger
		}
		for _, c := range num[index:] {
			if c != '0' {
				return "", ErrNotInteger
			}
		}
		num = num[:index]
	}
	num = bytes.TrimLeft(num, "0")
	if len(num) == 0 {
		return "0", nil
	}
	if p.neg {
		return "-" + string(num), nil
	}
	return string(num), nil
}

// AppendFloat formats the given float with the given bitSize. Non-finite
// values are written as the quoted strings "NaN", "Infinity" and "-Infinity".
func AppendFloat(out []byte, n float64, bitSize int) []byte {
	switch {
	case math.IsNaN(n):
		return append(out, `"NaN"`...)
	case math.IsInf(n, +1):
		return append(out, `"Infinity"`...)
	case math.IsInf(n, -1):
		return append(out, `"-Infinity"`...)
	}

	// same choice of notation as encoding/json
	format := byte('f')
	if abs := math.Abs(n); abs != 0 {
		if bitSize == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bitSize == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	out = strconv.AppendFloat(out, n, format, -1, bitSize)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(out)
		if n >= 4 && out[n-4] == 'e' && out[n-3] == '-' && out[n-2] == '0' {
			out[n-2] = out[n-1]
			out = out[:n-1]
		}
	}
	return out
}
