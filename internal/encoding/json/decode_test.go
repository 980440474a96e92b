package json_test

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/protoruntime/internal/encoding/json"
)

func readAll(t *testing.T, input string) ([]json.Token, error) {
	t.Helper()
	d := json.NewDecoder([]byte(input))
	var toks []json.Token
	for {
		tok, err := d.Read()
		if err != nil {
			return toks, err
		}
		if tok.Kind() == json.EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func kinds(toks []json.Token) []json.Kind {
	ret := make([]json.Kind, len(toks))
	for i, tok := range toks {
		ret[i] = tok.Kind()
	}
	return ret
}

func TestDecoder_Structure(t *testing.T) {
	toks, err := readAll(t, ` { "a" : [1, "x", null, true, {}] , "b": false } `)
	require.NoError(t, err)
	require.Equal(t, []json.Kind{
		json.ObjectOpen,
		json.Name, json.ArrayOpen, json.Number, json.String, json.Null, json.Bool, json.ObjectOpen, json.ObjectClose, json.ArrayClose,
		json.Name, json.Bool,
		json.ObjectClose,
	}, kinds(toks))
	require.Equal(t, "a", toks[1].Name())
	require.Equal(t, "x", toks[4].ParsedString())
	require.True(t, toks[6].Bool())
	require.False(t, toks[11].Bool())
}

func TestDecoder_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		eof   bool
	}{
		{name: "empty", input: "", eof: true},
		{name: "unterminated object", input: `{"a": 1`, eof: true},
		{name: "trailing comma", input: `{"a": 1,}`},
		{name: "missing colon", input: `{"a" 1}`},
		{name: "missing value", input: `{"a":}`},
		{name: "leading zero", input: `01`},
		{name: "bad literal", input: `nul`},
		{name: "two values", input: `1 2`},
		{name: "mismatched close", input: `[1}`},
		{name: "unpaired surrogate", input: `"\ud800"`},
		{name: "bad surrogate pair", input: `"\ud800A"`},
		{name: "lone low surrogate", input: `"\udc00\udc00"`},
		{name: "invalid utf8", input: "\"\xff\""},
		{name: "control char", input: "\"a\nb\""},
		{name: "bad escape", input: `"\q"`},
		{name: "plus sign", input: `+1`},
		{name: "bare fraction", input: `.5`},
		{name: "bad exponent", input: `1e`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readAll(t, tc.input)
			require.Error(t, err)
			if tc.eof {
				require.ErrorIs(t, err, json.ErrUnexpectedEOF)
			}
		})
	}
}

func TestDecoder_SyntaxErrorPosition(t *testing.T) {
	_, err := readAll(t, "{\n  \"a\": ?\n}")
	var se *json.SyntaxError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 2, se.Line)
	require.Equal(t, 8, se.Column)
	require.Contains(t, err.Error(), "syntax error (line 2:8)")
}

func TestDecoder_Strings(t *testing.T) {
	toks, err := readAll(t, `"a\"b\\c\/d\b\f\n\r\té😀"`)
	require.NoError(t, err)
	require.Equal(t, "a\"b\\c/d\b\f\n\r\té\U0001F600", toks[0].ParsedString())
}

func TestToken_Numbers(t *testing.T) {
	testCases := []struct {
		input   string
		bitSize int
		intVal  int64
		intErr  error
	}{
		{input: "0", bitSize: 32, intVal: 0},
		{input: "-12", bitSize: 32, intVal: -12},
		{input: "1e2", bitSize: 32, intVal: 100},
		{input: "1.5e1", bitSize: 32, intVal: 15},
		{input: "100e-2", bitSize: 32, intVal: 1},
		{input: "3.00", bitSize: 32, intVal: 3},
		{input: "1.5", bitSize: 32, intErr: json.ErrNotInteger},
		{input: "2147483647", bitSize: 32, intVal: 2147483647},
		{input: "2147483648", bitSize: 32, intErr: strconv.ErrRange},
		{input: "2147483648", bitSize: 64, intVal: 2147483648},
		{input: "1e1000", bitSize: 64, intErr: strconv.ErrRange},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			toks, err := readAll(t, tc.input)
			require.NoError(t, err)
			v, err := toks[0].Int(tc.bitSize)
			if tc.intErr != nil {
				require.ErrorIs(t, err, tc.intErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.intVal, v)
		})
	}

	toks, err := readAll(t, "-1")
	require.NoError(t, err)
	_, err = toks[0].Uint(64)
	require.ErrorIs(t, err, strconv.ErrRange)
	toks, err = readAll(t, "-0")
	require.NoError(t, err)
	u, err := toks[0].Uint(32)
	require.NoError(t, err)
	require.Equal(t, uint64(0), u)

	_, err = json.ParseUint("-x", 64)
	require.ErrorIs(t, err, strconv.ErrSyntax)
	_, err = json.ParseUint("-7", 64)
	require.ErrorIs(t, err, strconv.ErrRange)

	tok, ok := json.ParseNumberString("12.5")
	require.True(t, ok)
	f, err := tok.Float(64)
	require.NoError(t, err)
	require.Equal(t, 12.5, f)
	_, ok = json.ParseNumberString("12.5x")
	require.False(t, ok)
}

func TestDecoder_PeekAndClone(t *testing.T) {
	d := json.NewDecoder([]byte(`{"a": 1, "b": 2}`))
	tok, err := d.Peek()
	require.NoError(t, err)
	require.Equal(t, json.ObjectOpen, tok.Kind())
	tok, err = d.Read()
	require.NoError(t, err)
	require.Equal(t, json.ObjectOpen, tok.Kind())

	clone := d.Clone()
	tok, err = clone.Read()
	require.NoError(t, err)
	require.Equal(t, "a", tok.Name())
	// original is unaffected
	tok, err = d.Read()
	require.NoError(t, err)
	require.Equal(t, "a", tok.Name())
}

func TestDecoder_Skip(t *testing.T) {
	d := json.NewDecoder([]byte(`{"a": {"b": [1, {"c": null}]}, "d": 1}`))
	_, err := d.Read()
	require.NoError(t, err)
	_, err = d.Read()
	require.NoError(t, err)
	require.NoError(t, d.Skip(3))
	tok, err := d.Read()
	require.NoError(t, err)
	require.Equal(t, "d", tok.Name())

	d = json.NewDecoder([]byte(`{"a": {"b": [1, {"c": null}]}}`))
	_, _ = d.Read()
	_, _ = d.Read()
	require.ErrorIs(t, d.Skip(2), json.ErrDepthLimit)
}

func TestAppendString(t *testing.T) {
	out, err := json.AppendString(nil, "a\"b\\\n\x01é")
	require.NoError(t, err)
	require.Equal(t, `"a\"b\\\n\u0001é"`, string(out))
	_, err = json.AppendString(nil, "\xff")
	require.Error(t, err)
}

func TestAppendFloat(t *testing.T) {
	require.Equal(t, `1.5`, string(json.AppendFloat(nil, 1.5, 64)))
	require.Equal(t, `"NaN"`, string(json.AppendFloat(nil, math.NaN(), 64)))
	require.Equal(t, `1e-7`, string(json.AppendFloat(nil, 1e-7, 64)))
	require.Equal(t, `1e+21`, string(json.AppendFloat(nil, 1e21, 64)))
	require.Equal(t, `0.1`, string(json.AppendFloat(nil, float64(float32(0.1)), 32)))
}
