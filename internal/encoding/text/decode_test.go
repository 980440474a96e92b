package text_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/protoruntime/internal/encoding/text"
)

func readAll(t *testing.T, input string) ([]text.Token, error) {
	t.Helper()
	d := text.NewDecoder([]byte(input))
	var toks []text.Token
	for {
		tok, err := d.Read()
		if err != nil {
			return toks, err
		}
		if tok.Kind == text.EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func TestDecoder_Tokens(t *testing.T) {
	toks, err := readAll(t, `
		# a comment
		name: "abc" 'def'  # trailing
		num: -12.5e3 hex: 0x1F f: 1.5f
		[foo.bar.ext] { x: inf y: -inf }
		list: [1, 2];
	`)
	require.NoError(t, err)
	type tk struct {
		kind text.Kind
		raw  string
	}
	var actual []tk
	for _, tok := range toks {
		actual = append(actual, tk{tok.Kind, tok.Raw})
	}
	require.Equal(t, []tk{
		{text.Ident, "name"}, {text.Punct, ":"}, {text.String, `"abc" 'def'`},
		{text.Ident, "num"}, {text.Punct, ":"}, {text.Number, "-12.5e3"},
		{text.Ident, "hex"}, {text.Punct, ":"}, {text.Number, "0x1F"},
		{text.Ident, "f"}, {text.Punct, ":"}, {text.Number, "1.5f"},
		{text.Punct, "["}, {text.Ident, "foo"}, {text.Punct, "."}, {text.Ident, "bar"}, {text.Punct, "."}, {text.Ident, "ext"}, {text.Punct, "]"},
		{text.Punct, "{"}, {text.Ident, "x"}, {text.Punct, ":"}, {text.Ident, "inf"},
		{text.Ident, "y"}, {text.Punct, ":"}, {text.Punct, "-"}, {text.Ident, "inf"}, {text.Punct, "}"},
		{text.Ident, "list"}, {text.Punct, ":"}, {text.Punct, "["}, {text.Number, "1"}, {text.Punct, ","}, {text.Number, "2"}, {text.Punct, "]"}, {text.Punct, ";"},
	}, actual)
	require.Equal(t, "abcdef", toks[2].Value)
}

func TestDecoder_StringEscapes(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: `"\n\t\\\"\'\?"`, expected: "\n\t\\\"'?"},
		{input: `"\101\x42"`, expected: "AB"},
		// octal values past \377 wrap to a single byte
		{input: `"\501"`, expected: "A"},
		{input: `"\0"`, expected: "\x00"},
		{input: `"é\U0001F600"`, expected: "é\U0001F600"},
		{input: `"😀"`, expected: "\U0001F600"},
		{input: `"a" "b"` + "\n" + `'c'`, expected: "abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			toks, err := readAll(t, tc.input)
			require.NoError(t, err)
			require.Len(t, toks, 1)
			require.Equal(t, tc.expected, toks[0].Value)
		})
	}
}

func TestDecoder_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "unterminated", input: `"abc`},
		{name: "newline in string", input: "\"ab\nc\""},
		{name: "bad escape", input: `"\q"`},
		{name: "unpaired surrogate", input: `"\ud83d"`},
		{name: "bad hex", input: `"\xZZ"`},
		{name: "bad char", input: `a: @`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readAll(t, tc.input)
			require.Error(t, err)
		})
	}

	_, err := readAll(t, "a: 1\nb: ^")
	var se *text.SyntaxError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 2, se.Line)
	require.Equal(t, 4, se.Column)
}

func TestUnescapeBytes(t *testing.T) {
	b, err := text.UnescapeBytes(`\000\001abc\377\\`)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 'a', 'b', 'c', 0xff, '\\'}, b)
}

func TestAppendString(t *testing.T) {
	require.Equal(t, `"a\"b\n\\\001\377"`, string(text.AppendString(nil, "a\"b\n\\\x01\xff", false)))
	require.Equal(t, `"\303\251"`, string(text.AppendString(nil, "é", false)))
	require.Equal(t, `"é"`, string(text.AppendString(nil, "é", true)))
}
