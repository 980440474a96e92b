package dynamic_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/protoruntime/dynamic"
)

func TestTextMarshal(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	m.SetFieldByName("optional_int32", int32(-1))
	m.SetFieldByName("optional_float", float32(1.5))
	m.SetFieldByName("optional_bool", true)
	m.SetFieldByName("optional_string", "a\"b\n")
	m.SetFieldByName("optional_bytes", []byte{0, 'x', 0xff})
	nested := dynamic.NewMessage(fd.FindMessage("test.AllTypes.NestedMessage"))
	nested.SetFieldByName("bb", int32(3))
	m.SetFieldByName("optional_nested_message", nested)
	m.SetFieldByName("optional_color", int32(2))
	m.SetFieldByName("repeated_int32", []int32{1, 2})
	m.SetFieldByName("map_string_int32", map[string]int32{"b": 2, "a": 1})

	txt, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `optional_int32:-1 optional_float:1.5 optional_bool:true optional_string:"a\"b\n" optional_bytes:"\000x\377" `+
		`optional_nested_message{bb:3} optional_color:BLUE repeated_int32:1 repeated_int32:2 `+
		`map_string_int32{key:"a" value:1} map_string_int32{key:"b" value:2}`, string(txt))

	m2 := newMessage(t, fd, "test.AllTypes")
	require.NoError(t, m2.UnmarshalText(txt))
	require.True(t, dynamic.Equal(m, m2))

	txt, err = m.MarshalTextIndent()
	require.NoError(t, err)
	m2.Reset()
	require.NoError(t, m2.UnmarshalText(txt))
	require.True(t, dynamic.Equal(m, m2))
}

func TestTextMarshalIndent(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	m.SetFieldByName("optional_int32", int32(1))
	m.SetFieldByName("optional_nested_message", dynamic.NewMessage(fd.FindMessage("test.AllTypes.NestedMessage")))
	txt, err := m.MarshalTextIndent()
	require.NoError(t, err)
	require.Equal(t, "optional_int32: 1\noptional_nested_message {}\n", string(txt))

	fd3 := loadProto3(t)
	m3 := newMessage(t, fd3, "test3.Msg")
	m3.SetFieldByName("names", map[int64]string{2: "b", -1: "a"})
	child := newMessage(t, fd3, "test3.Msg")
	child.SetFieldByName("i32", int32(3))
	m3.SetFieldByName("child", child)
	txt, err = m3.MarshalTextIndent()
	require.NoError(t, err)
	require.Equal(t, `names {
  key: -1
  value: "a"
}
names {
  key: 2
  value: "b"
}
child {
  i32: 3
}
`, string(txt))

	txt, err = m3.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `names{key:-1 value:"a"} names{key:2 value:"b"} child{i32:3}`, string(txt))

	// empty messages produce no output at all
	empty := newMessage(t, fd3, "test3.Msg")
	txt, err = empty.MarshalTextIndent()
	require.NoError(t, err)
	require.Empty(t, txt)
}

func TestTextDecodeLeniency(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	err := m.UnmarshalText([]byte(`
		# comments run to the end of the line
		optional_int32: 5,
		optional_nested_message < bb: 1 >;
		optional_nested_message: { bb: 2 }
		repeated_int32: [1, 2, 3]
		repeated_int32: 4
		repeated_string: []
		OptionalGroup { a: 7 }
		optional_string: "con" 'cat'
		optional_bytes: "\x01\101\n"
		optional_bool: t
		optional_color: 1
		optional_int64: -0x10
		optional_uint64: 0xFFFFFFFFFFFFFFFF
		map_string_int32 { value: 3 }
		map_int32_message { key: 1 }
	`))
	require.NoError(t, err)
	require.Equal(t, int32(5), m.GetFieldByName("optional_int32"))
	require.Equal(t, int32(2), m.GetFieldByName("optional_nested_message").(*dynamic.Message).GetFieldByName("bb"))
	require.Equal(t, []interface{}{int32(1), int32(2), int32(3), int32(4)}, m.GetFieldByName("repeated_int32"))
	require.False(t, m.HasFieldName("repeated_string"))
	require.Equal(t, int32(7), m.GetFieldByName("optionalgroup").(*dynamic.Message).GetFieldByName("a"))
	require.Equal(t, "concat", m.GetFieldByName("optional_string"))
	require.Equal(t, []byte{1, 'A', '\n'}, m.GetFieldByName("optional_bytes"))
	require.Equal(t, true, m.GetFieldByName("optional_bool"))
	require.Equal(t, int32(1), m.GetFieldByName("optional_color"))
	require.Equal(t, int64(-16), m.GetFieldByName("optional_int64"))
	require.Equal(t, uint64(math.MaxUint64), m.GetFieldByName("optional_uint64"))
	require.Equal(t, int32(3), m.GetMapFieldByName("map_string_int32", ""))
	require.NotNil(t, m.GetMapFieldByName("map_int32_message", int32(1)))
}

func TestTextDecodeScalars(t *testing.T) {
	fd := loadProto2(t)
	testCases := []struct {
		input string
		field string
		value interface{}
	}{
		{input: "optional_bool: True", field: "optional_bool", value: true},
		{input: "optional_bool: 1", field: "optional_bool", value: true},
		{input: "optional_bool: false", field: "optional_bool", value: false},
		{input: "optional_bool: 0", field: "optional_bool", value: false},
		{input: "optional_float: 1.5f", field: "optional_float", value: float32(1.5)},
		{input: "optional_float: -5", field: "optional_float", value: float32(-5)},
		{input: "optional_double: .25", field: "optional_double", value: 0.25},
		{input: "optional_double: 10", field: "optional_double", value: float64(10)},
		{input: "optional_double: inf", field: "optional_double", value: math.Inf(1)},
		{input: "optional_double: -Infinity", field: "optional_double", value: math.Inf(-1)},
		{input: "optional_sfixed64: -9223372036854775808", field: "optional_sfixed64", value: int64(math.MinInt64)},
		{input: "optional_fixed32: 4294967295", field: "optional_fixed32", value: uint32(math.MaxUint32)},
		{input: "optional_sint32: -2147483648", field: "optional_sint32", value: int32(math.MinInt32)},
		{input: "optional_color: GREEN", field: "optional_color", value: int32(1)},
		{input: `optional_string: "é\t"`, field: "optional_string", value: "é\t"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			m := newMessage(t, fd, "test.AllTypes")
			require.NoError(t, m.UnmarshalText([]byte(tc.input)))
			require.Equal(t, tc.value, m.GetFieldByName(tc.field))
		})
	}

	m := newMessage(t, fd, "test.AllTypes")
	require.NoError(t, m.UnmarshalText([]byte("optional_double: nan")))
	require.True(t, math.IsNaN(m.GetFieldByName("optional_double").(float64)))

	m.SetFieldByName("optional_float", float32(math.Inf(-1)))
	txt, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "optional_float:-inf optional_double:nan", string(txt))
}

func TestTextDecodeErrors(t *testing.T) {
	fd := loadProto2(t)
	testCases := []struct {
		name     string
		input    string
		overflow bool
	}{
		{name: "missing colon", input: "optional_int32 1"},
		{name: "unknown field", input: "nope: 1"},
		{name: "unknown enum value", input: "optional_color: PURPLE"},
		{name: "list for singular field", input: "optional_int32: [1, 2]"},
		{name: "unterminated message", input: "optional_nested_message { bb: 1"},
		{name: "mismatched delimiters", input: "optional_nested_message { bb: 1 >"},
		{name: "unterminated string", input: `optional_string: "abc`},
		{name: "invalid utf8", input: `optional_string: "\377"`},
		{name: "number for string", input: "optional_string: 1"},
		{name: "string for number", input: `optional_int32: "1"`},
		{name: "fraction for int", input: "optional_int32: 1.5"},
		{name: "invalid bool", input: "optional_bool: yes"},
		{name: "unknown extension", input: "[test.nope]: 1"},
		{name: "invalid field number", input: "0: 1"},
		{name: "unterminated list", input: "repeated_int32: [1, 2"},
		{name: "unknown key in map entry", input: `map_string_int32 { key: "a" nope: 1 }`},
		{name: "int32 overflow", input: "optional_int32: 2147483648", overflow: true},
		{name: "uint64 overflow", input: "optional_uint64: 18446744073709551616", overflow: true},
		{name: "negative uint32", input: "optional_uint32: -1", overflow: true},
		{name: "negative fixed64", input: "optional_fixed64: -0x10", overflow: true},
		{name: "float overflow", input: "optional_float: 1e39", overflow: true},
		{name: "double overflow", input: "optional_double: 1e400", overflow: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMessage(t, fd, "test.AllTypes")
			m.SetFieldByName("optional_int32", int32(9))
			orig := m.Clone()
			err := m.UnmarshalText([]byte(tc.input))
			if tc.overflow {
				require.ErrorIs(t, err, dynamic.ErrNumericOverflow)
			} else {
				require.ErrorIs(t, err, dynamic.ErrMalformedText)
			}
			require.True(t, dynamic.Equal(orig, m))
		})
	}
}

func TestTextIgnoreUnknown(t *testing.T) {
	fd := loadProto2(t)
	input := []byte(`
		nope: 1
		nope2 { x: [1, 2] y < z: "s" > }
		nope3: [ {a: 1}, {b: 2} ]
		nope4: -inf
		[foo.bar] { x: 1 }
		optional_int32: 3
	`)
	m := newMessage(t, fd, "test.AllTypes")
	require.ErrorIs(t, m.UnmarshalTextWithOptions(input, dynamic.TextDecodingOptions{IgnoreUnknownFields: true}), dynamic.ErrMalformedText)
	require.ErrorIs(t, m.UnmarshalTextWithOptions(input, dynamic.TextDecodingOptions{IgnoreUnknownExtensionFields: true}), dynamic.ErrMalformedText)

	opts := dynamic.TextDecodingOptions{IgnoreUnknownFields: true, IgnoreUnknownExtensionFields: true}
	require.NoError(t, m.UnmarshalTextWithOptions(input, opts))
	require.Equal(t, int32(3), m.GetFieldByName("optional_int32"))
	require.Empty(t, m.GetUnknownFields())

	// map entries never ignore unknown names
	err := m.UnmarshalTextWithOptions([]byte(`map_string_int32 { key: "a" nope: 1 }`), opts)
	require.ErrorIs(t, err, dynamic.ErrMalformedText)
}

func TestTextUnknownFields(t *testing.T) {
	fd := loadProto2(t)
	b := []byte{
		8, 150, 1, // 1: 150
		21, 1, 0, 0, 0, // 2: fixed32 1
		25, 8, 7, 6, 5, 4, 3, 2, 1, // 3: fixed64 0x0102030405060708
		34, 2, 'h', 'i', // 4: "hi"
		43, 8, 1, 44, // 5: group { 1: 1 }
	}
	m := newMessage(t, fd, "test.Empty")
	require.NoError(t, m.Unmarshal(b))

	txt, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `1:150 2:0x00000001 3:0x0102030405060708 4:"hi" 5{1:1}`, string(txt))

	m2 := newMessage(t, fd, "test.Empty")
	require.NoError(t, m2.UnmarshalText(txt))
	require.True(t, dynamic.Equal(m, m2))
	out, err := m2.Marshal()
	require.NoError(t, err)
	require.Equal(t, b, out)

	txt, err = m.MarshalTextWithOptions(dynamic.TextEncodingOptions{Compact: true, OmitUnknownFields: true})
	require.NoError(t, err)
	require.Empty(t, txt)
}

func TestTextExtensions(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	m.SetFieldByName("optional_int32", int32(1))
	m.SetFieldByName("[test.ext_int32]", int32(5))
	nested := dynamic.NewMessage(fd.FindMessage("test.AllTypes.NestedMessage"))
	nested.SetFieldByName("bb", int32(2))
	m.SetFieldByName("[test.ext_nested]", nested)

	txt, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `optional_int32:1 [test.ext_int32]:5 [test.ext_nested]{bb:2}`, string(txt))

	m2 := newMessage(t, fd, "test.AllTypes")
	require.NoError(t, m2.UnmarshalText(txt))
	require.True(t, dynamic.Equal(m, m2))

	er := dynamic.NewExtensionRegistry()
	require.NoError(t, er.AddExtensionsFromFile(fd))
	plain := dynamic.NewMessage(fd.FindMessage("test.AllTypes"))
	require.ErrorIs(t, plain.UnmarshalText(txt), dynamic.ErrMalformedText)
	require.NoError(t, plain.UnmarshalTextWithOptions(txt, dynamic.TextDecodingOptions{Extensions: er}))
	require.Equal(t, int32(5), plain.GetFieldByNumber(1001))

	group := newMessage(t, fd, "test.AllExtensions")
	require.NoError(t, group.UnmarshalText([]byte(`[test.optionalgroup_extension] { a: 3 }`)))
	txt, err = group.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `[test.optionalgroup_extension]{a:3}`, string(txt))
}

func TestTextExpandedAny(t *testing.T) {
	fd := loadProto3(t)
	reg := registryFor(t, fd)
	inner := newMessage(t, fd, "test3.Msg")
	inner.SetFieldByName("i32", int32(5))
	b, err := inner.Marshal()
	require.NoError(t, err)
	m := newMessage(t, fd, "test3.Msg")
	anyMsg := dynamic.NewMessage(m.FindFieldDescriptorByName("any").GetMessageType())
	anyMsg.SetFieldByName("type_url", "type.googleapis.com/test3.Msg")
	anyMsg.SetFieldByName("value", b)
	m.SetFieldByName("any", anyMsg)

	txt, err := m.MarshalTextWithOptions(dynamic.TextEncodingOptions{Compact: true, AnyResolver: reg})
	require.NoError(t, err)
	require.Equal(t, `any{[type.googleapis.com/test3.Msg]{i32:5}}`, string(txt))

	m2 := newMessage(t, fd, "test3.Msg")
	require.NoError(t, m2.UnmarshalTextWithOptions(txt, dynamic.TextDecodingOptions{AnyResolver: reg}))
	require.True(t, dynamic.Equal(m, m2))

	// an unknown type is written as an ordinary message
	txt, err = m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, `any{type_url:"type.googleapis.com/test3.Msg" value:"\010\005"}`, string(txt))
	m2.Reset()
	require.NoError(t, m2.UnmarshalText(txt))
	require.True(t, dynamic.Equal(m, m2))

	err = m2.UnmarshalText([]byte(`any { [type.googleapis.com/test3.Msg] { i32: 5 } }`))
	require.ErrorIs(t, err, dynamic.ErrUnresolvedAnyType)
}

func TestTextDepthLimit(t *testing.T) {
	fd := loadProto2(t)
	input := []byte("a: { a { i: 1 } }")
	testCases := []struct {
		limit int
		ok    bool
	}{
		{limit: 10, ok: true},
		{limit: 4, ok: true},
		{limit: 3, ok: true},
		{limit: 2},
		{limit: 1},
	}
	for _, tc := range testCases {
		m := newMessage(t, fd, "test.Recursive")
		err := m.UnmarshalTextWithOptions(input, dynamic.TextDecodingOptions{MessageDepthLimit: tc.limit})
		if tc.ok {
			require.NoError(t, err, "limit %d", tc.limit)
		} else {
			require.ErrorIs(t, err, dynamic.ErrMessageDepthLimit, "limit %d", tc.limit)
		}
	}

	// a map entry is a level of nesting
	fd3 := loadProto3(t)
	input = []byte(`children { key: "k" value { i32: 1 } }`)
	m := newMessage(t, fd3, "test3.Msg")
	require.NoError(t, m.UnmarshalTextWithOptions(input, dynamic.TextDecodingOptions{MessageDepthLimit: 3}))
	err := m.UnmarshalTextWithOptions(input, dynamic.TextDecodingOptions{MessageDepthLimit: 2})
	require.ErrorIs(t, err, dynamic.ErrMessageDepthLimit)
}

func TestTextMerge(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	require.NoError(t, m.UnmarshalText([]byte("optional_int32: 1 repeated_int32: 1")))
	require.NoError(t, m.UnmarshalMergeText([]byte(`repeated_int32: 2 optional_string: "x"`)))
	require.Equal(t, int32(1), m.GetFieldByName("optional_int32"))
	require.Equal(t, "x", m.GetFieldByName("optional_string"))
	require.Equal(t, []interface{}{int32(1), int32(2)}, m.GetFieldByName("repeated_int32"))

	// a failed merge leaves the message as it was
	require.Error(t, m.UnmarshalMergeText([]byte(`repeated_int32: 3 optional_string: 4`)))
	require.Equal(t, []interface{}{int32(1), int32(2)}, m.GetFieldByName("repeated_int32"))

	// a plain unmarshal replaces everything
	require.NoError(t, m.UnmarshalText([]byte(`optional_string: "y"`)))
	require.False(t, m.HasFieldName("optional_int32"))
	require.False(t, m.HasFieldName("repeated_int32"))
}
