package dynamic_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jhump/protoruntime/desc"
	"github.com/jhump/protoruntime/dynamic"
)

func TestGetFieldDefaults(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	require.Equal(t, "hello", m.GetFieldByName("default_string"))
	require.Equal(t, int32(41), m.GetFieldByName("default_int32"))
	require.Equal(t, int32(0), m.GetFieldByName("optional_int32"))
	require.Equal(t, "", m.GetFieldByName("optional_string"))
	require.Equal(t, int32(0), m.GetFieldByName("optional_color"))
	require.Nil(t, m.GetFieldByName("repeated_int32"))
	require.Nil(t, m.GetFieldByName("map_string_int32"))
	require.False(t, m.HasFieldName("default_string"))

	// absent proto2 messages read as empty messages
	nested, ok := m.GetFieldByName("optional_nested_message").(*dynamic.Message)
	require.True(t, ok)
	require.NotNil(t, nested)
	require.False(t, m.HasFieldName("optional_nested_message"))

	// proto2 fields have presence, so zero values are kept
	m.SetFieldByName("default_string", "")
	require.True(t, m.HasFieldName("default_string"))
	require.Equal(t, "", m.GetFieldByName("default_string"))

	fd3 := loadProto3(t)
	m3 := newMessage(t, fd3, "test3.Msg")
	require.Nil(t, m3.GetFieldByName("child"))
	require.Equal(t, (*dynamic.Message)(nil), m3.GetFieldByName("child"))

	m3.SetFieldByName("i32", int32(0))
	require.False(t, m3.HasFieldName("i32"))
	m3.SetFieldByName("i32", int32(3))
	require.True(t, m3.HasFieldName("i32"))
	m3.SetFieldByName("i32", int32(0))
	require.False(t, m3.HasFieldName("i32"))

	m3.SetFieldByName("opt_i32", int32(0))
	require.True(t, m3.HasFieldName("opt_i32"))
	m3.SetFieldByName("f", float32(math.Copysign(0, -1)))
	require.True(t, m3.HasFieldName("f"))
	m3.SetFieldByName("by", []byte{})
	require.False(t, m3.HasFieldName("by"))
}

func TestSetFieldTypeChecks(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")

	require.Error(t, m.TrySetFieldByName("optional_int32", 1))
	require.Error(t, m.TrySetFieldByName("optional_int32", int64(1)))
	require.Error(t, m.TrySetFieldByName("optional_uint64", int64(1)))
	require.Error(t, m.TrySetFieldByName("optional_float", 1.0))
	require.Error(t, m.TrySetFieldByName("optional_string", []byte("x")))
	require.Error(t, m.TrySetFieldByName("repeated_int32", int32(1)))
	require.Error(t, m.TrySetFieldByName("repeated_int32", []interface{}{int32(1), "x"}))
	require.Error(t, m.TrySetFieldByName("map_string_int32", map[string]int64{"a": 1}))
	require.Error(t, m.TrySetFieldByName("optional_nested_message", newMessage(t, fd, "test.AllTypes")))
	require.Error(t, m.TrySetFieldByName("optional_nested_message", wrapperspb.String("x")))
	require.False(t, m.HasFieldName("optional_int32"))

	require.ErrorIs(t, m.TrySetFieldByName("nope", int32(1)), dynamic.ErrUnknownFieldName)
	require.ErrorIs(t, m.TrySetFieldByNumber(999, int32(1)), dynamic.ErrUnknownTagNumber)
	_, err := m.TryGetFieldByNumber(1500)
	require.ErrorIs(t, err, dynamic.ErrUnknownTagNumber)
	_, err = m.TryGetFieldByName("nope")
	require.ErrorIs(t, err, dynamic.ErrUnknownFieldName)
	require.Panics(t, func() {
		m.GetFieldByName("nope")
	})

	// descriptors of other messages are rejected
	other := fd.FindMessage("test.Recursive").FindFieldByName("i")
	require.Error(t, m.TrySetField(other, int32(1)))
	_, err = m.TryGetField(other)
	require.Error(t, err)
	require.False(t, m.HasField(other))

	// pointers to valid values are accepted
	s := "abc"
	require.NoError(t, m.TrySetFieldByName("optional_string", &s))
	require.Equal(t, "abc", m.GetFieldByName("optional_string"))

	// generated messages are converted
	fd3 := loadProto3(t)
	m3 := newMessage(t, fd3, "test3.Msg")
	require.NoError(t, m3.TrySetFieldByName("wrapped_str", wrapperspb.String("x")))
	wrapped, ok := m3.GetFieldByName("wrapped_str").(*dynamic.Message)
	require.True(t, ok)
	require.Equal(t, "x", wrapped.GetFieldByName("value"))

	// setting a nil message clears the field
	m3.SetFieldByName("wrapped_str", (*dynamic.Message)(nil))
	require.False(t, m3.HasFieldName("wrapped_str"))
	m3.SetFieldByName("wrapped_str", nil)
	require.False(t, m3.HasFieldName("wrapped_str"))
}

func TestOneOfFields(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	od := m.GetMessageDescriptor().FindFieldByName("oneof_uint32").GetOneOf()
	require.NotNil(t, od)

	f, v := m.GetOneOfField(od)
	require.Nil(t, f)
	require.Nil(t, v)

	m.SetFieldByName("oneof_uint32", uint32(5))
	f, v = m.GetOneOfField(od)
	require.Equal(t, "oneof_uint32", f.GetName())
	require.Equal(t, uint32(5), v)

	m.SetFieldByName("oneof_string", "x")
	require.False(t, m.HasFieldName("oneof_uint32"))
	f, v = m.GetOneOfField(od)
	require.Equal(t, "oneof_string", f.GetName())
	require.Equal(t, "x", v)

	// zero values of oneof members are still set
	fd3 := loadProto3(t)
	m3 := newMessage(t, fd3, "test3.Msg")
	m3.SetFieldByName("choice_s", "y")
	m3.SetFieldByName("choice_i", int32(0))
	require.True(t, m3.HasFieldName("choice_i"))
	require.False(t, m3.HasFieldName("choice_s"))

	// decoding the second member also clears the first
	b := []byte{
		0x8a, 0x07, 1, 'a', // oneof_string (113): "a"
		0xf8, 0x06, 7, // oneof_uint32 (111): 7
	}
	require.NoError(t, m.Unmarshal(b))
	require.False(t, m.HasFieldName("oneof_string"))
	require.Equal(t, uint32(7), m.GetFieldByName("oneof_uint32"))
}

func TestRepeatedFields(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	fld := m.FindFieldDescriptorByName("repeated_int32")

	m.AddRepeatedFieldByName("repeated_int32", int32(1))
	m.AddRepeatedField(fld, int32(2))
	require.Equal(t, 2, m.FieldLength(fld))
	require.Equal(t, int32(2), m.GetRepeatedFieldByName("repeated_int32", 1))

	m.SetRepeatedField(fld, 0, int32(5))
	require.Equal(t, []interface{}{int32(5), int32(2)}, m.GetField(fld))

	// returned slices are copies
	vals := m.GetField(fld).([]interface{})
	vals[0] = int32(100)
	require.Equal(t, int32(5), m.GetRepeatedField(fld, 0))

	_, err := m.TryGetRepeatedField(fld, 2)
	require.ErrorIs(t, err, dynamic.ErrIndexOutOfRange)
	_, err = m.TryGetRepeatedField(fld, -1)
	require.ErrorIs(t, err, dynamic.ErrIndexOutOfRange)
	require.ErrorIs(t, m.TrySetRepeatedField(fld, 2, int32(1)), dynamic.ErrIndexOutOfRange)
	require.Error(t, m.TryAddRepeatedField(fld, "x"))
	require.ErrorIs(t, m.TryAddRepeatedFieldByName("optional_int32", int32(1)), dynamic.ErrFieldIsNotRepeated)
	_, err = m.TryFieldLength(m.FindFieldDescriptorByName("optional_int32"))
	require.ErrorIs(t, err, dynamic.ErrFieldIsNotRepeated)

	m.SetFieldByName("repeated_string", []string{"a", "b"})
	require.Equal(t, []interface{}{"a", "b"}, m.GetFieldByName("repeated_string"))
	m.SetFieldByName("repeated_string", []string{})
	require.False(t, m.HasFieldName("repeated_string"))
}

func TestMapFields(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	fld := m.FindFieldDescriptorByName("map_string_int32")

	m.PutMapFieldByName("map_string_int32", "a", int32(1))
	m.PutMapField(fld, "b", int32(2))
	require.Equal(t, 2, m.FieldLength(fld))
	require.Equal(t, int32(1), m.GetMapFieldByName("map_string_int32", "a"))
	require.Nil(t, m.GetMapField(fld, "z"))
	require.Equal(t, map[interface{}]interface{}{"a": int32(1), "b": int32(2)}, m.GetField(fld))

	// returned maps are copies
	m.GetField(fld).(map[interface{}]interface{})["c"] = int32(3)
	require.Nil(t, m.GetMapField(fld, "c"))

	require.Error(t, m.TryPutMapField(fld, int32(1), int32(1)))
	require.Error(t, m.TryPutMapField(fld, "c", "x"))
	require.ErrorIs(t, m.TryPutMapFieldByName("repeated_int32", int32(1), int32(1)), dynamic.ErrFieldIsNotMap)
	_, err := m.TryGetMapFieldByName("optional_int32", int32(1))
	require.ErrorIs(t, err, dynamic.ErrFieldIsNotMap)
	_, err = m.TryGetRepeatedField(fld, 0)
	require.ErrorIs(t, err, dynamic.ErrFieldIsNotRepeated)

	m.RemoveMapField(fld, "a")
	m.RemoveMapField(fld, "z")
	require.True(t, m.HasField(fld))
	m.RemoveMapField(fld, "b")
	require.False(t, m.HasField(fld))

	// maps may also be given as entry messages
	entry := dynamic.NewMessage(fld.GetMessageType())
	entry.SetFieldByName("key", "k")
	entry.SetFieldByName("value", int32(4))
	m.SetField(fld, []*dynamic.Message{entry})
	require.Equal(t, int32(4), m.GetMapField(fld, "k"))

	entry = dynamic.NewMessage(fld.GetMessageType())
	entry.SetFieldByName("key", "j")
	m.AddRepeatedField(fld, entry)
	require.Equal(t, int32(0), m.GetMapField(fld, "j"))
	require.Equal(t, 2, m.FieldLength(fld))

	msgs := m.FindFieldDescriptorByName("map_int32_message")
	nested := dynamic.NewMessage(fd.FindMessage("test.AllTypes.NestedMessage"))
	nested.SetFieldByName("bb", int32(1))
	m.PutMapField(msgs, int32(10), nested)
	require.True(t, dynamic.Equal(nested, m.GetMapField(msgs, int32(10)).(*dynamic.Message)))
}

func TestExtensionFields(t *testing.T) {
	fd := loadProto2(t)
	md := fd.FindMessage("test.AllTypes")
	ext := fd.FindExtension("test.ext_int32")
	require.NotNil(t, ext)

	plain := dynamic.NewMessage(md)
	require.ErrorIs(t, plain.TrySetFieldByName("[test.ext_int32]", int32(1)), dynamic.ErrUnknownFieldName)
	require.ErrorIs(t, plain.TrySetFieldByNumber(1001, int32(1)), dynamic.ErrUnknownTagNumber)

	// a descriptor is enough to set an extension
	plain.SetField(ext, int32(2))
	require.Equal(t, int32(2), plain.GetFieldByNumber(1001))
	require.Equal(t, int32(2), plain.GetFieldByName("(test.ext_int32)"))
	require.Equal(t, []*desc.FieldDescriptor{ext}, plain.GetKnownExtensions())
	require.Len(t, plain.GetKnownFields(), len(md.GetFields())+1)
	plain.ClearField(ext)
	require.Empty(t, plain.GetKnownExtensions())

	m, err := dynamic.NewMessageWithExtensions(md, ext)
	require.NoError(t, err)
	m.SetFieldByName("[test.ext_int32]", int32(3))
	require.Equal(t, int32(3), m.GetFieldByNumber(1001))

	_, err = dynamic.NewMessageWithExtensions(fd.FindMessage("test.AllExtensions"), ext)
	require.Error(t, err)
	_, err = dynamic.NewMessageWithExtensions(fd.FindMessage("test.Empty"), ext)
	require.Error(t, err)

	// extensions are recognized by field number once registered
	b, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, plain.Unmarshal(b))
	require.Empty(t, plain.GetKnownExtensions())
	require.Len(t, plain.GetUnknownFields(), 1)
	require.NoError(t, plain.ReparseUnknown(m.GetExtensionRegistry()))
	require.Empty(t, plain.GetUnknownFields())
	require.Equal(t, int32(3), plain.GetFieldByNumber(1001))
}

func TestValidate(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.Required")
	require.EqualError(t, m.Validate(), "id is a required field")
	m.SetFieldByName("id", int32(0))
	require.NoError(t, m.Validate())

	child := newMessage(t, fd, "test.Required")
	m.SetFieldByName("child", child)
	require.EqualError(t, m.Validate(), "child.id is a required field")
	child.SetFieldByName("id", int32(1))
	require.NoError(t, m.Validate())

	// missing required fields do not prevent encoding or decoding
	child.ClearFieldByName("id")
	b, err := m.Marshal()
	require.NoError(t, err)
	m2 := newMessage(t, fd, "test.Required")
	require.NoError(t, m2.Unmarshal(b))
	require.True(t, dynamic.Equal(m, m2))
}

func TestResetAndString(t *testing.T) {
	fd := loadProto2(t)
	m := newMessage(t, fd, "test.AllTypes")
	m.SetFieldByName("optional_int32", int32(1))
	m.SetFieldByName("[test.ext_int32]", int32(2))
	require.NoError(t, m.UnmarshalMerge([]byte{0xb8, 0x3e, 1})) // unknown field 999
	require.Equal(t, "optional_int32:1 999:1 [test.ext_int32]:2", m.String())

	m.Reset()
	require.Equal(t, "", m.String())
	require.Empty(t, m.GetKnownExtensions())
	require.Empty(t, m.GetUnknownFields())
	require.True(t, dynamic.Equal(m, newMessage(t, fd, "test.AllTypes")))
}
