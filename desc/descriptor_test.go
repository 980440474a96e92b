package desc_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/structpb"

	"github.com/jhump/protoruntime/desc"
	prtesting "github.com/jhump/protoruntime/internal/testing"
)

const proto2Source = `
syntax = "proto2";
package test;

message Msg {
  optional int32 i = 1 [default = -7];
  optional string s = 2 [default = "abc"];
  optional bytes b = 3 [default = "\001\x02\\"];
  optional double d = 4 [default = inf];
  optional float f = 5 [default = nan];
  optional Color c = 6 [default = BLUE];
  optional Color c2 = 7;
  optional bool flag = 8 [default = true];
  repeated int32 unpacked = 9;
  repeated int32 packed = 10 [packed = true];
  repeated string names = 11;
  required uint64 req = 12;
  optional group MyGroup = 13 {
    optional int32 a = 1;
  }
  map<string, Msg> children = 14;
  optional int32 custom_json = 15 [json_name = "xyz"];
  oneof choice {
    string str = 16;
    int64 num = 17;
  }
  optional string snake_case_name = 18;
  extensions 100 to 200;
}

enum Color {
  RED = 2;
  GREEN = 3;
  BLUE = 4;
}

extend Msg {
  optional int32 ext_int = 100;
  optional Msg ext_msg = 101;
}

message Container {
  extend Msg {
    repeated string nested_ext = 150;
  }
}
`

const proto3Source = `
syntax = "proto3";
package test3;

message Msg {
  int32 i = 1;
  optional int32 opt = 2;
  repeated int32 nums = 3;
  repeated int32 unpacked_nums = 4 [packed = false];
  repeated string strs = 5;
  Msg child = 6;
  Kind kind = 7;
  oneof choice {
    string a = 8;
    bytes b = 9;
  }
}

enum Kind {
  KIND_UNSPECIFIED = 0;
  KIND_A = 1;
}

service Svc {
  rpc Do(Msg) returns (Msg);
  rpc Stream(stream Msg) returns (stream Msg);
}
`

func TestMessageDescriptor(t *testing.T) {
	fd := prtesting.LoadSource(t, proto2Source)
	require.False(t, fd.IsProto3())
	md := fd.FindMessage("test.Msg")
	require.NotNil(t, md)
	require.Equal(t, "Msg", md.GetName())
	require.Equal(t, "test.Msg", md.GetFullyQualifiedName())
	require.Same(t, fd, md.GetFile())
	require.True(t, md.IsExtendable())
	require.True(t, md.IsExtension(100))
	require.True(t, md.IsExtension(200))
	require.False(t, md.IsExtension(201))
	require.False(t, md.IsMapEntry())

	require.Equal(t, "i", md.FindFieldByNumber(1).GetName())
	require.Equal(t, int32(2), md.FindFieldByName("s").GetNumber())
	require.Equal(t, "snake_case_name", md.FindFieldByJSONName("snakeCaseName").GetName())
	require.Equal(t, "custom_json", md.FindFieldByJSONName("xyz").GetName())
	require.Nil(t, md.FindFieldByJSONName("customJson"))
	require.Nil(t, md.FindFieldByNumber(99))

	fields := md.GetFieldsByNumber()
	for i := 1; i < len(fields); i++ {
		require.Less(t, fields[i-1].GetNumber(), fields[i].GetNumber())
	}
	require.Len(t, md.GetOneOfs(), 1)
	oo := md.GetOneOfs()[0]
	require.Equal(t, "choice", oo.GetName())
	require.Len(t, oo.GetChoices(), 2)
	require.Same(t, oo, md.FindFieldByName("str").GetOneOf())
	require.Nil(t, md.FindFieldByName("s").GetOneOf())
}

func TestFieldDescriptor_Defaults(t *testing.T) {
	md := prtesting.LoadSource(t, proto2Source).FindMessage("test.Msg")

	require.Equal(t, int32(-7), md.FindFieldByName("i").GetDefaultValue())
	require.Equal(t, "abc", md.FindFieldByName("s").GetDefaultValue())
	require.Equal(t, []byte{1, 2, '\\'}, md.FindFieldByName("b").GetDefaultValue())
	require.Equal(t, math.Inf(1), md.FindFieldByName("d").GetDefaultValue())
	f := md.FindFieldByName("f").GetDefaultValue().(float32)
	require.True(t, math.IsNaN(float64(f)))
	require.Equal(t, int32(4), md.FindFieldByName("c").GetDefaultValue())
	// first declared value, not zero
	require.Equal(t, int32(2), md.FindFieldByName("c2").GetDefaultValue())
	require.Equal(t, true, md.FindFieldByName("flag").GetDefaultValue())
	require.Equal(t, uint64(0), md.FindFieldByName("req").GetDefaultValue())
	require.Nil(t, md.FindFieldByName("unpacked").GetDefaultValue())
	require.Nil(t, md.FindFieldByName("mygroup").GetDefaultValue())

	// callers cannot modify the default
	b := md.FindFieldByName("b").GetDefaultValue().([]byte)
	b[0] = 99
	require.Equal(t, []byte{1, 2, '\\'}, md.FindFieldByName("b").GetDefaultValue())
}

func TestFieldDescriptor_Attributes(t *testing.T) {
	fd := prtesting.LoadSource(t, proto2Source)
	md := fd.FindMessage("test.Msg")

	testCases := []struct {
		name     string
		kind     protoreflect.Kind
		wireType protowire.Type
		repeated bool
		packed   bool
		presence bool
		textName string
	}{
		{name: "i", kind: protoreflect.Int32Kind, wireType: protowire.VarintType, presence: true, textName: "i"},
		{name: "d", kind: protoreflect.DoubleKind, wireType: protowire.Fixed64Type, presence: true, textName: "d"},
		{name: "f", kind: protoreflect.FloatKind, wireType: protowire.Fixed32Type, presence: true, textName: "f"},
		{name: "c", kind: protoreflect.EnumKind, wireType: protowire.VarintType, presence: true, textName: "c"},
		{name: "unpacked", kind: protoreflect.Int32Kind, wireType: protowire.VarintType, repeated: true, textName: "unpacked"},
		{name: "packed", kind: protoreflect.Int32Kind, wireType: protowire.VarintType, repeated: true, packed: true, textName: "packed"},
		{name: "names", kind: protoreflect.StringKind, wireType: protowire.BytesType, repeated: true, textName: "names"},
		{name: "mygroup", kind: protoreflect.GroupKind, wireType: protowire.StartGroupType, presence: true, textName: "MyGroup"},
		{name: "children", kind: protoreflect.MessageKind, wireType: protowire.BytesType, repeated: true, textName: "children"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fld := md.FindFieldByName(tc.name)
			require.NotNil(t, fld)
			require.Equal(t, tc.kind, fld.GetType())
			require.Equal(t, tc.wireType, fld.GetWireType())
			require.Equal(t, tc.repeated, fld.IsRepeated())
			require.Equal(t, tc.packed, fld.IsPacked())
			require.Equal(t, tc.presence, fld.HasPresence())
			require.Equal(t, tc.textName, fld.GetTextName())
		})
	}

	req := md.FindFieldByName("req")
	require.True(t, req.IsRequired())
	require.Equal(t, protoreflect.Required, req.GetLabel())

	children := md.FindFieldByName("children")
	require.True(t, children.IsMap())
	require.Equal(t, protoreflect.StringKind, children.GetMapKeyType().GetType())
	require.Same(t, md, children.GetMapValueType().GetMessageType())
	require.True(t, children.GetMessageType().IsMapEntry())
	require.False(t, md.FindFieldByName("names").IsMap())
	require.Nil(t, md.FindFieldByName("names").GetMapKeyType())

	extInt := fd.FindExtension("test.ext_int")
	require.NotNil(t, extInt)
	require.True(t, extInt.IsExtension())
	require.Same(t, md, extInt.GetOwner())
	require.Same(t, fd, extInt.GetParent())
	require.Equal(t, "[test.ext_int]", extInt.GetTextName())
	require.True(t, extInt.HasPresence())

	nested := fd.FindExtension("test.Container.nested_ext")
	require.NotNil(t, nested)
	require.Same(t, md, nested.GetOwner())
	require.Same(t, fd.FindMessage("test.Container"), nested.GetParent())
	require.Nil(t, fd.FindExtension("test.Msg.i"))
}

func TestFieldDescriptor_Proto3(t *testing.T) {
	fd := prtesting.LoadSource(t, proto3Source)
	require.True(t, fd.IsProto3())
	md := fd.FindMessage("test3.Msg")

	require.False(t, md.FindFieldByName("i").HasPresence())
	opt := md.FindFieldByName("opt")
	require.True(t, opt.HasPresence())
	require.True(t, opt.IsProto3Optional())
	// synthetic oneofs are hidden
	require.Nil(t, opt.GetOneOf())
	require.Len(t, md.GetOneOfs(), 1)
	require.True(t, md.FindFieldByName("child").HasPresence())
	require.True(t, md.FindFieldByName("a").HasPresence())

	require.True(t, md.FindFieldByName("nums").IsPacked())
	require.False(t, md.FindFieldByName("unpacked_nums").IsPacked())
	require.False(t, md.FindFieldByName("strs").IsPacked())
	require.Equal(t, int32(0), md.FindFieldByName("kind").GetDefaultValue())
	require.False(t, md.FindFieldByName("kind").GetEnumType().IsClosed())
	require.Equal(t, []byte(nil), md.FindFieldByName("b").GetDefaultValue())

	sd := fd.FindService("test3.Svc")
	require.NotNil(t, sd)
	do := sd.FindMethodByName("Do")
	require.Same(t, md, do.GetInputType())
	require.Same(t, md, do.GetOutputType())
	require.False(t, do.IsClientStreaming())
	stream := sd.FindMethodByName("Stream")
	require.True(t, stream.IsClientStreaming())
	require.True(t, stream.IsServerStreaming())
}

func TestEnumDescriptor(t *testing.T) {
	fd := prtesting.LoadSource(t, proto2Source)
	ed := fd.FindEnum("test.Color")
	require.NotNil(t, ed)
	require.True(t, ed.IsClosed())
	require.Len(t, ed.GetValues(), 3)
	require.Equal(t, int32(3), ed.FindValueByName("GREEN").GetNumber())
	require.Equal(t, "BLUE", ed.FindValueByNumber(4).GetName())
	require.Nil(t, ed.FindValueByNumber(1))
	// enum values are siblings of the enum
	require.Equal(t, "test.RED", ed.FindValueByNumber(2).GetFullyQualifiedName())
}

func TestLoadFileDescriptor_Cached(t *testing.T) {
	fd1, err := desc.LoadFileDescriptor(durationpb.File_google_protobuf_duration_proto)
	require.NoError(t, err)
	fd2, err := desc.LoadFileDescriptor(durationpb.File_google_protobuf_duration_proto)
	require.NoError(t, err)
	require.Same(t, fd1, fd2)

	md, err := desc.LoadMessageDescriptorForMessage(&durationpb.Duration{})
	require.NoError(t, err)
	require.Same(t, fd1, md.GetFile())

	md, err = desc.LoadMessageDescriptor("google.protobuf.Struct")
	require.NoError(t, err)
	require.Equal(t, "google.protobuf.Struct", md.GetFullyQualifiedName())
	require.True(t, md.FindFieldByName("fields").IsMap())

	md, err = desc.LoadMessageDescriptor("does.not.Exist")
	require.NoError(t, err)
	require.Nil(t, md)
}

func TestCreateFileDescriptor_NoOptions(t *testing.T) {
	for _, syntax := range []string{"proto2", "proto3"} {
		t.Run(syntax, func(t *testing.T) {
			label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
			fdp := &descriptorpb.FileDescriptorProto{
				Name:    proto.String("plain.proto"),
				Package: proto.String("plain"),
				Syntax:  proto.String(syntax),
				MessageType: []*descriptorpb.DescriptorProto{{
					Name: proto.String("M"),
					Field: []*descriptorpb.FieldDescriptorProto{
						{
							Name:   proto.String("a"),
							Number: proto.Int32(1),
							Label:  label.Enum(),
							Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
						},
						{
							Name:   proto.String("nums"),
							Number: proto.Int32(2),
							Label:  descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
							Type:   descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
						},
						{
							Name:   proto.String("names"),
							Number: proto.Int32(3),
							Label:  descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
							Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
						},
					},
				}},
			}
			fd, err := desc.CreateFileDescriptor(fdp)
			require.NoError(t, err)
			md := fd.FindMessage("plain.M")
			require.NotNil(t, md)
			require.False(t, md.IsMapEntry())
			require.False(t, md.IsMessageSetWireFormat())
			require.False(t, md.FindFieldByName("a").IsPacked())
			// repeated scalars are packed by default only in proto3
			require.Equal(t, syntax == "proto3", md.FindFieldByName("nums").IsPacked())
			require.False(t, md.FindFieldByName("names").IsPacked())
		})
	}
}

func TestCreateFileDescriptor_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		set    string
		errMsg string
	}{
		{
			name: "reserved number",
			set: `file { name: "a.proto" message_type { name: "M"
				field { name: "f" number: 19000 label: LABEL_OPTIONAL type: TYPE_INT32 } } }`,
			errMsg: "reserved",
		},
		{
			name: "number too large",
			set: `file { name: "a.proto" message_type { name: "M"
				field { name: "f" number: 536870912 label: LABEL_OPTIONAL type: TYPE_INT32 } } }`,
			errMsg: "out of range",
		},
		{
			name: "zero number",
			set: `file { name: "a.proto" message_type { name: "M"
				field { name: "f" number: 0 label: LABEL_OPTIONAL type: TYPE_INT32 } } }`,
			errMsg: "out of range",
		},
		{
			name: "unresolvable type",
			set: `file { name: "a.proto" message_type { name: "M"
				field { name: "f" number: 1 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".Nope" } } }`,
			errMsg: "unresolvable",
		},
		{
			name: "extension outside range",
			set: `file { name: "a.proto" message_type { name: "M" extension_range { start: 10 end: 20 } }
				extension { name: "x" number: 5 label: LABEL_OPTIONAL type: TYPE_INT32 extendee: ".M" } }`,
			errMsg: "extension range",
		},
		{
			name:   "editions",
			set:    `file { name: "a.proto" syntax: "editions" }`,
			errMsg: "unsupported syntax",
		},
		{
			name:   "missing dependency",
			set:    `file { name: "a.proto" dependency: "b.proto" }`,
			errMsg: "missing a dependency",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var fds descriptorpb.FileDescriptorSet
			require.NoError(t, unmarshalText(tc.set, &fds))
			_, err := desc.CreateFileDescriptorFromSet(&fds)
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestMessageSetDescriptor(t *testing.T) {
	fd := prtesting.LoadProtosetText(t, `
		file {
			name: "ms.proto"
			package: "ms"
			message_type {
				name: "Set"
				options { message_set_wire_format: true }
				extension_range { start: 4 end: 2147483647 }
			}
			message_type {
				name: "Item"
				field { name: "x" number: 1 label: LABEL_OPTIONAL type: TYPE_INT32 }
				extension {
					name: "message_set_extension"
					number: 1000000000
					label: LABEL_OPTIONAL
					type: TYPE_MESSAGE
					type_name: ".ms.Item"
					extendee: ".ms.Set"
				}
			}
		}`)
	set := fd.FindMessage("ms.Set")
	require.True(t, set.IsMessageSetWireFormat())
	ext := fd.FindExtension("ms.Item.message_set_extension")
	require.NotNil(t, ext)
	require.Equal(t, "[ms.Item]", ext.GetTextName())
	require.Greater(t, int64(ext.GetNumber()), int64(protowire.MaxValidNumber))
}

func unmarshalText(s string, msg proto.Message) error {
	return prototext.Unmarshal([]byte(s), msg)
}
