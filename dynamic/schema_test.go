package dynamic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/protoruntime/desc"
	"github.com/jhump/protoruntime/dynamic"
	prtesting "github.com/jhump/protoruntime/internal/testing"
)

const proto2Source = `
syntax = "proto2";
package test;

enum Color {
  RED = 0;
  GREEN = 1;
  BLUE = 2;
}

message AllTypes {
  optional int32 optional_int32 = 1;
  optional int64 optional_int64 = 2;
  optional uint32 optional_uint32 = 3;
  optional uint64 optional_uint64 = 4;
  optional sint32 optional_sint32 = 5;
  optional sint64 optional_sint64 = 6;
  optional fixed32 optional_fixed32 = 7;
  optional fixed64 optional_fixed64 = 8;
  optional sfixed32 optional_sfixed32 = 9;
  optional sfixed64 optional_sfixed64 = 10;
  optional float optional_float = 11;
  optional double optional_double = 12;
  optional bool optional_bool = 13;
  optional string optional_string = 14;
  optional bytes optional_bytes = 15;
  optional group OptionalGroup = 16 {
    optional int32 a = 17;
  }
  optional NestedMessage optional_nested_message = 18;
  optional Color optional_color = 21;
  optional string default_string = 22 [default = "hello"];
  optional int32 default_int32 = 23 [default = 41];

  message NestedMessage {
    optional int32 bb = 1;
  }

  repeated int32 repeated_int32 = 31;
  repeated int32 packed_int32 = 32 [packed = true];
  repeated string repeated_string = 44;
  repeated NestedMessage repeated_nested_message = 48;
  repeated Color repeated_color = 51;
  repeated Color packed_color = 52 [packed = true];

  map<string, int32> map_string_int32 = 56;
  map<int32, NestedMessage> map_int32_message = 57;
  map<int32, Color> map_int32_color = 58;

  oneof choice {
    uint32 oneof_uint32 = 111;
    NestedMessage oneof_nested_message = 112;
    string oneof_string = 113;
  }

  extensions 1000 to max;
}

extend AllTypes {
  optional int32 ext_int32 = 1001;
  optional AllTypes.NestedMessage ext_nested = 1002;
  repeated string ext_strings = 1003;
}

message NestedAllTypes {
  optional NestedAllTypes child = 1;
  optional AllTypes payload = 2;
}

message AllExtensions {
  extensions 1 to max;
}

extend AllExtensions {
  optional group OptionalGroup_extension = 16 {
    optional int32 a = 17;
  }
  optional AllTypes.NestedMessage optional_nested_message_extension = 18;
}

message Recursive {
  optional Recursive a = 1;
  optional int32 i = 2;
}

message Empty {
}

message Required {
  required int32 id = 1;
  optional Required child = 2;
}

message FieldOrderings {
  optional string my_string = 11;
  extensions 2 to 9;
  optional int64 my_int = 1;
  extensions 12 to 55;
  optional float my_float = 101;
  oneof options {
    int64 oneof_int64 = 60;
    string oneof_string = 150;
    int32 oneof_int32 = 10;
  }
  message NestedMessage {
    optional int64 oo = 2;
    optional int32 bb = 1;
  }
  optional NestedMessage optional_nested_message = 200;
}

extend FieldOrderings {
  optional string my_extension_string = 50;
  optional int32 my_extension_int = 5;
}
`

const proto3Source = `
syntax = "proto3";
package test3;

import "google/protobuf/any.proto";
import "google/protobuf/duration.proto";
import "google/protobuf/field_mask.proto";
import "google/protobuf/struct.proto";
import "google/protobuf/timestamp.proto";
import "google/protobuf/wrappers.proto";

enum Kind {
  KIND_UNSPECIFIED = 0;
  KIND_A = 1;
  KIND_B = 2;
}

message Msg {
  int32 i32 = 1;
  int64 i64 = 2;
  uint32 u32 = 3;
  uint64 u64 = 4;
  float f = 5;
  double d = 6;
  bool b = 7;
  string s = 8;
  bytes by = 9;
  Kind kind = 10;
  optional int32 opt_i32 = 11;
  repeated int32 nums = 12;
  map<string, Msg> children = 13;
  map<int64, string> names = 14;
  Msg child = 15;
  string snake_case_name = 16;
  string renamed = 17 [json_name = "other"];
  repeated Kind kinds = 18;

  google.protobuf.Any any = 20;
  google.protobuf.Timestamp ts = 21;
  google.protobuf.Duration dur = 22;
  google.protobuf.Struct st = 23;
  google.protobuf.Value val = 24;
  google.protobuf.ListValue list = 25;
  google.protobuf.FieldMask mask = 26;
  google.protobuf.Int64Value wrapped_i64 = 27;
  google.protobuf.StringValue wrapped_str = 28;
  google.protobuf.NullValue nothing = 29;

  oneof choice {
    string choice_s = 30;
    int32 choice_i = 31;
  }
}

message Recursive {
  Recursive a = 1;
  int32 i = 2;
}

message Names {
  int32 fieldname1 = 1;
  int32 field_name2 = 2;
  int32 _field_name3 = 3;
  int32 field__name4_ = 4;
}
`

// messageSetProtoset describes a MessageSet and an item type. The compiler
// does not accept the MessageSet wire format, so it is given as a descriptor.
const messageSetProtoset = `
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
			number: 100
			label: LABEL_OPTIONAL
			type: TYPE_MESSAGE
			type_name: ".ms.Item"
			extendee: ".ms.Set"
		}
	}
}
`

func loadProto2(t *testing.T) *desc.FileDescriptor {
	t.Helper()
	return prtesting.LoadSource(t, proto2Source)
}

func loadProto3(t *testing.T) *desc.FileDescriptor {
	t.Helper()
	return prtesting.LoadSource(t, proto3Source)
}

// newMessage returns an empty message of the named type, which recognizes
// every extension in the file.
func newMessage(t *testing.T, fd *desc.FileDescriptor, name string) *dynamic.Message {
	t.Helper()
	md := fd.FindMessage(name)
	require.NotNil(t, md, "message %s not found", name)
	er := dynamic.NewExtensionRegistry()
	require.NoError(t, er.AddExtensionsFromFile(fd))
	return dynamic.NewMessageWithExtensionRegistry(md, er)
}

// registryFor returns a type registry that knows every message in the given
// file and in the standard well-known files.
func registryFor(t *testing.T, fd *desc.FileDescriptor) *dynamic.TypeRegistry {
	t.Helper()
	reg := dynamic.NewTypeRegistryWithDefaults()
	require.NoError(t, reg.RegisterFile(fd))
	return reg
}
