package grpcdynamic

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"

	"github.com/jhump/protoruntime/dynamic"
)

// Codec is a gRPC codec for dynamic messages. It also handles generated
// messages, so it can replace the default codec on a connection or server
// that carries both.
//
// It uses the name "proto", so requests have the standard content type.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Name returns the name of the codec, "proto".
func (Codec) Name() string {
	return "proto"
}

// Marshal returns the binary encoding of v, which must be a *dynamic.Message
// or a proto.Message.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *dynamic.Message:
		return m.Marshal()
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("grpcdynamic: cannot marshal value of type %T", v)
}

// Unmarshal decodes data into v, which must be a *dynamic.Message or a
// proto.Message.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *dynamic.Message:
		return m.Unmarshal(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("grpcdynamic: cannot unmarshal into value of type %T", v)
}
