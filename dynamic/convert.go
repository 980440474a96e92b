package dynamic

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ConvertTo converts this dynamic message into the given message. The given
// message is reset first. The two messages must have the same fully-qualified
// name. Extensions and unknown fields are carried over, since the conversion
// goes through the binary format.
func (m *Message) ConvertTo(target proto.Message) error {
	if err := m.checkType(target); err != nil {
		return err
	}
	proto.Reset(target)
	return m.mergeInto(target)
}

// MergeInto merges this dynamic message into the given message. The two
// messages must have the same fully-qualified name. Singular fields set in this
// message overwrite those in the target, and repeated fields are appended.
func (m *Message) MergeInto(target proto.Message) error {
	if err := m.checkType(target); err != nil {
		return err
	}
	return m.mergeInto(target)
}

func (m *Message) mergeInto(target proto.Message) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	return proto.UnmarshalOptions{Merge: true}.Unmarshal(b, target)
}

// ConvertFrom replaces the contents of this dynamic message with those of the
// given message, which must have the same fully-qualified name. If an error
// is returned, this message is left unchanged.
func (m *Message) ConvertFrom(src proto.Message) error {
	if err := m.checkType(src); err != nil {
		return err
	}
	b, err := proto.Marshal(src)
	if err != nil {
		return err
	}
	return m.Unmarshal(b)
}

// MergeFrom merges the given message into this dynamic message. The given
// message must have the same fully-qualified name. If an error is returned,
// this message is left unchanged.
func (m *Message) MergeFrom(src proto.Message) error {
	if err := m.checkType(src); err != nil {
		return err
	}
	b, err := proto.Marshal(src)
	if err != nil {
		return err
	}
	return m.UnmarshalMerge(b)
}

func (m *Message) checkType(other proto.Message) error {
	name := string(other.ProtoReflect().Descriptor().FullName())
	if name != m.md.GetFullyQualifiedName() {
		return fmt.Errorf("given message has wrong type: %q; expecting %q", name, m.md.GetFullyQualifiedName())
	}
	return nil
}
