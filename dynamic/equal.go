package dynamic

import (
	"bytes"

	"github.com/jhump/protoruntime/desc"
)

// Clone returns a deep copy of the message. The copy shares no mutable storage
// with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := &Message{md: m.md, er: m.er}
	if len(m.values) > 0 {
		cp.values = make(map[int32]interface{}, len(m.values))
		for k, v := range m.values {
			cp.values[k] = cloneValue(v)
		}
	}
	if len(m.extraFields) > 0 {
		cp.extraFields = make(map[int32]*desc.FieldDescriptor, len(m.extraFields))
		for k, fd := range m.extraFields {
			cp.extraFields[k] = fd
		}
	}
	for _, u := range m.unknownFields {
		cp.appendUnknownField(u)
	}
	return cp
}

// Equal returns true if the given two messages are equal. They are equal if
// they have the same type, the same set of populated fields (including
// extensions) with equal values, and the same unknown fields in the same
// order. As with google.golang.org/protobuf/proto.Equal, a floating point NaN
// is never equal to anything.
func Equal(a, b *Message) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.md.GetFullyQualifiedName() != b.md.GetFullyQualifiedName() {
		return false
	}
	if len(a.values) != len(b.values) {
		return false
	}
	for tag, av := range a.values {
		bv, ok := b.values[tag]
		if !ok || !valuesEqual(av, bv) {
			return false
		}
	}
	if len(a.unknownFields) != len(b.unknownFields) {
		return false
	}
	for i, au := range a.unknownFields {
		bu := b.unknownFields[i]
		if au.Number != bu.Number || au.WireType != bu.WireType || !bytes.Equal(au.Raw, bu.Raw) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch a := a.(type) {
	case []byte:
		bb, ok := b.([]byte)
		return ok && bytes.Equal(a, bb)
	case *Message:
		bm, ok := b.(*Message)
		return ok && Equal(a, bm)
	case []interface{}:
		bs, ok := b.([]interface{})
		if !ok || len(a) != len(bs) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], bs[i]) {
				return false
			}
		}
		return true
	case map[interface{}]interface{}:
		bm, ok := b.(map[interface{}]interface{})
		if !ok || len(a) != len(bm) {
			return false
		}
		for k, av := range a {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
