package dynamic

import (
	"bytes"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jhump/protoruntime/codec"
	"github.com/jhump/protoruntime/desc"
)

// UnknownField is a field that was present in binary input but was not
// recognized by the message's schema.
type UnknownField struct {
	// Number is the field number from the tag.
	Number int32
	// WireType indicates how the field's value was encoded.
	WireType protowire.Type
	// Raw is the complete encoding of the field: its tag followed by its
	// value. For groups, this includes the end group tag.
	Raw []byte
}

// Value returns the encoded value of the field, without its tag. For groups,
// this excludes the end group tag.
func (u UnknownField) Value() []byte {
	_, _, n := protowire.ConsumeTag(u.Raw)
	if n < 0 {
		return nil
	}
	val := u.Raw[n:]
	if u.WireType == protowire.StartGroupType {
		val = val[:len(val)-protowire.SizeTag(protowire.Number(u.Number))]
	}
	return val
}

// GetUnknownFields returns all unknown fields in the message, in the order in
// which they were decoded. The returned slice is a copy.
func (m *Message) GetUnknownFields() []UnknownField {
	if len(m.unknownFields) == 0 {
		return nil
	}
	ret := make([]UnknownField, len(m.unknownFields))
	copy(ret, m.unknownFields)
	return ret
}

// GetUnknownField returns the unknown fields with the given number.
func (m *Message) GetUnknownField(tagNumber int32) []UnknownField {
	var ret []UnknownField
	for _, u := range m.unknownFields {
		if u.Number == tagNumber {
			ret = append(ret, u)
		}
	}
	return ret
}

// UnknownFieldNumbers returns the distinct numbers of all unknown fields,
// sorted.
func (m *Message) UnknownFieldNumbers() []int32 {
	seen := map[int32]struct{}{}
	var ret []int32
	for _, u := range m.unknownFields {
		if _, ok := seen[u.Number]; !ok {
			seen[u.Number] = struct{}{}
			ret = append(ret, u.Number)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i] < ret[j]
	})
	return ret
}

// ClearUnknownFields discards all unknown fields of the message. Nested
// messages are not affected.
func (m *Message) ClearUnknownFields() {
	m.unknownFields = nil
}

// ReparseUnknown decodes every unknown field that is recognized by the given
// registry or by the message's own registry, recursively through all nested
// messages. Recognized fields are removed from the unknown set.
func (m *Message) ReparseUnknown(er *ExtensionRegistry) error {
	if er != nil {
		var err error
		if m.er, err = Union(m.er, er); err != nil {
			return err
		}
	}
	for _, num := range m.UnknownFieldNumbers() {
		if m.md.IsMessageSetWireFormat() && num == messageSetItemNumber {
			for _, u := range m.GetUnknownField(num) {
				if typeID, ok := messageSetItemTypeID(u.Raw); ok {
					if fd := m.FindFieldDescriptor(typeID); fd != nil {
						if _, err := m.parseUnknownField(fd); err != nil {
							return err
						}
					}
				}
			}
			continue
		}
		if fd := m.FindFieldDescriptor(num); fd != nil {
			if _, err := m.parseUnknownField(fd); err != nil {
				return err
			}
		}
	}
	return m.forEachNestedMessage(func(nm *Message) error {
		return nm.ReparseUnknown(er)
	})
}

func (m *Message) forEachNestedMessage(fn func(*Message) error) error {
	for _, v := range m.values {
		switch v := v.(type) {
		case *Message:
			if err := fn(v); err != nil {
				return err
			}
		case []interface{}:
			for _, e := range v {
				if em, ok := e.(*Message); ok {
					if err := fn(em); err != nil {
						return err
					}
				}
			}
		case map[interface{}]interface{}:
			for _, e := range v {
				if em, ok := e.(*Message); ok {
					if err := fn(em); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// isUnknownFor returns true if the given unknown field holds data for the
// given field.
func (m *Message) isUnknownFor(u UnknownField, fd *desc.FieldDescriptor) bool {
	if m.md.IsMessageSetWireFormat() && fd.IsExtension() && u.Number == messageSetItemNumber {
		typeID, ok := messageSetItemTypeID(u.Raw)
		return ok && typeID == fd.GetNumber()
	}
	return u.Number == fd.GetNumber()
}

// parseUnknownField decodes any unknown fields that hold data for the given
// field and stores the result. The decoded value is returned, or nil if there
// were no such unknown fields.
func (m *Message) parseUnknownField(fd *desc.FieldDescriptor) (interface{}, error) {
	var data []byte
	var rest []UnknownField
	for _, u := range m.unknownFields {
		if m.isUnknownFor(u, fd) {
			data = append(data, u.Raw...)
		} else {
			rest = append(rest, u)
		}
	}
	if data == nil {
		return nil, nil
	}

	tmp := NewMessageWithExtensionRegistry(m.md, m.er)
	if fd.IsExtension() {
		tmp.addField(fd)
	}
	dec := binaryDecoder{er: m.er}
	if err := dec.decodeMessage(codec.NewBuffer(data), tmp, defaultMessageDepthLimit-1, 0); err != nil {
		return nil, err
	}
	// values that are still not recognized, like unknown values of closed
	// enums, remain unknown
	m.unknownFields = append(rest, tmp.unknownFields...)
	v := tmp.values[fd.GetNumber()]
	if v == nil {
		return nil, nil
	}
	if m.values[fd.GetNumber()] != nil {
		if err := mergeField(m, fd, v); err != nil {
			return nil, err
		}
		return m.values[fd.GetNumber()], nil
	}
	m.storeValue(fd, v)
	return v, nil
}

// removeUnknownFields discards unknown fields that hold data for the given
// field.
func (m *Message) removeUnknownFields(fd *desc.FieldDescriptor) {
	if len(m.unknownFields) == 0 {
		return
	}
	rest := m.unknownFields[:0:0]
	for _, u := range m.unknownFields {
		if !m.isUnknownFor(u, fd) {
			rest = append(rest, u)
		}
	}
	m.unknownFields = rest
}

func (m *Message) addUnknownField(num protowire.Number, wt protowire.Type, raw []byte) {
	m.unknownFields = append(m.unknownFields, UnknownField{
		Number:   int32(num),
		WireType: wt,
		Raw:      bytes.Clone(raw),
	})
}

// sortedUnknownFields returns the unknown fields ordered by number. Fields
// with the same number keep their relative order.
func (m *Message) sortedUnknownFields() []UnknownField {
	if len(m.unknownFields) == 0 {
		return nil
	}
	ret := make([]UnknownField, len(m.unknownFields))
	copy(ret, m.unknownFields)
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Number < ret[j].Number
	})
	return ret
}

func (m *Message) appendUnknownField(u UnknownField) {
	u.Raw = bytes.Clone(u.Raw)
	m.unknownFields = append(m.unknownFields, u)
}
