package dynamic

// Binary serialization and de-serialization for dynamic messages

import (
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protoruntime/codec"
	"github.com/jhump/protoruntime/desc"
)

// defaultMessageDepthLimit is the depth limit used when options do not
// specify one. The outermost message counts as one level.
const defaultMessageDepthLimit = 100

// BinaryEncodingOptions configures the binary encoder.
type BinaryEncodingOptions struct {
	// If true, map entries are written in ascending order of their keys, so
	// that equal messages always produce identical bytes.
	UseDeterministicOrdering bool
}

// BinaryDecodingOptions configures the binary decoder.
type BinaryDecodingOptions struct {
	// MessageDepthLimit is the maximum nesting of messages and groups in the
	// input. The message being decoded counts as the first level. If zero,
	// the limit is 100.
	MessageDepthLimit int
	// If true, unknown fields are dropped instead of being retained in the
	// message, at every level of nesting.
	DiscardUnknownFields bool
	// Extensions are recognized by the decoder, in addition to those in the
	// message's own registry.
	Extensions *ExtensionRegistry
}

func (opts BinaryDecodingOptions) depthLimit() int {
	if opts.MessageDepthLimit <= 0 {
		return defaultMessageDepthLimit
	}
	return opts.MessageDepthLimit
}

// Marshal serializes this message to bytes, returning an error if the
// operation fails. The resulting bytes are in the standard protocol buffer
// binary format.
func (m *Message) Marshal() ([]byte, error) {
	return m.MarshalWithOptions(BinaryEncodingOptions{})
}

// MarshalAppend behaves exactly the same as Marshal, except instead of
// allocating a new byte slice to marshal into, it uses the provided byte slice.
// The backing array for the returned byte slice *may* be the same as the one
// that was passed in, but it's not guaranteed as a new backing array will
// automatically be allocated if more bytes need to be written than the
// provided buffer has capacity for.
func (m *Message) MarshalAppend(b []byte) ([]byte, error) {
	enc := newBinaryEncoder(codec.NewBuffer(b), false)
	if err := enc.encodeMessage(m); err != nil {
		return nil, err
	}
	return enc.cb.Bytes(), nil
}

// MarshalDeterministic serializes this message to bytes in a deterministic
// way, returning an error if the operation fails. This differs from Marshal
// in that map keys will be sorted before serializing to bytes. The wire
// format does not define ordering for map entries, so Marshal will use standard
// Go map iteration order (which will be random). But for cases where
// determinism is more important than performance, use this method instead.
func (m *Message) MarshalDeterministic() ([]byte, error) {
	return m.MarshalWithOptions(BinaryEncodingOptions{UseDeterministicOrdering: true})
}

// MarshalWithOptions serializes this message to bytes using the given options.
func (m *Message) MarshalWithOptions(opts BinaryEncodingOptions) ([]byte, error) {
	enc := newBinaryEncoder(codec.NewBuffer(nil), opts.UseDeterministicOrdering)
	if err := enc.encodeMessage(m); err != nil {
		return nil, err
	}
	return enc.cb.Bytes(), nil
}

// Size returns the number of bytes in the binary encoding of this message.
func (m *Message) Size() int {
	return newBinaryEncoder(nil, false).messageSize(m)
}

// Unmarshal de-serializes the message that is present in the given encoded
// bytes into this message. All existing fields, including unknown fields, are
// replaced. If an error is returned, this message is left unchanged.
func (m *Message) Unmarshal(b []byte) error {
	return m.UnmarshalWithOptions(b, BinaryDecodingOptions{})
}

// UnmarshalMerge de-serializes the message that is present in the given
// encoded bytes into this message. Unlike Unmarshal, existing fields are not
// cleared first: the decoded fields are merged into them. If an error is
// returned, this message is left unchanged.
func (m *Message) UnmarshalMerge(b []byte) error {
	return m.UnmarshalMergeWithOptions(b, BinaryDecodingOptions{})
}

// UnmarshalWithOptions is like Unmarshal but uses the given options.
func (m *Message) UnmarshalWithOptions(b []byte, opts BinaryDecodingOptions) error {
	return m.unmarshal(b, opts, NewMessageWithExtensionRegistry(m.md, m.er))
}

// UnmarshalMergeWithOptions is like UnmarshalMerge but uses the given options.
func (m *Message) UnmarshalMergeWithOptions(b []byte, opts BinaryDecodingOptions) error {
	return m.unmarshal(b, opts, m.Clone())
}

// unmarshal decodes into the given target and, only if that succeeds, moves
// the target's contents into m.
func (m *Message) unmarshal(b []byte, opts BinaryDecodingOptions, target *Message) error {
	dec := binaryDecoder{er: opts.Extensions, discard: opts.DiscardUnknownFields}
	if dec.er == nil {
		dec.er = m.er
	}
	if err := dec.decodeMessage(codec.NewBuffer(b), target, opts.depthLimit()-1, 0); err != nil {
		return err
	}
	m.values = target.values
	m.extraFields = target.extraFields
	m.unknownFields = target.unknownFields
	return nil
}

type binaryEncoder struct {
	cb            *codec.Buffer
	deterministic bool
	sizes         map[*Message]int
}

func newBinaryEncoder(cb *codec.Buffer, deterministic bool) *binaryEncoder {
	if cb != nil {
		cb.SetDeterministic(deterministic)
	}
	return &binaryEncoder{
		cb:            cb,
		deterministic: deterministic,
		sizes:         map[*Message]int{},
	}
}

func (e *binaryEncoder) encodeMessage(m *Message) error {
	return m.Traverse(fieldVisitor{
		field: func(fd *desc.FieldDescriptor, val interface{}) error {
			return e.encodeField(m, fd, val)
		},
		unknown: func(u UnknownField) error {
			// raw bytes already include the tag
			_, err := e.cb.Write(u.Raw)
			return err
		},
	})
}

func (e *binaryEncoder) encodeField(m *Message, fd *desc.FieldDescriptor, val interface{}) error {
	num := protowire.Number(fd.GetNumber())
	if isMessageSetItem(m, fd) {
		return e.encodeMessageSetItem(num, val.(*Message))
	}
	switch {
	case fd.IsMap():
		entries := val.(map[interface{}]interface{})
		keyField := fd.GetMapKeyType()
		valField := fd.GetMapValueType()
		writeEntry := func(k, v interface{}) error {
			e.cb.EncodeTagAndWireType(num, protowire.BytesType)
			return e.cb.EncodeDelimited(e.mapEntrySize(fd, k, v), func(*codec.Buffer) error {
				if err := e.encodeSingle(1, keyField, k); err != nil {
					return err
				}
				return e.encodeSingle(2, valField, v)
			})
		}
		if e.deterministic {
			for _, k := range sortedMapKeys(entries) {
				if err := writeEntry(k, entries[k]); err != nil {
					return err
				}
			}
			return nil
		}
		for k, v := range entries {
			if err := writeEntry(k, v); err != nil {
				return err
			}
		}
		return nil

	case fd.IsRepeated():
		vals := val.([]interface{})
		if fd.IsPacked() {
			if len(vals) == 0 {
				return nil
			}
			e.cb.EncodeTagAndWireType(num, protowire.BytesType)
			return e.cb.EncodeDelimited(e.packedSize(fd, vals), func(*codec.Buffer) error {
				for _, v := range vals {
					if err := e.encodeScalar(fd, v); err != nil {
						return err
					}
				}
				return nil
			})
		}
		for _, v := range vals {
			if err := e.encodeSingle(num, fd, v); err != nil {
				return err
			}
		}
		return nil

	default:
		return e.encodeSingle(num, fd, val)
	}
}

func (e *binaryEncoder) encodeSingle(num protowire.Number, fd *desc.FieldDescriptor, val interface{}) error {
	switch fd.GetType() {
	case protoreflect.GroupKind:
		e.cb.EncodeTagAndWireType(num, protowire.StartGroupType)
		if err := e.encodeMessage(val.(*Message)); err != nil {
			return err
		}
		e.cb.EncodeTagAndWireType(num, protowire.EndGroupType)
		return nil
	case protoreflect.MessageKind:
		msg := val.(*Message)
		e.cb.EncodeTagAndWireType(num, protowire.BytesType)
		return e.cb.EncodeDelimited(e.messageSize(msg), func(*codec.Buffer) error {
			return e.encodeMessage(msg)
		})
	default:
		e.cb.EncodeTagAndWireType(num, fd.GetWireType())
		return e.encodeScalar(fd, val)
	}
}

func (e *binaryEncoder) encodeScalar(fd *desc.FieldDescriptor, val interface{}) error {
	switch fd.GetType() {
	case protoreflect.Int32Kind, protoreflect.EnumKind:
		e.cb.EncodeVarint(uint64(int64(val.(int32))))
	case protoreflect.Int64Kind:
		e.cb.EncodeVarint(uint64(val.(int64)))
	case protoreflect.Uint32Kind:
		e.cb.EncodeVarint(uint64(val.(uint32)))
	case protoreflect.Uint64Kind:
		e.cb.EncodeVarint(val.(uint64))
	case protoreflect.Sint32Kind:
		e.cb.EncodeVarint(codec.EncodeZigZag32(val.(int32)))
	case protoreflect.Sint64Kind:
		e.cb.EncodeVarint(codec.EncodeZigZag64(val.(int64)))
	case protoreflect.BoolKind:
		if val.(bool) {
			e.cb.EncodeVarint(1)
		} else {
			e.cb.EncodeVarint(0)
		}
	case protoreflect.Fixed32Kind:
		e.cb.EncodeFixed32(val.(uint32))
	case protoreflect.Sfixed32Kind:
		e.cb.EncodeFixed32(uint32(val.(int32)))
	case protoreflect.FloatKind:
		e.cb.EncodeFixed32(math.Float32bits(val.(float32)))
	case protoreflect.Fixed64Kind:
		e.cb.EncodeFixed64(val.(uint64))
	case protoreflect.Sfixed64Kind:
		e.cb.EncodeFixed64(uint64(val.(int64)))
	case protoreflect.DoubleKind:
		e.cb.EncodeFixed64(math.Float64bits(val.(float64)))
	case protoreflect.StringKind:
		e.cb.EncodeRawBytes([]byte(val.(string)))
	case protoreflect.BytesKind:
		e.cb.EncodeRawBytes(val.([]byte))
	default:
		return fmt.Errorf("unrecognized field type: %v", fd.GetType())
	}
	return nil
}

// messageSize computes the encoded size of the given message. Results are
// memoized so that writing nested messages, which needs the size of each one
// up front, stays linear.
func (e *binaryEncoder) messageSize(m *Message) int {
	if sz, ok := e.sizes[m]; ok {
		return sz
	}
	sz := 0
	_ = m.Traverse(fieldVisitor{
		field: func(fd *desc.FieldDescriptor, val interface{}) error {
			sz += e.fieldSize(m, fd, val)
			return nil
		},
		unknown: func(u UnknownField) error {
			sz += len(u.Raw)
			return nil
		},
	})
	e.sizes[m] = sz
	return sz
}

func (e *binaryEncoder) fieldSize(m *Message, fd *desc.FieldDescriptor, val interface{}) int {
	num := protowire.Number(fd.GetNumber())
	if isMessageSetItem(m, fd) {
		return messageSetItemSize(num, e.messageSize(val.(*Message)))
	}
	switch {
	case fd.IsMap():
		sz := 0
		for k, v := range val.(map[interface{}]interface{}) {
			sz += protowire.SizeTag(num) + protowire.SizeBytes(e.mapEntrySize(fd, k, v))
		}
		return sz
	case fd.IsRepeated():
		vals := val.([]interface{})
		if fd.IsPacked() {
			if len(vals) == 0 {
				return 0
			}
			return protowire.SizeTag(num) + protowire.SizeBytes(e.packedSize(fd, vals))
		}
		sz := 0
		for _, v := range vals {
			sz += e.singleSize(num, fd, v)
		}
		return sz
	default:
		return e.singleSize(num, fd, val)
	}
}

func (e *binaryEncoder) mapEntrySize(fd *desc.FieldDescriptor, k, v interface{}) int {
	return e.singleSize(1, fd.GetMapKeyType(), k) + e.singleSize(2, fd.GetMapValueType(), v)
}

func (e *binaryEncoder) packedSize(fd *desc.FieldDescriptor, vals []interface{}) int {
	sz := 0
	for _, v := range vals {
		sz += scalarSize(fd, v)
	}
	return sz
}

func (e *binaryEncoder) singleSize(num protowire.Number, fd *desc.FieldDescriptor, val interface{}) int {
	switch fd.GetType() {
	case protoreflect.GroupKind:
		return 2*protowire.SizeTag(num) + e.messageSize(val.(*Message))
	case protoreflect.MessageKind:
		return protowire.SizeTag(num) + protowire.SizeBytes(e.messageSize(val.(*Message)))
	default:
		return protowire.SizeTag(num) + scalarSize(fd, val)
	}
}

func scalarSize(fd *desc.FieldDescriptor, val interface{}) int {
	switch fd.GetType() {
	case protoreflect.Int32Kind, protoreflect.EnumKind:
		return protowire.SizeVarint(uint64(int64(val.(int32))))
	case protoreflect.Int64Kind:
		return protowire.SizeVarint(uint64(val.(int64)))
	case protoreflect.Uint32Kind:
		return protowire.SizeVarint(uint64(val.(uint32)))
	case protoreflect.Uint64Kind:
		return protowire.SizeVarint(val.(uint64))
	case protoreflect.Sint32Kind:
		return protowire.SizeVarint(codec.EncodeZigZag32(val.(int32)))
	case protoreflect.Sint64Kind:
		return protowire.SizeVarint(codec.EncodeZigZag64(val.(int64)))
	case protoreflect.BoolKind:
		return 1
	case protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind, protoreflect.FloatKind:
		return protowire.SizeFixed32()
	case protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind, protoreflect.DoubleKind:
		return protowire.SizeFixed64()
	case protoreflect.StringKind:
		return protowire.SizeBytes(len(val.(string)))
	case protoreflect.BytesKind:
		return protowire.SizeBytes(len(val.([]byte)))
	}
	return 0
}

type binaryDecoder struct {
	er      *ExtensionRegistry
	discard bool
}

// decodeMessage decodes fields from the given buffer into m. The remaining
// argument is how many more levels of nesting are allowed below m. If groupNum
// is non-zero, m is the content of a group and decoding stops at the matching
// end group tag. Otherwise it stops at the end of the buffer.
func (d binaryDecoder) decodeMessage(cb *codec.Buffer, m *Message, remaining int, groupNum protowire.Number) error {
	for !cb.EOF() {
		start := cb.Offset()
		num, wt, err := cb.DecodeTagAndWireType()
		if err != nil {
			return err
		}
		if wt == protowire.EndGroupType {
			if groupNum == 0 || num != groupNum {
				return fmt.Errorf("%w: unexpected end group tag for field %d", codec.ErrMalformed, num)
			}
			return nil
		}
		if err := d.decodeField(cb, m, num, wt, start, remaining); err != nil {
			return err
		}
	}
	if groupNum != 0 {
		return fmt.Errorf("%w: missing end group tag for field %d", codec.ErrTruncated, groupNum)
	}
	return nil
}

func (d binaryDecoder) findField(m *Message, num protowire.Number) *desc.FieldDescriptor {
	if fd := m.FindFieldDescriptor(int32(num)); fd != nil {
		return fd
	}
	if m.md.IsExtension(int32(num)) {
		return d.er.FindExtension(m.md.GetFullyQualifiedName(), int32(num))
	}
	return nil
}

func (d binaryDecoder) decodeField(cb *codec.Buffer, m *Message, num protowire.Number, wt protowire.Type, start int, remaining int) error {
	if wt == protowire.StartGroupType && num == messageSetItemNumber && m.md.IsMessageSetWireFormat() {
		return d.decodeMessageSetItem(cb, m, start, remaining)
	}

	fd := d.findField(m, num)
	switch {
	case fd == nil:
		return d.skipUnknown(cb, m, num, wt, start, remaining)
	case fd.IsRepeated() && wt == protowire.BytesType && isPackable(fd):
		return d.decodePacked(cb, m, fd)
	case wt != fd.GetWireType():
		// wire type does not match the schema, so the value is not usable as
		// this field
		return d.skipUnknown(cb, m, num, wt, start, remaining)
	}

	switch fd.GetType() {
	case protoreflect.GroupKind:
		if remaining < 1 {
			return codec.ErrDepthLimit
		}
		msg := d.targetMessage(m, fd)
		if err := d.decodeMessage(cb, msg, remaining-1, num); err != nil {
			return err
		}
		d.store(m, fd, msg)
		return nil

	case protoreflect.MessageKind:
		data, err := cb.DecodeRawBytes(false)
		if err != nil {
			return err
		}
		if remaining < 1 {
			return codec.ErrDepthLimit
		}
		if fd.IsMap() {
			return d.decodeMapEntry(data, m, fd, cb.Since(start), remaining-1)
		}
		msg := d.targetMessage(m, fd)
		if err := d.decodeMessage(codec.NewBuffer(data), msg, remaining-1, 0); err != nil {
			return err
		}
		d.store(m, fd, msg)
		return nil
	}

	v, err := decodeScalar(cb, fd)
	if err != nil {
		return err
	}
	if isUnknownEnumValue(fd, v) {
		// closed enums cannot hold values they do not define
		if !d.discard {
			m.addUnknownField(num, wt, cb.Since(start))
		}
		return nil
	}
	d.store(m, fd, v)
	return nil
}

func (d binaryDecoder) skipUnknown(cb *codec.Buffer, m *Message, num protowire.Number, wt protowire.Type, start int, remaining int) error {
	if err := cb.SkipFieldValue(num, wt, remaining); err != nil {
		return err
	}
	if !d.discard {
		m.addUnknownField(num, wt, cb.Since(start))
	}
	return nil
}

// targetMessage returns the message into which a singular message field should
// be decoded: the existing value, if there is one, so that occurrences are
// merged. Repeated fields always get a new message.
func (d binaryDecoder) targetMessage(m *Message, fd *desc.FieldDescriptor) *Message {
	if !fd.IsRepeated() {
		if existing, ok := m.values[fd.GetNumber()].(*Message); ok && existing != nil {
			return existing
		}
	}
	return NewMessageWithExtensionRegistry(fd.GetMessageType(), d.er)
}

// store records a decoded value, appending it if the field is repeated.
func (d binaryDecoder) store(m *Message, fd *desc.FieldDescriptor, v interface{}) {
	if fd.IsRepeated() {
		vals, _ := m.values[fd.GetNumber()].([]interface{})
		m.storeValue(fd, append(vals, v))
		return
	}
	m.storeValue(fd, v)
}

func (d binaryDecoder) decodeMapEntry(data []byte, m *Message, fd *desc.FieldDescriptor, raw []byte, remaining int) error {
	entry := NewMessageWithExtensionRegistry(fd.GetMessageType(), d.er)
	if err := d.decodeMessage(codec.NewBuffer(data), entry, remaining, 0); err != nil {
		return err
	}
	if valField := fd.GetMapValueType(); valField.GetEnumType() != nil && valField.GetEnumType().IsClosed() && len(entry.GetUnknownField(2)) > 0 {
		// the value is not defined by a closed enum, so the whole entry is unknown
		if !d.discard {
			m.addUnknownField(protowire.Number(fd.GetNumber()), protowire.BytesType, raw)
		}
		return nil
	}
	entries, _ := m.values[fd.GetNumber()].(map[interface{}]interface{})
	if entries == nil {
		entries = map[interface{}]interface{}{}
	}
	entries[entry.mapEntryKey()] = entry.mapEntryValue()
	m.storeValue(fd, entries)
	return nil
}

func (d binaryDecoder) decodePacked(cb *codec.Buffer, m *Message, fd *desc.FieldDescriptor) error {
	data, err := cb.DecodeRawBytes(false)
	if err != nil {
		return err
	}
	num := protowire.Number(fd.GetNumber())
	vals, _ := m.values[fd.GetNumber()].([]interface{})
	pb := codec.NewBuffer(data)
	for !pb.EOF() {
		v, err := decodeScalar(pb, fd)
		if err != nil {
			return err
		}
		if isUnknownEnumValue(fd, v) {
			if !d.discard {
				raw := protowire.AppendTag(nil, num, protowire.VarintType)
				raw = protowire.AppendVarint(raw, uint64(int64(v.(int32))))
				m.addUnknownField(num, protowire.VarintType, raw)
			}
			continue
		}
		vals = append(vals, v)
	}
	m.storeValue(fd, vals)
	return nil
}

func isPackable(fd *desc.FieldDescriptor) bool {
	switch fd.GetType() {
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return false
	}
	return true
}

func isUnknownEnumValue(fd *desc.FieldDescriptor, v interface{}) bool {
	ed := fd.GetEnumType()
	if ed == nil || !ed.IsClosed() {
		return false
	}
	return ed.FindValueByNumber(v.(int32)) == nil
}

// decodeScalar decodes a single value of a field that is neither a message nor
// a group.
func decodeScalar(cb *codec.Buffer, fd *desc.FieldDescriptor) (interface{}, error) {
	switch fd.GetType() {
	case protoreflect.Int32Kind, protoreflect.EnumKind:
		v, err := cb.DecodeVarint()
		return int32(v), err
	case protoreflect.Int64Kind:
		v, err := cb.DecodeVarint()
		return int64(v), err
	case protoreflect.Uint32Kind:
		v, err := cb.DecodeVarint()
		return uint32(v), err
	case protoreflect.Uint64Kind:
		v, err := cb.DecodeVarint()
		return v, err
	case protoreflect.Sint32Kind:
		v, err := cb.DecodeVarint()
		return codec.DecodeZigZag32(v), err
	case protoreflect.Sint64Kind:
		v, err := cb.DecodeVarint()
		return codec.DecodeZigZag64(v), err
	case protoreflect.BoolKind:
		v, err := cb.DecodeVarint()
		return v != 0, err
	case protoreflect.Fixed32Kind:
		v, err := cb.DecodeFixed32()
		return v, err
	case protoreflect.Sfixed32Kind:
		v, err := cb.DecodeFixed32()
		return int32(v), err
	case protoreflect.FloatKind:
		v, err := cb.DecodeFixed32()
		return math.Float32frombits(v), err
	case protoreflect.Fixed64Kind:
		v, err := cb.DecodeFixed64()
		return v, err
	case protoreflect.Sfixed64Kind:
		v, err := cb.DecodeFixed64()
		return int64(v), err
	case protoreflect.DoubleKind:
		v, err := cb.DecodeFixed64()
		return math.Float64frombits(v), err
	case protoreflect.BytesKind:
		return cb.DecodeRawBytes(true)
	case protoreflect.StringKind:
		b, err := cb.DecodeRawBytes(false)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("%w: invalid UTF-8 in string field %s", codec.ErrMalformed, fd.GetFullyQualifiedName())
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unrecognized field type: %v", fd.GetType())
}
