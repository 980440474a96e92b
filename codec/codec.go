// Package codec contains a reader/writer type that assists with encoding
// and decoding protobuf's binary representation.
//
// The primitives are built on google.golang.org/protobuf/encoding/protowire.
// This package adds the stateful cursor, strict validation of tags, and
// depth-limited handling of groups that decoders of dynamic messages need.
package codec

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrTruncated is returned when the input ends in the middle of a value.
	ErrTruncated = errors.New("proto: truncated input")
	// ErrMalformed is returned when the input is structurally invalid: bad
	// tags, reserved wire types, overlong varints or unbalanced groups.
	ErrMalformed = errors.New("proto: malformed wire data")
	// ErrDepthLimit is returned when groups or messages are nested more
	// deeply than allowed.
	ErrDepthLimit = errors.New("proto: exceeded maximum message depth")
)

// Buffer is a reader and a writer that wraps a slice of bytes and also
// provides API for decoding and encoding the protobuf binary format.
//
// Its operation is similar to that of a bytes.Buffer: writing pushes
// data to the end of the buffer while reading pops data from the head
// of the buffer. So the same buffer can be used to both read and write.
type Buffer struct {
	buf           []byte
	index         int
	deterministic bool
}

// NewBuffer creates a new buffer with the given slice of bytes as the
// buffer's initial contents.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{buf: buf}
}

// SetDeterministic sets this buffer to encode messages deterministically. This
// is useful for tests. But the overhead is non-zero, so it should not likely be
// used outside of tests. When true, map fields in a message must have their
// keys sorted before serialization to ensure deterministic output. Otherwise,
// values in a map field will be serialized in map iteration order.
func (cb *Buffer) SetDeterministic(deterministic bool) {
	cb.deterministic = deterministic
}

// IsDeterministic returns whether or not this buffer is configured to encode
// messages deterministically.
func (cb *Buffer) IsDeterministic() bool {
	return cb.deterministic
}

// Reset resets this buffer back to empty. Any subsequent writes/encodes
// to the buffer will allocate a new backing slice of bytes.
func (cb *Buffer) Reset() {
	cb.buf = []byte(nil)
	cb.index = 0
}

// Bytes returns the slice of bytes remaining in the buffer. Note that
// this does not perform a copy: if the contents of the returned slice
// are modified, the modifications will be visible to subsequent reads
// via the buffer.
func (cb *Buffer) Bytes() []byte {
	return cb.buf[cb.index:]
}

// String returns the remaining bytes in the buffer as a string.
func (cb *Buffer) String() string {
	return string(cb.Bytes())
}

// EOF returns true if there are no more bytes remaining to read.
func (cb *Buffer) EOF() bool {
	return cb.index >= len(cb.buf)
}

// Offset returns the position of the read cursor in the underlying slice.
func (cb *Buffer) Offset() int {
	return cb.index
}

// Since returns the bytes consumed since the given offset, which must have
// been returned by an earlier call to Offset.
func (cb *Buffer) Since(offset int) []byte {
	return cb.buf[offset:cb.index]
}

// Skip attempts to skip the given number of bytes in the input. If
// the input has fewer bytes than the given count, an error is returned
// and the buffer is unchanged.
func (cb *Buffer) Skip(count int) error {
	if count < 0 {
		return fmt.Errorf("%w: bad byte length %d", ErrMalformed, count)
	}
	newIndex := cb.index + count
	if newIndex < cb.index || newIndex > len(cb.buf) {
		return ErrTruncated
	}
	cb.index = newIndex
	return nil
}

// Len returns the remaining number of bytes in the buffer.
func (cb *Buffer) Len() int {
	return len(cb.buf) - cb.index
}

// Read implements the io.Reader interface. If there are no bytes
// remaining in the buffer, it will return 0, io.EOF. Otherwise,
// it reads max(len(dest), cb.Len()) bytes from input and copies
// them into dest. It returns the number of bytes copied and a nil
// error in this case.
func (cb *Buffer) Read(dest []byte) (int, error) {
	if cb.index == len(cb.buf) {
		return 0, io.EOF
	}
	copied := copy(dest, cb.buf[cb.index:])
	cb.index += copied
	return copied, nil
}

var _ io.Reader = (*Buffer)(nil)

// Write implements the io.Writer interface. It always returns
// len(data), nil.
func (cb *Buffer) Write(data []byte) (int, error) {
	cb.buf = append(cb.buf, data...)
	return len(data), nil
}

var _ io.Writer = (*Buffer)(nil)

func parseError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// DecodeVarint reads a varint-encoded integer from the Buffer.
// This is the format for the
// int32, int64, uint32, uint64, bool, and enum
// protocol buffer types.
func (cb *Buffer) DecodeVarint() (uint64, error) {
	v, n := protowire.ConsumeVarint(cb.buf[cb.index:])
	if n < 0 {
		return 0, parseError(n)
	}
	cb.index += n
	return v, nil
}

// DecodeTagAndWireType decodes a field tag and wire type from input.
// This reads a varint and then extracts the two fields from the varint
// value read. Field numbers outside of the valid range and the reserved
// wire types 6 and 7 are rejected.
func (cb *Buffer) DecodeTagAndWireType() (protowire.Number, protowire.Type, error) {
	v, err := cb.DecodeVarint()
	if err != nil {
		return 0, 0, err
	}
	// low 3 bits is wire type, rest is the field number
	wireType := protowire.Type(v & 7)
	v >>= 3
	if v < uint64(protowire.MinValidNumber) || v > uint64(protowire.MaxValidNumber) {
		return 0, 0, fmt.Errorf("%w: tag number out of range: %d", ErrMalformed, v)
	}
	if wireType > protowire.Fixed32Type {
		return 0, 0, fmt.Errorf("%w: invalid wire type %d for field %d", ErrMalformed, wireType, v)
	}
	return protowire.Number(v), wireType, nil
}

// DecodeFixed64 reads a 64-bit integer from the Buffer.
// This is the format for the
// fixed64, sfixed64, and double protocol buffer types.
func (cb *Buffer) DecodeFixed64() (uint64, error) {
	v, n := protowire.ConsumeFixed64(cb.buf[cb.index:])
	if n < 0 {
		return 0, parseError(n)
	}
	cb.index += n
	return v, nil
}

// DecodeFixed32 reads a 32-bit integer from the Buffer.
// This is the format for the
// fixed32, sfixed32, and float protocol buffer types.
func (cb *Buffer) DecodeFixed32() (uint32, error) {
	v, n := protowire.ConsumeFixed32(cb.buf[cb.index:])
	if n < 0 {
		return 0, parseError(n)
	}
	cb.index += n
	return v, nil
}

// DecodeZigZag32 decodes a signed 32-bit integer from the given
// zig-zag encoded value.
func DecodeZigZag32(v uint64) int32 {
	return int32(protowire.DecodeZigZag(v & 0xffffffff))
}

// DecodeZigZag64 decodes a signed 64-bit integer from the given
// zig-zag encoded value.
func DecodeZigZag64(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

// DecodeRawBytes reads a count-delimited byte buffer from the Buffer.
// This is the format used for the bytes protocol buffer
// type and for embedded messages. The length prefix is checked against
// the remaining input before anything is allocated.
func (cb *Buffer) DecodeRawBytes(alloc bool) ([]byte, error) {
	b, n := protowire.ConsumeBytes(cb.buf[cb.index:])
	if n < 0 {
		return nil, parseError(n)
	}
	cb.index += n
	if !alloc {
		return b, nil
	}
	return append(make([]byte, 0, len(b)), b...), nil
}

// SkipFieldValue advances past the value of a field whose tag, with the given
// number and wire type, has just been read. For groups, the value extends
// through the matching end-group tag. The depth argument is the number of
// additional levels of nesting allowed: a group needs at least one, and each
// group nested inside it needs one more.
func (cb *Buffer) SkipFieldValue(num protowire.Number, wireType protowire.Type, depth int) error {
	switch wireType {
	case protowire.VarintType:
		_, err := cb.DecodeVarint()
		return err
	case protowire.Fixed32Type:
		return cb.Skip(4)
	case protowire.Fixed64Type:
		return cb.Skip(8)
	case protowire.BytesType:
		_, err := cb.DecodeRawBytes(false)
		return err
	case protowire.StartGroupType:
		if depth < 1 {
			return ErrDepthLimit
		}
		return cb.skipGroup(num, depth-1)
	case protowire.EndGroupType:
		return fmt.Errorf("%w: unexpected end group tag for field %d", ErrMalformed, num)
	}
	return fmt.Errorf("%w: invalid wire type %d for field %d", ErrMalformed, wireType, num)
}

// SkipGroup advances past the contents of a group whose start tag, with the
// given field number, has just been read. The buffer is left pointing at the
// input right after the group's end tag.
func (cb *Buffer) SkipGroup(num protowire.Number, depth int) error {
	return cb.skipGroup(num, depth)
}

func (cb *Buffer) skipGroup(num protowire.Number, depth int) error {
	for {
		if cb.EOF() {
			return ErrTruncated
		}
		n, wt, err := cb.DecodeTagAndWireType()
		if err != nil {
			return err
		}
		if wt == protowire.EndGroupType {
			if n != num {
				return fmt.Errorf("%w: end group tag %d does not match start group tag %d", ErrMalformed, n, num)
			}
			return nil
		}
		if err := cb.SkipFieldValue(n, wt, depth); err != nil {
			return err
		}
	}
}

// ReadGroup reads the input until the end-group tag matching the given field
// number is found and returns the data up to that point. Subsequent reads from
// the buffer will read data after the group end tag. If alloc is true, the data
// is copied to a new slice before being returned. Otherwise, the returned slice
// is a view into the buffer's underlying byte slice.
//
// Nested groups are handled: their end tags are included in the returned data.
func (cb *Buffer) ReadGroup(num protowire.Number, depth int, alloc bool) ([]byte, error) {
	start := cb.index
	if err := cb.skipGroup(num, depth); err != nil {
		cb.index = start
		return nil, err
	}
	// exclude the end tag itself
	dataEnd := cb.index - protowire.SizeTag(num)
	if !alloc {
		return cb.buf[start:dataEnd], nil
	}
	return append([]byte(nil), cb.buf[start:dataEnd]...), nil
}

// EncodeVarint writes a varint-encoded integer to the Buffer.
// This is the format for the
// int32, int64, uint32, uint64, bool, and enum
// protocol buffer types.
func (cb *Buffer) EncodeVarint(x uint64) {
	cb.buf = protowire.AppendVarint(cb.buf, x)
}

// EncodeTagAndWireType encodes the given field tag and wire type to the
// buffer. This combines the two values and then writes them as a varint.
func (cb *Buffer) EncodeTagAndWireType(num protowire.Number, wireType protowire.Type) {
	cb.buf = protowire.AppendTag(cb.buf, num, wireType)
}

// EncodeFixed64 writes a 64-bit integer to the Buffer.
// This is the format for the
// fixed64, sfixed64, and double protocol buffer types.
func (cb *Buffer) EncodeFixed64(x uint64) {
	cb.buf = protowire.AppendFixed64(cb.buf, x)
}

// EncodeFixed32 writes a 32-bit integer to the Buffer.
// This is the format for the
// fixed32, sfixed32, and float protocol buffer types.
func (cb *Buffer) EncodeFixed32(x uint32) {
	cb.buf = protowire.AppendFixed32(cb.buf, x)
}

// EncodeZigZag64 does zig-zag encoding to convert the given
// signed 64-bit integer into a form that can be expressed
// efficiently as a varint, even for negative values.
func EncodeZigZag64(v int64) uint64 {
	return protowire.EncodeZigZag(v)
}

// EncodeZigZag32 does zig-zag encoding to convert the given
// signed 32-bit integer into a form that can be expressed
// efficiently as a varint, even for negative values.
func EncodeZigZag32(v int32) uint64 {
	return uint64(uint32(protowire.EncodeZigZag(int64(v))))
}

// EncodeRawBytes writes a count-delimited byte buffer to the Buffer.
// This is the format used for the bytes protocol buffer
// type and for embedded messages.
func (cb *Buffer) EncodeRawBytes(b []byte) {
	cb.buf = protowire.AppendBytes(cb.buf, b)
}

// EncodeDelimited writes a length prefix of the given size and then calls fn,
// which must write exactly that many bytes. It is used for nested messages
// whose size has been computed ahead of time.
func (cb *Buffer) EncodeDelimited(size int, fn func(*Buffer) error) error {
	cb.EncodeVarint(uint64(size))
	start := len(cb.buf)
	if err := fn(cb); err != nil {
		return err
	}
	if written := len(cb.buf) - start; written != size {
		return fmt.Errorf("proto: nested message size changed during encoding: computed %d, wrote %d", size, written)
	}
	return nil
}
