package dynamic

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protoruntime/codec"
	"github.com/jhump/protoruntime/desc"
)

// A MessageSet is encoded as a repeated group. Each item in the group holds
// the number of an extension and that extension's message.
//
//	repeated group Item = 1 {
//	  required int32 type_id = 2;
//	  required bytes message = 3;
//	}
const (
	messageSetItemNumber    = 1
	messageSetTypeIDNumber  = 2
	messageSetMessageNumber = 3
)

// isMessageSetItem returns true if the given field of m is encoded as an item
// of a MessageSet.
func isMessageSetItem(m *Message, fd *desc.FieldDescriptor) bool {
	return m.md.IsMessageSetWireFormat() && fd.IsExtension() && !fd.IsRepeated() &&
		fd.GetType() == protoreflect.MessageKind
}

func messageSetItemSize(num protowire.Number, msgSize int) int {
	return 2*protowire.SizeTag(messageSetItemNumber) +
		protowire.SizeTag(messageSetTypeIDNumber) + protowire.SizeVarint(uint64(num)) +
		protowire.SizeTag(messageSetMessageNumber) + protowire.SizeBytes(msgSize)
}

func (e *binaryEncoder) encodeMessageSetItem(num protowire.Number, msg *Message) error {
	e.cb.EncodeTagAndWireType(messageSetItemNumber, protowire.StartGroupType)
	e.cb.EncodeTagAndWireType(messageSetTypeIDNumber, protowire.VarintType)
	e.cb.EncodeVarint(uint64(num))
	e.cb.EncodeTagAndWireType(messageSetMessageNumber, protowire.BytesType)
	if err := e.cb.EncodeDelimited(e.messageSize(msg), func(*codec.Buffer) error {
		return e.encodeMessage(msg)
	}); err != nil {
		return err
	}
	e.cb.EncodeTagAndWireType(messageSetItemNumber, protowire.EndGroupType)
	return nil
}

// decodeMessageSetItem decodes an item whose start group tag, beginning at
// the given offset, has just been read. The type id and message may appear in
// either order. Other fields inside the item are ignored. Items whose type id
// is not a known extension are kept as unknown fields, verbatim. Type ids
// may exceed the usual maximum field number. The item
// itself does not count against the depth limit, but its message does.
func (d binaryDecoder) decodeMessageSetItem(cb *codec.Buffer, m *Message, start int, remaining int) error {
	var typeID uint64
	var haveTypeID bool
	var payload []byte
	var havePayload bool
	for {
		if cb.EOF() {
			return fmt.Errorf("%w: missing end group tag for MessageSet item", codec.ErrTruncated)
		}
		num, wt, err := cb.DecodeTagAndWireType()
		if err != nil {
			return err
		}
		if wt == protowire.EndGroupType {
			if num != messageSetItemNumber {
				return fmt.Errorf("%w: unexpected end group tag for field %d", codec.ErrMalformed, num)
			}
			break
		}
		switch {
		case num == messageSetTypeIDNumber && wt == protowire.VarintType:
			if typeID, err = cb.DecodeVarint(); err != nil {
				return err
			}
			haveTypeID = true
		case num == messageSetMessageNumber && wt == protowire.BytesType:
			if payload, err = cb.DecodeRawBytes(false); err != nil {
				return err
			}
			havePayload = true
		default:
			if err := cb.SkipFieldValue(num, wt, remaining); err != nil {
				return err
			}
		}
	}
	if !haveTypeID || typeID < uint64(protowire.MinValidNumber) || typeID > math.MaxInt32 {
		return fmt.Errorf("%w: MessageSet item has no valid type id", codec.ErrMalformed)
	}

	fd := d.findField(m, protowire.Number(typeID))
	if fd == nil || !isMessageSetItem(m, fd) {
		if !d.discard {
			m.addUnknownField(messageSetItemNumber, protowire.StartGroupType, cb.Since(start))
		}
		return nil
	}
	msg := d.targetMessage(m, fd)
	if havePayload {
		if remaining < 1 {
			return codec.ErrDepthLimit
		}
		if err := d.decodeMessage(codec.NewBuffer(payload), msg, remaining-1, 0); err != nil {
			return err
		}
	}
	d.store(m, fd, msg)
	return nil
}

// messageSetItemTypeID extracts the type id from the raw bytes of a MessageSet
// item, which must include the item's start and end group tags.
func messageSetItemTypeID(raw []byte) (int32, bool) {
	cb := codec.NewBuffer(raw)
	num, wt, err := cb.DecodeTagAndWireType()
	if err != nil || num != messageSetItemNumber || wt != protowire.StartGroupType {
		return 0, false
	}
	for !cb.EOF() {
		num, wt, err := cb.DecodeTagAndWireType()
		if err != nil || wt == protowire.EndGroupType {
			return 0, false
		}
		if num == messageSetTypeIDNumber && wt == protowire.VarintType {
			v, err := cb.DecodeVarint()
			if err != nil {
				return 0, false
			}
			return int32(v), true
		}
		if err := cb.SkipFieldValue(num, wt, defaultMessageDepthLimit); err != nil {
			return 0, false
		}
	}
	return 0, false
}
