package desc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protoruntime/internal/encoding/text"
)

// messageSetExtensionName is the conventional name of an extension that
// carries a message in a MessageSet.
const messageSetExtensionName = "message_set_extension"

// FieldDescriptor describes a field of a protocol buffer message.
type FieldDescriptor struct {
	proto    *descriptorpb.FieldDescriptorProto
	parent   Descriptor
	owner    *MessageDescriptor
	file     *FileDescriptor
	oneOf    *OneOfDescriptor
	msgType  *MessageDescriptor
	enumType *EnumDescriptor
	kind     protoreflect.Kind
	fqn      string
	jsonName string
	def      interface{}
	isMap    bool
}

func createFieldDescriptor(fd *FileDescriptor, parent Descriptor, enclosing string, fld *descriptorpb.FieldDescriptorProto) (*FieldDescriptor, string) {
	fldName := merge(enclosing, fld.GetName())
	ret := &FieldDescriptor{
		proto:  fld,
		parent: parent,
		file:   fd,
		fqn:    fldName,
		kind:   protoreflect.Kind(fld.GetType()),
	}
	if fld.JsonName != nil {
		ret.jsonName = fld.GetJsonName()
	} else {
		ret.jsonName = jsonCamelCase(fld.GetName())
	}
	if fld.GetExtendee() == "" {
		ret.owner = parent.(*MessageDescriptor)
	}
	// owner for extensions is resolved later
	return ret, fldName
}

func (fd *FieldDescriptor) resolve(scopes []scope) error {
	if fd.proto.GetExtendee() != "" {
		d, err := resolve(fd.file, fd.proto.GetExtendee(), scopes)
		if err != nil {
			return err
		}
		md, ok := d.(*MessageDescriptor)
		if !ok {
			return fmt.Errorf("extension %s: extendee %s is not a message", fd.fqn, d.GetFullyQualifiedName())
		}
		fd.owner = md
	}
	if err := fd.validateNumber(); err != nil {
		return err
	}
	if fd.proto.GetTypeName() != "" {
		dsc, err := resolve(fd.file, fd.proto.GetTypeName(), scopes)
		if err != nil {
			return err
		}
		switch d := dsc.(type) {
		case *MessageDescriptor:
			fd.msgType = d
			if fd.kind != protoreflect.GroupKind {
				fd.kind = protoreflect.MessageKind
			}
		case *EnumDescriptor:
			fd.enumType = d
			fd.kind = protoreflect.EnumKind
		default:
			return fmt.Errorf("field %s: type %s is not a message or enum", fd.fqn, dsc.GetFullyQualifiedName())
		}
	}
	switch fd.kind {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if fd.msgType == nil {
			return fmt.Errorf("field %s: message type is missing", fd.fqn)
		}
	case protoreflect.EnumKind:
		if fd.enumType == nil {
			return fmt.Errorf("field %s: enum type is missing", fd.fqn)
		}
	default:
		if fd.kind < protoreflect.DoubleKind || fd.kind > protoreflect.Sint64Kind {
			return fmt.Errorf("field %s: invalid type %d", fd.fqn, fd.kind)
		}
	}
	if opts := fd.proto.GetOptions(); opts.GetPacked() && (!fd.IsRepeated() || !isPackable(fd.kind)) {
		return fmt.Errorf("field %s: packed option is only allowed on repeated primitive fields", fd.fqn)
	}
	fd.isMap = fd.IsRepeated() && fd.msgType != nil && fd.msgType.IsMapEntry() && !fd.IsExtension()
	def, err := fd.determineDefault()
	if err != nil {
		return fmt.Errorf("field %s: %w", fd.fqn, err)
	}
	fd.def = def
	return nil
}

func (fd *FieldDescriptor) validateNumber() error {
	num := fd.proto.GetNumber()
	maxNum := int32(protowire.MaxValidNumber)
	if fd.IsExtension() && fd.owner.IsMessageSetWireFormat() {
		// type ids in a message set are encoded as varints, not tags
		maxNum = math.MaxInt32
	}
	if num < int32(protowire.MinValidNumber) || num > maxNum {
		return fmt.Errorf("field %s: tag number %d is out of range", fd.fqn, num)
	}
	if num >= int32(protowire.FirstReservedNumber) && num <= int32(protowire.LastReservedNumber) {
		return fmt.Errorf("field %s: tag number %d is in the range reserved for internal use", fd.fqn, num)
	}
	if fd.IsExtension() {
		if !fd.owner.IsExtension(num) {
			return fmt.Errorf("extension %s: tag number %d is not in an extension range of %s", fd.fqn, num, fd.owner.fqn)
		}
	}
	return nil
}

func (fd *FieldDescriptor) determineDefault() (interface{}, error) {
	if fd.IsRepeated() || fd.msgType != nil {
		return nil, nil
	}
	if fd.proto.DefaultValue == nil {
		return zeroValue(fd), nil
	}
	if fd.file.isProto3 {
		return nil, fmt.Errorf("explicit default values are not allowed in proto3")
	}
	return parseDefaultValue(fd, fd.proto.GetDefaultValue())
}

func zeroValue(fd *FieldDescriptor) interface{} {
	switch fd.kind {
	case protoreflect.EnumKind:
		// the default enum value is the first one declared
		if vals := fd.enumType.GetValues(); len(vals) > 0 {
			return vals[0].GetNumber()
		}
		return int32(0)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(0)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return int64(0)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(0)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return uint64(0)
	case protoreflect.FloatKind:
		return float32(0)
	case protoreflect.DoubleKind:
		return float64(0)
	case protoreflect.BoolKind:
		return false
	case protoreflect.StringKind:
		return ""
	case protoreflect.BytesKind:
		return []byte(nil)
	}
	return nil
}

func parseDefaultValue(fd *FieldDescriptor, val string) (interface{}, error) {
	switch fd.kind {
	case protoreflect.EnumKind:
		ev := fd.enumType.FindValueByName(val)
		if ev == nil {
			return nil, fmt.Errorf("default value %q is not a value of enum %s", val, fd.enumType.fqn)
		}
		return ev.GetNumber(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return int32(v), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return v, nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return uint32(v), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		v, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return v, nil
	case protoreflect.FloatKind:
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return float32(v), nil
	case protoreflect.DoubleKind:
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return v, nil
	case protoreflect.BoolKind:
		switch val {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid default value %q for bool", val)
	case protoreflect.StringKind:
		return val, nil
	case protoreflect.BytesKind:
		b, err := text.UnescapeBytes(val)
		if err != nil {
			return nil, fmt.Errorf("invalid default value %q: %w", val, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("default values are not supported for %v fields", fd.kind)
}

// jsonCamelCase computes the default JSON name of a field, the same way protoc
// does: underscores are dropped and the letter after each is capitalized.
func jsonCamelCase(s string) string {
	var sb strings.Builder
	upperNext := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			upperNext = true
		case upperNext && 'a' <= c && c <= 'z':
			sb.WriteByte(c - 'a' + 'A')
			upperNext = false
		default:
			sb.WriteByte(c)
			upperNext = false
		}
	}
	return sb.String()
}

func isPackable(k protoreflect.Kind) bool {
	switch k {
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return false
	}
	return true
}

// GetName returns the name of the field.
func (fd *FieldDescriptor) GetName() string {
	return fd.proto.GetName()
}

// GetNumber returns the tag number of this field.
func (fd *FieldDescriptor) GetNumber() int32 {
	return fd.proto.GetNumber()
}

// GetFullyQualifiedName returns the fully qualified name of the field. Unlike
// GetName, this includes fully qualified name of the enclosing message for
// regular fields.
//
// For extension fields, this includes the package (if there is one) as well as
// any enclosing messages. The package and/or enclosing messages are for where
// the extension is defined, not the message it extends.
func (fd *FieldDescriptor) GetFullyQualifiedName() string {
	return fd.fqn
}

// GetParent returns the fields's enclosing descriptor. For normal
// (non-extension) fields, this is the enclosing message. For extensions, this
// is the descriptor in which the extension is defined, not the message that is
// extended. The parent for an extension may be a file descriptor or a message,
// depending on where the extension is defined.
func (fd *FieldDescriptor) GetParent() Descriptor {
	return fd.parent
}

// GetFile returns the descriptor for the file in which this field is defined.
func (fd *FieldDescriptor) GetFile() *FileDescriptor {
	return fd.file
}

func (fd *FieldDescriptor) GetOptions() proto.Message {
	return fd.proto.GetOptions()
}

func (fd *FieldDescriptor) AsProto() proto.Message {
	return fd.proto
}

// AsFieldDescriptorProto returns the underlying descriptor proto.
func (fd *FieldDescriptor) AsFieldDescriptorProto() *descriptorpb.FieldDescriptorProto {
	return fd.proto
}

func (fd *FieldDescriptor) String() string {
	return fd.fqn
}

// GetJSONName returns the name of the field as referenced in the message's JSON
// format.
func (fd *FieldDescriptor) GetJSONName() string {
	return fd.jsonName
}

// GetTextName returns the name of the field as referenced in the text format.
// This is the field name for most fields, the message type name for groups,
// and the bracketed full name for extensions. Extensions that carry a message
// in a MessageSet are named after that message.
func (fd *FieldDescriptor) GetTextName() string {
	switch {
	case fd.IsExtension() && fd.isMessageSetExtension():
		return "[" + fd.msgType.fqn + "]"
	case fd.IsExtension():
		return "[" + fd.fqn + "]"
	case fd.kind == protoreflect.GroupKind:
		return fd.msgType.GetName()
	}
	return fd.proto.GetName()
}

func (fd *FieldDescriptor) isMessageSetExtension() bool {
	if fd.proto.GetName() != messageSetExtensionName || fd.msgType == nil || fd.IsRepeated() {
		return false
	}
	if !fd.owner.IsMessageSetWireFormat() {
		return false
	}
	md, ok := fd.parent.(*MessageDescriptor)
	return ok && md == fd.msgType
}

// GetOwner returns the message type that this field belongs to. If this is a normal
// field then this is the same as GetParent. But for extensions, this will be the
// extendee message whereas GetParent refers to where the extension was declared.
func (fd *FieldDescriptor) GetOwner() *MessageDescriptor {
	return fd.owner
}

// IsExtension returns true if this is an extension field.
func (fd *FieldDescriptor) IsExtension() bool {
	return fd.proto.GetExtendee() != ""
}

// GetOneOf returns the one-of field set to which this field belongs. If this field
// is not part of a one-of then this method returns nil. Fields in synthetic oneofs,
// used for proto3 optional fields, also return nil.
func (fd *FieldDescriptor) GetOneOf() *OneOfDescriptor {
	return fd.oneOf
}

// GetType returns the kind of value this field holds.
func (fd *FieldDescriptor) GetType() protoreflect.Kind {
	return fd.kind
}

// GetLabel returns the label for this field: optional, required, or repeated.
func (fd *FieldDescriptor) GetLabel() protoreflect.Cardinality {
	if fd.proto.Label == nil {
		return protoreflect.Optional
	}
	return protoreflect.Cardinality(fd.proto.GetLabel())
}

// GetWireType returns the wire type used to encode a single value of this field.
// Packed repeated fields use the bytes wire type for the whole list instead.
func (fd *FieldDescriptor) GetWireType() protowire.Type {
	switch fd.kind {
	case protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind, protoreflect.FloatKind:
		return protowire.Fixed32Type
	case protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind, protoreflect.DoubleKind:
		return protowire.Fixed64Type
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind:
		return protowire.BytesType
	case protoreflect.GroupKind:
		return protowire.StartGroupType
	}
	return protowire.VarintType
}

// IsRequired returns true if this field has the "required" label.
func (fd *FieldDescriptor) IsRequired() bool {
	return fd.GetLabel() == protoreflect.Required
}

// IsRepeated returns true if this field has the "repeated" label. Map fields
// are also repeated.
func (fd *FieldDescriptor) IsRepeated() bool {
	return fd.GetLabel() == protoreflect.Repeated
}

// IsProto3Optional returns true if this field has an explicit "optional" label
// and is in a "proto3" syntax file.
func (fd *FieldDescriptor) IsProto3Optional() bool {
	return fd.proto.GetProto3Optional()
}

// HasPresence returns true if this field can distinguish when a value is
// present or not. Scalar fields in "proto3" syntax files, for example, return
// false since absent values are indistinguishable from zero values.
func (fd *FieldDescriptor) HasPresence() bool {
	if fd.IsRepeated() {
		return false
	}
	return fd.IsExtension() || !fd.file.isProto3 || fd.msgType != nil || fd.proto.OneofIndex != nil
}

// IsMap returns true if this is a map field. If so, it will have the "repeated"
// label its type will be a message that represents a map entry. The map entry
// message will have exactly two fields: tag #1 is the key and tag #2 is the value.
func (fd *FieldDescriptor) IsMap() bool {
	return fd.isMap
}

// GetMapKeyType returns the type of the key field if this is a map field. If it is
// not a map field, nil is returned.
func (fd *FieldDescriptor) GetMapKeyType() *FieldDescriptor {
	if fd.isMap {
		return fd.msgType.FindFieldByNumber(1)
	}
	return nil
}

// GetMapValueType returns the type of the value field if this is a map field. If it
// is not a map field, nil is returned.
func (fd *FieldDescriptor) GetMapValueType() *FieldDescriptor {
	if fd.isMap {
		return fd.msgType.FindFieldByNumber(2)
	}
	return nil
}

// GetMessageType returns the type of this field if it is a message type. If
// this field is not a message type, it returns nil.
func (fd *FieldDescriptor) GetMessageType() *MessageDescriptor {
	return fd.msgType
}

// GetEnumType returns the type of this field if it is an enum type. If this
// field is not an enum type, it returns nil.
func (fd *FieldDescriptor) GetEnumType() *EnumDescriptor {
	return fd.enumType
}

// IsPacked returns true if this is a repeated field that is encoded in packed
// form. The "packed" option wins when present. Otherwise repeated scalars in
// "proto3" syntax files are packed.
func (fd *FieldDescriptor) IsPacked() bool {
	if !fd.IsRepeated() || !isPackable(fd.kind) {
		return false
	}
	if opts := fd.proto.GetOptions(); opts != nil && opts.Packed != nil {
		return opts.GetPacked()
	}
	return fd.file.isProto3
}

// GetDefaultValue returns the default value for this field.
//
// If this field represents a message type, this method always returns nil (even though
// for proto2 files, the default value should be a default instance of the message type).
// If the field represents an enum type, this method returns an int32 corresponding to the
// enum value. If this field is a map, it returns nil. If this field is
// repeated (and not a map), it returns nil.
//
// Explicit default values are honored for proto2 fields; otherwise the zero value
// of the field's type is returned (or the first enum value for enums).
func (fd *FieldDescriptor) GetDefaultValue() interface{} {
	if b, ok := fd.def.([]byte); ok {
		// do not hand out the shared slice
		if b == nil {
			return []byte(nil)
		}
		return append([]byte{}, b...)
	}
	return fd.def
}
