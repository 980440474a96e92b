package dynamic

import (
	"fmt"
	"math"
	"sort"

	"github.com/jhump/protoruntime/desc"
)

// Message is a dynamic message. Its schema is defined by a message descriptor,
// supplied at construction. Field values are stored in a map keyed by field
// number, using a single Go type per kind of field:
//
//	int32, sint32, sfixed32, enum:  int32
//	int64, sint64, sfixed64:        int64
//	uint32, fixed32:                uint32
//	uint64, fixed64:                uint64
//	float:                          float32
//	double:                         float64
//	bool:                           bool
//	string:                         string
//	bytes:                          []byte
//	message, group:                 *Message
//
// Repeated fields are []interface{} and map fields are
// map[interface{}]interface{}.
//
// Extension fields are stored with the same representation. The descriptors
// of extensions present in the message are tracked in a side table, so the
// message can be serialized even if the extension registry used to decode it
// is no longer available. Fields whose numbers are not recognized are kept as
// raw bytes in an ordered list of unknown fields.
//
// Messages are not safe for concurrent mutation.
type Message struct {
	md            *desc.MessageDescriptor
	er            *ExtensionRegistry
	extraFields   map[int32]*desc.FieldDescriptor
	values        map[int32]interface{}
	unknownFields []UnknownField
}

// NewMessage creates a new empty message of the given type.
func NewMessage(md *desc.MessageDescriptor) *Message {
	return NewMessageWithExtensionRegistry(md, nil)
}

// NewMessageWithExtensionRegistry creates a new empty message that uses the
// given registry to recognize extension fields.
func NewMessageWithExtensionRegistry(md *desc.MessageDescriptor, er *ExtensionRegistry) *Message {
	return &Message{
		md: md,
		er: er,
	}
}

// NewMessageWithExtensions creates a new empty message that recognizes the
// given extensions. It returns an error if any of the given fields is not an
// extension of the message's type.
func NewMessageWithExtensions(md *desc.MessageDescriptor, exts ...*desc.FieldDescriptor) (*Message, error) {
	if len(exts) == 0 {
		return NewMessage(md), nil
	}
	if !md.IsExtendable() {
		return nil, fmt.Errorf("given message is not extendable: %s", md.GetFullyQualifiedName())
	}
	er := NewExtensionRegistry()
	if err := er.AddExtension(exts...); err != nil {
		return nil, err
	}
	for _, fd := range exts {
		if fd.GetOwner().GetFullyQualifiedName() != md.GetFullyQualifiedName() {
			return nil, fmt.Errorf("given field, %s, extends wrong message type: %s; expecting: %s", fd.GetFullyQualifiedName(), fd.GetOwner().GetFullyQualifiedName(), md.GetFullyQualifiedName())
		}
	}
	return NewMessageWithExtensionRegistry(md, er), nil
}

// GetMessageDescriptor returns the descriptor of this message's type.
func (m *Message) GetMessageDescriptor() *desc.MessageDescriptor {
	return m.md
}

// GetExtensionRegistry returns the registry this message uses to recognize
// extensions. It may be nil.
func (m *Message) GetExtensionRegistry() *ExtensionRegistry {
	return m.er
}

// GetKnownFields returns the regular fields of the message type, followed by
// any extension fields that have been set on this message.
func (m *Message) GetKnownFields() []*desc.FieldDescriptor {
	if len(m.extraFields) == 0 {
		return m.md.GetFields()
	}
	flds := make([]*desc.FieldDescriptor, len(m.md.GetFields()), len(m.md.GetFields())+len(m.extraFields))
	copy(flds, m.md.GetFields())
	return append(flds, m.GetKnownExtensions()...)
}

// GetKnownExtensions returns the extension fields that have been set on this
// message, sorted by field number.
func (m *Message) GetKnownExtensions() []*desc.FieldDescriptor {
	if len(m.extraFields) == 0 {
		return nil
	}
	exts := make([]*desc.FieldDescriptor, 0, len(m.extraFields))
	for _, fd := range m.extraFields {
		exts = append(exts, fd)
	}
	sort.Slice(exts, func(i, j int) bool {
		return exts[i].GetNumber() < exts[j].GetNumber()
	})
	return exts
}

// FindFieldDescriptor returns the field with the given number. It may be a
// regular field, an extension known to this message, or an extension in the
// message's registry. Nil is returned if no such field is known.
func (m *Message) FindFieldDescriptor(tagNumber int32) *desc.FieldDescriptor {
	if fd := m.md.FindFieldByNumber(tagNumber); fd != nil {
		return fd
	}
	if fd := m.extraFields[tagNumber]; fd != nil {
		return fd
	}
	return m.er.FindExtension(m.md.GetFullyQualifiedName(), tagNumber)
}

// FindFieldDescriptorByName returns the field with the given name. Extensions
// are referenced by their fully-qualified name, optionally enclosed in
// parentheses or brackets.
func (m *Message) FindFieldDescriptorByName(name string) *desc.FieldDescriptor {
	if name == "" {
		return nil
	}
	if fd := m.md.FindFieldByName(name); fd != nil {
		return fd
	}
	if name[0] == '(' {
		if name[len(name)-1] != ')' {
			// malformed name
			return nil
		}
		name = name[1 : len(name)-1]
	} else if name[0] == '[' {
		if name[len(name)-1] != ']' {
			// malformed name
			return nil
		}
		name = name[1 : len(name)-1]
	}
	for _, fd := range m.extraFields {
		if name == fd.GetFullyQualifiedName() {
			return fd
		}
	}
	return m.er.FindExtensionByName(m.md.GetFullyQualifiedName(), name)
}

// FindFieldDescriptorByJSONName returns the regular field whose JSON name is
// the given name.
func (m *Message) FindFieldDescriptorByJSONName(name string) *desc.FieldDescriptor {
	return m.md.FindFieldByJSONName(name)
}

func (m *Message) checkField(fd *desc.FieldDescriptor) error {
	if fd.GetOwner().GetFullyQualifiedName() != m.md.GetFullyQualifiedName() {
		return fmt.Errorf("given field, %s, is for wrong message type: %s; expecting %s", fd.GetName(), fd.GetOwner().GetFullyQualifiedName(), m.md.GetFullyQualifiedName())
	}
	if fd.IsExtension() && !m.md.IsExtension(fd.GetNumber()) {
		return fmt.Errorf("given field, %s, is an extension but is not in message extension range: %v", fd.GetFullyQualifiedName(), m.md.GetExtensionRanges())
	}
	return nil
}

// GetField returns the value for the given field descriptor. It panics if an
// error is encountered. See TryGetField.
func (m *Message) GetField(fd *desc.FieldDescriptor) interface{} {
	if v, err := m.TryGetField(fd); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetField returns the value for the given field descriptor. An error is
// returned if the field is not for this message's type.
//
// If the field is absent, its default value is returned. For message fields,
// this is a nil *Message in proto3 files and an empty message in proto2
// files. Repeated and map fields return a nil slice or map. Slices and maps
// are defensive copies: changes to them do not affect the message.
func (m *Message) TryGetField(fd *desc.FieldDescriptor) (interface{}, error) {
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	return m.getField(fd)
}

// GetFieldByName returns the value for the field with the given name. It
// panics if an error is encountered. See TryGetFieldByName.
func (m *Message) GetFieldByName(name string) interface{} {
	if v, err := m.TryGetFieldByName(name); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetFieldByName returns the value for the field with the given name. An
// error is returned if the message has no such field.
func (m *Message) TryGetFieldByName(name string) (interface{}, error) {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.getField(fd)
}

// GetFieldByNumber returns the value for the field with the given number. It
// panics if an error is encountered. See TryGetFieldByNumber.
func (m *Message) GetFieldByNumber(tagNumber int) interface{} {
	if v, err := m.TryGetFieldByNumber(tagNumber); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetFieldByNumber returns the value for the field with the given number.
// An error is returned if the message has no such field.
func (m *Message) TryGetFieldByNumber(tagNumber int) (interface{}, error) {
	fd := m.FindFieldDescriptor(int32(tagNumber))
	if fd == nil {
		return nil, ErrUnknownTagNumber
	}
	return m.getField(fd)
}

func (m *Message) getField(fd *desc.FieldDescriptor) (interface{}, error) {
	return m.doGetField(fd, false)
}

func (m *Message) doGetField(fd *desc.FieldDescriptor, nilIfAbsent bool) (interface{}, error) {
	res := m.values[fd.GetNumber()]
	if res == nil {
		var err error
		if res, err = m.parseUnknownField(fd); err != nil {
			return nil, err
		} else if res == nil {
			if nilIfAbsent {
				return nil, nil
			}
			return m.defaultValue(fd), nil
		}
	}
	switch res := res.(type) {
	case map[interface{}]interface{}:
		// make defensive copies to prevent caller from storing illegal keys and values
		cp := make(map[interface{}]interface{}, len(res))
		for k, v := range res {
			cp[k] = v
		}
		return cp, nil
	case []interface{}:
		// make defensive copies to prevent caller from storing illegal elements
		cp := make([]interface{}, len(res))
		copy(cp, res)
		return cp, nil
	}
	return res, nil
}

func (m *Message) defaultValue(fd *desc.FieldDescriptor) interface{} {
	switch {
	case fd.IsMap():
		return map[interface{}]interface{}(nil)
	case fd.IsRepeated():
		return []interface{}(nil)
	}
	if def := fd.GetDefaultValue(); def != nil {
		return def
	}
	// GetDefaultValue only returns nil for message types
	md := fd.GetMessageType()
	if md.IsProto3() {
		return (*Message)(nil)
	}
	// for proto2, return default instance of message
	return NewMessageWithExtensionRegistry(md, m.er)
}

// HasField returns true if this message has a value for the given field. For
// repeated and map fields, this means the field is not empty.
func (m *Message) HasField(fd *desc.FieldDescriptor) bool {
	if err := m.checkField(fd); err != nil {
		return false
	}
	return m.hasField(fd)
}

// HasFieldName returns true if this message has a value for the field with
// the given name.
func (m *Message) HasFieldName(name string) bool {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return false
	}
	return m.hasField(fd)
}

// HasFieldNumber returns true if this message has a value for the field with
// the given number.
func (m *Message) HasFieldNumber(tagNumber int) bool {
	fd := m.FindFieldDescriptor(int32(tagNumber))
	if fd == nil {
		return false
	}
	return m.hasField(fd)
}

func (m *Message) hasField(fd *desc.FieldDescriptor) bool {
	if _, ok := m.values[fd.GetNumber()]; ok {
		return true
	}
	v, err := m.parseUnknownField(fd)
	return err == nil && v != nil
}

// SetField sets the value for the given field descriptor. It panics if an
// error is encountered. See TrySetField.
func (m *Message) SetField(fd *desc.FieldDescriptor, val interface{}) {
	if err := m.TrySetField(fd, val); err != nil {
		panic(err.Error())
	}
}

// TrySetField sets the value for the given field descriptor. An error is
// returned if the field is not for this message's type or if the value is not
// valid for the field.
//
// Repeated fields accept any slice whose elements are valid values; map fields
// accept any map whose keys and values are valid, or a slice of map entry
// messages. Message fields accept a *Message or a generated message of the
// right type. Setting a member of a oneof clears the other members. Setting a
// proto3 field that has no presence to its zero value clears it.
func (m *Message) TrySetField(fd *desc.FieldDescriptor, val interface{}) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.setField(fd, val)
}

// SetFieldByName sets the value for the field with the given name. It panics
// if an error is encountered. See TrySetFieldByName.
func (m *Message) SetFieldByName(name string, val interface{}) {
	if err := m.TrySetFieldByName(name, val); err != nil {
		panic(err.Error())
	}
}

// TrySetFieldByName sets the value for the field with the given name.
func (m *Message) TrySetFieldByName(name string, val interface{}) error {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.setField(fd, val)
}

// SetFieldByNumber sets the value for the field with the given number. It
// panics if an error is encountered. See TrySetFieldByNumber.
func (m *Message) SetFieldByNumber(tagNumber int, val interface{}) {
	if err := m.TrySetFieldByNumber(tagNumber, val); err != nil {
		panic(err.Error())
	}
}

// TrySetFieldByNumber sets the value for the field with the given number.
func (m *Message) TrySetFieldByNumber(tagNumber int, val interface{}) error {
	fd := m.FindFieldDescriptor(int32(tagNumber))
	if fd == nil {
		return ErrUnknownTagNumber
	}
	return m.setField(fd, val)
}

func (m *Message) setField(fd *desc.FieldDescriptor, val interface{}) error {
	var err error
	if val, err = validFieldValue(fd, val); err != nil {
		return err
	}
	m.internalSetField(fd, val)
	return nil
}

// internalSetField stores a value that has already been validated. Unknown
// fields with the same number are discarded since the new value supersedes
// them.
func (m *Message) internalSetField(fd *desc.FieldDescriptor, val interface{}) {
	m.storeValue(fd, val)
	m.removeUnknownFields(fd)
}

// storeValue stores a validated value, clearing it instead if it is the zero
// value of a field without presence, and clearing other members of the field's
// oneof.
func (m *Message) storeValue(fd *desc.FieldDescriptor, val interface{}) {
	if isEmptyValue(fd, val) {
		m.clearField(fd)
		return
	}
	if m.values == nil {
		m.values = map[int32]interface{}{}
	}
	m.values[fd.GetNumber()] = val
	// if this field is part of a one-of, make sure all other one-of choices are cleared
	if od := fd.GetOneOf(); od != nil {
		for _, other := range od.GetChoices() {
			if other.GetNumber() != fd.GetNumber() {
				delete(m.values, other.GetNumber())
			}
		}
	}
	if fd.IsExtension() {
		m.addField(fd)
	}
}

func isEmptyValue(fd *desc.FieldDescriptor, val interface{}) bool {
	switch val := val.(type) {
	case nil:
		return true
	case *Message:
		return val == nil
	case []interface{}:
		return len(val) == 0
	case map[interface{}]interface{}:
		return len(val) == 0
	}
	if fd.HasPresence() {
		return false
	}
	// fields without presence are considered unset when set to their zero value
	switch val := val.(type) {
	case []byte:
		return len(val) == 0
	case float32:
		// negative zero is distinguishable, so it is kept
		return math.Float32bits(val) == 0
	case float64:
		return math.Float64bits(val) == 0
	}
	return val == fd.GetDefaultValue()
}

func (m *Message) addField(fd *desc.FieldDescriptor) {
	if m.extraFields == nil {
		m.extraFields = map[int32]*desc.FieldDescriptor{}
	}
	m.extraFields[fd.GetNumber()] = fd
}

// ClearField removes any value for the given field. It panics if an error is
// encountered. See TryClearField.
func (m *Message) ClearField(fd *desc.FieldDescriptor) {
	if err := m.TryClearField(fd); err != nil {
		panic(err.Error())
	}
}

// TryClearField removes any value for the given field, including unknown
// fields with the same number.
func (m *Message) TryClearField(fd *desc.FieldDescriptor) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	m.clearField(fd)
	m.removeUnknownFields(fd)
	return nil
}

// ClearFieldByName removes any value for the field with the given name. It
// panics if an error is encountered. See TryClearFieldByName.
func (m *Message) ClearFieldByName(name string) {
	if err := m.TryClearFieldByName(name); err != nil {
		panic(err.Error())
	}
}

// TryClearFieldByName removes any value for the field with the given name.
func (m *Message) TryClearFieldByName(name string) error {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	m.clearField(fd)
	m.removeUnknownFields(fd)
	return nil
}

// ClearFieldByNumber removes any value for the field with the given number. It
// panics if an error is encountered. See TryClearFieldByNumber.
func (m *Message) ClearFieldByNumber(tagNumber int) {
	if err := m.TryClearFieldByNumber(tagNumber); err != nil {
		panic(err.Error())
	}
}

// TryClearFieldByNumber removes any value for the field with the given number.
func (m *Message) TryClearFieldByNumber(tagNumber int) error {
	fd := m.FindFieldDescriptor(int32(tagNumber))
	if fd == nil {
		return ErrUnknownTagNumber
	}
	m.clearField(fd)
	m.removeUnknownFields(fd)
	return nil
}

func (m *Message) clearField(fd *desc.FieldDescriptor) {
	if m.values != nil {
		delete(m.values, fd.GetNumber())
	}
	if fd.IsExtension() {
		delete(m.extraFields, fd.GetNumber())
	}
}

// GetOneOfField returns which of the given oneof's fields is set and its
// value. It panics if an error is encountered. See TryGetOneOfField.
func (m *Message) GetOneOfField(od *desc.OneOfDescriptor) (*desc.FieldDescriptor, interface{}) {
	if fd, val, err := m.TryGetOneOfField(od); err != nil {
		panic(err.Error())
	} else {
		return fd, val
	}
}

// TryGetOneOfField returns which of the given oneof's fields is set and its
// value. If none is set, it returns nil values.
func (m *Message) TryGetOneOfField(od *desc.OneOfDescriptor) (*desc.FieldDescriptor, interface{}, error) {
	if od.GetOwner().GetFullyQualifiedName() != m.md.GetFullyQualifiedName() {
		return nil, nil, fmt.Errorf("given one-of, %s, is for wrong message type: %s; expecting %s", od.GetName(), od.GetOwner().GetFullyQualifiedName(), m.md.GetFullyQualifiedName())
	}
	for _, fd := range od.GetChoices() {
		val, err := m.doGetField(fd, true)
		if err != nil {
			return nil, nil, err
		}
		if val != nil {
			return fd, val, nil
		}
	}
	return nil, nil, nil
}

// GetMapField returns the value for the given key in the given map field. It
// panics if an error is encountered. See TryGetMapField.
func (m *Message) GetMapField(fd *desc.FieldDescriptor, key interface{}) interface{} {
	if v, err := m.TryGetMapField(fd, key); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetMapField returns the value for the given key in the given map field.
// If the key is not present, nil is returned.
func (m *Message) TryGetMapField(fd *desc.FieldDescriptor, key interface{}) (interface{}, error) {
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	return m.getMapField(fd, key)
}

// GetMapFieldByName returns the value for the given key in the map field with
// the given name. It panics if an error is encountered.
func (m *Message) GetMapFieldByName(name string, key interface{}) interface{} {
	if v, err := m.TryGetMapFieldByName(name, key); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetMapFieldByName returns the value for the given key in the map field
// with the given name.
func (m *Message) TryGetMapFieldByName(name string, key interface{}) (interface{}, error) {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.getMapField(fd, key)
}

func (m *Message) getMapField(fd *desc.FieldDescriptor, key interface{}) (interface{}, error) {
	if !fd.IsMap() {
		return nil, ErrFieldIsNotMap
	}
	ki, err := validElementFieldValue(fd.GetMapKeyType(), key)
	if err != nil {
		return nil, err
	}
	mp := m.values[fd.GetNumber()]
	if mp == nil {
		if mp, err = m.parseUnknownField(fd); err != nil {
			return nil, err
		} else if mp == nil {
			return nil, nil
		}
	}
	return mp.(map[interface{}]interface{})[ki], nil
}

// PutMapField sets the value for the given key in the given map field. It
// panics if an error is encountered. See TryPutMapField.
func (m *Message) PutMapField(fd *desc.FieldDescriptor, key interface{}, val interface{}) {
	if err := m.TryPutMapField(fd, key, val); err != nil {
		panic(err.Error())
	}
}

// TryPutMapField sets the value for the given key in the given map field.
func (m *Message) TryPutMapField(fd *desc.FieldDescriptor, key interface{}, val interface{}) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.putMapField(fd, key, val)
}

// PutMapFieldByName sets the value for the given key in the map field with the
// given name. It panics if an error is encountered.
func (m *Message) PutMapFieldByName(name string, key interface{}, val interface{}) {
	if err := m.TryPutMapFieldByName(name, key, val); err != nil {
		panic(err.Error())
	}
}

// TryPutMapFieldByName sets the value for the given key in the map field with
// the given name.
func (m *Message) TryPutMapFieldByName(name string, key interface{}, val interface{}) error {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.putMapField(fd, key, val)
}

func (m *Message) putMapField(fd *desc.FieldDescriptor, key interface{}, val interface{}) error {
	if !fd.IsMap() {
		return ErrFieldIsNotMap
	}
	ki, err := validElementFieldValue(fd.GetMapKeyType(), key)
	if err != nil {
		return err
	}
	vi, err := validElementFieldValue(fd.GetMapValueType(), val)
	if err != nil {
		return err
	}
	mp := m.values[fd.GetNumber()]
	if mp == nil {
		if mp, err = m.parseUnknownField(fd); err != nil {
			return err
		} else if mp == nil {
			mp = map[interface{}]interface{}{}
		}
	}
	mp.(map[interface{}]interface{})[ki] = vi
	m.internalSetField(fd, mp)
	return nil
}

// RemoveMapField removes the given key from the given map field. It panics if
// an error is encountered. See TryRemoveMapField.
func (m *Message) RemoveMapField(fd *desc.FieldDescriptor, key interface{}) {
	if err := m.TryRemoveMapField(fd, key); err != nil {
		panic(err.Error())
	}
}

// TryRemoveMapField removes the given key from the given map field.
func (m *Message) TryRemoveMapField(fd *desc.FieldDescriptor, key interface{}) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.removeMapField(fd, key)
}

func (m *Message) removeMapField(fd *desc.FieldDescriptor, key interface{}) error {
	if !fd.IsMap() {
		return ErrFieldIsNotMap
	}
	ki, err := validElementFieldValue(fd.GetMapKeyType(), key)
	if err != nil {
		return err
	}
	mp := m.values[fd.GetNumber()]
	if mp == nil {
		if mp, err = m.parseUnknownField(fd); err != nil {
			return err
		} else if mp == nil {
			return nil
		}
	}
	res := mp.(map[interface{}]interface{})
	delete(res, ki)
	if len(res) == 0 {
		m.clearField(fd)
	}
	return nil
}

// FieldLength returns the number of elements in the given repeated or map
// field. It panics if an error is encountered. See TryFieldLength.
func (m *Message) FieldLength(fd *desc.FieldDescriptor) int {
	if l, err := m.TryFieldLength(fd); err != nil {
		panic(err.Error())
	} else {
		return l
	}
}

// TryFieldLength returns the number of elements in the given repeated or map
// field.
func (m *Message) TryFieldLength(fd *desc.FieldDescriptor) (int, error) {
	if err := m.checkField(fd); err != nil {
		return 0, err
	}
	if !fd.IsRepeated() {
		return 0, ErrFieldIsNotRepeated
	}
	val := m.values[fd.GetNumber()]
	if val == nil {
		var err error
		if val, err = m.parseUnknownField(fd); err != nil {
			return 0, err
		} else if val == nil {
			return 0, nil
		}
	}
	if fd.IsMap() {
		return len(val.(map[interface{}]interface{})), nil
	}
	return len(val.([]interface{})), nil
}

// GetRepeatedField returns the element at the given index of the given
// repeated field. It panics if an error is encountered. See
// TryGetRepeatedField.
func (m *Message) GetRepeatedField(fd *desc.FieldDescriptor, index int) interface{} {
	if v, err := m.TryGetRepeatedField(fd, index); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetRepeatedField returns the element at the given index of the given
// repeated field.
func (m *Message) TryGetRepeatedField(fd *desc.FieldDescriptor, index int) (interface{}, error) {
	if index < 0 {
		return nil, ErrIndexOutOfRange
	}
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	return m.getRepeatedField(fd, index)
}

// GetRepeatedFieldByName returns the element at the given index of the
// repeated field with the given name. It panics if an error is encountered.
func (m *Message) GetRepeatedFieldByName(name string, index int) interface{} {
	if v, err := m.TryGetRepeatedFieldByName(name, index); err != nil {
		panic(err.Error())
	} else {
		return v
	}
}

// TryGetRepeatedFieldByName returns the element at the given index of the
// repeated field with the given name.
func (m *Message) TryGetRepeatedFieldByName(name string, index int) (interface{}, error) {
	if index < 0 {
		return nil, ErrIndexOutOfRange
	}
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.getRepeatedField(fd, index)
}

func (m *Message) getRepeatedField(fd *desc.FieldDescriptor, index int) (interface{}, error) {
	if fd.IsMap() || !fd.IsRepeated() {
		return nil, ErrFieldIsNotRepeated
	}
	sl := m.values[fd.GetNumber()]
	if sl == nil {
		var err error
		if sl, err = m.parseUnknownField(fd); err != nil {
			return nil, err
		} else if sl == nil {
			return nil, ErrIndexOutOfRange
		}
	}
	res := sl.([]interface{})
	if index >= len(res) {
		return nil, ErrIndexOutOfRange
	}
	return res[index], nil
}

// AddRepeatedField appends the given value to the given repeated field. It
// panics if an error is encountered. See TryAddRepeatedField.
func (m *Message) AddRepeatedField(fd *desc.FieldDescriptor, val interface{}) {
	if err := m.TryAddRepeatedField(fd, val); err != nil {
		panic(err.Error())
	}
}

// TryAddRepeatedField appends the given value to the given repeated field.
// For map fields, the value must be a map entry message whose key and value
// are added to the map.
func (m *Message) TryAddRepeatedField(fd *desc.FieldDescriptor, val interface{}) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.addRepeatedField(fd, val)
}

// AddRepeatedFieldByName appends the given value to the repeated field with
// the given name. It panics if an error is encountered.
func (m *Message) AddRepeatedFieldByName(name string, val interface{}) {
	if err := m.TryAddRepeatedFieldByName(name, val); err != nil {
		panic(err.Error())
	}
}

// TryAddRepeatedFieldByName appends the given value to the repeated field
// with the given name.
func (m *Message) TryAddRepeatedFieldByName(name string, val interface{}) error {
	fd := m.FindFieldDescriptorByName(name)
	if fd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFieldName, name)
	}
	return m.addRepeatedField(fd, val)
}

func (m *Message) addRepeatedField(fd *desc.FieldDescriptor, val interface{}) error {
	if !fd.IsRepeated() {
		return ErrFieldIsNotRepeated
	}
	val, err := validElementFieldValue(fd, val)
	if err != nil {
		return err
	}

	if fd.IsMap() {
		// We're lenient. Just as we allow setting a map field to a slice of entry messages, we also allow
		// adding entries one at a time (as if the field were a normal repeated field).
		entry := val.(*Message)
		return m.putMapField(fd, entry.mapEntryKey(), entry.mapEntryValue())
	}

	sl := m.values[fd.GetNumber()]
	if sl == nil {
		if sl, err = m.parseUnknownField(fd); err != nil {
			return err
		} else if sl == nil {
			sl = []interface{}{}
		}
	}
	res := sl.([]interface{})
	res = append(res, val)
	m.internalSetField(fd, res)
	return nil
}

// SetRepeatedField replaces the element at the given index of the given
// repeated field. It panics if an error is encountered. See
// TrySetRepeatedField.
func (m *Message) SetRepeatedField(fd *desc.FieldDescriptor, index int, val interface{}) {
	if err := m.TrySetRepeatedField(fd, index, val); err != nil {
		panic(err.Error())
	}
}

// TrySetRepeatedField replaces the element at the given index of the given
// repeated field.
func (m *Message) TrySetRepeatedField(fd *desc.FieldDescriptor, index int, val interface{}) error {
	if index < 0 {
		return ErrIndexOutOfRange
	}
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.setRepeatedField(fd, index, val)
}

func (m *Message) setRepeatedField(fd *desc.FieldDescriptor, index int, val interface{}) error {
	if fd.IsMap() || !fd.IsRepeated() {
		return ErrFieldIsNotRepeated
	}
	val, err := validElementFieldValue(fd, val)
	if err != nil {
		return err
	}
	sl := m.values[fd.GetNumber()]
	if sl == nil {
		if sl, err = m.parseUnknownField(fd); err != nil {
			return err
		} else if sl == nil {
			return ErrIndexOutOfRange
		}
	}
	res := sl.([]interface{})
	if index >= len(res) {
		return ErrIndexOutOfRange
	}
	res[index] = val
	return nil
}

// mapEntryKey returns the key of a map entry message, or the key type's zero
// value if absent.
func (m *Message) mapEntryKey() interface{} {
	if k, ok := m.values[1]; ok {
		return k
	}
	return m.md.FindFieldByNumber(1).GetDefaultValue()
}

// mapEntryValue returns the value of a map entry message. An absent message
// value is an empty message.
func (m *Message) mapEntryValue() interface{} {
	if v, ok := m.values[2]; ok {
		return v
	}
	vfd := m.md.FindFieldByNumber(2)
	if vmd := vfd.GetMessageType(); vmd != nil {
		return NewMessageWithExtensionRegistry(vmd, m.er)
	}
	return vfd.GetDefaultValue()
}

// Reset clears all fields, extensions and unknown fields of the message.
func (m *Message) Reset() {
	m.values = nil
	m.extraFields = nil
	m.unknownFields = nil
}

// String returns the text format representation of the message.
func (m *Message) String() string {
	b, err := m.MarshalTextWithOptions(TextEncodingOptions{Compact: true})
	if err != nil {
		return fmt.Sprintf("<%s: %v>", m.md.GetFullyQualifiedName(), err)
	}
	return string(b)
}

// Validate checks that all required fields are present, recursively. Nil is
// returned if every required field has a value.
func (m *Message) Validate() error {
	return m.validateRecursive("")
}

func (m *Message) validateRecursive(prefix string) error {
	for _, fld := range m.md.GetFields() {
		if fld.IsRequired() {
			if _, ok := m.values[fld.GetNumber()]; !ok {
				return fmt.Errorf("%s is a required field", prefix+fld.GetName())
			}
		}
	}
	for _, tag := range m.knownFieldTags() {
		fd := m.FindFieldDescriptor(int32(tag))
		if fd.GetMessageType() == nil {
			continue
		}
		name := prefix + fd.GetName()
		if fd.IsExtension() {
			name = prefix + "[" + fd.GetFullyQualifiedName() + "]"
		}
		switch val := m.values[int32(tag)].(type) {
		case *Message:
			if err := val.validateRecursive(name + "."); err != nil {
				return err
			}
		case []interface{}:
			for i, e := range val {
				if err := e.(*Message).validateRecursive(fmt.Sprintf("%s[%d].", name, i)); err != nil {
					return err
				}
			}
		case map[interface{}]interface{}:
			for k, v := range val {
				if vm, ok := v.(*Message); ok {
					if err := vm.validateRecursive(fmt.Sprintf("%s[%v].", name, k)); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// knownFieldTags returns the numbers of all fields that have values, sorted.
func (m *Message) knownFieldTags() []int {
	if len(m.values) == 0 {
		return []int(nil)
	}
	keys := make([]int, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	return keys
}

// allKnownFieldTags returns the numbers of all regular fields plus any fields
// that have values, sorted.
func (m *Message) allKnownFieldTags() []int {
	fds := m.md.GetFields()
	keys := make([]int, 0, len(fds)+len(m.extraFields))
	for k := range m.values {
		keys = append(keys, int(k))
	}
	// also include known fields that are not set
	for _, fd := range fds {
		if _, ok := m.values[fd.GetNumber()]; !ok {
			keys = append(keys, int(fd.GetNumber()))
		}
	}
	sort.Ints(keys)
	return keys
}
