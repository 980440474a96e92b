package dynamic

import (
	"github.com/jhump/protoruntime/desc"
)

// Visitor receives the populated fields of a message during a call to
// Traverse. Each method is called once per field that has a value. Values use
// the same representation as GetField, but are not copies: visitors must not
// modify them.
//
// A non-nil error returned from any method stops the traversal, and the error
// is returned from Traverse.
type Visitor interface {
	// VisitSingularField is called for a singular field that is neither an
	// extension nor a member of a oneof.
	VisitSingularField(fd *desc.FieldDescriptor, val interface{}) error
	// VisitRepeatedField is called for a repeated field that is not a map and
	// not an extension.
	VisitRepeatedField(fd *desc.FieldDescriptor, vals []interface{}) error
	// VisitMapField is called for a map field.
	VisitMapField(fd *desc.FieldDescriptor, entries map[interface{}]interface{}) error
	// VisitOneOfField is called for the member of a oneof that is set.
	VisitOneOfField(od *desc.OneOfDescriptor, fd *desc.FieldDescriptor, val interface{}) error
	// VisitExtensionField is called for an extension. If the extension is
	// repeated, val is a []interface{}.
	VisitExtensionField(fd *desc.FieldDescriptor, val interface{}) error
	// VisitUnknownField is called for each unknown field.
	VisitUnknownField(f UnknownField) error
}

// Traverse calls the given visitor for every populated field of the message,
// in ascending order of field number. Unknown fields are interleaved with
// known fields by number. When a known field and unknown fields share a
// number, the known field is visited first. Unknown fields with the same
// number are visited in the order they were decoded.
func (m *Message) Traverse(v Visitor) error {
	unknown := m.sortedUnknownFields()
	for _, tag := range m.knownFieldTags() {
		num := int32(tag)
		for len(unknown) > 0 && unknown[0].Number < num {
			if err := v.VisitUnknownField(unknown[0]); err != nil {
				return err
			}
			unknown = unknown[1:]
		}
		if err := m.visitField(v, m.FindFieldDescriptor(num), m.values[num]); err != nil {
			return err
		}
	}
	for _, u := range unknown {
		if err := v.VisitUnknownField(u); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) visitField(v Visitor, fd *desc.FieldDescriptor, val interface{}) error {
	switch {
	case fd.IsExtension():
		return v.VisitExtensionField(fd, val)
	case fd.GetOneOf() != nil:
		return v.VisitOneOfField(fd.GetOneOf(), fd, val)
	case fd.IsMap():
		return v.VisitMapField(fd, val.(map[interface{}]interface{}))
	case fd.IsRepeated():
		return v.VisitRepeatedField(fd, val.([]interface{}))
	default:
		return v.VisitSingularField(fd, val)
	}
}

// fieldVisitor adapts a pair of functions to the Visitor interface. Every
// kind of known field is handed to the same function, which is all most codecs
// need since the descriptor already says how to handle the value.
type fieldVisitor struct {
	field   func(fd *desc.FieldDescriptor, val interface{}) error
	unknown func(u UnknownField) error
}

var _ Visitor = fieldVisitor{}

func (f fieldVisitor) VisitSingularField(fd *desc.FieldDescriptor, val interface{}) error {
	return f.field(fd, val)
}

func (f fieldVisitor) VisitRepeatedField(fd *desc.FieldDescriptor, vals []interface{}) error {
	return f.field(fd, vals)
}

func (f fieldVisitor) VisitMapField(fd *desc.FieldDescriptor, entries map[interface{}]interface{}) error {
	return f.field(fd, entries)
}

func (f fieldVisitor) VisitOneOfField(_ *desc.OneOfDescriptor, fd *desc.FieldDescriptor, val interface{}) error {
	return f.field(fd, val)
}

func (f fieldVisitor) VisitExtensionField(fd *desc.FieldDescriptor, val interface{}) error {
	return f.field(fd, val)
}

func (f fieldVisitor) VisitUnknownField(u UnknownField) error {
	if f.unknown == nil {
		return nil
	}
	return f.unknown(u)
}
