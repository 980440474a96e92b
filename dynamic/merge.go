package dynamic

import (
	"fmt"

	"github.com/jhump/protoruntime/desc"
)

// Merge merges the contents of src into dst. Both must be messages of the
// same type.
//
// Singular scalar fields that are set in src overwrite the values in dst.
// Singular message fields (and groups) are merged recursively. Repeated fields
// in src are appended to those in dst, and entries of map fields in src
// replace entries with the same key in dst. If src has a member of a oneof
// set, it replaces whichever member was set in dst. Unknown fields in src are
// appended to those in dst.
//
// Values are copied out of src, so no storage is shared between the two
// messages after the merge.
func Merge(dst, src *Message) error {
	if dst.md.GetFullyQualifiedName() != src.md.GetFullyQualifiedName() {
		return fmt.Errorf("cannot merge %s into %s", src.md.GetFullyQualifiedName(), dst.md.GetFullyQualifiedName())
	}
	return dst.mergeFrom(src)
}

func (m *Message) mergeFrom(src *Message) error {
	return src.Traverse(mergeVisitor{dst: m})
}

type mergeVisitor struct {
	dst *Message
}

func (mv mergeVisitor) merge(fd *desc.FieldDescriptor, val interface{}) error {
	return mv.dst.mergeFieldValue(fd, val)
}

// mergeFieldValue merges val into the given field, first folding in any data
// for the field that m holds as unknown, since that data is older than val.
func (m *Message) mergeFieldValue(fd *desc.FieldDescriptor, val interface{}) error {
	if _, ok := m.values[fd.GetNumber()]; !ok {
		if _, err := m.parseUnknownField(fd); err != nil {
			return err
		}
	}
	return mergeField(m, fd, val)
}

func (mv mergeVisitor) VisitSingularField(fd *desc.FieldDescriptor, val interface{}) error {
	return mv.merge(fd, val)
}

func (mv mergeVisitor) VisitRepeatedField(fd *desc.FieldDescriptor, vals []interface{}) error {
	return mv.merge(fd, vals)
}

func (mv mergeVisitor) VisitMapField(fd *desc.FieldDescriptor, entries map[interface{}]interface{}) error {
	return mv.merge(fd, entries)
}

func (mv mergeVisitor) VisitOneOfField(_ *desc.OneOfDescriptor, fd *desc.FieldDescriptor, val interface{}) error {
	return mv.merge(fd, val)
}

func (mv mergeVisitor) VisitExtensionField(fd *desc.FieldDescriptor, val interface{}) error {
	if existing := mv.dst.FindFieldDescriptor(fd.GetNumber()); existing != nil && existing.GetFullyQualifiedName() != fd.GetFullyQualifiedName() {
		return fmt.Errorf("cannot merge extension %s: tag %d is %s in target", fd.GetFullyQualifiedName(), fd.GetNumber(), existing.GetFullyQualifiedName())
	}
	return mv.merge(fd, val)
}

func (mv mergeVisitor) VisitUnknownField(u UnknownField) error {
	mv.dst.appendUnknownField(u)
	return nil
}

// mergeField merges the given value into the given field of m. The value is
// deep copied. This is used both to merge whole messages and by decoders when
// a field occurs more than once in the input.
func mergeField(m *Message, fd *desc.FieldDescriptor, val interface{}) error {
	existing := m.values[fd.GetNumber()]
	switch {
	case fd.IsMap():
		src, ok := val.(map[interface{}]interface{})
		if !ok {
			return fmt.Errorf("value for map field %s must be a map; instead was %T", fd.GetFullyQualifiedName(), val)
		}
		dst, _ := existing.(map[interface{}]interface{})
		if dst == nil {
			dst = make(map[interface{}]interface{}, len(src))
		}
		for k, v := range src {
			dst[k] = cloneValue(v)
		}
		m.storeValue(fd, dst)

	case fd.IsRepeated():
		src, ok := val.([]interface{})
		if !ok {
			return fmt.Errorf("value for repeated field %s must be a slice; instead was %T", fd.GetFullyQualifiedName(), val)
		}
		dst, _ := existing.([]interface{})
		for _, v := range src {
			dst = append(dst, cloneValue(v))
		}
		m.storeValue(fd, dst)

	case fd.GetMessageType() != nil:
		src, ok := val.(*Message)
		if !ok {
			return fmt.Errorf("value for message field %s must be a *Message; instead was %T", fd.GetFullyQualifiedName(), val)
		}
		if dst, ok := existing.(*Message); ok && dst != nil {
			return dst.mergeFrom(src)
		}
		m.storeValue(fd, src.Clone())

	default:
		m.storeValue(fd, cloneValue(val))
	}
	return nil
}
