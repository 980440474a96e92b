package dynamic

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protoruntime/desc"
)

var typeOfProtoMessage = reflect.TypeOf((*proto.Message)(nil)).Elem()

func validFieldValue(fd *desc.FieldDescriptor, val interface{}) (interface{}, error) {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return nil, nil
	}
	if dm, ok := val.(*Message); ok && dm == nil && !fd.IsRepeated() {
		// setting a nil message clears the field
		return nil, nil
	}
	if fd.IsMap() && v.Kind() == reflect.Map {
		// make a defensive copy while we check the contents
		// (also converts to map[interface{}]interface{} if it's some other type)
		keyField := fd.GetMapKeyType()
		valField := fd.GetMapValueType()
		m := make(map[interface{}]interface{}, v.Len())
		for _, k := range v.MapKeys() {
			kk, err := validElementFieldValue(keyField, k.Interface())
			if err != nil {
				return nil, err
			}
			vv, err := validElementFieldValue(valField, v.MapIndex(k).Interface())
			if err != nil {
				return nil, err
			}
			m[kk] = vv
		}
		return m, nil
	}

	if fd.IsRepeated() { // this will also catch map fields where given value was not a map
		if v.Kind() != reflect.Array && v.Kind() != reflect.Slice {
			if fd.IsMap() {
				return nil, fmt.Errorf("value for map field must be a map; instead was %v", v.Type())
			}
			return nil, fmt.Errorf("value for repeated field must be a slice; instead was %v", v.Type())
		}

		if fd.IsMap() {
			// value should be a slice of entry messages that we need convert into a map[interface{}]interface{}
			m := map[interface{}]interface{}{}
			for i := 0; i < v.Len(); i++ {
				e, err := validElementFieldValue(fd, v.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				entry := e.(*Message)
				m[entry.mapEntryKey()] = entry.mapEntryValue()
			}
			return m, nil
		}

		// make a defensive copy while checking contents (also converts to []interface{})
		s := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := validElementFieldValue(fd, v.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			s[i] = e
		}
		return s, nil
	}

	return validElementFieldValue(fd, val)
}

func validElementFieldValue(fd *desc.FieldDescriptor, val interface{}) (interface{}, error) {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return nil, fmt.Errorf("%v field %s is not compatible with nil value", fd.GetType(), fd.GetFullyQualifiedName())
	}
	t := fd.GetType()
	typeName := t.String()
	switch t {
	case protoreflect.EnumKind:
		switch e := val.(type) {
		case protoreflect.Enum:
			return int32(e.Number()), nil
		case protoreflect.EnumNumber:
			return int32(e), nil
		}
		return toInt32(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.Sfixed32Kind, protoreflect.Int32Kind, protoreflect.Sint32Kind:
		return toInt32(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.Sfixed64Kind, protoreflect.Int64Kind, protoreflect.Sint64Kind:
		return toInt64(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.Fixed32Kind, protoreflect.Uint32Kind:
		return toUint32(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.Fixed64Kind, protoreflect.Uint64Kind:
		return toUint64(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.FloatKind:
		return toFloat32(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.DoubleKind:
		return toFloat64(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.BoolKind:
		return toBool(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.BytesKind:
		return toBytes(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.StringKind:
		return toString(elem(v), typeName, fd.GetFullyQualifiedName())

	case protoreflect.MessageKind, protoreflect.GroupKind:
		return asMessage(v, fd)

	default:
		return nil, fmt.Errorf("unable to handle unrecognized field type: %v", fd.GetType())
	}
}

func elem(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v.Elem()
	}
	return v
}

func toInt32(v reflect.Value, what string, fieldName string) (int32, error) {
	if v.Kind() == reflect.Int32 {
		return int32(v.Int()), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toUint32(v reflect.Value, what string, fieldName string) (uint32, error) {
	if v.Kind() == reflect.Uint32 {
		return uint32(v.Uint()), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toFloat32(v reflect.Value, what string, fieldName string) (float32, error) {
	if v.Kind() == reflect.Float32 {
		return float32(v.Float()), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toInt64(v reflect.Value, what string, fieldName string) (int64, error) {
	if v.Kind() == reflect.Int64 {
		return v.Int(), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toUint64(v reflect.Value, what string, fieldName string) (uint64, error) {
	if v.Kind() == reflect.Uint64 {
		return v.Uint(), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toFloat64(v reflect.Value, what string, fieldName string) (float64, error) {
	if v.Kind() == reflect.Float64 {
		return v.Float(), nil
	}
	return 0, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toBool(v reflect.Value, what string, fieldName string) (bool, error) {
	if v.Kind() == reflect.Bool {
		return v.Bool(), nil
	}
	return false, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toBytes(v reflect.Value, what string, fieldName string) ([]byte, error) {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return v.Bytes(), nil
	}
	return nil, fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

func toString(v reflect.Value, what string, fieldName string) (string, error) {
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	return "", fmt.Errorf("%s field %s is not compatible with value of type %v", what, fieldName, v.Type())
}

// asMessage checks that the given value is a message of the field's type. A
// generated message is converted to a dynamic one.
func asMessage(v reflect.Value, fd *desc.FieldDescriptor) (*Message, error) {
	md := fd.GetMessageType()
	var msgType string
	switch m := v.Interface().(type) {
	case *Message:
		if m == nil {
			return nil, fmt.Errorf("message field %s is not compatible with nil value", fd.GetFullyQualifiedName())
		}
		msgType = m.md.GetFullyQualifiedName()
		if msgType == md.GetFullyQualifiedName() {
			return m, nil
		}
	case proto.Message:
		msgType = string(m.ProtoReflect().Descriptor().FullName())
		if msgType == md.GetFullyQualifiedName() {
			dm := NewMessage(md)
			if err := dm.ConvertFrom(m); err != nil {
				return nil, err
			}
			return dm, nil
		}
	default:
		if !v.Type().Implements(typeOfProtoMessage) {
			return nil, fmt.Errorf("message field %s is not compatible with value of type %v", fd.GetFullyQualifiedName(), v.Type())
		}
	}
	return nil, fmt.Errorf("message field %s requires value of type %s; received %s", fd.GetFullyQualifiedName(), md.GetFullyQualifiedName(), msgType)
}

// sortedMapKeys returns the keys of the given map in ascending order: false
// before true, numeric order for integers, and byte-wise order for strings.
func sortedMapKeys(mp map[interface{}]interface{}) []interface{} {
	keys := make([]interface{}, 0, len(mp))
	for k := range mp {
		keys = append(keys, k)
	}
	sort.Sort(sortable(keys))
	return keys
}

type sortable []interface{}

func (s sortable) Len() int {
	return len(s)
}

func (s sortable) Less(i, j int) bool {
	vi := s[i]
	vj := s[j]
	switch reflect.TypeOf(vi).Kind() {
	case reflect.Int32:
		return vi.(int32) < vj.(int32)
	case reflect.Int64:
		return vi.(int64) < vj.(int64)
	case reflect.Uint32:
		return vi.(uint32) < vj.(uint32)
	case reflect.Uint64:
		return vi.(uint64) < vj.(uint64)
	case reflect.String:
		return vi.(string) < vj.(string)
	case reflect.Bool:
		return !vi.(bool) && vj.(bool)
	default:
		panic(fmt.Sprintf("cannot compare keys of type %v", reflect.TypeOf(vi)))
	}
}

func (s sortable) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// cloneValue returns a deep copy of a field value.
func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return bytes.Clone(v)
	case *Message:
		return v.Clone()
	case []interface{}:
		cp := make([]interface{}, len(v))
		for i, e := range v {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[interface{}]interface{}:
		cp := make(map[interface{}]interface{}, len(v))
		for k, e := range v {
			cp[k] = cloneValue(e)
		}
		return cp
	}
	return v
}
