package dynamic

// JSON marshalling and unmarshalling for dynamic messages

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protoruntime/desc"
	"github.com/jhump/protoruntime/internal/encoding/json"
)

// JSONEncodingOptions configures the JSON encoder. Every option applies
// recursively, to nested messages and to the contents of Any messages.
type JSONEncodingOptions struct {
	// If true, enum values are written as numbers instead of names.
	AlwaysPrintEnumsAsInts bool
	// If true, fields are named by their name in the proto source instead of
	// their JSON name.
	PreserveProtoFieldNames bool
	// If true, map entries are written in ascending order of their keys.
	UseDeterministicOrdering bool
	// If true, fields that are not set are written with their default values.
	// Members of oneofs and extensions are never written unless set.
	EmitDefaults bool
	// If true, the output is spread over multiple lines and indented.
	Indent bool
	// AnyResolver resolves the type URLs of Any messages. If nil,
	// DefaultTypeRegistry is used.
	AnyResolver AnyResolver
}

// JSONDecodingOptions configures the JSON decoder.
type JSONDecodingOptions struct {
	// MessageDepthLimit is the maximum nesting of messages in the input,
	// including objects skipped because their key is not recognized. The
	// message being decoded counts as the first level. If zero, the limit is
	// 100.
	MessageDepthLimit int
	// If true, keys that do not name a field are an error. Otherwise they are
	// skipped. Unrecognized extension names are always an error.
	DisallowUnknownFields bool
	// Extensions are recognized by the decoder, in addition to those in the
	// message's own registry.
	Extensions *ExtensionRegistry
	// AnyResolver resolves the type URLs of Any messages. If nil,
	// DefaultTypeRegistry is used.
	AnyResolver AnyResolver
}

// MarshalJSON serializes this message to bytes in JSON format, returning an
// error if the operation fails. The output is compact, with no added
// whitespace. Fields are written in order of field number.
//
// This method is convenient shorthand for invoking MarshalJSONWithOptions
// with a zero value for the options.
func (m *Message) MarshalJSON() ([]byte, error) {
	return m.MarshalJSONWithOptions(JSONEncodingOptions{})
}

// MarshalJSONIndent serializes this message to bytes in JSON format, spread
// over multiple lines with two spaces of indentation per level.
func (m *Message) MarshalJSONIndent() ([]byte, error) {
	return m.MarshalJSONWithOptions(JSONEncodingOptions{Indent: true})
}

// MarshalJSONWithOptions serializes this message to bytes in JSON format
// using the given options.
func (m *Message) MarshalJSONWithOptions(opts JSONEncodingOptions) ([]byte, error) {
	b := &indentBuffer{comma: true}
	if !opts.Indent {
		b.indent = -1
	}
	enc := &jsonEncoder{b: b, opts: opts, res: resolverOrDefault(opts.AnyResolver)}
	if err := enc.marshalMessage(m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

type jsonEncoder struct {
	b    *indentBuffer
	opts JSONEncodingOptions
	res  AnyResolver
}

type jsonField struct {
	fd  *desc.FieldDescriptor
	val interface{}
}

func (e *jsonEncoder) marshalMessage(m *Message) error {
	if ok, err := e.marshalWellKnownType(m); ok {
		return err
	}
	return e.marshalObject(m, "")
}

// marshalObject writes the fields of m as a JSON object. If typeURL is not
// empty, it is written first as an "@type" key, for the contents of an Any.
func (e *jsonEncoder) marshalObject(m *Message, typeURL string) error {
	fields := e.fieldsToWrite(m)
	if len(fields) == 0 && typeURL == "" {
		_, err := e.b.WriteString("{}")
		return err
	}
	if err := e.b.WriteByte('{'); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	first := true
	if typeURL != "" {
		if err := e.b.maybeNext(&first); err != nil {
			return err
		}
		if err := e.writeName("@type"); err != nil {
			return err
		}
		if err := e.writeString(typeURL); err != nil {
			return err
		}
	}
	for _, f := range fields {
		if err := e.b.maybeNext(&first); err != nil {
			return err
		}
		if err := e.marshalField(f.fd, f.val); err != nil {
			return err
		}
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

func (e *jsonEncoder) fieldsToWrite(m *Message) []jsonField {
	var fields []jsonField
	_ = m.Traverse(fieldVisitor{
		field: func(fd *desc.FieldDescriptor, val interface{}) error {
			fields = append(fields, jsonField{fd: fd, val: val})
			return nil
		},
	})
	if !e.opts.EmitDefaults {
		return fields
	}
	for _, fd := range m.md.GetFields() {
		if fd.GetOneOf() != nil {
			continue
		}
		if _, ok := m.values[fd.GetNumber()]; ok {
			continue
		}
		var val interface{}
		switch {
		case fd.IsMap():
			val = map[interface{}]interface{}{}
		case fd.IsRepeated():
			val = []interface{}{}
		case fd.GetMessageType() != nil:
			// written as null
		default:
			val = fd.GetDefaultValue()
		}
		fields = append(fields, jsonField{fd: fd, val: val})
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].fd.GetNumber() < fields[j].fd.GetNumber()
	})
	return fields
}

func (e *jsonEncoder) jsonName(fd *desc.FieldDescriptor) string {
	switch {
	case fd.IsExtension():
		return fd.GetTextName()
	case e.opts.PreserveProtoFieldNames:
		return fd.GetName()
	default:
		return fd.GetJSONName()
	}
}

func (e *jsonEncoder) marshalField(fd *desc.FieldDescriptor, val interface{}) error {
	if err := e.writeName(e.jsonName(fd)); err != nil {
		return err
	}
	if val == nil {
		_, err := e.b.WriteString("null")
		return err
	}

	switch {
	case fd.IsMap():
		return e.marshalMap(fd, val.(map[interface{}]interface{}))

	case fd.IsRepeated():
		return e.marshalArray(fd, val.([]interface{}))

	default:
		return e.marshalValue(fd, val)
	}
}

func (e *jsonEncoder) marshalMap(fd *desc.FieldDescriptor, entries map[interface{}]interface{}) error {
	if len(entries) == 0 {
		_, err := e.b.WriteString("{}")
		return err
	}
	if err := e.b.WriteByte('{'); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	var keys []interface{}
	if e.opts.UseDeterministicOrdering {
		keys = sortedMapKeys(entries)
	} else {
		keys = make([]interface{}, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
	}
	valField := fd.GetMapValueType()
	first := true
	for _, k := range keys {
		if err := e.b.maybeNext(&first); err != nil {
			return err
		}
		if err := e.writeName(mapKeyString(k)); err != nil {
			return err
		}
		if err := e.marshalValue(valField, entries[k]); err != nil {
			return err
		}
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

func (e *jsonEncoder) marshalArray(fd *desc.FieldDescriptor, vals []interface{}) error {
	if len(vals) == 0 {
		_, err := e.b.WriteString("[]")
		return err
	}
	if err := e.b.WriteByte('['); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	first := true
	for _, v := range vals {
		if err := e.b.maybeNext(&first); err != nil {
			return err
		}
		if err := e.marshalValue(fd, v); err != nil {
			return err
		}
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte(']')
}

func mapKeyString(k interface{}) string {
	switch k := k.(type) {
	case string:
		return k
	case bool:
		return strconv.FormatBool(k)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case int64:
		return strconv.FormatInt(k, 10)
	case uint32:
		return strconv.FormatUint(uint64(k), 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	}
	return fmt.Sprint(k)
}

func (e *jsonEncoder) marshalValue(fd *desc.FieldDescriptor, v interface{}) error {
	var buf []byte
	switch fd.GetType() {
	case protoreflect.EnumKind:
		n := v.(int32)
		ed := fd.GetEnumType()
		if ed.GetFullyQualifiedName() == nullValueName {
			buf = append(buf, "null"...)
			break
		}
		if !e.opts.AlwaysPrintEnumsAsInts {
			if vd := ed.FindValueByNumber(n); vd != nil {
				return e.writeString(vd.GetName())
			}
		}
		buf = strconv.AppendInt(buf, int64(n), 10)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		buf = strconv.AppendInt(buf, int64(v.(int32)), 10)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		buf = strconv.AppendUint(buf, uint64(v.(uint32)), 10)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		// 64-bit integers are quoted since JSON numbers are doubles
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, v.(int64), 10)
		buf = append(buf, '"')
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		buf = append(buf, '"')
		buf = strconv.AppendUint(buf, v.(uint64), 10)
		buf = append(buf, '"')
	case protoreflect.FloatKind:
		buf = json.AppendFloat(buf, float64(v.(float32)), 32)
	case protoreflect.DoubleKind:
		buf = json.AppendFloat(buf, v.(float64), 64)
	case protoreflect.BoolKind:
		buf = strconv.AppendBool(buf, v.(bool))
	case protoreflect.StringKind:
		return e.writeString(v.(string))
	case protoreflect.BytesKind:
		return e.writeString(base64.StdEncoding.EncodeToString(v.([]byte)))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return e.marshalMessage(v.(*Message))
	default:
		return fmt.Errorf("unrecognized field type: %v", fd.GetType())
	}
	_, err := e.b.Write(buf)
	return err
}

func (e *jsonEncoder) writeString(s string) error {
	buf, err := json.AppendString(nil, s)
	if err != nil {
		return err
	}
	_, err = e.b.Write(buf)
	return err
}

// writeName writes an object key and the separator that follows it.
func (e *jsonEncoder) writeName(name string) error {
	if err := e.writeString(name); err != nil {
		return err
	}
	return e.b.sep()
}

// UnmarshalJSON de-serializes the message that is present, in JSON format, in
// the given bytes into this message. All existing fields are replaced. If an
// error is returned, this message is left unchanged.
//
// Fields may be named by their JSON name or by their name in the proto
// source. Extensions are named by their fully-qualified name in brackets.
// Keys that do not name a field are skipped.
func (m *Message) UnmarshalJSON(js []byte) error {
	return m.UnmarshalJSONWithOptions(js, JSONDecodingOptions{})
}

// UnmarshalMergeJSON de-serializes the message that is present, in JSON
// format, in the given bytes into this message. Unlike UnmarshalJSON, existing
// fields are not cleared first: the decoded fields are merged into them. If an
// error is returned, this message is left unchanged.
func (m *Message) UnmarshalMergeJSON(js []byte) error {
	return m.UnmarshalMergeJSONWithOptions(js, JSONDecodingOptions{})
}

// UnmarshalJSONWithOptions is like UnmarshalJSON but uses the given options.
func (m *Message) UnmarshalJSONWithOptions(js []byte, opts JSONDecodingOptions) error {
	return m.unmarshalJSON(js, opts, NewMessageWithExtensionRegistry(m.md, m.er))
}

// UnmarshalMergeJSONWithOptions is like UnmarshalMergeJSON but uses the given
// options.
func (m *Message) UnmarshalMergeJSONWithOptions(js []byte, opts JSONDecodingOptions) error {
	return m.unmarshalJSON(js, opts, m.Clone())
}

func (m *Message) unmarshalJSON(js []byte, opts JSONDecodingOptions, target *Message) error {
	d := &jsonDecoder{
		dec:  json.NewDecoder(js),
		opts: opts,
		er:   opts.Extensions,
		res:  resolverOrDefault(opts.AnyResolver),
	}
	if d.er == nil {
		d.er = m.er
	}
	limit := opts.MessageDepthLimit
	if limit <= 0 {
		limit = defaultMessageDepthLimit
	}

	tok, err := d.peek()
	if err != nil {
		return err
	}
	if tok.Kind() == json.Null {
		// if json is simply "null" we do nothing
		if _, err := d.read(); err != nil {
			return err
		}
	} else if err := d.decodeMessage(target, limit-1); err != nil {
		return err
	}

	tok, err = d.read()
	if err != nil {
		return err
	}
	if tok.Kind() != json.EOF {
		return d.syntaxError(tok, "unexpected data after end of message: %s", tok.RawString())
	}
	m.values = target.values
	m.extraFields = target.extraFields
	m.unknownFields = target.unknownFields
	return nil
}

type jsonDecoder struct {
	dec  *json.Decoder
	opts JSONDecodingOptions
	er   *ExtensionRegistry
	res  AnyResolver
}

func (d *jsonDecoder) wrapErr(err error) error {
	if errors.Is(err, json.ErrDepthLimit) {
		return fmt.Errorf("%w: %v", ErrMessageDepthLimit, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
}

func (d *jsonDecoder) read() (json.Token, error) {
	tok, err := d.dec.Read()
	if err != nil {
		return tok, d.wrapErr(err)
	}
	return tok, nil
}

func (d *jsonDecoder) peek() (json.Token, error) {
	tok, err := d.dec.Peek()
	if err != nil {
		return tok, d.wrapErr(err)
	}
	return tok, nil
}

func (d *jsonDecoder) skip(remaining int) error {
	if err := d.dec.Skip(remaining); err != nil {
		return d.wrapErr(err)
	}
	return nil
}

func (d *jsonDecoder) syntaxError(tok json.Token, f string, args ...interface{}) error {
	return d.wrapErr(d.dec.NewSyntaxError(tok.Pos(), f, args...))
}

func (d *jsonDecoder) expect(kind json.Kind) (json.Token, error) {
	tok, err := d.read()
	if err != nil {
		return tok, err
	}
	if tok.Kind() != kind {
		return tok, d.syntaxError(tok, "expecting %v; instead got %s", kind, tok.RawString())
	}
	return tok, nil
}

// decodeMessage decodes a JSON value into m, which has just been created. The
// remaining argument is how many more levels of messages are allowed below m.
func (d *jsonDecoder) decodeMessage(m *Message, remaining int) error {
	if ok, err := d.unmarshalWellKnownType(m, remaining); ok {
		return err
	}
	return d.decodeObject(m, remaining, false)
}

// decodeObject decodes a JSON object into the fields of m. If skipType is
// true, the object is the contents of an Any and its "@type" key is skipped.
func (d *jsonDecoder) decodeObject(m *Message, remaining int, skipType bool) error {
	if _, err := d.expect(json.ObjectOpen); err != nil {
		return err
	}
	for {
		tok, err := d.read()
		if err != nil {
			return err
		}
		if tok.Kind() == json.ObjectClose {
			return nil
		}
		name := tok.Name()
		if skipType && name == "@type" {
			if _, err := d.expect(json.String); err != nil {
				return err
			}
			continue
		}
		fd := d.findField(m, name)
		if fd == nil {
			if strings.HasPrefix(name, "[") {
				return d.syntaxError(tok, "unrecognized extension %s of %s", name, m.md.GetFullyQualifiedName())
			}
			if d.opts.DisallowUnknownFields {
				return d.syntaxError(tok, "message %s has no field named %q", m.md.GetFullyQualifiedName(), name)
			}
			if err := d.skip(remaining); err != nil {
				return err
			}
			continue
		}
		v, err := d.decodeField(fd, remaining)
		if err != nil {
			return err
		}
		if v == nil {
			m.clearField(fd)
			continue
		}
		if err := m.mergeFieldValue(fd, v); err != nil {
			return err
		}
	}
}

func (d *jsonDecoder) findField(m *Message, name string) *desc.FieldDescriptor {
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		if fd := m.FindFieldDescriptorByName(name); fd != nil {
			return fd
		}
		return d.er.FindExtensionByName(m.md.GetFullyQualifiedName(), name[1:len(name)-1])
	}
	if fd := m.md.FindFieldByJSONName(name); fd != nil {
		return fd
	}
	return m.md.FindFieldByName(name)
}

// acceptsNull returns true if a JSON null is a value of the given field
// rather than an indication that the field is absent.
func acceptsNull(fd *desc.FieldDescriptor) bool {
	if md := fd.GetMessageType(); md != nil {
		return md.GetFullyQualifiedName() == valueName
	}
	if ed := fd.GetEnumType(); ed != nil {
		return ed.GetFullyQualifiedName() == nullValueName
	}
	return false
}

// decodeField decodes the value of a field. A nil value means the input had
// null, so the field should be cleared.
func (d *jsonDecoder) decodeField(fd *desc.FieldDescriptor, remaining int) (interface{}, error) {
	tok, err := d.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind() == json.Null && (fd.IsRepeated() || !acceptsNull(fd)) {
		_, err := d.read()
		return nil, err
	}

	switch {
	case fd.IsMap():
		return d.decodeMap(fd, remaining)
	case fd.IsRepeated():
		if _, err := d.expect(json.ArrayOpen); err != nil {
			return nil, err
		}
		vals := []interface{}{}
		for {
			tok, err := d.peek()
			if err != nil {
				return nil, err
			}
			if tok.Kind() == json.ArrayClose {
				_, err := d.read()
				return vals, err
			}
			v, err := d.decodeElement(fd, remaining)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
	default:
		return d.decodeElement(fd, remaining)
	}
}

func (d *jsonDecoder) decodeMap(fd *desc.FieldDescriptor, remaining int) (interface{}, error) {
	if _, err := d.expect(json.ObjectOpen); err != nil {
		return nil, err
	}
	keyField := fd.GetMapKeyType()
	valField := fd.GetMapValueType()
	entries := map[interface{}]interface{}{}
	for {
		tok, err := d.read()
		if err != nil {
			return nil, err
		}
		if tok.Kind() == json.ObjectClose {
			return entries, nil
		}
		k, err := parseMapKey(keyField, tok.Name())
		if err != nil {
			return nil, d.wrapNumberErr(err)
		}
		v, err := d.decodeElement(valField, remaining)
		if err != nil {
			return nil, err
		}
		entries[k] = v
	}
}

func parseMapKey(fd *desc.FieldDescriptor, s string) (interface{}, error) {
	switch fd.GetType() {
	case protoreflect.StringKind:
		return s, nil
	case protoreflect.BoolKind:
		return strconv.ParseBool(s)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.ParseInt(s, 10, 64)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := json.ParseUint(s, 32)
		return uint32(v), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return json.ParseUint(s, 64)
	}
	return nil, fmt.Errorf("invalid map key type: %v", fd.GetType())
}

func (d *jsonDecoder) wrapNumberErr(err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %v", ErrNumericOverflow, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
}

// decodeElement decodes a single value of the given field: one element if the
// field is repeated.
func (d *jsonDecoder) decodeElement(fd *desc.FieldDescriptor, remaining int) (interface{}, error) {
	switch fd.GetType() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if remaining < 1 {
			return nil, ErrMessageDepthLimit
		}
		msg := NewMessageWithExtensionRegistry(fd.GetMessageType(), d.er)
		if err := d.decodeMessage(msg, remaining-1); err != nil {
			return nil, err
		}
		return msg, nil

	case protoreflect.EnumKind:
		tok, err := d.read()
		if err != nil {
			return nil, err
		}
		ed := fd.GetEnumType()
		switch tok.Kind() {
		case json.Null:
			if ed.GetFullyQualifiedName() == nullValueName {
				return int32(0), nil
			}
		case json.String:
			if vd := ed.FindValueByName(tok.ParsedString()); vd != nil {
				return vd.GetNumber(), nil
			}
			return nil, d.syntaxError(tok, "enum %s has no value named %s", ed.GetFullyQualifiedName(), tok.RawString())
		case json.Number:
			v, err := tok.Int(32)
			if err != nil {
				return nil, d.wrapNumberErr(err)
			}
			return int32(v), nil
		}
		return nil, d.syntaxError(tok, "invalid value for enum %s: %s", ed.GetFullyQualifiedName(), tok.RawString())

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := d.readInt(32)
		return int32(v), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return d.readInt(64)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := d.readUint(32)
		return uint32(v), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return d.readUint(64)
	case protoreflect.FloatKind:
		v, err := d.readFloat(32)
		return float32(v), err
	case protoreflect.DoubleKind:
		return d.readFloat(64)

	case protoreflect.BoolKind:
		tok, err := d.read()
		if err != nil {
			return nil, err
		}
		switch tok.Kind() {
		case json.Bool:
			return tok.Bool(), nil
		case json.String:
			// quoted booleans are accepted, as they are for map keys
			if b, err := strconv.ParseBool(tok.ParsedString()); err == nil && (tok.ParsedString() == "true" || tok.ParsedString() == "false") {
				return b, nil
			}
		}
		return nil, d.syntaxError(tok, "invalid value for bool field: %s", tok.RawString())

	case protoreflect.StringKind:
		tok, err := d.expect(json.String)
		if err != nil {
			return nil, err
		}
		return tok.ParsedString(), nil

	case protoreflect.BytesKind:
		tok, err := d.expect(json.String)
		if err != nil {
			return nil, err
		}
		b, err := decodeBase64(tok.ParsedString())
		if err != nil {
			return nil, d.syntaxError(tok, "invalid base64 value for bytes field: %v", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unrecognized field type: %v", fd.GetType())
}

// numberToken returns the number in the given token. Numbers may be quoted.
func (d *jsonDecoder) numberToken() (json.Token, error) {
	tok, err := d.read()
	if err != nil {
		return tok, err
	}
	switch tok.Kind() {
	case json.Number:
		return tok, nil
	case json.String:
		if num, ok := json.ParseNumberString(tok.ParsedString()); ok {
			return num, nil
		}
	}
	return tok, d.syntaxError(tok, "invalid number: %s", tok.RawString())
}

func (d *jsonDecoder) readInt(bitSize int) (int64, error) {
	tok, err := d.numberToken()
	if err != nil {
		return 0, err
	}
	v, err := tok.Int(bitSize)
	if err != nil {
		return 0, d.wrapNumberErr(err)
	}
	return v, nil
}

func (d *jsonDecoder) readUint(bitSize int) (uint64, error) {
	tok, err := d.numberToken()
	if err != nil {
		return 0, err
	}
	v, err := tok.Uint(bitSize)
	if err != nil {
		return 0, d.wrapNumberErr(err)
	}
	return v, nil
}

func (d *jsonDecoder) readFloat(bitSize int) (float64, error) {
	tok, err := d.peek()
	if err != nil {
		return 0, err
	}
	if tok.Kind() == json.String {
		switch tok.ParsedString() {
		case "NaN", "Infinity", "-Infinity":
			_, _ = d.read()
			return parseNonFinite(tok.ParsedString()), nil
		}
	}
	if tok, err = d.numberToken(); err != nil {
		return 0, err
	}
	v, err := tok.Float(bitSize)
	if err != nil {
		return 0, d.wrapNumberErr(err)
	}
	return v, nil
}

// decodeBase64 accepts both the standard and URL-safe alphabets, with or
// without padding.
func decodeBase64(s string) ([]byte, error) {
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}
	return enc.DecodeString(s)
}
