package dynamic

// Marshalling and unmarshalling of dynamic messages to/from proto's standard text format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protoruntime/codec"
	"github.com/jhump/protoruntime/desc"
	"github.com/jhump/protoruntime/internal/encoding/text"
)

// TextEncodingOptions configures the text format encoder.
type TextEncodingOptions struct {
	// If true, all output is on a single line. Otherwise, each field is on
	// its own line and nested messages are indented.
	Compact bool
	// If true, unknown fields are not written.
	OmitUnknownFields bool
	// AnyResolver resolves the type URLs of Any messages, which are written
	// in their expanded form when the type is known. If nil,
	// DefaultTypeRegistry is used.
	AnyResolver AnyResolver
}

// TextDecodingOptions configures the text format decoder.
type TextDecodingOptions struct {
	// MessageDepthLimit is the maximum nesting of messages in the input. The
	// message being decoded counts as the first level. If zero, the limit is
	// 100.
	MessageDepthLimit int
	// If true, names that do not identify a field are skipped along with their
	// values. Otherwise they are an error.
	IgnoreUnknownFields bool
	// If true, bracketed names that do not identify a known extension are
	// skipped along with their values. Otherwise they are an error.
	IgnoreUnknownExtensionFields bool
	// Extensions are recognized by the decoder, in addition to those in the
	// message's own registry.
	Extensions *ExtensionRegistry
	// AnyResolver resolves the type URLs of expanded Any messages. If nil,
	// DefaultTypeRegistry is used.
	AnyResolver AnyResolver
}

// MarshalText serializes this message to bytes in the standard text format,
// returning an error if the operation fails. The output is compact, on a
// single line.
func (m *Message) MarshalText() ([]byte, error) {
	return m.MarshalTextWithOptions(TextEncodingOptions{Compact: true})
}

// MarshalTextIndent serializes this message to bytes in the standard text
// format, with one field per line and two spaces of indentation per level of
// nesting.
func (m *Message) MarshalTextIndent() ([]byte, error) {
	return m.MarshalTextWithOptions(TextEncodingOptions{})
}

// MarshalTextWithOptions serializes this message to bytes in the standard
// text format using the given options. Fields are written in order of field
// number and map entries in order of key.
func (m *Message) MarshalTextWithOptions(opts TextEncodingOptions) ([]byte, error) {
	b := &indentBuffer{}
	if opts.Compact {
		b.indent = -1
	}
	enc := &textEncoder{b: b, opts: opts, res: resolverOrDefault(opts.AnyResolver)}
	if err := enc.marshalMessage(m); err != nil {
		return nil, err
	}
	if !opts.Compact && b.Len() > 0 {
		// every field is terminated by a newline
		if err := b.WriteByte('\n'); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

type textEncoder struct {
	b    *indentBuffer
	opts TextEncodingOptions
	res  AnyResolver
}

func (e *textEncoder) marshalMessage(m *Message) error {
	if m.md.GetFullyQualifiedName() == anyName {
		if ok, err := e.marshalExpandedAny(m); ok {
			return err
		}
	}
	first := true
	return m.Traverse(fieldVisitor{
		field: func(fd *desc.FieldDescriptor, val interface{}) error {
			switch {
			case fd.IsMap():
				entries := val.(map[interface{}]interface{})
				for _, k := range sortedMapKeys(entries) {
					if err := e.b.maybeNext(&first); err != nil {
						return err
					}
					if err := e.marshalMapEntry(fd, k, entries[k]); err != nil {
						return err
					}
				}
			case fd.IsRepeated():
				for _, v := range val.([]interface{}) {
					if err := e.b.maybeNext(&first); err != nil {
						return err
					}
					if err := e.marshalField(fd.GetTextName(), fd, v); err != nil {
						return err
					}
				}
			default:
				if err := e.b.maybeNext(&first); err != nil {
					return err
				}
				return e.marshalField(fd.GetTextName(), fd, val)
			}
			return nil
		},
		unknown: func(u UnknownField) error {
			if e.opts.OmitUnknownFields {
				return nil
			}
			if err := e.b.maybeNext(&first); err != nil {
				return err
			}
			return e.marshalUnknownField(u.Number, u.WireType, u.Value())
		},
	})
}

// marshalExpandedAny writes an Any as "[url] { ... }" if its type is known.
func (e *textEncoder) marshalExpandedAny(m *Message) (bool, error) {
	typeURL, _ := fieldOrDefault(m, 1).(string)
	if typeURL == "" {
		return false, nil
	}
	md, err := e.res.FindMessageByURL(typeURL)
	if err != nil || md == nil {
		return false, nil
	}
	inner := NewMessage(md)
	value, _ := fieldOrDefault(m, 2).([]byte)
	if err := inner.Unmarshal(value); err != nil {
		return false, nil
	}
	return true, e.marshalNested("["+typeURL+"]", inner)
}

func (e *textEncoder) marshalNested(name string, m *Message) error {
	if _, err := e.b.WriteString(name); err != nil {
		return err
	}
	if e.b.indent >= 0 {
		if err := e.b.WriteByte(' '); err != nil {
			return err
		}
	}
	if e.isEmpty(m) {
		_, err := e.b.WriteString("{}")
		return err
	}
	if err := e.b.WriteByte('{'); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	if err := e.marshalMessage(m); err != nil {
		return err
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

func (e *textEncoder) isEmpty(m *Message) bool {
	return len(m.values) == 0 && (len(m.unknownFields) == 0 || e.opts.OmitUnknownFields)
}

func (e *textEncoder) marshalField(name string, fd *desc.FieldDescriptor, v interface{}) error {
	if msg, ok := v.(*Message); ok {
		return e.marshalNested(name, msg)
	}
	if _, err := e.b.WriteString(name); err != nil {
		return err
	}
	if err := e.b.sep(); err != nil {
		return err
	}
	return e.marshalScalar(fd, v)
}

func (e *textEncoder) marshalMapEntry(fd *desc.FieldDescriptor, k, v interface{}) error {
	if _, err := e.b.WriteString(fd.GetTextName()); err != nil {
		return err
	}
	if e.b.indent >= 0 {
		if err := e.b.WriteByte(' '); err != nil {
			return err
		}
	}
	if err := e.b.WriteByte('{'); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	if err := e.marshalField("key", fd.GetMapKeyType(), k); err != nil {
		return err
	}
	if err := e.b.next(); err != nil {
		return err
	}
	if err := e.marshalField("value", fd.GetMapValueType(), v); err != nil {
		return err
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

func (e *textEncoder) marshalScalar(fd *desc.FieldDescriptor, v interface{}) error {
	var buf []byte
	switch fd.GetType() {
	case protoreflect.EnumKind:
		n := v.(int32)
		if vd := fd.GetEnumType().FindValueByNumber(n); vd != nil {
			buf = append(buf, vd.GetName()...)
		} else {
			buf = strconv.AppendInt(buf, int64(n), 10)
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		buf = strconv.AppendInt(buf, int64(v.(int32)), 10)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		buf = strconv.AppendInt(buf, v.(int64), 10)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		buf = strconv.AppendUint(buf, uint64(v.(uint32)), 10)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		buf = strconv.AppendUint(buf, v.(uint64), 10)
	case protoreflect.FloatKind:
		buf = appendTextFloat(buf, float64(v.(float32)), 32)
	case protoreflect.DoubleKind:
		buf = appendTextFloat(buf, v.(float64), 64)
	case protoreflect.BoolKind:
		buf = strconv.AppendBool(buf, v.(bool))
	case protoreflect.StringKind:
		buf = text.AppendString(buf, v.(string), true)
	case protoreflect.BytesKind:
		buf = text.AppendString(buf, string(v.([]byte)), false)
	default:
		return fmt.Errorf("unrecognized field type: %v", fd.GetType())
	}
	_, err := e.b.Write(buf)
	return err
}

func appendTextFloat(buf []byte, f float64, bitSize int) []byte {
	switch {
	case math.IsNaN(f):
		return append(buf, "nan"...)
	case math.IsInf(f, 1):
		return append(buf, "inf"...)
	case math.IsInf(f, -1):
		return append(buf, "-inf"...)
	}
	return strconv.AppendFloat(buf, f, 'g', -1, bitSize)
}

// marshalUnknownField writes an unknown field using its number as its name.
// Fixed-width values are written in hex, with all digits, so that they can be
// told apart from varints when parsed.
func (e *textEncoder) marshalUnknownField(num int32, wt protowire.Type, val []byte) error {
	name := strconv.Itoa(int(num))
	cb := codec.NewBuffer(val)
	var buf []byte
	switch wt {
	case protowire.VarintType:
		v, err := cb.DecodeVarint()
		if err != nil {
			return err
		}
		buf = strconv.AppendUint(buf, v, 10)
	case protowire.Fixed32Type:
		v, err := cb.DecodeFixed32()
		if err != nil {
			return err
		}
		buf = fmt.Appendf(buf, "0x%08x", v)
	case protowire.Fixed64Type:
		v, err := cb.DecodeFixed64()
		if err != nil {
			return err
		}
		buf = fmt.Appendf(buf, "0x%016x", v)
	case protowire.BytesType:
		v, err := cb.DecodeRawBytes(false)
		if err != nil {
			return err
		}
		buf = text.AppendString(buf, string(v), false)
	case protowire.StartGroupType:
		return e.marshalUnknownGroup(name, cb)
	default:
		return fmt.Errorf("%w: invalid wire type %d for unknown field %d", ErrMalformedWireData, wt, num)
	}
	if _, err := e.b.WriteString(name); err != nil {
		return err
	}
	if err := e.b.sep(); err != nil {
		return err
	}
	_, err := e.b.Write(buf)
	return err
}

func (e *textEncoder) marshalUnknownGroup(name string, cb *codec.Buffer) error {
	if _, err := e.b.WriteString(name); err != nil {
		return err
	}
	if e.b.indent >= 0 {
		if err := e.b.WriteByte(' '); err != nil {
			return err
		}
	}
	if cb.EOF() {
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
	for !cb.EOF() {
		num, wt, err := cb.DecodeTagAndWireType()
		if err != nil {
			return err
		}
		start := cb.Offset()
		var val []byte
		if wt == protowire.StartGroupType {
			if val, err = cb.ReadGroup(num, defaultMessageDepthLimit, false); err != nil {
				return err
			}
		} else {
			if err := cb.SkipFieldValue(num, wt, defaultMessageDepthLimit); err != nil {
				return err
			}
			val = cb.Since(start)
		}
		if err := e.b.maybeNext(&first); err != nil {
			return err
		}
		if err := e.marshalUnknownField(int32(num), wt, val); err != nil {
			return err
		}
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

// UnmarshalText de-serializes the message that is present, in text format, in
// the given bytes into this message. All existing fields are replaced. If an
// error is returned, this message is left unchanged.
//
// The parser accepts either ':' or nothing between a field name and a nested
// message, either '{' and '}' or '<' and '>' around nested messages, and
// optional ',' or ';' after each field. Repeated fields may be written as a
// list in brackets. Extensions are named by their fully-qualified name in
// brackets, and Any messages may be written in their expanded form.
func (m *Message) UnmarshalText(b []byte) error {
	return m.UnmarshalTextWithOptions(b, TextDecodingOptions{})
}

// UnmarshalMergeText de-serializes the message that is present, in text
// format, in the given bytes into this message. Unlike UnmarshalText, existing
// fields are not cleared first: the decoded fields are merged into them. If an
// error is returned, this message is left unchanged.
func (m *Message) UnmarshalMergeText(b []byte) error {
	return m.UnmarshalMergeTextWithOptions(b, TextDecodingOptions{})
}

// UnmarshalTextWithOptions is like UnmarshalText but uses the given options.
func (m *Message) UnmarshalTextWithOptions(b []byte, opts TextDecodingOptions) error {
	return m.unmarshalText(b, opts, NewMessageWithExtensionRegistry(m.md, m.er))
}

// UnmarshalMergeTextWithOptions is like UnmarshalMergeText but uses the given
// options.
func (m *Message) UnmarshalMergeTextWithOptions(b []byte, opts TextDecodingOptions) error {
	return m.unmarshalText(b, opts, m.Clone())
}

func (m *Message) unmarshalText(b []byte, opts TextDecodingOptions, target *Message) error {
	d := &textDecoder{
		dec:  text.NewDecoder(b),
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
	if err := d.decodeFields(target, limit-1, 0); err != nil {
		return err
	}
	m.values = target.values
	m.extraFields = target.extraFields
	m.unknownFields = target.unknownFields
	return nil
}

type textDecoder struct {
	dec  *text.Decoder
	opts TextDecodingOptions
	er   *ExtensionRegistry
	res  AnyResolver
}

func (d *textDecoder) wrapErr(err error) error {
	if errors.Is(err, ErrMalformedText) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedText, err)
}

func (d *textDecoder) syntaxError(tok text.Token, f string, args ...interface{}) error {
	return d.wrapErr(d.dec.NewSyntaxError(tok.Pos, f, args...))
}

func (d *textDecoder) read() (text.Token, error) {
	tok, err := d.dec.Read()
	if err != nil {
		return tok, d.wrapErr(err)
	}
	return tok, nil
}

func (d *textDecoder) peek() (text.Token, error) {
	tok, err := d.dec.Peek()
	if err != nil {
		return tok, d.wrapErr(err)
	}
	return tok, nil
}

func (d *textDecoder) skipSeparator() error {
	tok, err := d.peek()
	if err != nil {
		return err
	}
	if tok.IsPunct(',') || tok.IsPunct(';') {
		_, err = d.read()
	}
	return err
}

// openMessage reads the start of a nested message, returning the character
// that will end it.
func (d *textDecoder) openMessage() (byte, error) {
	tok, err := d.read()
	if err != nil {
		return 0, err
	}
	switch {
	case tok.IsPunct('{'):
		return '}', nil
	case tok.IsPunct('<'):
		return '>', nil
	}
	return 0, d.syntaxError(tok, "expecting '{' or '<'; instead got %q", tok.Raw)
}

// readBracketedName reads the rest of a name in brackets, after the opening
// bracket: an extension name or the type URL of an expanded Any.
func (d *textDecoder) readBracketedName() (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.read()
		if err != nil {
			return "", err
		}
		switch {
		case tok.IsPunct(']'):
			if sb.Len() == 0 {
				return "", d.syntaxError(tok, "empty name in brackets")
			}
			return sb.String(), nil
		case tok.Kind == text.Ident, tok.IsPunct('.'), tok.IsPunct('/'):
			sb.WriteString(tok.Raw)
		default:
			return "", d.syntaxError(tok, "unexpected %q in bracketed name", tok.Raw)
		}
	}
}

// decodeFields decodes fields into m until the given terminator, or until
// the end of input if the terminator is zero. The remaining argument is how
// many more levels of messages are allowed below m.
func (d *textDecoder) decodeFields(m *Message, remaining int, terminator byte) error {
	for {
		tok, err := d.read()
		if err != nil {
			return err
		}
		if tok.Kind == text.EOF {
			if terminator != 0 {
				return fmt.Errorf("%w: missing '%c' at end of %s", ErrMalformedText, terminator, m.md.GetFullyQualifiedName())
			}
			return nil
		}
		if terminator != 0 && tok.IsPunct(terminator) {
			return nil
		}

		var fd *desc.FieldDescriptor
		switch {
		case tok.IsPunct('['):
			name, err := d.readBracketedName()
			if err != nil {
				return err
			}
			if m.md.GetFullyQualifiedName() == anyName && strings.Contains(name, "/") {
				if err := d.decodeExpandedAny(m, tok, name, remaining); err != nil {
					return err
				}
				if err := d.skipSeparator(); err != nil {
					return err
				}
				continue
			}
			fd = m.FindFieldDescriptorByName("[" + name + "]")
			if fd == nil {
				fd = d.er.FindExtensionByName(m.md.GetFullyQualifiedName(), name)
			}
			if fd == nil {
				if !d.opts.IgnoreUnknownExtensionFields {
					return d.syntaxError(tok, "unrecognized extension [%s] of %s", name, m.md.GetFullyQualifiedName())
				}
				if err := d.skipField(remaining); err != nil {
					return err
				}
			}

		case tok.Kind == text.Ident:
			fd = findTextField(m.md, tok.Raw)
			if fd == nil {
				if d.opts.IgnoreUnknownFields && !m.md.IsMapEntry() {
					if err := d.skipField(remaining); err != nil {
						return err
					}
				} else {
					return d.syntaxError(tok, "message %s has no field named %q", m.md.GetFullyQualifiedName(), tok.Raw)
				}
			}

		case tok.Kind == text.Number:
			if err := d.decodeUnknownField(m, tok, remaining); err != nil {
				return err
			}

		default:
			return d.syntaxError(tok, "unexpected %q", tok.Raw)
		}

		if fd != nil {
			if err := d.decodeField(m, fd, remaining); err != nil {
				return err
			}
		}
		if err := d.skipSeparator(); err != nil {
			return err
		}
	}
}

// findTextField finds a field by the name used in the text format. Groups
// may be named by their type name or their field name.
func findTextField(md *desc.MessageDescriptor, name string) *desc.FieldDescriptor {
	if fd := md.FindFieldByName(name); fd != nil {
		return fd
	}
	for _, fd := range md.GetFields() {
		if fd.GetType() == protoreflect.GroupKind && fd.GetMessageType().GetName() == name {
			return fd
		}
	}
	return nil
}

// readFieldSep reads the colon after a field name. It returns an error if
// the colon is missing unless the value is a message.
func (d *textDecoder) readFieldSep(isMessage bool) error {
	tok, err := d.peek()
	if err != nil {
		return err
	}
	if tok.IsPunct(':') {
		_, err := d.read()
		return err
	}
	if !isMessage {
		return d.syntaxError(tok, "expecting ':'; instead got %q", tok.Raw)
	}
	return nil
}

func (d *textDecoder) decodeField(m *Message, fd *desc.FieldDescriptor, remaining int) error {
	if err := d.readFieldSep(fd.GetMessageType() != nil); err != nil {
		return err
	}
	tok, err := d.peek()
	if err != nil {
		return err
	}
	if !tok.IsPunct('[') {
		return d.decodeAndStore(m, fd, remaining)
	}
	if !fd.IsRepeated() {
		return d.syntaxError(tok, "list of values given for non-repeated field %s", fd.GetName())
	}
	if _, err := d.read(); err != nil {
		return err
	}
	if tok, err = d.peek(); err != nil {
		return err
	}
	if tok.IsPunct(']') {
		_, err := d.read()
		return err
	}
	for {
		if err := d.decodeAndStore(m, fd, remaining); err != nil {
			return err
		}
		tok, err := d.read()
		if err != nil {
			return err
		}
		if tok.IsPunct(']') {
			return nil
		}
		if !tok.IsPunct(',') {
			return d.syntaxError(tok, "expecting ',' or ']'; instead got %q", tok.Raw)
		}
	}
}

func (d *textDecoder) decodeAndStore(m *Message, fd *desc.FieldDescriptor, remaining int) error {
	if fd.IsMap() {
		k, v, err := d.decodeMapEntry(fd, remaining)
		if err != nil {
			return err
		}
		return m.mergeFieldValue(fd, map[interface{}]interface{}{k: v})
	}
	v, err := d.decodeValue(fd, remaining)
	if err != nil {
		return err
	}
	if fd.IsRepeated() {
		return m.mergeFieldValue(fd, []interface{}{v})
	}
	return m.mergeFieldValue(fd, v)
}

func (d *textDecoder) decodeMapEntry(fd *desc.FieldDescriptor, remaining int) (interface{}, interface{}, error) {
	if remaining < 1 {
		return nil, nil, ErrMessageDepthLimit
	}
	term, err := d.openMessage()
	if err != nil {
		return nil, nil, err
	}
	entry := NewMessageWithExtensionRegistry(fd.GetMessageType(), d.er)
	if err := d.decodeFields(entry, remaining-1, term); err != nil {
		return nil, nil, err
	}
	k := fieldOrDefault(entry, 1)
	v, ok := entry.values[2]
	if !ok {
		if vmd := fd.GetMapValueType().GetMessageType(); vmd != nil {
			v = NewMessageWithExtensionRegistry(vmd, d.er)
		} else {
			v = fd.GetMapValueType().GetDefaultValue()
		}
	}
	return k, v, nil
}

func (d *textDecoder) decodeValue(fd *desc.FieldDescriptor, remaining int) (interface{}, error) {
	if md := fd.GetMessageType(); md != nil {
		if remaining < 1 {
			return nil, ErrMessageDepthLimit
		}
		term, err := d.openMessage()
		if err != nil {
			return nil, err
		}
		msg := NewMessageWithExtensionRegistry(md, d.er)
		if err := d.decodeFields(msg, remaining-1, term); err != nil {
			return nil, err
		}
		return msg, nil
	}

	tok, err := d.read()
	if err != nil {
		return nil, err
	}
	switch fd.GetType() {
	case protoreflect.EnumKind:
		ed := fd.GetEnumType()
		if tok.Kind == text.Ident {
			if vd := ed.FindValueByName(tok.Raw); vd != nil {
				return vd.GetNumber(), nil
			}
			return nil, d.syntaxError(tok, "enum %s has no value named %s", ed.GetFullyQualifiedName(), tok.Raw)
		}
		v, err := d.parseInt(tok, 32)
		return int32(v), err
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := d.parseInt(tok, 32)
		return int32(v), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return d.parseInt(tok, 64)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := d.parseUint(tok, 32)
		return uint32(v), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return d.parseUint(tok, 64)
	case protoreflect.FloatKind:
		v, err := d.parseFloat(tok, 32)
		return float32(v), err
	case protoreflect.DoubleKind:
		return d.parseFloat(tok, 64)
	case protoreflect.BoolKind:
		switch tok.Raw {
		case "true", "True", "t", "1":
			return true, nil
		case "false", "False", "f", "0":
			return false, nil
		}
		return nil, d.syntaxError(tok, "invalid value for bool field %s: %s", fd.GetName(), tok.Raw)
	case protoreflect.StringKind:
		if tok.Kind != text.String {
			return nil, d.syntaxError(tok, "expecting string for field %s; instead got %s", fd.GetName(), tok.Raw)
		}
		if !utf8.ValidString(tok.Value) {
			return nil, d.syntaxError(tok, "invalid UTF-8 in string field %s", fd.GetName())
		}
		return tok.Value, nil
	case protoreflect.BytesKind:
		if tok.Kind != text.String {
			return nil, d.syntaxError(tok, "expecting string for field %s; instead got %s", fd.GetName(), tok.Raw)
		}
		return []byte(tok.Value), nil
	}
	return nil, fmt.Errorf("unrecognized field type: %v", fd.GetType())
}

func (d *textDecoder) numberErr(tok text.Token, err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %s", ErrNumericOverflow, tok.Raw)
	}
	return d.syntaxError(tok, "invalid number %s", tok.Raw)
}

func (d *textDecoder) parseInt(tok text.Token, bitSize int) (int64, error) {
	if tok.Kind != text.Number {
		return 0, d.syntaxError(tok, "expecting number; instead got %s", tok.Raw)
	}
	v, err := strconv.ParseInt(tok.Raw, 0, bitSize)
	if err != nil {
		return 0, d.numberErr(tok, err)
	}
	return v, nil
}

func (d *textDecoder) parseUint(tok text.Token, bitSize int) (uint64, error) {
	if tok.Kind != text.Number {
		return 0, d.syntaxError(tok, "expecting unsigned number; instead got %s", tok.Raw)
	}
	if abs := strings.TrimPrefix(tok.Raw, "-"); abs != tok.Raw {
		// only zero may be negated
		v, err := strconv.ParseUint(abs, 0, bitSize)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, d.numberErr(tok, err)
		}
		if err != nil || v != 0 {
			return 0, fmt.Errorf("%w: %s", ErrNumericOverflow, tok.Raw)
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(tok.Raw, 0, bitSize)
	if err != nil {
		return 0, d.numberErr(tok, err)
	}
	return v, nil
}

func (d *textDecoder) parseFloat(tok text.Token, bitSize int) (float64, error) {
	sign := 1.0
	if tok.IsPunct('-') {
		// only "-inf" and the like are split into two tokens
		next, err := d.read()
		if err != nil {
			return 0, err
		}
		tok, sign = next, -1
	}
	switch tok.Kind {
	case text.Ident:
		switch strings.ToLower(tok.Raw) {
		case "inf", "infinity":
			return math.Inf(int(sign)), nil
		case "nan":
			return math.NaN(), nil
		}
	case text.Number:
		raw := tok.Raw
		if !strings.HasPrefix(strings.TrimPrefix(raw, "-"), "0x") {
			raw = strings.TrimRight(raw, "fF")
		}
		if v, err := strconv.ParseFloat(raw, bitSize); err == nil {
			return sign * v, nil
		} else if errors.Is(err, strconv.ErrRange) {
			return 0, d.numberErr(tok, err)
		}
		if v, err := strconv.ParseInt(raw, 0, 64); err == nil {
			return sign * float64(v), nil
		}
	}
	return 0, d.syntaxError(tok, "invalid floating point value %s", tok.Raw)
}

// decodeUnknownField decodes a field named by number into m's unknown
// fields, in the form written for unknown fields.
func (d *textDecoder) decodeUnknownField(m *Message, nameTok text.Token, remaining int) error {
	num, err := strconv.ParseInt(nameTok.Raw, 10, 32)
	if err != nil || num < int64(protowire.MinValidNumber) || num > int64(protowire.MaxValidNumber) {
		return d.syntaxError(nameTok, "invalid field number %s", nameTok.Raw)
	}
	raw, wt, err := d.readUnknownValue(protowire.Number(num), remaining)
	if err != nil {
		return err
	}
	m.addUnknownField(protowire.Number(num), wt, raw)
	return nil
}

func (d *textDecoder) readUnknownValue(num protowire.Number, remaining int) ([]byte, protowire.Type, error) {
	tok, err := d.peek()
	if err != nil {
		return nil, 0, err
	}
	if tok.IsPunct('{') || tok.IsPunct('<') {
		if remaining < 1 {
			return nil, 0, ErrMessageDepthLimit
		}
		term, _ := d.openMessage()
		raw := protowire.AppendTag(nil, num, protowire.StartGroupType)
		for {
			tok, err := d.read()
			if err != nil {
				return nil, 0, err
			}
			if tok.IsPunct(term) {
				break
			}
			if tok.Kind != text.Number {
				return nil, 0, d.syntaxError(tok, "expecting field number in unknown group; instead got %q", tok.Raw)
			}
			n, err := strconv.ParseInt(tok.Raw, 10, 32)
			if err != nil || n < int64(protowire.MinValidNumber) || n > int64(protowire.MaxValidNumber) {
				return nil, 0, d.syntaxError(tok, "invalid field number %s", tok.Raw)
			}
			field, _, err := d.readUnknownValue(protowire.Number(n), remaining-1)
			if err != nil {
				return nil, 0, err
			}
			raw = append(raw, field...)
			if err := d.skipSeparator(); err != nil {
				return nil, 0, err
			}
		}
		return protowire.AppendTag(raw, num, protowire.EndGroupType), protowire.StartGroupType, nil
	}

	if err := d.readFieldSep(false); err != nil {
		return nil, 0, err
	}
	if tok, err = d.read(); err != nil {
		return nil, 0, err
	}
	switch tok.Kind {
	case text.String:
		raw := protowire.AppendTag(nil, num, protowire.BytesType)
		return protowire.AppendBytes(raw, []byte(tok.Value)), protowire.BytesType, nil
	case text.Number:
		v, err := d.parseUint(tok, 64)
		if err != nil {
			return nil, 0, err
		}
		switch len(tok.Raw) {
		case 10:
			if strings.HasPrefix(tok.Raw, "0x") {
				raw := protowire.AppendTag(nil, num, protowire.Fixed32Type)
				return protowire.AppendFixed32(raw, uint32(v)), protowire.Fixed32Type, nil
			}
		case 18:
			if strings.HasPrefix(tok.Raw, "0x") {
				raw := protowire.AppendTag(nil, num, protowire.Fixed64Type)
				return protowire.AppendFixed64(raw, v), protowire.Fixed64Type, nil
			}
		}
		raw := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(raw, v), protowire.VarintType, nil
	}
	return nil, 0, d.syntaxError(tok, "invalid value for unknown field %d: %s", num, tok.Raw)
}

func (d *textDecoder) decodeExpandedAny(m *Message, nameTok text.Token, url string, remaining int) error {
	md, err := d.res.FindMessageByURL(url)
	if err != nil || md == nil {
		return unresolvedAny(url, err)
	}
	if err := d.readFieldSep(true); err != nil {
		return err
	}
	term, err := d.openMessage()
	if err != nil {
		return err
	}
	inner := NewMessageWithExtensionRegistry(md, d.er)
	if err := d.decodeFields(inner, remaining, term); err != nil {
		return err
	}
	b, err := inner.MarshalDeterministic()
	if err != nil {
		return err
	}
	if err := m.storeByNumber(1, url); err != nil {
		return err
	}
	return m.storeByNumber(2, b)
}

// skipField skips the value of a field whose name was not recognized.
func (d *textDecoder) skipField(remaining int) error {
	tok, err := d.peek()
	if err != nil {
		return err
	}
	if tok.IsPunct(':') {
		if _, err := d.read(); err != nil {
			return err
		}
		if tok, err = d.peek(); err != nil {
			return err
		}
	}
	if !tok.IsPunct('[') {
		return d.skipValue(remaining)
	}
	if _, err := d.read(); err != nil {
		return err
	}
	for {
		tok, err := d.peek()
		if err != nil {
			return err
		}
		if tok.IsPunct(']') {
			_, err := d.read()
			return err
		}
		if err := d.skipValue(remaining); err != nil {
			return err
		}
		if tok, err = d.peek(); err != nil {
			return err
		}
		if tok.IsPunct(',') {
			if _, err := d.read(); err != nil {
				return err
			}
		}
	}
}

func (d *textDecoder) skipValue(remaining int) error {
	tok, err := d.read()
	if err != nil {
		return err
	}
	switch {
	case tok.IsPunct('{'), tok.IsPunct('<'):
		if remaining < 1 {
			return ErrMessageDepthLimit
		}
		term := byte('}')
		if tok.IsPunct('<') {
			term = '>'
		}
		for {
			tok, err := d.read()
			if err != nil {
				return err
			}
			switch {
			case tok.IsPunct(term):
				return nil
			case tok.IsPunct('['):
				if _, err := d.readBracketedName(); err != nil {
					return err
				}
			case tok.Kind == text.Ident, tok.Kind == text.Number:
			default:
				return d.syntaxError(tok, "unexpected %q", tok.Raw)
			}
			if err := d.skipField(remaining - 1); err != nil {
				return err
			}
			if err := d.skipSeparator(); err != nil {
				return err
			}
		}
	case tok.IsPunct('-'):
		next, err := d.read()
		if err != nil {
			return err
		}
		if next.Kind != text.Ident {
			return d.syntaxError(next, "unexpected %q", next.Raw)
		}
		return nil
	case tok.Kind == text.Ident, tok.Kind == text.Number, tok.Kind == text.String:
		return nil
	}
	return d.syntaxError(tok, "unexpected %q", tok.Raw)
}
