package dynamic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jhump/protoruntime/internal/encoding/json"
)

// Well-known types with a special JSON representation.
const (
	anyName       = "google.protobuf.Any"
	timestampName = "google.protobuf.Timestamp"
	durationName  = "google.protobuf.Duration"
	structName    = "google.protobuf.Struct"
	valueName     = "google.protobuf.Value"
	listValueName = "google.protobuf.ListValue"
	nullValueName = "google.protobuf.NullValue"
	fieldMaskName = "google.protobuf.FieldMask"
)

var wrapperNames = map[string]bool{
	"google.protobuf.DoubleValue": true,
	"google.protobuf.FloatValue":  true,
	"google.protobuf.Int64Value":  true,
	"google.protobuf.UInt64Value": true,
	"google.protobuf.Int32Value":  true,
	"google.protobuf.UInt32Value": true,
	"google.protobuf.BoolValue":   true,
	"google.protobuf.StringValue": true,
	"google.protobuf.BytesValue":  true,
}

const (
	// 0001-01-01T00:00:00Z and 9999-12-31T23:59:59Z
	minTimestampSeconds = -62135596800
	maxTimestampSeconds = 253402300799
	// about 10,000 years
	maxDurationSeconds = 315576000000
)

// hasSpecialJSON returns true if messages of the named type are not written as
// JSON objects with one key per field. Inside an Any, the JSON for such a
// message is the value of a "value" key.
func hasSpecialJSON(name string) bool {
	switch name {
	case anyName, timestampName, durationName, structName, valueName, listValueName, fieldMaskName:
		return true
	}
	return wrapperNames[name]
}

func fieldOrDefault(m *Message, num int32) interface{} {
	if v, ok := m.values[num]; ok {
		return v
	}
	if fd := m.md.FindFieldByNumber(num); fd != nil {
		return fd.GetDefaultValue()
	}
	return nil
}

func (m *Message) storeByNumber(num int32, v interface{}) error {
	fd := m.md.FindFieldByNumber(num)
	if fd == nil {
		return fmt.Errorf("%s has no field %d", m.md.GetFullyQualifiedName(), num)
	}
	m.storeValue(fd, v)
	return nil
}

func unresolvedAny(url string, err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrUnresolvedAnyType, url)
	case errors.Is(err, ErrUnresolvedAnyType):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnresolvedAnyType, url, err)
	}
}

func (e *jsonEncoder) marshalWellKnownType(m *Message) (bool, error) {
	name := m.md.GetFullyQualifiedName()
	switch {
	case name == anyName:
		return true, e.marshalAny(m)
	case name == timestampName:
		s, err := formatTimestamp(m)
		if err != nil {
			return true, err
		}
		return true, e.writeString(s)
	case name == durationName:
		s, err := formatDuration(m)
		if err != nil {
			return true, err
		}
		return true, e.writeString(s)
	case name == structName:
		entries, _ := m.values[1].(map[interface{}]interface{})
		return true, e.marshalMap(m.md.FindFieldByNumber(1), entries)
	case name == valueName:
		return true, e.marshalStructValue(m)
	case name == listValueName:
		vals, _ := m.values[1].([]interface{})
		return true, e.marshalArray(m.md.FindFieldByNumber(1), vals)
	case name == fieldMaskName:
		paths, _ := m.values[1].([]interface{})
		converted := make([]string, len(paths))
		for i, p := range paths {
			var ok bool
			if converted[i], ok = snakeToCamel(p.(string)); !ok {
				return true, fmt.Errorf("field mask path %q cannot be represented in JSON", p)
			}
		}
		return true, e.writeString(strings.Join(converted, ","))
	case wrapperNames[name]:
		return true, e.marshalValue(m.md.FindFieldByNumber(1), fieldOrDefault(m, 1))
	}
	return false, nil
}

func (e *jsonEncoder) marshalAny(m *Message) error {
	typeURL, _ := fieldOrDefault(m, 1).(string)
	value, _ := fieldOrDefault(m, 2).([]byte)
	if typeURL == "" {
		if len(value) > 0 {
			return fmt.Errorf("%w: Any has a value but no type URL", ErrUnresolvedAnyType)
		}
		_, err := e.b.WriteString("{}")
		return err
	}
	md, err := e.res.FindMessageByURL(typeURL)
	if err != nil || md == nil {
		return unresolvedAny(typeURL, err)
	}
	inner := NewMessage(md)
	if err := inner.Unmarshal(value); err != nil {
		return fmt.Errorf("failed to unmarshal contents of Any for %s: %w", typeURL, err)
	}
	if !hasSpecialJSON(md.GetFullyQualifiedName()) {
		return e.marshalObject(inner, typeURL)
	}

	if err := e.b.WriteByte('{'); err != nil {
		return err
	}
	if err := e.b.start(); err != nil {
		return err
	}
	if err := e.writeName("@type"); err != nil {
		return err
	}
	if err := e.writeString(typeURL); err != nil {
		return err
	}
	if err := e.b.next(); err != nil {
		return err
	}
	if err := e.writeName("value"); err != nil {
		return err
	}
	if err := e.marshalMessage(inner); err != nil {
		return err
	}
	if err := e.b.end(); err != nil {
		return err
	}
	return e.b.WriteByte('}')
}

func (e *jsonEncoder) marshalStructValue(m *Message) error {
	for num := int32(1); num <= 6; num++ {
		v, ok := m.values[num]
		if !ok {
			continue
		}
		switch num {
		case 1:
			_, err := e.b.WriteString("null")
			return err
		case 2:
			f := v.(float64)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%s cannot hold %v", valueName, f)
			}
			_, err := e.b.Write(json.AppendFloat(nil, f, 64))
			return err
		case 3:
			return e.writeString(v.(string))
		case 4:
			_, err := e.b.WriteString(strconv.FormatBool(v.(bool)))
			return err
		default:
			return e.marshalMessage(v.(*Message))
		}
	}
	return fmt.Errorf("%s has no kind set", valueName)
}

func formatTimestamp(m *Message) (string, error) {
	secs, _ := fieldOrDefault(m, 1).(int64)
	nanos, _ := fieldOrDefault(m, 2).(int32)
	if secs < minTimestampSeconds || secs > maxTimestampSeconds {
		return "", fmt.Errorf("%s seconds out of range: %d", timestampName, secs)
	}
	if nanos < 0 || nanos >= 1e9 {
		return "", fmt.Errorf("%s nanos out of range: %d", timestampName, nanos)
	}
	// 0, 3, 6, or 9 fractional digits
	s := time.Unix(secs, int64(nanos)).UTC().Format("2006-01-02T15:04:05.000000000")
	s = strings.TrimSuffix(s, "000")
	s = strings.TrimSuffix(s, "000")
	s = strings.TrimSuffix(s, ".000")
	return s + "Z", nil
}

func formatDuration(m *Message) (string, error) {
	secs, _ := fieldOrDefault(m, 1).(int64)
	nanos, _ := fieldOrDefault(m, 2).(int32)
	if secs < -maxDurationSeconds || secs > maxDurationSeconds {
		return "", fmt.Errorf("%s seconds out of range: %d", durationName, secs)
	}
	if nanos <= -1e9 || nanos >= 1e9 || (secs > 0 && nanos < 0) || (secs < 0 && nanos > 0) {
		return "", fmt.Errorf("%s nanos out of range: %d", durationName, nanos)
	}
	sign := ""
	if secs < 0 || nanos < 0 {
		sign = "-"
		secs, nanos = -secs, -nanos
	}
	s := fmt.Sprintf("%s%d.%09d", sign, secs, nanos)
	s = strings.TrimSuffix(s, "000")
	s = strings.TrimSuffix(s, "000")
	s = strings.TrimSuffix(s, ".000")
	return s + "s", nil
}

func parseDuration(s string) (int64, int32, bool) {
	if !strings.HasSuffix(s, "s") {
		return 0, 0, false
	}
	s = s[:len(s)-1]
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !allDigits(whole) || (hasFrac && (!allDigits(frac) || len(frac) > 9)) {
		return 0, 0, false
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || secs > maxDurationSeconds {
		return 0, 0, false
	}
	var nanos int64
	if hasFrac {
		nanos, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 32)
	}
	if neg {
		secs, nanos = -secs, -nanos
	}
	return secs, int32(nanos), true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// snakeToCamel converts a field mask path to its JSON form. It fails if the
// path could not be converted back.
func snakeToCamel(s string) (string, bool) {
	var b strings.Builder
	upper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			if upper {
				return "", false
			}
			upper = true
		case c >= 'A' && c <= 'Z':
			return "", false
		case upper:
			if c < 'a' || c > 'z' {
				return "", false
			}
			b.WriteByte(c - 'a' + 'A')
			upper = false
		default:
			b.WriteByte(c)
		}
	}
	if upper {
		return "", false
	}
	return b.String(), true
}

func camelToSnake(s string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			return "", false
		case c >= 'A' && c <= 'Z':
			b.WriteByte('_')
			b.WriteByte(c - 'A' + 'a')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

func parseNonFinite(s string) float64 {
	switch s {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	return math.NaN()
}

func (d *jsonDecoder) unmarshalWellKnownType(m *Message, remaining int) (bool, error) {
	name := m.md.GetFullyQualifiedName()
	switch {
	case name == anyName:
		return true, d.unmarshalAny(m, remaining)

	case name == timestampName:
		tok, err := d.expect(json.String)
		if err != nil {
			return true, err
		}
		t, err := time.Parse(time.RFC3339Nano, tok.ParsedString())
		if err != nil || t.Unix() < minTimestampSeconds || t.Unix() > maxTimestampSeconds {
			return true, d.syntaxError(tok, "invalid %s value %s", timestampName, tok.RawString())
		}
		if err := m.storeByNumber(1, t.Unix()); err != nil {
			return true, err
		}
		return true, m.storeByNumber(2, int32(t.Nanosecond()))

	case name == durationName:
		tok, err := d.expect(json.String)
		if err != nil {
			return true, err
		}
		secs, nanos, ok := parseDuration(tok.ParsedString())
		if !ok {
			return true, d.syntaxError(tok, "invalid %s value %s", durationName, tok.RawString())
		}
		if err := m.storeByNumber(1, secs); err != nil {
			return true, err
		}
		return true, m.storeByNumber(2, nanos)

	case name == structName:
		fd := m.md.FindFieldByNumber(1)
		v, err := d.decodeMap(fd, remaining)
		if err != nil {
			return true, err
		}
		m.storeValue(fd, v)
		return true, nil

	case name == valueName:
		return true, d.unmarshalStructValue(m, remaining)

	case name == listValueName:
		fd := m.md.FindFieldByNumber(1)
		tok, err := d.peek()
		if err != nil {
			return true, err
		}
		if tok.Kind() != json.ArrayOpen {
			return true, d.syntaxError(tok, "expecting array for %s; instead got %s", listValueName, tok.RawString())
		}
		v, err := d.decodeField(fd, remaining)
		if err != nil {
			return true, err
		}
		m.storeValue(fd, v)
		return true, nil

	case name == fieldMaskName:
		tok, err := d.expect(json.String)
		if err != nil {
			return true, err
		}
		var paths []interface{}
		if s := tok.ParsedString(); s != "" {
			for _, p := range strings.Split(s, ",") {
				path, ok := camelToSnake(p)
				if !ok {
					return true, d.syntaxError(tok, "invalid %s path %q", fieldMaskName, p)
				}
				paths = append(paths, path)
			}
		}
		return true, m.storeByNumber(1, paths)

	case wrapperNames[name]:
		tok, err := d.peek()
		if err != nil {
			return true, err
		}
		if tok.Kind() == json.ObjectOpen {
			// wrappers may also be written as regular messages
			return true, d.decodeObject(m, remaining, false)
		}
		fd := m.md.FindFieldByNumber(1)
		v, err := d.decodeElement(fd, remaining)
		if err != nil {
			return true, err
		}
		m.storeValue(fd, v)
		return true, nil
	}
	return false, nil
}

func (d *jsonDecoder) unmarshalStructValue(m *Message, remaining int) error {
	tok, err := d.peek()
	if err != nil {
		return err
	}
	var num int32
	var v interface{}
	switch tok.Kind() {
	case json.Null:
		num, v = 1, int32(0)
	case json.Number:
		f, err := tok.Float(64)
		if err != nil {
			return d.wrapNumberErr(err)
		}
		num, v = 2, f
	case json.String:
		num, v = 3, tok.ParsedString()
	case json.Bool:
		num, v = 4, tok.Bool()
	case json.ObjectOpen, json.ArrayOpen:
		num = 5
		if tok.Kind() == json.ArrayOpen {
			num = 6
		}
		fd := m.md.FindFieldByNumber(num)
		msg, err := d.decodeElement(fd, remaining)
		if err != nil {
			return err
		}
		m.storeValue(fd, msg)
		return nil
	default:
		return d.syntaxError(tok, "unexpected %s", tok.RawString())
	}
	if _, err := d.read(); err != nil {
		return err
	}
	return m.storeByNumber(num, v)
}

func (d *jsonDecoder) unmarshalAny(m *Message, remaining int) error {
	typeURL, found, err := d.findAnyType(remaining)
	if err != nil {
		return err
	}
	if !found {
		// an Any with no type must be empty
		if _, err := d.expect(json.ObjectOpen); err != nil {
			return err
		}
		tok, err := d.read()
		if err != nil {
			return err
		}
		if tok.Kind() != json.ObjectClose {
			return d.syntaxError(tok, "%s is missing @type", anyName)
		}
		return nil
	}

	md, err := d.res.FindMessageByURL(typeURL)
	if err != nil || md == nil {
		return unresolvedAny(typeURL, err)
	}
	inner := NewMessageWithExtensionRegistry(md, d.er)
	if hasSpecialJSON(md.GetFullyQualifiedName()) {
		if err := d.decodeAnyValue(inner, remaining); err != nil {
			return err
		}
	} else if err := d.decodeObject(inner, remaining, true); err != nil {
		return err
	}

	b, err := inner.MarshalDeterministic()
	if err != nil {
		return err
	}
	if err := m.storeByNumber(1, typeURL); err != nil {
		return err
	}
	return m.storeByNumber(2, b)
}

// decodeAnyValue decodes an Any whose contents are in a "value" key.
func (d *jsonDecoder) decodeAnyValue(inner *Message, remaining int) error {
	if _, err := d.expect(json.ObjectOpen); err != nil {
		return err
	}
	haveValue := false
	for {
		tok, err := d.read()
		if err != nil {
			return err
		}
		if tok.Kind() == json.ObjectClose {
			break
		}
		switch tok.Name() {
		case "@type":
			if _, err := d.expect(json.String); err != nil {
				return err
			}
		case "value":
			if haveValue {
				return d.syntaxError(tok, "duplicate value in %s", anyName)
			}
			haveValue = true
			if err := d.decodeMessage(inner, remaining); err != nil {
				return err
			}
		default:
			return d.syntaxError(tok, "unexpected key %q in %s of %s", tok.Name(), anyName, inner.md.GetFullyQualifiedName())
		}
	}
	if !haveValue {
		return fmt.Errorf("%w: %s of %s is missing value", ErrMalformedJSON, anyName, inner.md.GetFullyQualifiedName())
	}
	return nil
}

// findAnyType looks ahead for the "@type" key of the object that is next in
// the input, without consuming any of it.
func (d *jsonDecoder) findAnyType(remaining int) (string, bool, error) {
	dec := d.dec.Clone()
	tok, err := dec.Read()
	if err != nil {
		return "", false, d.wrapErr(err)
	}
	if tok.Kind() != json.ObjectOpen {
		return "", false, d.syntaxError(tok, "expecting object for %s; instead got %s", anyName, tok.RawString())
	}
	for {
		tok, err := dec.Read()
		if err != nil {
			return "", false, d.wrapErr(err)
		}
		if tok.Kind() == json.ObjectClose {
			return "", false, nil
		}
		if tok.Name() == "@type" {
			tok, err := dec.Read()
			if err != nil {
				return "", false, d.wrapErr(err)
			}
			if tok.Kind() != json.String {
				return "", false, d.syntaxError(tok, "@type must be a string; instead got %s", tok.RawString())
			}
			return tok.ParsedString(), true, nil
		}
		if err := dec.Skip(remaining); err != nil {
			return "", false, d.wrapErr(err)
		}
	}
}
