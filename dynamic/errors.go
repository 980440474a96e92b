package dynamic

import (
	"errors"

	"github.com/jhump/protoruntime/codec"
)

// Errors reported by decoders. Every decode error wraps exactly one of these,
// so callers can classify failures with errors.Is.
var (
	// ErrTruncated indicates binary input that ends in the middle of a field.
	ErrTruncated = codec.ErrTruncated
	// ErrMalformedWireData indicates binary input that is not valid: bad tags,
	// unbalanced groups, bad lengths or invalid UTF-8 in string fields.
	ErrMalformedWireData = codec.ErrMalformed
	// ErrMessageDepthLimit indicates input whose messages are nested more
	// deeply than the configured limit.
	ErrMessageDepthLimit = codec.ErrDepthLimit
	// ErrMalformedJSON indicates JSON input that is not valid for the message.
	ErrMalformedJSON = errors.New("proto: malformed JSON")
	// ErrMalformedText indicates text format input that is not valid for the
	// message.
	ErrMalformedText = errors.New("proto: malformed text format")
	// ErrNumericOverflow indicates a numeric value that does not fit in the
	// width of its field.
	ErrNumericOverflow = errors.New("proto: numeric value is out of range")
	// ErrUnresolvedAnyType indicates an Any message whose type URL could not
	// be resolved to a message type.
	ErrUnresolvedAnyType = errors.New("proto: unable to resolve Any type")
)

// Errors reported by the field accessors of Message.
var (
	ErrUnknownTagNumber   = errors.New("unknown tag number")
	ErrUnknownFieldName   = errors.New("unknown field name")
	ErrFieldIsNotMap      = errors.New("field is not a map type")
	ErrFieldIsNotRepeated = errors.New("field is not repeated")
	ErrIndexOutOfRange    = errors.New("index is out of range")
)
