package jsondoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/labdesk/labdesk/internal/platform/ordered"
)

// ErrTrailingData is returned when input holds more than one JSON value.
var ErrTrailingData = errors.New("jsondoc: unexpected data after top-level value")

// Decode reads exactly one JSON value from r. Object members keep the order
// they were written in; a repeated name keeps its first position and takes
// the last value.
func Decode(r io.Reader) (Value, error) {
	dec := jsontext.NewDecoder(r,
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
	)
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.ReadToken(); !errors.Is(err, io.EOF) {
		if err != nil {
			return Value{}, fmt.Errorf("decode json: %w", err)
		}
		return Value{}, ErrTrailingData
	}
	return v, nil
}

// Parse decodes a JSON document held in memory.
func Parse(data []byte) (Value, error) {
	return Decode(bytes.NewReader(data))
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func decodeValue(dec *jsontext.Decoder) (Value, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return Value{}, err
	}

	switch tok.Kind() {
	case 'n':
		return NullValue(), nil
	case 't', 'f':
		return BoolValue(tok.Bool()), nil
	case '"':
		return StringValue(tok.String()), nil
	case '0':
		return NumberValue(tok.Float()), nil
	case '[':
		var elems []Value
		for dec.PeekKind() != ']' {
			e, err := decodeValue(dec)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		if _, err := dec.ReadToken(); err != nil {
			return Value{}, err
		}
		if elems == nil {
			elems = []Value{}
		}
		return ArrayValue(elems...), nil
	case '{':
		fields := ordered.New[string, Value](4)
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return Value{}, err
			}
			// The token is voided by the next decoder call.
			key := name.String()
			member, err := decodeValue(dec)
			if err != nil {
				return Value{}, err
			}
			fields.Set(key, member)
		}
		if _, err := dec.ReadToken(); err != nil {
			return Value{}, err
		}
		return ObjectValue(fields), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok.Kind())
	}
}
