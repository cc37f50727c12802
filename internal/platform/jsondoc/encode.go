package jsondoc

import (
	"bytes"

	"github.com/go-json-experiment/json/jsontext"
)

// MarshalJSON writes v back out with object members in their original
// order. Undefined encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := v.encode(enc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON lets Value sit inside structs decoded by other JSON packages.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) encode(enc *jsontext.Encoder) error {
	switch v.kind {
	case Bool:
		return enc.WriteToken(jsontext.Bool(v.b))
	case Number:
		return enc.WriteToken(jsontext.Float(v.n))
	case String:
		return enc.WriteToken(jsontext.String(v.s))
	case Array:
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.encode(enc); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case Object:
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		var err error
		v.obj.Range(func(k string, member Value) bool {
			if err = enc.WriteToken(jsontext.String(k)); err != nil {
				return false
			}
			err = member.encode(enc)
			return err == nil
		})
		if err != nil {
			return err
		}
		return enc.WriteToken(jsontext.EndObject)
	default:
		return enc.WriteToken(jsontext.Null)
	}
}
