package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParamKind discriminates the value held by a ParamValue.
type ParamKind string

const (
	ParamKindString ParamKind = "string"
	ParamKindNumber ParamKind = "number"
	ParamKindBool   ParamKind = "bool"
)

// ParamValue is a tagged union for model parameters. The set of parameters
// varies per model type, so the mapping stays open while each value stays
// typed.
type ParamValue struct {
	Kind ParamKind
	Str  string
	Num  float64
	Bool bool
}

// StringParam creates a string-valued parameter.
func StringParam(s string) ParamValue {
	return ParamValue{Kind: ParamKindString, Str: s}
}

// NumberParam creates a numeric parameter.
func NumberParam(f float64) ParamValue {
	return ParamValue{Kind: ParamKindNumber, Num: f}
}

// BoolParam creates a boolean parameter.
func BoolParam(b bool) ParamValue {
	return ParamValue{Kind: ParamKindBool, Bool: b}
}

// String renders the parameter value for display.
func (p ParamValue) String() string {
	switch p.Kind {
	case ParamKindNumber:
		return strconv.FormatFloat(p.Num, 'g', -1, 64)
	case ParamKindBool:
		return strconv.FormatBool(p.Bool)
	default:
		return p.Str
	}
}

// MarshalJSON encodes the parameter as its native JSON value.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ParamKindNumber:
		return json.Marshal(p.Num)
	case ParamKindBool:
		return json.Marshal(p.Bool)
	case ParamKindString:
		return json.Marshal(p.Str)
	default:
		return nil, fmt.Errorf("unknown param kind: %q", p.Kind)
	}
}

// UnmarshalJSON decodes a native JSON string, number or bool.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*p = StringParam(v)
	case bool:
		*p = BoolParam(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return err
		}
		*p = NumberParam(f)
	default:
		return fmt.Errorf("unsupported param value: %s", string(data))
	}
	return nil
}
