package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueText
	ValueNumber
	ValueList
)

// Value is the operand of a selector or condition: text, number or a list of values.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	List   []Value
}

// TextValue builds a text operand.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// NumberValue builds a numeric operand.
func NumberValue(f float64) Value { return Value{Kind: ValueNumber, Number: f} }

// ListValue builds a list operand.
func ListValue(items ...Value) Value { return Value{Kind: ValueList, List: items} }

// IsZero reports whether no operand was given.
func (v Value) IsZero() bool { return v.Kind == ValueNone }

func (v Value) String() string {
	switch v.Kind {
	case ValueText:
		return v.Text
	case ValueNumber:
		return fmt.Sprintf("%g", v.Number)
	case ValueList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "<none>"
	}
}

// MarshalJSON writes the bare JSON form of the variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueText:
		return json.Marshal(v.Text)
	case ValueNumber:
		return json.Marshal(v.Number)
	case ValueList:
		items := v.List
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts strings, numbers, null and arrays of those.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return TextValue(typed), nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", typed, err)
		}
		return NumberValue(f), nil
	case []any:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			parsed, err := valueFromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return Value{Kind: ValueList, List: items}, nil
	default:
		return Value{}, fmt.Errorf("value: unsupported operand type %T", raw)
	}
}
