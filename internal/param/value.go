package param

import (
	"strconv"
)

type ValueKind string

const (
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
	KindRef    ValueKind = "ref"
)

// Value is a single gene value. It is comparable so it can key sets.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Str   string    `json:"str,omitempty"`
}

func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// RefValue names a registered custom component.
func RefValue(name string) Value { return Value{Kind: KindRef, Str: name} }

func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		if v.Float == float64(int64(v.Float)) {
			return int64(v.Float), true
		}
	}
	return 0, false
}

func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	}
	return 0, false
}

// AsName returns the text of string and ref values.
func (v Value) AsName() (string, bool) {
	switch v.Kind {
	case KindString, KindRef:
		return v.Str, true
	}
	return "", false
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindRef:
		return "ref(" + v.Str + ")"
	default:
		return v.Str
	}
}
