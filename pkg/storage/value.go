package storage

import (
	"bytes"
	"fmt"
)

// ValueKind tags the variant held by a PropertyValue.
type ValueKind uint8

const (
	ValueInt ValueKind = iota + 1
	ValueFloat
	ValueBool
	ValueString
	ValueBytes
	ValueIntArray
	ValueFloatArray
	ValueStringArray
	ValueBoolArray
)

func (k ValueKind) String() string {
	switch k {
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueBytes:
		return "bytes"
	case ValueIntArray:
		return "int[]"
	case ValueFloatArray:
		return "float[]"
	case ValueStringArray:
		return "string[]"
	case ValueBoolArray:
		return "bool[]"
	default:
		return "unknown"
	}
}

// PropertyValue is the tagged union stored for a property. Only the field
// selected by Kind is meaningful. Whether the serialized form ends up
// inline or in an overflow chain is a storage detail; reads always
// reconstruct the same logical value.
type PropertyValue struct {
	Kind ValueKind `msgpack:"k"`

	Int     int64     `msgpack:"i,omitempty"`
	Float   float64   `msgpack:"f,omitempty"`
	Bool    bool      `msgpack:"b,omitempty"`
	Str     string    `msgpack:"s,omitempty"`
	Bytes   []byte    `msgpack:"y,omitempty"`
	Ints    []int64   `msgpack:"is,omitempty"`
	Floats  []float64 `msgpack:"fs,omitempty"`
	Strings []string  `msgpack:"ss,omitempty"`
	Bools   []bool    `msgpack:"bs,omitempty"`
}

func IntValue(v int64) PropertyValue       { return PropertyValue{Kind: ValueInt, Int: v} }
func FloatValue(v float64) PropertyValue   { return PropertyValue{Kind: ValueFloat, Float: v} }
func BoolValue(v bool) PropertyValue       { return PropertyValue{Kind: ValueBool, Bool: v} }
func StringValue(v string) PropertyValue   { return PropertyValue{Kind: ValueString, Str: v} }
func BytesValue(v []byte) PropertyValue    { return PropertyValue{Kind: ValueBytes, Bytes: v} }
func IntArray(v []int64) PropertyValue     { return PropertyValue{Kind: ValueIntArray, Ints: v} }
func FloatArray(v []float64) PropertyValue { return PropertyValue{Kind: ValueFloatArray, Floats: v} }
func StringArray(v []string) PropertyValue {
	return PropertyValue{Kind: ValueStringArray, Strings: v}
}
func BoolArray(v []bool) PropertyValue { return PropertyValue{Kind: ValueBoolArray, Bools: v} }

// Any unwraps the variant into a plain Go value, mainly for callers that
// hand property maps to dynamically typed consumers.
func (v PropertyValue) Any() any {
	switch v.Kind {
	case ValueInt:
		return v.Int
	case ValueFloat:
		return v.Float
	case ValueBool:
		return v.Bool
	case ValueString:
		return v.Str
	case ValueBytes:
		return v.Bytes
	case ValueIntArray:
		return v.Ints
	case ValueFloatArray:
		return v.Floats
	case ValueStringArray:
		return v.Strings
	case ValueBoolArray:
		return v.Bools
	default:
		return nil
	}
}

// Equal compares kind and payload. Values of different kinds are never
// equal, even when numerically equivalent (int 1337 != float 1337.0).
func (v PropertyValue) Equal(o PropertyValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueInt:
		return v.Int == o.Int
	case ValueFloat:
		return v.Float == o.Float
	case ValueBool:
		return v.Bool == o.Bool
	case ValueString:
		return v.Str == o.Str
	case ValueBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case ValueIntArray:
		if len(v.Ints) != len(o.Ints) {
			return false
		}
		for i := range v.Ints {
			if v.Ints[i] != o.Ints[i] {
				return false
			}
		}
		return true
	case ValueFloatArray:
		if len(v.Floats) != len(o.Floats) {
			return false
		}
		for i := range v.Floats {
			if v.Floats[i] != o.Floats[i] {
				return false
			}
		}
		return true
	case ValueStringArray:
		if len(v.Strings) != len(o.Strings) {
			return false
		}
		for i := range v.Strings {
			if v.Strings[i] != o.Strings[i] {
				return false
			}
		}
		return true
	case ValueBoolArray:
		if len(v.Bools) != len(o.Bools) {
			return false
		}
		for i := range v.Bools {
			if v.Bools[i] != o.Bools[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v PropertyValue) String() string {
	return fmt.Sprintf("%s(%v)", v.Kind, v.Any())
}
