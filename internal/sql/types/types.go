package types

import (
	"fmt"
	"time"
)

// Kind identifies the scalar type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindTimestamp
)

// Name returns the SQL-ish name of the kind.
func (k Kind) Name() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE"
	case KindText:
		return "TEXT"
	case KindBool:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// Value represents a scalar SQL value that can be NULL.
type Value struct {
	Data interface{}
	Null bool
}

// NewIntegerValue creates an integer value.
func NewIntegerValue(v int64) Value {
	return Value{Data: v}
}

// NewFloatValue creates a floating point value.
func NewFloatValue(v float64) Value {
	return Value{Data: v}
}

// NewTextValue creates a text value.
func NewTextValue(v string) Value {
	return Value{Data: v}
}

// NewBooleanValue creates a boolean value.
func NewBooleanValue(v bool) Value {
	return Value{Data: v}
}

// NewTimestampValue creates a timestamp value.
func NewTimestampValue(v time.Time) Value {
	return Value{Data: v}
}

// NewNullValue creates a null value.
func NewNullValue() Value {
	return Value{Null: true}
}

// IsNull returns true if the value is NULL.
func (v Value) IsNull() bool {
	return v.Null
}

// Kind returns the kind of the value based on its underlying data.
func (v Value) Kind() Kind {
	if v.Null {
		return KindNull
	}
	switch v.Data.(type) {
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindText
	case bool:
		return KindBool
	case time.Time:
		return KindTimestamp
	default:
		return KindNull
	}
}

// String returns a display representation of the value.
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	if t, ok := v.Data.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v.Data)
}

// AsInt returns the value as an int64.
func (v Value) AsInt() (int64, error) {
	if v.Null {
		return 0, fmt.Errorf("cannot convert NULL to int")
	}
	switch val := v.Data.(type) {
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v.Data)
	}
}

// AsFloat returns the value as a float64, coercing integers.
func (v Value) AsFloat() (float64, error) {
	if v.Null {
		return 0, fmt.Errorf("cannot convert NULL to float")
	}
	switch val := v.Data.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v.Data)
	}
}

// AsString returns the value as a string.
func (v Value) AsString() (string, error) {
	if v.Null {
		return "", fmt.Errorf("cannot convert NULL to string")
	}
	if s, ok := v.Data.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v.Data)
}

// AsBool returns the value as a boolean.
func (v Value) AsBool() (bool, error) {
	if v.Null {
		return false, fmt.Errorf("cannot convert NULL to bool")
	}
	if b, ok := v.Data.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("cannot convert %T to bool", v.Data)
}

// AsTimestamp returns the value as a time.Time.
func (v Value) AsTimestamp() (time.Time, error) {
	if v.Null {
		return time.Time{}, fmt.Errorf("cannot convert NULL to timestamp")
	}
	if t, ok := v.Data.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", v.Data)
}

// Equal reports whether two values compare equal. Incomparable values are
// never equal; NULL equals NULL for grouping purposes.
func (v Value) Equal(other Value) bool {
	cmp, err := Compare(v, other)
	return err == nil && cmp == 0
}
