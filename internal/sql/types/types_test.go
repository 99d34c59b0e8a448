package types

import (
	"bytes"
	"testing"
	"time"

	"github.com/calyxdb/calyx/internal/errors"
)

func TestCompareNumericCoercion(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int eq int", NewIntegerValue(5), NewIntegerValue(5), 0},
		{"int lt int", NewIntegerValue(3), NewIntegerValue(5), -1},
		{"int eq float", NewIntegerValue(1), NewFloatValue(1.0), 0},
		{"float lt int", NewFloatValue(0.5), NewIntegerValue(1), -1},
		{"text order", NewTextValue("apple"), NewTextValue("banana"), -1},
		{"bool order", NewBooleanValue(false), NewBooleanValue(true), -1},
		{"null eq null", NewNullValue(), NewNullValue(), 0},
		{"null first", NewNullValue(), NewIntegerValue(0), -1},
		{"null first reversed", NewIntegerValue(0), NewNullValue(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if err != nil {
				t.Fatalf("compare failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompareTimestamps(t *testing.T) {
	early := NewTimestampValue(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewTimestampValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cmp, err := Compare(early, late)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if cmp != -1 {
		t.Errorf("expected -1, got %d", cmp)
	}
}

func TestCompareIncomparable(t *testing.T) {
	_, err := Compare(NewTextValue("a"), NewIntegerValue(1))
	if !errors.IsTypeMismatch(err) {
		t.Fatalf("expected type mismatch error, got %v", err)
	}
	_, err = Compare(NewBooleanValue(true), NewFloatValue(1.0))
	if !errors.IsTypeMismatch(err) {
		t.Fatalf("expected type mismatch error, got %v", err)
	}
}

func TestEncodeKeyCanonicalNumerics(t *testing.T) {
	// An integral float must encode identically to the equal integer so
	// hashing and grouping agree with Compare.
	intKey := EncodeKey(NewIntegerValue(7))
	floatKey := EncodeKey(NewFloatValue(7.0))
	if !bytes.Equal(intKey, floatKey) {
		t.Errorf("integer 7 and float 7.0 encode differently: %x vs %x", intKey, floatKey)
	}

	fractional := EncodeKey(NewFloatValue(7.5))
	if bytes.Equal(intKey, fractional) {
		t.Error("7 and 7.5 must not encode identically")
	}
}

func TestEncodeKeyDistinguishesValues(t *testing.T) {
	keys := map[string]Value{}
	values := []Value{
		NewNullValue(),
		NewIntegerValue(0),
		NewIntegerValue(1),
		NewFloatValue(0.5),
		NewTextValue(""),
		NewTextValue("a"),
		NewBooleanValue(false),
		NewBooleanValue(true),
		NewTimestampValue(time.Unix(0, 12345).UTC()),
	}
	for _, v := range values {
		key := string(EncodeKey(v))
		if prev, dup := keys[key]; dup {
			t.Errorf("values %v and %v share the key %x", prev, v, key)
		}
		keys[key] = v
	}
}

func TestEncodeKeyMultiColumn(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide: text encoding is
	// length-prefixed.
	a := EncodeKey(NewTextValue("ab"), NewTextValue("c"))
	b := EncodeKey(NewTextValue("a"), NewTextValue("bc"))
	if bytes.Equal(a, b) {
		t.Error("multi-column keys must not collide across column boundaries")
	}
}

func TestValueAccessors(t *testing.T) {
	if v, err := NewIntegerValue(9).AsInt(); err != nil || v != 9 {
		t.Errorf("AsInt: got %d, %v", v, err)
	}
	if v, err := NewFloatValue(2.5).AsFloat(); err != nil || v != 2.5 {
		t.Errorf("AsFloat: got %f, %v", v, err)
	}
	if v, err := NewIntegerValue(9).AsFloat(); err != nil || v != 9.0 {
		t.Errorf("AsFloat coercion: got %f, %v", v, err)
	}
	if _, err := NewNullValue().AsInt(); err == nil {
		t.Error("AsInt on NULL should fail")
	}
	if !NewNullValue().IsNull() {
		t.Error("NewNullValue must be NULL")
	}
	if NewIntegerValue(1).Kind() != KindInt {
		t.Error("unexpected kind for integer")
	}
}

func TestValueEqual(t *testing.T) {
	if !NewIntegerValue(3).Equal(NewFloatValue(3.0)) {
		t.Error("3 should equal 3.0")
	}
	if NewTextValue("x").Equal(NewIntegerValue(1)) {
		t.Error("incomparable values must not be equal")
	}
	if !NewNullValue().Equal(NewNullValue()) {
		t.Error("NULL groups with NULL")
	}
}
