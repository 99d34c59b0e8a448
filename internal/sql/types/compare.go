package types

import (
	"strings"
	"time"

	"github.com/calyxdb/calyx/internal/errors"
)

// Compare compares two values, returning -1, 0, or 1. NULL sorts before any
// non-NULL value and two NULLs compare equal (grouping semantics; join
// operators exclude NULL keys before comparing). Integers and floats are
// coerced to a common numeric domain. Values that remain incomparable after
// coercion yield a datatype mismatch error.
func Compare(a, b Value) (int, error) {
	if a.Null && b.Null {
		return 0, nil
	}
	if a.Null {
		return -1, nil
	}
	if b.Null {
		return 1, nil
	}

	switch av := a.Data.(type) {
	case int64:
		switch bv := b.Data.(type) {
		case int64:
			return compareOrdered(av, bv), nil
		case float64:
			return compareOrdered(float64(av), bv), nil
		}
	case float64:
		switch bv := b.Data.(type) {
		case float64:
			return compareOrdered(av, bv), nil
		case int64:
			return compareOrdered(av, float64(bv)), nil
		}
	case string:
		if bv, ok := b.Data.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.Data.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if bv, ok := b.Data.(time.Time); ok {
			return av.Compare(bv), nil
		}
	}

	return 0, errors.TypeMismatchErrorf("cannot compare %s with %s",
		a.Kind().Name(), b.Kind().Name())
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
