package filter

import "reflect"

// equals is type-sensitive value equality with one concession: numeric
// values compare numerically regardless of their Go representation, since
// JSON decoding yields float64 while in-process callers pass int. A string
// "1" never equals the number 1.
func equals(a, b interface{}) bool {
	na, aNum := asFloat(a)
	nb, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && na == nb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values: -1, 0, or +1. The second return is false when
// the operands have no defined ordering (mixed types, or types that do not
// order at all), in which case the predicate is a non-match.
func compare(a, b interface{}) (int, bool) {
	na, aNum := asFloat(a)
	nb, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	}

	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

// asFloat normalizes the numeric types that appear in decoded JSON and in
// hand-built documents.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
