package memory

import (
	"strings"

	"fintrack/internal/storage"
)

func matches(r storage.Row, where []storage.Cond) bool {
	for _, c := range where {
		v := r[c.Field]
		switch c.Op {
		case storage.Between:
			if v == nil || compare(v, c.Value) < 0 || compare(v, c.Upper) > 0 {
				return false
			}
		default:
			if !equal(v, c.Value) {
				return false
			}
		}
	}
	return true
}

func equal(a, b any) bool {
	a, b = canonical(a), canonical(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return compare(a, b) == 0
}

// compare orders nil first, then numbers, then strings.
func compare(a, b any) int {
	a, b = canonical(a), canonical(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, aNum := number(a)
	fb, bNum := number(b)
	switch {
	case aNum && bNum:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

// canonical reduces Go values to the persisted types: string, float64, int64, nil.
func canonical(v any) any {
	switch x := v.(type) {
	case bool:
		return storage.Bool(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func number(v any) (float64, bool) {
	switch x := canonical(v).(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
