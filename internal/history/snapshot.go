package history

import (
	"reflect"
	"sort"
)

// Snapshot is one entity state as field name → serializable value. Render
// order is never taken from the map; it always comes from the registered
// field declaration order of the entity type.
type Snapshot map[string]any

// ChangedFields compares two snapshots and returns the names of fields whose
// values differ, sorted for determinism. Fields that do not appear in both
// snapshots are disregarded, so renamed or dropped fields never show up as
// changed.
func ChangedFields(before, after Snapshot) []string {
	if before == nil || after == nil {
		return nil
	}
	var fields []string
	for name, afterValue := range after {
		if beforeValue, ok := before[name]; ok && !valueEqual(beforeValue, afterValue) {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// Restrict projects a snapshot down to the listed fields, dropping names the
// snapshot does not contain.
func Restrict(snap Snapshot, fields []string) Snapshot {
	if snap == nil {
		return nil
	}
	result := make(Snapshot, len(fields))
	for _, name := range fields {
		if value, ok := snap[name]; ok {
			result[name] = value
		}
	}
	return result
}

// Equal reports whether two snapshots hold the same fields with equal values.
// A nil snapshot only equals another nil snapshot.
func Equal(a, b Snapshot) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

// EqualRelated compares two child-snapshot sequences element-wise.
func EqualRelated(a, b []Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// valueEqual compares field values, tolerating the numeric widening a JSON
// round trip introduces (an int64 written to storage comes back float64).
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// childID extracts a child snapshot's identifier as int64, returning 0 when
// the id field is absent or unset (a not-yet-persisted child).
func childID(snap Snapshot, idField string) int64 {
	value, ok := snap[idField]
	if !ok || value == nil {
		return 0
	}
	if f, ok := asFloat(value); ok {
		return int64(f)
	}
	return 0
}
