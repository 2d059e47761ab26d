package storage

import "reflect"

// Query selects documents by field equality.
type Query struct {
	// Selector maps field names to required values. An empty selector
	// matches every document.
	Selector map[string]any

	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// Matches reports whether doc satisfies every selector clause.
func (q Query) Matches(doc *Document) bool {
	if doc == nil {
		return false
	}
	for field, want := range q.Selector {
		got, ok := doc.Data[field]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual compares two values, treating all numeric types as one.
// Documents round-tripped through JSON carry float64 where the writer
// held int; selectors must still match.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	// DeepEqual keeps selectors on composite values from panicking.
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
