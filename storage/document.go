package storage

// Document is a single stored record.
//
// Rev implements optimistic concurrency: it starts at 1 on create and
// increments on every successful replace. Writers present the revision
// they read; a mismatch fails the write with ErrConflict.
type Document struct {
	ID   string         `json:"id"`
	Rev  uint64         `json:"rev"`
	Data map[string]any `json:"data"`
}

// NewDocument creates a fresh, unpersisted document (Rev 0).
func NewDocument(id string, data map[string]any) *Document {
	return &Document{ID: id, Data: data}
}

// GetVersion returns the revision counter.
func (d *Document) GetVersion() uint64 { return d.Rev }

// SetVersion sets the revision counter.
func (d *Document) SetVersion(v uint64) { d.Rev = v }

// Clone returns a deep copy of the document.
// Stores clone on ingest and egress so callers can never mutate
// stored state through retained references.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		ID:   d.ID,
		Rev:  d.Rev,
		Data: cloneMap(d.Data),
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		// Scalars (and anything else) are copied by value.
		return v
	}
}
