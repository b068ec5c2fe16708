// Package source defines the iteration contract shared by every legacy
// system adapter.
package source

import (
	"context"
	"iter"
	"sort"
)

// Record is one logical unit of legacy content keyed by field name. Values
// are scalars, []string, Record or []Record.
type Record map[string]interface{}

// Window bounds one Init. IDs, when set, take precedence over Limit and
// Offset. A zero Limit means no upper bound.
type Window struct {
	IDs    []string
	Limit  int
	Offset int
}

// End is the exclusive upper bound of the window, or -1 when unbounded.
func (w Window) End() int {
	if w.Limit <= 0 {
		return -1
	}
	return w.Offset + w.Limit
}

// Source yields the records of one migration type. Init does all of the
// fetching; the iteration methods only walk what it materialized.
type Source interface {
	Init(ctx context.Context, w Window) (int, error)
	Current() Record
	Next()
	Rewind()
	Valid() bool
	Count() int
	All() iter.Seq2[int, Record]
	Cleanup()
}

// Set implements the iteration half of Source over materialized records.
type Set struct {
	records []Record
	pos     int
}

// Load replaces the records and rewinds.
func (s *Set) Load(records []Record) {
	s.records = records
	s.pos = 0
}

// Append adds one record at the end.
func (s *Set) Append(r Record) {
	s.records = append(s.records, r)
}

func (s *Set) Current() Record {
	if !s.Valid() {
		return nil
	}
	return s.records[s.pos]
}

func (s *Set) Next() {
	if s.pos < len(s.records) {
		s.pos++
	}
}

func (s *Set) Rewind() { s.pos = 0 }

func (s *Set) Valid() bool { return s.pos < len(s.records) }

func (s *Set) Count() int { return len(s.records) }

// All walks every record from the start without moving the cursor.
func (s *Set) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, r := range s.records {
			if !yield(i, r) {
				return
			}
		}
	}
}

func (s *Set) Cleanup() {
	s.records = nil
	s.pos = 0
}

// Keys returns field of every record rendered as a string, skipping records
// without it.
func (s *Set) Keys(field string) []string {
	keys := make([]string, 0, len(s.records))
	for _, r := range s.records {
		if k, ok := r.Key(field); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Key renders field as a string key.
func (r Record) Key(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	switch k := v.(type) {
	case string:
		return k, k != ""
	case []byte:
		return string(k), len(k) > 0
	default:
		return toString(k), true
	}
}

// Fields lists the field names of r in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
