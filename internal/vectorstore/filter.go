package vectorstore

import (
	"fmt"

	"github.com/aqua777/scico/internal/bibitem"
)

// Operator is a metadata filter comparison, rehomed from the teacher's
// schema.FilterOperator (schema/ was deleted — see DESIGN.md — but its
// EQ/NEQ/GT/LT/IN/NIN vocabulary is kept verbatim here, scoped to
// Chunk's actual fields instead of a generic polymorphic node).
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpIn  Operator = "in"
	OpNin Operator = "nin"
)

// Condition is a single key/operator/value metadata predicate.
// Key names the Chunk field or Levels/Extra entry to compare:
// "item_id", "storage_key", "citation_key", "table", a "level1".."level7"
// name, or any Extra key.
type Condition struct {
	Key      string
	Operator Operator
	Value    string
}

// Filter is a conjunction (AND) of Conditions, per spec.md §4.D's
// "equality on keys" metadata predicate, generalized to the teacher's
// full operator set for filter_only and for the non-EQ fields
// search_filtered allows as a post-filter.
type Filter struct {
	Conditions []Condition
}

// NewFilter builds a Filter from the given conditions.
func NewFilter(conditions ...Condition) *Filter {
	return &Filter{Conditions: conditions}
}

// Match reports whether chunk satisfies every condition in f.
func (f *Filter) Match(c bibitem.Chunk) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Conditions {
		if !cond.match(fieldValue(c, cond.Key)) {
			return false
		}
	}
	return true
}

func (cond Condition) match(actual string) bool {
	switch cond.Operator {
	case OpEq:
		return actual == cond.Value
	case OpNeq:
		return actual != cond.Value
	case OpGt:
		return actual > cond.Value
	case OpLt:
		return actual < cond.Value
	case OpIn:
		for _, v := range splitCSV(cond.Value) {
			if actual == v {
				return true
			}
		}
		return false
	case OpNin:
		for _, v := range splitCSV(cond.Value) {
			if actual == v {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func fieldValue(c bibitem.Chunk, key string) string {
	switch key {
	case "item_id":
		return c.ItemID
	case "storage_key":
		return c.StorageKey
	case "citation_key":
		return c.CitationKey
	case "title":
		return c.Title
	case "date":
		return c.Date
	case "table":
		return fmt.Sprintf("%d", c.Table)
	}
	if v, ok := c.Levels[key]; ok {
		return v
	}
	return c.Extra[key]
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// splitFilter separates f's EQ conditions (pushed down to chromem-go's
// where clause, which only supports exact match) from everything else
// (evaluated as a post-filter over the already-ranked result).
func splitFilter(f *Filter) (where map[string]string, post *Filter) {
	if f == nil {
		return nil, nil
	}

	var rest []Condition
	for _, cond := range f.Conditions {
		if cond.Operator == OpEq && isPushableKey(cond.Key) {
			if where == nil {
				where = make(map[string]string)
			}
			where[cond.Key] = cond.Value
			continue
		}
		rest = append(rest, cond)
	}

	if len(rest) > 0 {
		post = &Filter{Conditions: rest}
	}
	return where, post
}

// isPushableKey reports whether key is one of the fields eqMetadata
// stamps onto chromem-go documents (the only ones chromem's where
// clause can see).
func isPushableKey(key string) bool {
	switch key {
	case "item_id", "storage_key", "citation_key":
		return true
	}
	return len(key) == 6 && key[:5] == "level"
}
