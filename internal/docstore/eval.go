package docstore

import (
	"encoding/json"
	"sort"
)

// normalize round-trips a value through encoding/json so in-process backends
// hold exactly what a JSON-backed store would hand back.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeDoc(doc Document) (Document, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	out, _ := v.(map[string]any)
	if out == nil {
		out = Document{}
	}
	return out, nil
}

func copyDoc(doc Document) Document {
	// Stored documents are already normalized, so a JSON copy cannot fail.
	out, _ := normalizeDoc(doc)
	return out
}

// compare orders two normalized JSON values. ok is false when the values are
// of different kinds and cannot be ordered.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	}

	// Objects and arrays only support equality.
	ad, _ := json.Marshal(a)
	bd, _ := json.Marshal(b)
	if string(ad) == string(bd) {
		return 0, true
	}
	return 0, false
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		field, ok := doc[f.Field]
		if !ok {
			return false
		}
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		c, comparable := compare(field, want)
		switch f.Op {
		case OpEq:
			if !comparable || c != 0 {
				return false
			}
		case OpNe:
			if comparable && c == 0 {
				return false
			}
		case OpLt:
			if !comparable || c >= 0 {
				return false
			}
		case OpLte:
			if !comparable || c > 0 {
				return false
			}
		case OpGt:
			if !comparable || c <= 0 {
				return false
			}
		case OpGte:
			if !comparable || c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// apply runs q over an unordered set of documents.
func apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d, q.Filters) {
			out = append(out, d)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, aok := out[i][q.OrderBy]
			b, bok := out[j][q.OrderBy]
			if !aok || !bok {
				return aok && !bok
			}
			c, ok := compare(a, b)
			if !ok {
				return false
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
