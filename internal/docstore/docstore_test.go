package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]Document{
		"l1": {"id": "l1", "course_id": "c1", "order_index": 2, "title": "Second"},
		"l2": {"id": "l2", "course_id": "c1", "order_index": 1, "title": "First"},
		"l3": {"id": "l3", "course_id": "c2", "order_index": 1, "title": "Other"},
		"l4": {"id": "l4", "course_id": "c1", "title": "Unordered"},
	}
	for id, d := range docs {
		if err := s.Set(ctx, "lessons", id, d); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func ids(docs []Document) string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		id, _ := d["id"].(string)
		out = append(out, id)
	}
	return strings.Join(out, ",")
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, "lessons", "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("get normalizes numbers", func(t *testing.T) {
		doc, err := s.Get(ctx, "lessons", "l1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc["order_index"] != float64(2) {
			t.Errorf("Expected order_index 2 as float64, got %#v", doc["order_index"])
		}
	})

	t.Run("query filter and order", func(t *testing.T) {
		docs, err := s.Query(ctx, "lessons", Query{
			Filters: []Filter{Where("course_id", OpEq, "c1")},
			OrderBy: "order_index",
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got := ids(docs); got != "l2,l1,l4" {
			t.Errorf("Expected %q, got %q", "l2,l1,l4", got)
		}
	})

	t.Run("query range descending with limit", func(t *testing.T) {
		docs, err := s.Query(ctx, "lessons", Query{
			Filters: []Filter{Where("order_index", OpGte, 1)},
			OrderBy: "order_index",
			Desc:    true,
			Limit:   1,
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got := ids(docs); got != "l1" {
			t.Errorf("Expected %q, got %q", "l1", got)
		}
	})

	t.Run("update merges", func(t *testing.T) {
		if err := s.Update(ctx, "lessons", "l3", Document{"title": "Renamed"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		doc, _ := s.Get(ctx, "lessons", "l3")
		if doc["title"] != "Renamed" || doc["course_id"] != "c2" {
			t.Errorf("unexpected merged document: %#v", doc)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		if err := s.Update(ctx, "lessons", "nope", Document{"x": 1}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, "lessons", "l4"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, "lessons", "l4"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected deleted document to be gone, got %v", err)
		}
	})

	t.Run("observe emits on writes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snaps, err := s.Observe(ctx, "lessons", Query{Filters: []Filter{Where("course_id", OpEq, "c9")}})
		if err != nil {
			t.Fatalf("observe: %v", err)
		}

		first := receive(t, snaps)
		if len(first.Documents) != 0 {
			t.Fatalf("expected empty initial snapshot, got %d", len(first.Documents))
		}

		if err := s.Set(context.Background(), "lessons", "l9", Document{"id": "l9", "course_id": "c9"}); err != nil {
			t.Fatalf("set: %v", err)
		}

		next := receive(t, snaps)
		if got := ids(next.Documents); got != "l9" {
			t.Errorf("Expected %q, got %q", "l9", got)
		}

		cancel()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-snaps:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatalf("expected stream to close after cancel")
			}
		}
	})
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatalf("snapshot channel closed")
		}
		if s.Err != nil {
			t.Fatalf("snapshot error: %v", s.Err)
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	runStoreContract(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.Set(ctx, "c", "1", Document{"tags": []string{"a"}})

	doc, _ := s.Get(ctx, "c", "1")
	doc["tags"] = "mutated"

	again, _ := s.Get(ctx, "c", "1")
	if _, ok := again["tags"].([]any); !ok {
		t.Fatalf("expected stored document to be unaffected by caller mutation, got %#v", again["tags"])
	}
}

func TestBuildQuery(t *testing.T) {
	sql, args, err := buildQuery("lessons", Query{
		Filters: []Filter{Where("course_id", OpEq, "c1"), Where("order_index", OpGt, 0)},
		OrderBy: "order_index",
		Desc:    true,
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}

	expected := `SELECT data FROM documents WHERE collection = $1` +
		` AND data -> ($2::text) = $3::jsonb` +
		` AND data -> ($4::text) > $5::jsonb` +
		` ORDER BY data -> ($6::text) DESC NULLS LAST` +
		` LIMIT $7`
	if sql != expected {
		t.Errorf("Expected %q, got %q", expected, sql)
	}
	if len(args) != 7 {
		t.Fatalf("Expected 7 args, got %d", len(args))
	}
	if args[2] != `"c1"` || args[4] != `0` {
		t.Errorf("unexpected encoded filter values: %v, %v", args[2], args[4])
	}
}

func TestBuildQueryRejectsUnknownOperator(t *testing.T) {
	if _, _, err := buildQuery("x", Query{Filters: []Filter{{Field: "a", Op: "~"}}}); err == nil {
		t.Fatalf("expected error for unsupported operator")
	}
}

func TestMatchesMissingField(t *testing.T) {
	doc := Document{"a": float64(1)}
	if matches(doc, []Filter{Where("b", OpNe, "x")}) {
		t.Fatalf("expected missing field never to match")
	}
}

func TestEncodeDecode(t *testing.T) {
	type sample struct {
		Name  string    `json:"name"`
		Count int       `json:"count"`
		When  time.Time `json:"when"`
	}
	in := sample{Name: "n", Count: 3, When: time.Date(2026, 3, 1, 10, 0, 0, 5, time.UTC)}

	doc, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if doc["count"] != float64(3) {
		t.Errorf("Expected count 3, got %#v", doc["count"])
	}

	var out sample
	if err := Decode(doc, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || !out.When.Equal(in.When) {
		t.Errorf("round trip mismatch: %+v vs %+v", out, in)
	}
}
