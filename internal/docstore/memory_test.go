package docstore

import (
	"context"
	"testing"

	"github.com/csv-agent/backend/internal/models"
)

func testRecords() []models.Record {
	return []models.Record{
		{"Country": "Nepal", "Age": int64(30), "Score": 91.5},
		{"Country": "India", "Age": int64(25), "Score": 78.25},
		{"Country": "Nepal", "Age": int64(41), "Score": 88.0},
		{"Country": "China", "Age": int64(35), "Score": nil},
	}
}

func TestMemoryCollection_Count(t *testing.T) {
	c := NewMemoryCollection(testRecords())
	ctx := context.Background()

	t.Run("empty filter counts all", func(t *testing.T) {
		count, err := c.Count(ctx, mustParse(t, nil))
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 4 {
			t.Errorf("Expected 4, got %d", count)
		}
	})

	t.Run("regex filter", func(t *testing.T) {
		f := mustParse(t, map[string]interface{}{
			"Country": map[string]interface{}{"$regex": "nepal", "$options": "i"},
		})
		count, err := c.Count(ctx, f)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2, got %d", count)
		}
	})
}

func TestMemoryCollection_Find(t *testing.T) {
	c := NewMemoryCollection(testRecords())
	ctx := context.Background()

	t.Run("preserves row order", func(t *testing.T) {
		f := mustParse(t, map[string]interface{}{"Country": "Nepal"})
		recs, truncated, err := c.Find(ctx, f, nil, 10)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if truncated {
			t.Error("Expected no truncation")
		}
		if len(recs) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(recs))
		}
		if recs[0]["Age"] != int64(30) || recs[1]["Age"] != int64(41) {
			t.Errorf("Records out of row order: %v", recs)
		}
	})

	t.Run("applies projection", func(t *testing.T) {
		recs, _, err := c.Find(ctx, mustParse(t, nil), []string{"Country"}, 10)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if _, ok := recs[0]["Age"]; ok {
			t.Error("Expected Age to be projected out")
		}
		if _, ok := recs[0]["Country"]; !ok {
			t.Error("Expected Country to be present")
		}
	})

	t.Run("reports truncation", func(t *testing.T) {
		recs, truncated, err := c.Find(ctx, mustParse(t, nil), nil, 2)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(recs) != 2 {
			t.Errorf("Expected 2 records, got %d", len(recs))
		}
		if !truncated {
			t.Error("Expected truncation flag")
		}
	})
}

func TestMemoryCollection_Aggregate(t *testing.T) {
	c := NewMemoryCollection(testRecords())
	ctx := context.Background()

	tests := []struct {
		op   string
		want float64
	}{
		{"average", (30 + 25 + 41 + 35) / 4.0},
		{"sum", 131},
		{"min", 25},
		{"max", 41},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			res, err := c.Aggregate(ctx, tt.op, "Age", mustParse(t, nil))
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if res.Value == nil {
				t.Fatal("Expected a value")
			}
			if *res.Value != tt.want {
				t.Errorf("%s = %v, want %v", tt.op, *res.Value, tt.want)
			}
			if res.Count != 4 {
				t.Errorf("Expected count 4, got %d", res.Count)
			}
		})
	}

	t.Run("skips nil cells", func(t *testing.T) {
		res, err := c.Aggregate(ctx, "average", "Score", mustParse(t, nil))
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if res.Count != 3 {
			t.Errorf("Expected 3 values considered, got %d", res.Count)
		}
	})

	t.Run("no matches yields nil value", func(t *testing.T) {
		f := mustParse(t, map[string]interface{}{"Country": "Atlantis"})
		res, err := c.Aggregate(ctx, "sum", "Age", f)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if res.Value != nil {
			t.Errorf("Expected nil value, got %v", *res.Value)
		}
	})

	t.Run("unknown operation fails", func(t *testing.T) {
		if _, err := c.Aggregate(ctx, "median", "Age", mustParse(t, nil)); err == nil {
			t.Error("Expected error for unknown operation")
		}
	})
}

func TestMemoryCollection_Slice(t *testing.T) {
	c := NewMemoryCollection(testRecords())
	ctx := context.Background()

	recs, err := c.Slice(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0]["Country"] != "India" {
		t.Errorf("Expected India first, got %v", recs[0]["Country"])
	}

	recs, err = c.Slice(ctx, 10, 5)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected empty slice past end, got %d", len(recs))
	}
}
