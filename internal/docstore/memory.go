package docstore

import (
	"context"
	"fmt"

	"github.com/csv-agent/backend/internal/models"
)

// MemoryCollection keeps all records in a slice. Records are not mutated
// after construction, so reads need no locking.
type MemoryCollection struct {
	records []models.Record
}

// NewMemoryCollection builds a collection over the given rows.
func NewMemoryCollection(records []models.Record) *MemoryCollection {
	return &MemoryCollection{records: records}
}

// Count returns the number of records matching the filter.
func (c *MemoryCollection) Count(ctx context.Context, f *Filter) (int, error) {
	count := 0
	for _, rec := range c.records {
		if f.Matches(rec) {
			count++
		}
	}
	return count, nil
}

// Find returns matching records in row order.
func (c *MemoryCollection) Find(ctx context.Context, f *Filter, fields []string, limit int) ([]models.Record, bool, error) {
	var out []models.Record
	truncated := false
	for _, rec := range c.records {
		if !f.Matches(rec) {
			continue
		}
		if limit > 0 && len(out) >= limit {
			truncated = true
			break
		}
		out = append(out, rec.Project(fields))
	}
	return out, truncated, nil
}

// Aggregate computes a scalar over one numeric column. Cells that are nil or
// not numeric are skipped.
func (c *MemoryCollection) Aggregate(ctx context.Context, op, field string, f *Filter) (*AggregateResult, error) {
	switch op {
	case "average", "sum", "min", "max":
	default:
		return nil, fmt.Errorf("unknown aggregate operation %q", op)
	}

	var sum, min, max float64
	count := 0

	for _, rec := range c.records {
		if !f.Matches(rec) {
			continue
		}
		v, ok := toFloat(rec[field])
		if !ok {
			continue
		}
		if count == 0 {
			min, max = v, v
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sum += v
		count++
	}

	res := &AggregateResult{Operation: op, Field: field, Count: count}
	if count == 0 {
		return res, nil
	}

	var value float64
	switch op {
	case "average":
		value = sum / float64(count)
	case "sum":
		value = sum
	case "min":
		value = min
	case "max":
		value = max
	}
	res.Value = &value
	return res, nil
}

// Slice returns records [offset, offset+limit) in row order.
func (c *MemoryCollection) Slice(ctx context.Context, offset, limit int) ([]models.Record, error) {
	if offset < 0 || offset >= len(c.records) {
		return []models.Record{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(c.records) {
		end = len(c.records)
	}
	return c.records[offset:end], nil
}

// Len returns the total number of records.
func (c *MemoryCollection) Len() int {
	return len(c.records)
}

// Close is a no-op for the in-memory backend.
func (c *MemoryCollection) Close() error {
	return nil
}
