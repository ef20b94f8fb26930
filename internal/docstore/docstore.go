// Package docstore stores dataset rows and executes structured queries
// against them. Two backends implement Collection: an in-memory slice for
// ordinary files and a DuckDB file for large ones.
package docstore

import (
	"context"

	"github.com/csv-agent/backend/internal/models"
)

// Collection executes structured queries over one dataset's rows.
// A collection is immutable after construction; replacing a dataset means
// building a new collection and closing the old one.
type Collection interface {
	// Count returns the number of records matching the filter.
	Count(ctx context.Context, f *Filter) (int, error)

	// Find returns matching records in row order, projected to the given
	// fields when non-empty, up to limit. The bool result reports whether
	// more records matched than were returned.
	Find(ctx context.Context, f *Filter, fields []string, limit int) ([]models.Record, bool, error)

	// Aggregate computes a scalar over one numeric column of the matching
	// records. op is one of average, sum, min, max.
	Aggregate(ctx context.Context, op, field string, f *Filter) (*AggregateResult, error)

	// Slice returns records [offset, offset+limit) in row order, for preview
	// pagination.
	Slice(ctx context.Context, offset, limit int) ([]models.Record, error)

	// Len returns the total number of records.
	Len() int

	// Close releases backing resources.
	Close() error
}

// AggregateResult is the outcome of a scalar aggregate.
type AggregateResult struct {
	Operation string
	Field     string
	Value     *float64 // nil when no numeric values matched
	Count     int      // number of values considered
}
