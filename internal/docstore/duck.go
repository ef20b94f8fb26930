package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/csv-agent/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
)

const duckBatchSize = 50000

// DuckOptions tunes the DuckDB-backed collection.
type DuckOptions struct {
	MemoryLimit string
	Threads     int
	MaxQueries  int
}

func (o DuckOptions) withDefaults() DuckOptions {
	if o.MemoryLimit == "" {
		o.MemoryLimit = "1GB"
	}
	if o.Threads <= 0 {
		o.Threads = 4
	}
	if o.MaxQueries <= 0 {
		o.MaxQueries = 3
	}
	return o
}

// DuckCollection stores dataset rows in a temporary DuckDB file. Used for
// datasets too large to hold comfortably in memory.
type DuckCollection struct {
	db     *sql.DB
	dbPath string
	fields []models.Field
	count  int

	// Semaphore to limit concurrent queries
	querySem chan struct{}
}

// NewDuckCollection creates the backing database, loads all rows through the
// Appender API, and returns the ready collection.
func NewDuckCollection(tempDir, datasetID string, fields []models.Field, records []models.Record, opts DuckOptions) (*DuckCollection, error) {
	opts = opts.withDefaults()
	dbPath := filepath.Join(tempDir, fmt.Sprintf("dataset_%s.duckdb", datasetID))
	fmt.Printf("[DuckCollection] Creating database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[DuckCollection] Pragma error: %v\n", err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	if _, err := db.Exec(createTableSQL(fields)); err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	c := &DuckCollection{
		db:       db,
		dbPath:   dbPath,
		fields:   fields,
		querySem: make(chan struct{}, opts.MaxQueries),
	}

	if err := c.appendAll(records); err != nil {
		c.Close()
		return nil, err
	}
	c.count = len(records)

	fmt.Printf("[DuckCollection] Loaded %d records into %s\n", len(records), dbPath)
	return c, nil
}

// createTableSQL builds the records table: a _row ordering column plus one
// typed column per CSV field.
func createTableSQL(fields []models.Field) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE records (_row BIGINT NOT NULL")
	for _, f := range fields {
		b.WriteString(", ")
		b.WriteString(quoteIdent(f.Name))
		b.WriteString(" ")
		b.WriteString(duckColumnType(f.Type))
	}
	b.WriteString(")")
	return b.String()
}

func duckColumnType(t models.FieldType) string {
	switch t {
	case models.FieldTypeBoolean:
		return "BOOLEAN"
	case models.FieldTypeInteger:
		return "BIGINT"
	case models.FieldTypeFloat:
		return "DOUBLE"
	}
	return "VARCHAR"
}

// appendAll inserts rows in batches using the native Appender API.
func (c *DuckCollection) appendAll(records []models.Record) error {
	conn, err := c.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for start := 0; start < len(records); start += duckBatchSize {
		end := start + duckBatchSize
		if end > len(records) {
			end = len(records)
		}

		batchStart := time.Now()
		err = conn.Raw(func(driverConn interface{}) error {
			dConn, ok := driverConn.(*duckdb.Conn)
			if !ok {
				return fmt.Errorf("failed to cast to duckdb.Conn")
			}

			appender, err := duckdb.NewAppenderFromConn(dConn, "", "records")
			if err != nil {
				return fmt.Errorf("failed to create appender: %w", err)
			}
			defer appender.Close()

			for i := start; i < end; i++ {
				row := make([]driver.Value, 0, len(c.fields)+1)
				row = append(row, int64(i))
				for _, f := range c.fields {
					row = append(row, appendValue(records[i][f.Name], f.Type))
				}
				if err := appender.AppendRow(row...); err != nil {
					return fmt.Errorf("failed to append row %d: %w", i, err)
				}
			}

			return appender.Flush()
		})
		if err != nil {
			return fmt.Errorf("appender error: %w", err)
		}

		if len(records) > duckBatchSize {
			fmt.Printf("[DuckCollection] Appended rows %d-%d in %v\n", start, end, time.Since(batchStart))
		}
	}

	return nil
}

// appendValue coerces a typed cell to the driver value for its column.
// Cells that ended up as strings in a typed column become NULL rather than
// failing the whole load.
func appendValue(v interface{}, t models.FieldType) driver.Value {
	if v == nil {
		return nil
	}
	switch t {
	case models.FieldTypeBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	case models.FieldTypeInteger:
		if n, ok := v.(int64); ok {
			return n
		}
		return nil
	case models.FieldTypeFloat:
		if f, ok := toFloat(v); ok {
			return f
		}
		return nil
	}
	return stringify(v)
}

// acquire takes a query slot or fails when the context is done.
func (c *DuckCollection) acquire(ctx context.Context) (func(), error) {
	select {
	case c.querySem <- struct{}{}:
		return func() { <-c.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Count returns the number of records matching the filter.
func (c *DuckCollection) Count(ctx context.Context, f *Filter) (int, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	where, args, err := f.toSQL()
	if err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM records"
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

// Find returns matching records in row order. It fetches one row beyond the
// limit to detect truncation.
func (c *DuckCollection) Find(ctx context.Context, f *Filter, fields []string, limit int) ([]models.Record, bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	selected := c.selectFields(fields)
	where, args, err := f.toSQL()
	if err != nil {
		return nil, false, err
	}

	query := "SELECT " + columnList(selected) + " FROM records"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY _row"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit+1)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("find query failed: %w", err)
	}
	defer rows.Close()

	records, err := c.scanRecords(rows, selected)
	if err != nil {
		return nil, false, err
	}

	truncated := false
	if limit > 0 && len(records) > limit {
		records = records[:limit]
		truncated = true
	}
	return records, truncated, nil
}

// Aggregate pushes the scalar computation down to DuckDB.
func (c *DuckCollection) Aggregate(ctx context.Context, op, field string, f *Filter) (*AggregateResult, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var fn string
	switch op {
	case "average":
		fn = "AVG"
	case "sum":
		fn = "SUM"
	case "min":
		fn = "MIN"
	case "max":
		fn = "MAX"
	default:
		return nil, fmt.Errorf("unknown aggregate operation %q", op)
	}

	where, args, err := f.toSQL()
	if err != nil {
		return nil, err
	}

	col := quoteIdent(field)
	query := fmt.Sprintf("SELECT %s(CAST(%s AS DOUBLE)), COUNT(%s) FROM records", fn, col, col)
	if where != "" {
		query += " WHERE " + where
	}

	var value sql.NullFloat64
	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&value, &count); err != nil {
		return nil, fmt.Errorf("aggregate query failed: %w", err)
	}

	res := &AggregateResult{Operation: op, Field: field, Count: count}
	if value.Valid {
		v := value.Float64
		res.Value = &v
	}
	return res, nil
}

// Slice returns records [offset, offset+limit) in row order.
func (c *DuckCollection) Slice(ctx context.Context, offset, limit int) ([]models.Record, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = c.count
	}

	query := fmt.Sprintf("SELECT %s FROM records ORDER BY _row LIMIT %d OFFSET %d",
		columnList(c.fields), limit, offset)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("slice query failed: %w", err)
	}
	defer rows.Close()

	return c.scanRecords(rows, c.fields)
}

// Len returns the total number of records.
func (c *DuckCollection) Len() int {
	return c.count
}

// Close closes the database and removes the backing file.
func (c *DuckCollection) Close() error {
	if c.db != nil {
		c.db.Close()
	}
	if c.dbPath != "" {
		os.Remove(c.dbPath)
	}
	return nil
}

// selectFields resolves a projection to schema fields, keeping schema order.
// An empty projection selects everything.
func (c *DuckCollection) selectFields(fields []string) []models.Field {
	if len(fields) == 0 {
		return c.fields
	}
	want := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	var selected []models.Field
	for _, f := range c.fields {
		if _, ok := want[f.Name]; ok {
			selected = append(selected, f)
		}
	}
	return selected
}

func columnList(fields []models.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(f.Name)
	}
	return strings.Join(cols, ", ")
}

// scanRecords reads rows back into typed records, mapping SQL NULL to nil.
func (c *DuckCollection) scanRecords(rows *sql.Rows, fields []models.Field) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		dests := make([]interface{}, len(fields))
		for i, f := range fields {
			switch f.Type {
			case models.FieldTypeBoolean:
				dests[i] = new(sql.NullBool)
			case models.FieldTypeInteger:
				dests[i] = new(sql.NullInt64)
			case models.FieldTypeFloat:
				dests[i] = new(sql.NullFloat64)
			default:
				dests[i] = new(sql.NullString)
			}
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rec := make(models.Record, len(fields))
		for i, f := range fields {
			switch d := dests[i].(type) {
			case *sql.NullBool:
				if d.Valid {
					rec[f.Name] = d.Bool
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullInt64:
				if d.Valid {
					rec[f.Name] = d.Int64
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullFloat64:
				if d.Valid {
					rec[f.Name] = d.Float64
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullString:
				if d.Valid {
					rec[f.Name] = d.String
				} else {
					rec[f.Name] = nil
				}
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
