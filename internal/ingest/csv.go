// Package ingest parses uploaded CSV files into typed row records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/csv-agent/backend/internal/models"
)

var boolTrue = map[string]struct{}{
	"TRUE": {}, "YES": {},
}

var boolFalse = map[string]struct{}{
	"FALSE": {}, "NO": {},
}

// Result holds the parsed rows and the inferred schema of one CSV file.
type Result struct {
	Fields  []models.Field
	Records []models.Record
}

// ParseFile reads and parses a CSV file from disk.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a CSV stream. The first row is the header; every data cell is
// converted according to the column type inferred over all rows.
func Parse(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		names[i] = name
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}

	types := inferColumnTypes(names, rows)

	fields := make([]models.Field, len(names))
	records := make([]models.Record, len(rows))
	for i, row := range rows {
		rec := make(models.Record, len(names))
		for j, name := range names {
			if j >= len(row) {
				rec[name] = nil
				continue
			}
			rec[name] = ConvertCell(row[j], types[j])
		}
		records[i] = rec
	}

	for j, name := range names {
		field := models.Field{Name: name, Type: types[j]}
		if len(records) > 0 {
			field.Example = records[0][name]
		}
		fields[j] = field
	}

	return &Result{Fields: fields, Records: records}, nil
}

// inferColumnTypes picks the narrowest type that fits every non-empty cell
// of a column. Columns with no data default to string.
func inferColumnTypes(names []string, rows [][]string) []models.FieldType {
	types := make([]models.FieldType, len(names))

	for j := range names {
		seen := false
		isBool := true
		isInt := true
		isFloat := true

		for _, row := range rows {
			if j >= len(row) {
				continue
			}
			s := strings.TrimSpace(row[j])
			if s == "" {
				continue
			}
			seen = true

			if isBool && !isBoolean(s) {
				isBool = false
			}
			if isInt && !isInteger(s) {
				isInt = false
			}
			if isFloat && !isNumber(s) {
				isFloat = false
			}
			if !isBool && !isInt && !isFloat {
				break
			}
		}

		switch {
		case !seen:
			types[j] = models.FieldTypeString
		case isBool:
			types[j] = models.FieldTypeBoolean
		case isInt:
			types[j] = models.FieldTypeInteger
		case isFloat:
			types[j] = models.FieldTypeFloat
		default:
			types[j] = models.FieldTypeString
		}
	}

	return types
}

func isBoolean(s string) bool {
	u := strings.ToUpper(s)
	if _, ok := boolTrue[u]; ok {
		return true
	}
	_, ok := boolFalse[u]
	return ok
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ConvertCell converts a raw cell string to the Go value for its column type.
// Empty cells become nil; cells that fail conversion fall back to the raw
// string.
func ConvertCell(raw string, t models.FieldType) interface{} {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	switch t {
	case models.FieldTypeBoolean:
		u := strings.ToUpper(s)
		if _, ok := boolTrue[u]; ok {
			return true
		}
		if _, ok := boolFalse[u]; ok {
			return false
		}
		return s

	case models.FieldTypeInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		return s

	case models.FieldTypeFloat:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return s
	}

	return s
}
