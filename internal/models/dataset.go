package models

import "time"

// FieldType represents the inferred type of a CSV column.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeFloat   FieldType = "float"
	FieldTypeBoolean FieldType = "boolean"
)

// IsNumeric reports whether values of this type can be aggregated.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInteger || t == FieldTypeFloat
}

// Field describes one column of the uploaded CSV.
type Field struct {
	Name    string      `json:"name"`
	Type    FieldType   `json:"type"`
	Example interface{} `json:"example,omitempty"` // value from the first row, shown to the model
}

// Dataset represents the one active collection of uploaded rows.
// A new upload fully replaces the previous dataset.
type Dataset struct {
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	Fields    []Field   `json:"fields"`
	RowCount  int       `json:"rowCount"`
	Backend   string    `json:"backend"` // "memory" or "duckdb"
	CreatedAt time.Time `json:"createdAt"`
}

// FieldNames returns the column names in schema order.
func (d *Dataset) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldType looks up the inferred type of a column.
func (d *Dataset) FieldType(name string) (FieldType, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// HasField reports whether the schema contains the named column.
func (d *Dataset) HasField(name string) bool {
	_, ok := d.FieldType(name)
	return ok
}
