package ingest

import (
	"strings"
	"testing"

	"github.com/csv-agent/backend/internal/models"
)

func TestParse_SchemaInference(t *testing.T) {
	csv := `Name,Age,Score,Active
Alice,30,91.5,true
Bob,25,78.25,false
Carol,41,88.0,true
`
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(res.Fields) != 4 {
		t.Fatalf("Expected 4 fields, got %d", len(res.Fields))
	}
	if len(res.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(res.Records))
	}

	wantTypes := map[string]models.FieldType{
		"Name":   models.FieldTypeString,
		"Age":    models.FieldTypeInteger,
		"Score":  models.FieldTypeFloat,
		"Active": models.FieldTypeBoolean,
	}
	for _, f := range res.Fields {
		if f.Type != wantTypes[f.Name] {
			t.Errorf("Field %s: expected type %s, got %s", f.Name, wantTypes[f.Name], f.Type)
		}
	}

	first := res.Records[0]
	if first["Name"] != "Alice" {
		t.Errorf("Expected Name Alice, got %v", first["Name"])
	}
	if first["Age"] != int64(30) {
		t.Errorf("Expected Age int64(30), got %T %v", first["Age"], first["Age"])
	}
	if first["Score"] != 91.5 {
		t.Errorf("Expected Score 91.5, got %v", first["Score"])
	}
	if first["Active"] != true {
		t.Errorf("Expected Active true, got %v", first["Active"])
	}
}

func TestParse_ExampleValues(t *testing.T) {
	csv := "Country,Users\nNepal,12\nIndia,300\n"
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	for _, f := range res.Fields {
		if f.Example == nil {
			t.Errorf("Field %s: expected example value from first row", f.Name)
		}
	}
	if res.Fields[0].Example != "Nepal" {
		t.Errorf("Expected example Nepal, got %v", res.Fields[0].Example)
	}
}

func TestParse_MixedColumnFallsBackToString(t *testing.T) {
	csv := "Code\n100\nA17\n200\n"
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.Fields[0].Type != models.FieldTypeString {
		t.Errorf("Expected string type for mixed column, got %s", res.Fields[0].Type)
	}
	if res.Records[0]["Code"] != "100" {
		t.Errorf("Expected raw string '100', got %v", res.Records[0]["Code"])
	}
}

func TestParse_QuotedFieldsWithCommas(t *testing.T) {
	csv := "Name,City\n\"Doe, Jane\",Kathmandu\n"
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.Records[0]["Name"] != "Doe, Jane" {
		t.Errorf("Expected quoted value preserved, got %v", res.Records[0]["Name"])
	}
}

func TestParse_EmptyCellsAreNil(t *testing.T) {
	csv := "A,B\n1,\n2,5\n"
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.Records[0]["B"] != nil {
		t.Errorf("Expected nil for empty cell, got %v", res.Records[0]["B"])
	}
	if res.Records[1]["B"] != int64(5) {
		t.Errorf("Expected int64(5), got %T %v", res.Records[1]["B"], res.Records[1]["B"])
	}
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	if err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	res, err := Parse(strings.NewReader("A,B,C\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(res.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(res.Records))
	}
	if len(res.Fields) != 3 {
		t.Errorf("Expected 3 fields, got %d", len(res.Fields))
	}
	for _, f := range res.Fields {
		if f.Type != models.FieldTypeString {
			t.Errorf("Field %s: expected string default, got %s", f.Name, f.Type)
		}
	}
}

func TestParse_BlankHeaderGetsPlaceholder(t *testing.T) {
	res, err := Parse(strings.NewReader("A,,C\n1,2,3\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.Fields[1].Name != "column_2" {
		t.Errorf("Expected placeholder name column_2, got %s", res.Fields[1].Name)
	}
}

func TestConvertCell(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  models.FieldType
		want interface{}
	}{
		{"integer", "42", models.FieldTypeInteger, int64(42)},
		{"negative integer", "-7", models.FieldTypeInteger, int64(-7)},
		{"float", "3.5", models.FieldTypeFloat, 3.5},
		{"bool true", "TRUE", models.FieldTypeBoolean, true},
		{"bool no", "no", models.FieldTypeBoolean, false},
		{"string", "hello", models.FieldTypeString, "hello"},
		{"empty is nil", "", models.FieldTypeInteger, nil},
		{"unparseable falls back", "abc", models.FieldTypeInteger, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertCell(tt.raw, tt.typ)
			if got != tt.want {
				t.Errorf("ConvertCell(%q, %s) = %v (%T), want %v", tt.raw, tt.typ, got, got, tt.want)
			}
		})
	}
}
