package models

// Supported query operations. "find" is the default when none is given.
const (
	OpFind    = "find"
	OpCount   = "count"
	OpAverage = "average"
	OpSum     = "sum"
	OpMin     = "min"
	OpMax     = "max"
)

// QuerySpec is the structured filter/operation object produced by the
// language model. It must parse as JSON and reference only fields present
// in the uploaded schema before it is executed.
type QuerySpec struct {
	Filter    map[string]interface{}   `json:"filter,omitempty"`
	Operation string                   `json:"operation,omitempty"`
	Field     string                   `json:"field,omitempty"`  // aggregate target column
	Fields    []string                 `json:"fields,omitempty"` // projection for find
	Pipeline  []map[string]interface{} `json:"pipeline,omitempty"`
}

// IsAggregate reports whether the operation computes a scalar over a column.
func (q *QuerySpec) IsAggregate() bool {
	switch q.Operation {
	case OpAverage, OpSum, OpMin, OpMax:
		return true
	}
	return false
}
