package models

// ResultKind identifies the shape of a result set.
type ResultKind string

const (
	ResultKindCount     ResultKind = "count"
	ResultKindRecords   ResultKind = "records"
	ResultKindAggregate ResultKind = "aggregate"
)

// ResultSet is the output of executing a QuerySpec against the stored
// records. It exists only for the duration of one display cycle.
type ResultSet struct {
	Kind      ResultKind `json:"kind"`
	Count     int        `json:"count"`
	Records   []Record   `json:"records,omitempty"`
	Value     *float64   `json:"value,omitempty"`     // aggregate result
	Operation string     `json:"operation,omitempty"` // aggregate kind for display
	Truncated bool       `json:"truncated,omitempty"` // find hit the result limit
}

// Answer bundles everything shown to the user for one question cycle.
type Answer struct {
	Question  string     `json:"question"`
	Thinking  string     `json:"thinking,omitempty"` // literal model reasoning text
	Query     *QuerySpec `json:"query"`
	RawQuery  string     `json:"rawQuery"`
	Result    *ResultSet `json:"result"`
	ElapsedMs int64      `json:"elapsedMs"`
}
