package models

// Record is one ingested CSV row stored as a field-value mapping.
// Cell values are typed at ingest time (bool, int, float64, or string).
type Record map[string]interface{}

// Project returns a copy of the record containing only the given fields.
// Fields absent from the record are skipped.
func (r Record) Project(fields []string) Record {
	if len(fields) == 0 {
		return r
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}
