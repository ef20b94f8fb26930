// Package agent translates natural-language questions into structured
// queries by way of a language model, validates them against the dataset
// schema, and classifies the failure modes of that pipeline.
package agent

import "fmt"

// TranslationError means the model output could not be turned into a query
// object at all. Raw holds the text the model produced.
type TranslationError struct {
	Raw string
	Err error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("model output is not a valid query: %v", e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// ValidationError means the query parsed but references something outside
// the dataset schema or the allowed operation set.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "query validation failed: " + e.Reason
}

// ExecutionError means the collection rejected a validated query.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
