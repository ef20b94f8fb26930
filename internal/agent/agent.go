package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/csv-agent/backend/internal/docstore"
	"github.com/csv-agent/backend/internal/models"
)

// Agent turns questions into validated query specifications.
type Agent struct {
	llm LLMClient
}

// New creates an agent over the given model client.
func New(llm LLMClient) *Agent {
	return &Agent{llm: llm}
}

// Translation is the outcome of one question translation: the model's
// reasoning text, the raw query text it produced, and the validated query
// ready for execution.
type Translation struct {
	Thinking string
	Raw      string
	Query    *models.QuerySpec
	Filter   *docstore.Filter
}

// Translate asks the model to convert the question into a query object and
// validates the result against the dataset schema. Transport failures return
// plain errors; unusable model output returns *TranslationError; schema
// violations return *ValidationError.
func (a *Agent) Translate(ctx context.Context, ds *models.Dataset, rules *models.AgentRules, question string) (*Translation, error) {
	system := BuildSystemPrompt(ds, rules)

	fmt.Printf("[Agent] Translating question: %s\n", question)
	content, err := a.llm.CompleteWithSystem(ctx, system, question)
	if err != nil {
		return nil, err
	}

	thinking, rawQuery := SplitResponse(content)

	spec, err := ParseQuery(rawQuery)
	if err != nil {
		return nil, &TranslationError{Raw: rawQuery, Err: err}
	}

	if err := NormalizeQuery(spec); err != nil {
		return nil, err
	}

	filter, err := ValidateQuery(ds, rules, spec)
	if err != nil {
		return nil, err
	}

	return &Translation{
		Thinking: thinking,
		Raw:      rawQuery,
		Query:    spec,
		Filter:   filter,
	}, nil
}

// SplitResponse separates the model's reasoning from the query text. When
// the QUERY marker is absent the whole response is the query candidate.
func SplitResponse(content string) (thinking, query string) {
	content = strings.TrimSpace(content)
	parts := strings.SplitN(content, "QUERY:", 2)
	if len(parts) == 2 {
		thinking = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "THINKING:"))
		query = strings.TrimSpace(parts[1])
		return thinking, query
	}
	return "", content
}

// ParseQuery turns raw model query text into a QuerySpec. It strips markdown
// code fences and extracts the first JSON object from the text.
func ParseQuery(raw string) (*models.QuerySpec, error) {
	cleaned := StripCodeFences(raw)

	jsonText, ok := extractJSONObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in output")
	}

	spec := &models.QuerySpec{}
	if err := json.Unmarshal([]byte(jsonText), spec); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return spec, nil
}

// StripCodeFences removes markdown code fences from model output. The "json"
// language tag is stripped only inside a fence; unfenced text passes through
// untouched.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s
}

// extractJSONObject returns the first balanced top-level JSON object in the
// text, tolerating prose around it.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// NormalizeQuery rewrites aggregation pipelines into the equivalent scalar
// operation and fills in the default operation. An explicit operation wins
// over a pipeline.
func NormalizeQuery(spec *models.QuerySpec) error {
	if spec.Operation == "" && len(spec.Pipeline) > 0 {
		op, field, ok := pipelineToAggregate(spec.Pipeline)
		if !ok {
			return &ValidationError{Reason: "unsupported aggregation pipeline"}
		}
		spec.Operation = op
		spec.Field = field
	}
	spec.Pipeline = nil

	if spec.Operation == "" {
		spec.Operation = models.OpFind
	}
	return nil
}

var groupAccumulators = map[string]string{
	"$avg": models.OpAverage,
	"$sum": models.OpSum,
	"$min": models.OpMin,
	"$max": models.OpMax,
}

// pipelineToAggregate recognizes the single-stage group-over-all pipeline
// shape, e.g. [{"$group": {"_id": null, "average": {"$avg": "$Age"}}}].
func pipelineToAggregate(pipeline []map[string]interface{}) (op, field string, ok bool) {
	if len(pipeline) != 1 {
		return "", "", false
	}
	groupRaw, ok := pipeline[0]["$group"]
	if !ok {
		return "", "", false
	}
	group, ok := groupRaw.(map[string]interface{})
	if !ok {
		return "", "", false
	}
	if id, present := group["_id"]; !present || id != nil {
		return "", "", false
	}

	for key, value := range group {
		if key == "_id" {
			continue
		}
		acc, ok := value.(map[string]interface{})
		if !ok || len(acc) != 1 {
			return "", "", false
		}
		for accOp, target := range acc {
			mapped, known := groupAccumulators[accOp]
			if !known {
				return "", "", false
			}
			ref, ok := target.(string)
			if !ok || !strings.HasPrefix(ref, "$") {
				return "", "", false
			}
			return mapped, strings.TrimPrefix(ref, "$"), true
		}
	}
	return "", "", false
}

// ValidateQuery checks the spec against the dataset schema and guardrails
// and returns the compiled filter on success.
func ValidateQuery(ds *models.Dataset, rules *models.AgentRules, spec *models.QuerySpec) (*docstore.Filter, error) {
	if !rules.AllowsOperation(spec.Operation) {
		return nil, &ValidationError{Reason: fmt.Sprintf("operation %q is not allowed", spec.Operation)}
	}

	filter, err := docstore.ParseFilter(spec.Filter)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	for _, field := range filter.Fields() {
		if !ds.HasField(field) {
			return nil, &ValidationError{Reason: fmt.Sprintf("filter references unknown field %q", field)}
		}
	}

	for _, field := range spec.Fields {
		if !ds.HasField(field) {
			return nil, &ValidationError{Reason: fmt.Sprintf("projection references unknown field %q", field)}
		}
	}

	if spec.IsAggregate() {
		if spec.Field == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("operation %q requires a target field", spec.Operation)}
		}
		t, ok := ds.FieldType(spec.Field)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("aggregate references unknown field %q", spec.Field)}
		}
		if !t.IsNumeric() {
			return nil, &ValidationError{Reason: fmt.Sprintf("field %q is not numeric and cannot be aggregated", spec.Field)}
		}
	}

	return filter, nil
}
