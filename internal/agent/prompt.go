package agent

import (
	"fmt"
	"strings"

	"github.com/csv-agent/backend/internal/models"
)

// BuildSystemPrompt assembles the system prompt for query translation from
// the dataset schema and the active guardrail rules.
func BuildSystemPrompt(ds *models.Dataset, rules *models.AgentRules) string {
	var b strings.Builder

	b.WriteString("You are an intelligent assistant that helps users find information in a CSV dataset by converting natural language questions into structured queries.\n\n")

	b.WriteString("Available fields and example values:\n")
	for _, f := range ds.Fields {
		if f.Example != nil {
			fmt.Fprintf(&b, "- %s (%s): e.g. %v\n", f.Name, f.Type, f.Example)
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Name, f.Type)
		}
	}

	b.WriteString(`
Your task is to:
1. Understand the user's natural language question
2. Figure out their true intent (what information they want)
3. Create the appropriate query using the available fields

Query patterns:
1. Finding records by field value:
   {"filter": {"field_name": {"$regex": "value", "$options": "i"}}, "fields": ["relevant_fields"]}

2. Counting records:
   {"filter": {"field_name": {"$regex": "value", "$options": "i"}}, "operation": "count"}

3. Computing averages over a numeric field:
   {"filter": {}, "operation": "average", "field": "numeric_field_name"}

Supported filter operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $regex (with "$options": "i"), $and, $or.
`)

	fmt.Fprintf(&b, "Supported operations: %s.\n", strings.Join(rules.AllowedOperations, ", "))

	b.WriteString(`
Remember:
1. Use exact field names from the available fields list
2. Always use case-insensitive regex for text searches
3. For numeric fields, use appropriate comparison operators
4. Return only the fields that would help answer the question
`)

	if len(rules.ExtraGuidance) > 0 {
		b.WriteString("\nAdditional guidelines:\n")
		for _, g := range rules.ExtraGuidance {
			b.WriteString("- " + g + "\n")
		}
	}

	b.WriteString(`
First, explain your thinking step by step.
Then output the query object as valid JSON.
Format your response as:
THINKING: your step-by-step analysis
QUERY: the JSON query object`)

	return b.String()
}
