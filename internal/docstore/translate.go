package docstore

import (
	"fmt"
	"strings"
)

// toSQL renders the filter as a DuckDB WHERE clause with placeholder args.
// An empty clause means match-all.
func (f *Filter) toSQL() (string, []interface{}, error) {
	if f == nil || f.root == nil {
		return "", nil, nil
	}
	return nodeToSQL(f.root)
}

func nodeToSQL(n node) (string, []interface{}, error) {
	switch v := n.(type) {
	case *fieldNode:
		return fieldNodeToSQL(v)
	case *logicalNode:
		return logicalNodeToSQL(v)
	}
	return "", nil, fmt.Errorf("unknown filter node %T", n)
}

func fieldNodeToSQL(n *fieldNode) (string, []interface{}, error) {
	col := quoteIdent(n.field)

	switch n.op {
	case "$eq":
		if n.value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []interface{}{n.value}, nil
	case "$ne":
		if n.value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " IS DISTINCT FROM ?", []interface{}{n.value}, nil
	case "$gt":
		return col + " > ?", []interface{}{n.value}, nil
	case "$gte":
		return col + " >= ?", []interface{}{n.value}, nil
	case "$lt":
		return col + " < ?", []interface{}{n.value}, nil
	case "$lte":
		return col + " <= ?", []interface{}{n.value}, nil
	case "$in":
		list, _ := n.value.([]interface{})
		if len(list) == 0 {
			return "FALSE", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
		return fmt.Sprintf("%s IN (%s)", col, placeholders), list, nil
	case "$regex":
		expr := fmt.Sprintf("regexp_matches(CAST(%s AS VARCHAR), ?)", col)
		if n.caseInsensitive {
			expr = fmt.Sprintf("regexp_matches(CAST(%s AS VARCHAR), ?, 'i')", col)
		}
		return expr, []interface{}{n.pattern}, nil
	}
	return "", nil, fmt.Errorf("field %q: operator %q has no SQL form", n.field, n.op)
}

func logicalNodeToSQL(n *logicalNode) (string, []interface{}, error) {
	joiner := " AND "
	if n.op == "$or" {
		joiner = " OR "
	}

	clauses := make([]string, 0, len(n.children))
	var args []interface{}
	for _, child := range n.children {
		clause, childArgs, err := nodeToSQL(child)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "("+clause+")")
		args = append(args, childArgs...)
	}
	return strings.Join(clauses, joiner), args, nil
}

// quoteIdent quotes a column name for DuckDB. Column names come from CSV
// headers and can contain anything.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
