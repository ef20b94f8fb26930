package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/csv-agent/backend/internal/models"
)

// Supported condition operators.
var fieldOps = map[string]struct{}{
	"$eq": {}, "$ne": {}, "$gt": {}, "$gte": {}, "$lt": {}, "$lte": {},
	"$in": {}, "$regex": {},
}

// Filter is a parsed filter document. A nil root matches every record.
type Filter struct {
	root node
}

type node interface {
	matches(rec models.Record) bool
	collectFields(set map[string]struct{})
}

// fieldNode is a single condition on one field.
type fieldNode struct {
	field string
	op    string
	value interface{}

	// regex state, set when op is $regex
	pattern         string
	caseInsensitive bool
	re              *regexp.Regexp
}

// logicalNode groups child conditions with $and or $or.
type logicalNode struct {
	op       string
	children []node
}

// ParseFilter parses a filter document into an executable form. Regex
// patterns are compiled here so execution cannot fail on them later.
func ParseFilter(filter map[string]interface{}) (*Filter, error) {
	if len(filter) == 0 {
		return &Filter{}, nil
	}
	root, err := parseDocument(filter)
	if err != nil {
		return nil, err
	}
	return &Filter{root: root}, nil
}

// parseDocument parses a map of field conditions and logical groups.
// Multiple keys combine with AND.
func parseDocument(doc map[string]interface{}) (node, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []node
	for _, key := range keys {
		value := doc[key]
		switch key {
		case "$and", "$or":
			group, err := parseLogical(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, group)
		default:
			if strings.HasPrefix(key, "$") {
				return nil, fmt.Errorf("unsupported operator %q", key)
			}
			conds, err := parseCondition(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, conds...)
		}
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return &logicalNode{op: "$and", children: children}, nil
}

func parseLogical(op string, value interface{}) (node, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s requires an array of conditions", op)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s requires at least one condition", op)
	}

	children := make([]node, 0, len(list))
	for i, item := range list {
		doc, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s element %d is not an object", op, i)
		}
		child, err := parseDocument(doc)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &logicalNode{op: op, children: children}, nil
}

// parseCondition parses one field's condition. A bare value is implicit $eq;
// an object maps operators to operands and may hold several at once.
func parseCondition(field string, value interface{}) ([]node, error) {
	cond, ok := value.(map[string]interface{})
	if !ok || len(cond) == 0 {
		return []node{&fieldNode{field: field, op: "$eq", value: value}}, nil
	}

	// An object without operator keys is an equality match on the object.
	if !hasOperatorKey(cond) {
		return []node{&fieldNode{field: field, op: "$eq", value: value}}, nil
	}

	opts := ""
	if raw, ok := cond["$options"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: $options must be a string", field)
		}
		opts = s
	}

	ops := make([]string, 0, len(cond))
	for op := range cond {
		if op == "$options" {
			continue
		}
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var nodes []node
	for _, op := range ops {
		operand := cond[op]
		if _, ok := fieldOps[op]; !ok {
			return nil, fmt.Errorf("field %q: unsupported operator %q", field, op)
		}

		fn := &fieldNode{field: field, op: op, value: operand}

		switch op {
		case "$in":
			if _, ok := operand.([]interface{}); !ok {
				return nil, fmt.Errorf("field %q: $in requires an array", field)
			}
		case "$regex":
			pattern, ok := operand.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: $regex requires a string pattern", field)
			}
			fn.pattern = pattern
			fn.caseInsensitive = strings.Contains(opts, "i")
			expr := pattern
			if fn.caseInsensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid regex: %w", field, err)
			}
			fn.re = re
		}

		nodes = append(nodes, fn)
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("field %q: condition has no operators", field)
	}
	return nodes, nil
}

func hasOperatorKey(cond map[string]interface{}) bool {
	for k := range cond {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// Matches reports whether the record satisfies the filter.
func (f *Filter) Matches(rec models.Record) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.matches(rec)
}

// Fields returns every field name the filter references, sorted.
func (f *Filter) Fields() []string {
	if f == nil || f.root == nil {
		return nil
	}
	set := make(map[string]struct{})
	f.root.collectFields(set)
	fields := make([]string, 0, len(set))
	for name := range set {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

func (n *fieldNode) matches(rec models.Record) bool {
	val, present := rec[n.field]

	switch n.op {
	case "$eq":
		return present && valuesEqual(val, n.value)
	case "$ne":
		return !present || !valuesEqual(val, n.value)
	case "$gt":
		cmp, ok := compareValues(val, n.value)
		return ok && cmp > 0
	case "$gte":
		cmp, ok := compareValues(val, n.value)
		return ok && cmp >= 0
	case "$lt":
		cmp, ok := compareValues(val, n.value)
		return ok && cmp < 0
	case "$lte":
		cmp, ok := compareValues(val, n.value)
		return ok && cmp <= 0
	case "$in":
		if !present {
			return false
		}
		list, _ := n.value.([]interface{})
		for _, item := range list {
			if valuesEqual(val, item) {
				return true
			}
		}
		return false
	case "$regex":
		if !present || val == nil {
			return false
		}
		return n.re.MatchString(stringify(val))
	}
	return false
}

func (n *fieldNode) collectFields(set map[string]struct{}) {
	set[n.field] = struct{}{}
}

func (n *logicalNode) matches(rec models.Record) bool {
	if n.op == "$or" {
		for _, c := range n.children {
			if c.matches(rec) {
				return true
			}
		}
		return false
	}
	for _, c := range n.children {
		if !c.matches(rec) {
			return false
		}
	}
	return true
}

func (n *logicalNode) collectFields(set map[string]struct{}) {
	for _, c := range n.children {
		c.collectFields(set)
	}
}

// valuesEqual compares with numeric coercion so int64(5) equals float64(5)
// from JSON.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return a == b
}

// compareValues orders two values. Numbers compare numerically, strings
// lexically. Mismatched or non-orderable types report false.
func compareValues(a, b interface{}) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
