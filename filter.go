package guardowl

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FilterOp identifies a predicate operator. The wire names follow the
// document-store filter dialect the translation model is prompted with.
type FilterOp string

const (
	OpEq  FilterOp = "$eq"
	OpNe  FilterOp = "$ne"
	OpGt  FilterOp = "$gt"
	OpGte FilterOp = "$gte"
	OpLt  FilterOp = "$lt"
	OpLte FilterOp = "$lte"
	OpIn  FilterOp = "$in"
	OpNin FilterOp = "$nin"
	OpAnd FilterOp = "$and"
	OpOr  FilterOp = "$or"
)

// Filter is a boolean predicate tree over report metadata. Leaves compare
// a single field; And/Or nodes compose sub-filters. The tree stays
// structured through the whole pipeline and is only rendered to the
// store dialect at the model-output and store boundaries.
type Filter struct {
	Op       FilterOp
	Field    string
	Value    any
	Values   []any
	Operands []*Filter
}

// Eq matches records where field equals value.
func Eq(field string, value any) *Filter { return &Filter{Op: OpEq, Field: field, Value: value} }

// Ne matches records where field does not equal value.
func Ne(field string, value any) *Filter { return &Filter{Op: OpNe, Field: field, Value: value} }

// Gt matches records where field is greater than value.
func Gt(field string, value any) *Filter { return &Filter{Op: OpGt, Field: field, Value: value} }

// Gte matches records where field is greater than or equal to value.
func Gte(field string, value any) *Filter { return &Filter{Op: OpGte, Field: field, Value: value} }

// Lt matches records where field is less than value.
func Lt(field string, value any) *Filter { return &Filter{Op: OpLt, Field: field, Value: value} }

// Lte matches records where field is less than or equal to value.
func Lte(field string, value any) *Filter { return &Filter{Op: OpLte, Field: field, Value: value} }

// In matches records where field equals any of the given values.
func In(field string, values ...any) *Filter {
	return &Filter{Op: OpIn, Field: field, Values: values}
}

// NotIn matches records where field equals none of the given values.
func NotIn(field string, values ...any) *Filter {
	return &Filter{Op: OpNin, Field: field, Values: values}
}

// And matches records satisfying every operand.
func And(operands ...*Filter) *Filter { return &Filter{Op: OpAnd, Operands: operands} }

// Or matches records satisfying at least one operand.
func Or(operands ...*Filter) *Filter { return &Filter{Op: OpOr, Operands: operands} }

// Validate checks the tree is structurally sound.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	switch f.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if f.Field == "" {
			return fmt.Errorf("%s filter requires a field", f.Op)
		}
		if f.Value == nil {
			return fmt.Errorf("%s filter on %q requires a value", f.Op, f.Field)
		}
	case OpIn, OpNin:
		if f.Field == "" {
			return fmt.Errorf("%s filter requires a field", f.Op)
		}
		if len(f.Values) == 0 {
			return fmt.Errorf("%s filter on %q requires at least one value", f.Op, f.Field)
		}
	case OpAnd, OpOr:
		if len(f.Operands) == 0 {
			return fmt.Errorf("%s filter requires at least one operand", f.Op)
		}
		for _, op := range f.Operands {
			if op == nil {
				return fmt.Errorf("%s filter contains a nil operand", f.Op)
			}
			if err := op.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown filter operator %q", f.Op)
	}
	return nil
}

// Matches interprets the tree against a metadata map. Missing fields fail
// every comparison. Ordering comparisons work on numbers and strings;
// mixed types never match.
func (f *Filter) Matches(metadata map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpAnd:
		for _, op := range f.Operands {
			if !op.Matches(metadata) {
				return false
			}
		}
		return true
	case OpOr:
		for _, op := range f.Operands {
			if op.Matches(metadata) {
				return true
			}
		}
		return false
	}

	actual, ok := metadata[f.Field]
	if !ok {
		return false
	}

	switch f.Op {
	case OpEq:
		return valuesEqual(actual, f.Value)
	case OpNe:
		return !valuesEqual(actual, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compareValues(actual, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		for _, v := range f.Values {
			if valuesEqual(actual, v) {
				return true
			}
		}
		return false
	case OpNin:
		for _, v := range f.Values {
			if valuesEqual(actual, v) {
				return false
			}
		}
		return true
	}
	return false
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

// compareValues returns -1, 0 or 1 when a and b are comparable
// (both numeric or both strings), and ok=false otherwise.
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// MarshalJSON renders the tree in the store filter dialect:
// equality as {"field": value}, other comparisons as
// {"field": {"$op": value}}, composites as {"$and": [...]}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Op {
	case OpAnd, OpOr:
		return json.Marshal(map[string][]*Filter{string(f.Op): f.Operands})
	case OpEq:
		return json.Marshal(map[string]any{f.Field: f.Value})
	case OpIn, OpNin:
		return json.Marshal(map[string]any{f.Field: map[string]any{string(f.Op): f.Values}})
	default:
		return json.Marshal(map[string]any{f.Field: map[string]any{string(f.Op): f.Value}})
	}
}

// UnmarshalJSON parses the store filter dialect back into a tree. An
// object with several field keys is treated as an implicit And. Parse
// failures are reported as FilterSyntaxError.
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := parseFilterObject(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		return &FilterSyntaxError{Detail: "empty filter object"}
	}
	*f = *parsed
	return nil
}

// ParseFilter decodes a filter expression in the store dialect. A null or
// empty document yields a nil filter.
func ParseFilter(data []byte) (*Filter, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	return parseFilterObject(data)
}

func parseFilterObject(data []byte) (*Filter, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &FilterSyntaxError{Detail: err.Error()}
	}
	if len(obj) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []*Filter
	for _, key := range keys {
		clause, err := parseFilterClause(key, obj[key])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return And(clauses...), nil
}

func parseFilterClause(key string, raw json.RawMessage) (*Filter, error) {
	switch FilterOp(key) {
	case OpAnd, OpOr:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s expects an array: %v", key, err)}
		}
		if len(items) == 0 {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s requires at least one operand", key)}
		}
		operands := make([]*Filter, 0, len(items))
		for _, item := range items {
			op, err := parseFilterObject(item)
			if err != nil {
				return nil, err
			}
			if op == nil {
				return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s contains an empty operand", key)}
			}
			operands = append(operands, op)
		}
		return &Filter{Op: FilterOp(key), Operands: operands}, nil
	}

	// Field clause: either a direct scalar (equality) or a single-key
	// operator object like {"$gte": 1760486400}.
	var opObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &opObj); err == nil && isOperatorObject(opObj) {
		if len(opObj) != 1 {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("field %q has multiple operators", key)}
		}
		for opKey, opRaw := range opObj {
			return parseFieldOperator(key, FilterOp(opKey), opRaw)
		}
	}

	value, err := decodeScalar(raw)
	if err != nil {
		return nil, &FilterSyntaxError{Detail: fmt.Sprintf("field %q: %v", key, err)}
	}
	return Eq(key, value), nil
}

func parseFieldOperator(field string, op FilterOp, raw json.RawMessage) (*Filter, error) {
	switch op {
	case OpIn, OpNin:
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s on %q expects an array: %v", op, field, err)}
		}
		if len(values) == 0 {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s on %q requires at least one value", op, field)}
		}
		return &Filter{Op: op, Field: field, Values: values}, nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		value, err := decodeScalar(raw)
		if err != nil {
			return nil, &FilterSyntaxError{Detail: fmt.Sprintf("%s on %q: %v", op, field, err)}
		}
		return &Filter{Op: op, Field: field, Value: value}, nil
	default:
		return nil, &FilterSyntaxError{Detail: fmt.Sprintf("unknown operator %q on field %q", op, field)}
	}
}

func isOperatorObject(obj map[string]json.RawMessage) bool {
	if len(obj) == 0 {
		return false
	}
	for k := range obj {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

func decodeScalar(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case string, float64, bool:
		return v, nil
	case nil:
		return nil, fmt.Errorf("null is not a valid filter value")
	default:
		return nil, fmt.Errorf("expected a scalar value")
	}
}
