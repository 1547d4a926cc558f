package docket

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/docket/internal/document"
)

// Operator is a comparison applied by a Condition.
type Operator string

// Supported operators.
const (
	OpEq         Operator = "="
	OpNe         Operator = "!="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpIn         Operator = "IN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTSWITH"
	OpNotNull    Operator = "IS_DEFINED"
	OpIsNull     Operator = "IS_NULL"
)

// Condition compares one document field against a value.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Criteria is a conjunction of conditions.
type Criteria []Condition

// Eq matches documents whose field equals value.
func Eq(field string, value any) Condition { return Condition{Field: field, Op: OpEq, Value: value} }

// Ne matches documents whose field does not equal value.
func Ne(field string, value any) Condition { return Condition{Field: field, Op: OpNe, Value: value} }

// Lt matches documents whose field is less than value.
func Lt(field string, value any) Condition { return Condition{Field: field, Op: OpLt, Value: value} }

// Lte matches documents whose field is less than or equal to value.
func Lte(field string, value any) Condition { return Condition{Field: field, Op: OpLte, Value: value} }

// Gt matches documents whose field is greater than value.
func Gt(field string, value any) Condition { return Condition{Field: field, Op: OpGt, Value: value} }

// Gte matches documents whose field is greater than or equal to value.
func Gte(field string, value any) Condition { return Condition{Field: field, Op: OpGte, Value: value} }

// In matches documents whose field equals one of values.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

// Contains matches documents whose string field contains substr.
func Contains(field, substr string) Condition {
	return Condition{Field: field, Op: OpContains, Value: substr}
}

// StartsWith matches documents whose string field starts with prefix.
func StartsWith(field, prefix string) Condition {
	return Condition{Field: field, Op: OpStartsWith, Value: prefix}
}

// NotNull matches documents whose field is defined and not null.
func NotNull(field string) Condition { return Condition{Field: field, Op: OpNotNull} }

// IsNull matches documents whose field is undefined or null.
func IsNull(field string) Condition { return Condition{Field: field, Op: OpIsNull} }

// Validate checks that every condition can be translated.
func (c Criteria) Validate() error {
	for i, cond := range c {
		if len(document.Segments(cond.Field)) == 0 {
			return fmt.Errorf("%w: condition %d has no field", ErrInvalidQuery, i)
		}
		switch cond.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpNotNull, OpIsNull:
		case OpContains, OpStartsWith:
			if _, ok := cond.Value.(string); !ok {
				return fmt.Errorf("%w: %s on %q requires a string", ErrInvalidQuery, cond.Op, cond.Field)
			}
		case OpIn:
			if cond.Value == nil {
				return fmt.Errorf("%w: IN on %q requires values", ErrInvalidQuery, cond.Field)
			}
			if k := reflect.TypeOf(cond.Value).Kind(); k != reflect.Slice && k != reflect.Array {
				return fmt.Errorf("%w: IN on %q requires a slice", ErrInvalidQuery, cond.Field)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, cond.Op)
		}
	}
	return nil
}

// Values returns the elements of an IN condition's value.
func (c Condition) Values() []any {
	if c.Value == nil {
		return nil
	}
	if vs, ok := c.Value.([]any); ok {
		return vs
	}
	rv := reflect.ValueOf(c.Value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{c.Value}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Matches evaluates the criteria against a decoded document.
func (c Criteria) Matches(doc map[string]any) bool {
	for _, cond := range c {
		if !cond.matches(doc) {
			return false
		}
	}
	return true
}

func (c Condition) matches(doc map[string]any) bool {
	v, defined := document.Lookup(doc, c.Field)
	switch c.Op {
	case OpNotNull:
		return defined && v != nil
	case OpIsNull:
		return !defined || v == nil
	}
	if !defined {
		return false
	}
	switch c.Op {
	case OpEq:
		return document.Equal(v, document.Normalize(c.Value))
	case OpNe:
		return !document.Equal(v, document.Normalize(c.Value))
	case OpLt, OpLte, OpGt, OpGte:
		want := document.Normalize(c.Value)
		if !sameScalar(v, want) {
			return false
		}
		cmp := document.Compare(v, true, want, true)
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpIn:
		for _, want := range c.Values() {
			if document.Equal(v, document.Normalize(want)) {
				return true
			}
		}
		return false
	case OpContains, OpStartsWith:
		s, ok := v.(string)
		sub, subOK := c.Value.(string)
		if !ok || !subOK {
			return false
		}
		if c.Op == OpContains {
			return strings.Contains(s, sub)
		}
		return strings.HasPrefix(s, sub)
	}
	return false
}

// Range comparisons only hold between values of the same scalar type.
func sameScalar(a, b any) bool {
	switch a.(type) {
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return false
}
