package storage

import (
	"fmt"
	"time"
)

type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpIn      Op = "in"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Predicate is a single column filter. Predicates passed together are ANDed.
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Predicate  { return Predicate{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Predicate { return Predicate{Column: column, Op: OpNeq, Value: value} }
func Lt(column string, value any) Predicate  { return Predicate{Column: column, Op: OpLt, Value: value} }
func Lte(column string, value any) Predicate { return Predicate{Column: column, Op: OpLte, Value: value} }
func Gt(column string, value any) Predicate  { return Predicate{Column: column, Op: OpGt, Value: value} }
func Gte(column string, value any) Predicate { return Predicate{Column: column, Op: OpGte, Value: value} }
func IsNull(column string) Predicate         { return Predicate{Column: column, Op: OpIsNull} }
func NotNull(column string) Predicate        { return Predicate{Column: column, Op: OpNotNull} }

// In matches rows whose column equals one of values. An empty list matches nothing.
func In(column string, values []string) Predicate {
	copied := make([]string, len(values))
	copy(copied, values)
	return Predicate{Column: column, Op: OpIn, Value: copied}
}

func (p Predicate) String() string {
	switch p.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", p.Column, p.Op)
	default:
		return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
	}
}

// Match evaluates the predicate against row in memory.
func (p Predicate) Match(row Row) bool {
	value, present := row[p.Column]
	isNull := !present || value == nil
	switch p.Op {
	case OpIsNull:
		return isNull
	case OpNotNull:
		return !isNull
	}
	if isNull {
		return false
	}
	switch p.Op {
	case OpIn:
		values, _ := p.Value.([]string)
		current := row.Str(p.Column)
		for _, candidate := range values {
			if candidate == current {
				return true
			}
		}
		return false
	case OpEq:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp == 0
	case OpNeq:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp != 0
	case OpLt:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp <= 0
	case OpGt:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compareValues(value, p.Value)
		return ok && cmp >= 0
	}
	return false
}

func compareValues(a, b any) (int, bool) {
	if b == nil {
		return 0, false
	}
	if bt, ok := b.(time.Time); ok {
		at, ok := asTime(a)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if bb, ok := b.(bool); ok {
		ab, ok := asBool(a)
		if !ok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		if !ab {
			return -1, true
		}
		return 1, true
	}
	if bf, ok := asFloat(b); ok {
		af, ok := asFloat(a)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	}
	return 0, true
}
