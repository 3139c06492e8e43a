package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func questionPlaceholder(int) string { return "?" }

type sqlBuilder struct {
	ph   placeholder
	args []any
	conv func(any) any
}

func (b *sqlBuilder) bind(v any) string {
	if b.conv != nil {
		v = b.conv(v)
	}
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: bad column name %q", ErrInvalidQuery, name)
	}
	return nil
}

func (b *sqlBuilder) where(preds []Predicate) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(preds))
	for _, p := range preds {
		if err := checkIdent(p.Column); err != nil {
			return "", err
		}
		var clause string
		switch p.Op {
		case OpEq:
			clause = p.Column + " = " + b.bind(p.Value)
		case OpNeq:
			clause = p.Column + " <> " + b.bind(p.Value)
		case OpLt:
			clause = p.Column + " < " + b.bind(p.Value)
		case OpLte:
			clause = p.Column + " <= " + b.bind(p.Value)
		case OpGt:
			clause = p.Column + " > " + b.bind(p.Value)
		case OpGte:
			clause = p.Column + " >= " + b.bind(p.Value)
		case OpIsNull:
			clause = p.Column + " IS NULL"
		case OpNotNull:
			clause = p.Column + " IS NOT NULL"
		case OpIn:
			values, _ := p.Value.([]string)
			clause = b.inList(p.Column, values)
		default:
			return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, p.Op)
		}
		clauses = append(clauses, clause)
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (b *sqlBuilder) inList(column string, values []string) string {
	if len(values) == 0 {
		return "1 = 0"
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = b.bind(v)
	}
	return column + " IN (" + strings.Join(marks, ", ") + ")"
}

func buildSelect(table string, preds []Predicate, ph placeholder, conv func(any) any) (string, []any, error) {
	b := &sqlBuilder{ph: ph, conv: conv}
	where, err := b.where(preds)
	if err != nil {
		return "", nil, err
	}
	return "SELECT * FROM " + table + where + " ORDER BY id", b.args, nil
}

func buildInsert(table string, row Row, ph placeholder, conv func(any) any) (string, []any, error) {
	b := &sqlBuilder{ph: ph, conv: conv}
	cols := sortedColumns(row)
	marks := make([]string, len(cols))
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
		marks[i] = b.bind(row[col])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return query, b.args, nil
}

func buildUpdate(table string, ids []string, fields Row, ph placeholder, conv func(any) any) (string, []any, error) {
	b := &sqlBuilder{ph: ph, conv: conv}
	cols := sortedColumns(fields)
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		if col == "id" {
			continue
		}
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = "+b.bind(fields[col]))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("%w: no columns to update", ErrInvalidQuery)
	}
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + b.inList("id", ids)
	return query, b.args, nil
}

func buildDelete(table string, ids []string, ph placeholder) string {
	b := &sqlBuilder{ph: ph}
	return "DELETE FROM " + table + " WHERE " + b.inList("id", ids)
}

func deleteArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
