package storage

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrNotFound     = errors.New("row not found")
	ErrInvalidQuery = errors.New("invalid query")
)

// Error reports a failed gateway operation.
type Error struct {
	Backend   string // "memory", "sqlite" or "postgres"
	Operation string // "select", "insert", "update", "update_batch", "delete"
	Table     string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s, table=%s]: %v", e.Backend, e.Operation, e.Table, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func wrapErr(backend, op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Backend: backend, Operation: op, Table: table, Cause: err}
}
