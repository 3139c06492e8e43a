package gdpr

import (
	"context"
	"fmt"
	"io"
	"time"

	"hrmprivacy/internal/platform/storage"
)

// Executor applies one erasure method to one table's scope.
type Executor struct {
	gateway storage.Gateway
	store   *Store
	now     func() time.Time
	random  io.Reader
}

func NewExecutor(gateway storage.Gateway, store *Store, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{gateway: gateway, store: store, now: now}
}

// Execute mutates the records of scope and returns how many were actually
// processed. Records under an active legal hold are skipped by the content
// altering methods unless allowOverride is set.
func (e *Executor) Execute(ctx context.Context, scope ErasureScope, method string, allowOverride bool) (int, error) {
	if len(scope.RecordIDs) == 0 {
		return 0, nil
	}
	switch method {
	case MethodHardDelete:
		ids, err := e.unheld(ctx, scope, allowOverride)
		if err != nil || len(ids) == 0 {
			return 0, err
		}
		n, err := e.gateway.Delete(ctx, scope.Table, ids...)
		if err != nil {
			return int(n), fmt.Errorf("delete %s: %w", scope.Table, err)
		}
		return int(n), nil
	case MethodAnonymization:
		ids, err := e.unheld(ctx, scope, allowOverride)
		if err != nil {
			return 0, err
		}
		return e.updateEach(ctx, scope.Table, ids, func(id string) (storage.Row, error) {
			return anonymizedFields(scope.Table, scope.SensitiveFields, id), nil
		})
	case MethodPseudonymization:
		ids, err := e.unheld(ctx, scope, allowOverride)
		if err != nil {
			return 0, err
		}
		return e.updateEach(ctx, scope.Table, ids, func(string) (storage.Row, error) {
			token, err := NewPseudonym(e.now(), e.random)
			if err != nil {
				return nil, err
			}
			return pseudonymizedFields(scope.Table, scope.SensitiveFields, token), nil
		})
	case MethodArchival:
		n, err := e.gateway.UpdateBatch(ctx, scope.Table, scope.RecordIDs, storage.Row{
			"status":          ArchivedStatus,
			"archived_at":     e.now().UTC(),
			"archived_reason": ArchivedReasonErasure,
		})
		if err != nil {
			return int(n), fmt.Errorf("archive %s: %w", scope.Table, err)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
}

func (e *Executor) unheld(ctx context.Context, scope ErasureScope, allowOverride bool) ([]string, error) {
	if allowOverride {
		return scope.RecordIDs, nil
	}
	held, err := e.store.HeldRecordIDs(ctx, scope.Table, scope.RecordIDs)
	if err != nil {
		return nil, fmt.Errorf("load legal holds for %s: %w", scope.Table, err)
	}
	ids := make([]string, 0, len(scope.RecordIDs))
	for _, id := range scope.RecordIDs {
		if !held[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (e *Executor) updateEach(ctx context.Context, table string, ids []string, fields func(id string) (storage.Row, error)) (int, error) {
	processed := 0
	for _, id := range ids {
		values, err := fields(id)
		if err != nil {
			return processed, err
		}
		if len(values) == 0 {
			processed++
			continue
		}
		if err := e.gateway.Update(ctx, table, id, values); err != nil {
			return processed, fmt.Errorf("update %s/%s: %w", table, id, err)
		}
		processed++
	}
	return processed, nil
}

func anonymizedFields(table string, fields []string, recordID string) storage.Row {
	out := make(storage.Row, len(fields))
	for _, field := range fields {
		switch fieldKind(table, field) {
		case KindName, KindText:
			out[field] = "Anonymized"
		case KindEmail:
			out[field] = fmt.Sprintf("anonymized+%s@example.local", recordID)
		case KindIdentifier:
			out[field] = "REDACTED"
		case KindDate:
			out[field] = nil
		case KindNumeric:
			out[field] = float64(0)
		}
	}
	return out
}

// pseudonymizedFields leaves numeric fields untouched.
func pseudonymizedFields(table string, fields []string, token string) storage.Row {
	out := make(storage.Row, len(fields))
	for _, field := range fields {
		switch fieldKind(table, field) {
		case KindName, KindIdentifier, KindText:
			out[field] = token
		case KindEmail:
			out[field] = token + "@pseudonym.local"
		case KindDate:
			out[field] = nil
		}
	}
	return out
}
