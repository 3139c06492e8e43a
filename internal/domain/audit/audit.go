package audit

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"hrmprivacy/internal/platform/storage"
	"hrmprivacy/internal/requestctx"
)

// Event is one structured audit record. AdditionalContext is stored as JSON.
type Event struct {
	ID                string         `json:"id,omitempty"`
	EventType         string         `json:"eventType"`
	TableName         string         `json:"tableName"`
	RecordID          string         `json:"recordId"`
	AdditionalContext map[string]any `json:"additionalContext,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Sink accepts audit events.
type Sink interface {
	LogEvent(ctx context.Context, evt Event) error
}

type Filter struct {
	EventType string
	TableName string
	RecordID  string
}

// Service persists events to data_access_audit_log through the storage
// gateway. Engine events carry no employee_id so they never show up in a
// subject's own access history.
type Service struct {
	gateway storage.Gateway
	now     func() time.Time
}

func New(gateway storage.Gateway) *Service {
	return &Service{gateway: gateway, now: time.Now}
}

func (s *Service) LogEvent(ctx context.Context, evt Event) error {
	if s == nil || s.gateway == nil {
		return errors.New("audit store unavailable")
	}
	if strings.TrimSpace(evt.EventType) == "" {
		return errors.New("audit event type is required")
	}
	details := make(map[string]any, len(evt.AdditionalContext)+1)
	for k, v := range evt.AdditionalContext {
		details[k] = v
	}
	if requestID := requestctx.GetRequestID(ctx); requestID != "" {
		details["requestId"] = requestID
	}
	row := storage.Row{
		"event_type": evt.EventType,
		"table_name": evt.TableName,
		"record_id":  evt.RecordID,
		"details":    details,
		"created_at": s.now().UTC(),
	}
	if actor := requestctx.GetActorID(ctx); actor != "" {
		row["accessed_by"] = actor
	}
	_, err := s.gateway.Insert(ctx, storage.TableAccessAuditLog, row)
	return err
}

// List returns engine events newest first.
func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, int, error) {
	preds := []storage.Predicate{storage.IsNull("employee_id"), storage.NotNull("event_type")}
	if filter.EventType != "" {
		preds = append(preds, storage.Eq("event_type", filter.EventType))
	}
	if filter.TableName != "" {
		preds = append(preds, storage.Eq("table_name", filter.TableName))
	}
	if filter.RecordID != "" {
		preds = append(preds, storage.Eq("record_id", filter.RecordID))
	}
	rows, err := s.gateway.Select(ctx, storage.TableAccessAuditLog, preds...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, Event{
			ID:                row.Str("id"),
			EventType:         row.Str("event_type"),
			TableName:         row.Str("table_name"),
			RecordID:          row.Str("record_id"),
			AdditionalContext: row.Map("details"),
			CreatedAt:         row.Time("created_at"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset > 0 {
		if offset >= len(out) {
			return []Event{}, total, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}
