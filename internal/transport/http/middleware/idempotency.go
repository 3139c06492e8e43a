package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"hrmprivacy/internal/platform/storage"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyStore remembers the response of a create call per actor,
// endpoint and Idempotency-Key so a retried request replays it.
type IdempotencyStore struct {
	gateway storage.Gateway
	now     func() time.Time
}

func NewIdempotencyStore(gateway storage.Gateway) *IdempotencyStore {
	return &IdempotencyStore{gateway: gateway, now: time.Now}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, actorID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.gateway == nil || key == "" {
		return nil, false, nil
	}
	rows, err := s.gateway.Select(ctx, storage.TableIdempotencyKeys,
		storage.Eq("actor_id", actorID),
		storage.Eq("endpoint", endpoint),
		storage.Eq("idempotency_key", key),
	)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	if rows[0].Str("request_hash") != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return json.RawMessage(rows[0].Str("response_json")), true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, actorID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.gateway == nil || key == "" {
		return nil
	}
	_, err := s.gateway.Insert(ctx, storage.TableIdempotencyKeys, storage.Row{
		"actor_id":        actorID,
		"endpoint":        endpoint,
		"idempotency_key": key,
		"request_hash":    requestHash,
		"response_json":   string(response),
		"created_at":      s.now().UTC(),
	})
	return err
}
