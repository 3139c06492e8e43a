package gdpr

import (
	"context"
	"log/slog"
	"time"

	"hrmprivacy/internal/domain/audit"
	cryptoutil "hrmprivacy/internal/platform/crypto"
	"hrmprivacy/internal/platform/metrics"
	"hrmprivacy/internal/platform/storage"
)

// Deps wires a Service. Gateway is required; the rest fall back to
// in-process defaults.
type Deps struct {
	Gateway          storage.Gateway
	Audit            audit.Sink
	Locker           SubjectLocker
	Crypto           *cryptoutil.Service
	Metrics          *metrics.Collector
	ExportDir        string
	ExportExpiryDays int
	BatchSize        int
	Now              func() time.Time
}

// Service is the request lifecycle controller. It owns the erasure and
// export request state machines and drives retention jobs.
type Service struct {
	store      *Store
	scope      *ScopeAnalyzer
	executor   *Executor
	retention  *RetentionEngine
	collector  *Collector
	packager   Packager
	audit      audit.Sink
	locker     SubjectLocker
	crypto     *cryptoutil.Service
	metrics    *metrics.Collector
	exportDir  string
	expiryDays int
	now        func() time.Time
	logger     *slog.Logger
}

func NewService(deps Deps) (*Service, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	exportDir := deps.ExportDir
	if exportDir == "" {
		exportDir = "storage/exports"
	}
	expiry := deps.ExportExpiryDays
	if expiry <= 0 {
		expiry = DefaultExportExpiryDays
	}
	exportCrypto, err := deps.Crypto.Derive("exports")
	if err != nil {
		return nil, err
	}
	sink := audit.NewGuarded(deps.Audit, deps.Metrics.AuditFailure)
	store := NewStore(deps.Gateway)
	return &Service{
		store:      store,
		scope:      NewScopeAnalyzer(deps.Gateway),
		executor:   NewExecutor(deps.Gateway, store, now),
		retention:  NewRetentionEngine(deps.Gateway, store, sink, deps.Metrics, deps.BatchSize, now),
		collector:  NewCollector(deps.Gateway, now),
		audit:      sink,
		locker:     locker,
		crypto:     exportCrypto,
		metrics:    deps.Metrics,
		exportDir:  exportDir,
		expiryDays: expiry,
		now:        now,
		logger:     slog.Default().With("component", "privacy.lifecycle"),
	}, nil
}

// AnalyzeScope previews what an erasure for subjectID would touch.
func (s *Service) AnalyzeScope(ctx context.Context, subjectID string) ([]ErasureScope, error) {
	return s.scope.Analyze(ctx, subjectID)
}

// Retention exposes the engine for callers that need expiry previews.
func (s *Service) Retention() *RetentionEngine {
	return s.retention
}

func (s *Service) logEvent(ctx context.Context, eventType, table, recordID string, details map[string]any) {
	s.audit.LogEvent(ctx, audit.Event{
		EventType:         eventType,
		TableName:         table,
		RecordID:          recordID,
		AdditionalContext: details,
	})
}

func (s *Service) utcNow() time.Time {
	return s.now().UTC()
}
