package gdpr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"hrmprivacy/internal/platform/storage"
)

func validatePolicyInput(in PolicyInput) error {
	if !slices.Contains(PolicyTypes(), in.PolicyType) {
		return fmt.Errorf("%w: %q", ErrInvalidPolicyType, in.PolicyType)
	}
	if in.RetentionPeriodMonths <= 0 {
		return fmt.Errorf("%w: retentionPeriodMonths must be positive", ErrInvalidInput)
	}
	return nil
}

func (s *Service) newPolicy(in PolicyInput) RetentionPolicy {
	p := RetentionPolicy{
		ID:                    uuid.NewString(),
		PolicyType:            in.PolicyType,
		RetentionPeriodMonths: in.RetentionPeriodMonths,
		AutoDelete:            in.AutoDelete,
		LegalHoldOverride:     in.LegalHoldOverride,
		Description:           strings.TrimSpace(in.Description),
		Status:                PolicyStatusActive,
		CreatedAt:             s.utcNow(),
	}
	if scopeID := strings.TrimSpace(in.ScopeID); scopeID != "" {
		p.ScopeID = &scopeID
	}
	return p
}

// CreatePolicy adds the first active policy for a type. Changing an existing
// policy goes through UpdatePolicy.
func (s *Service) CreatePolicy(ctx context.Context, in PolicyInput) (RetentionPolicy, error) {
	in.PolicyType = strings.TrimSpace(in.PolicyType)
	if err := validatePolicyInput(in); err != nil {
		return RetentionPolicy{}, err
	}
	active, err := s.store.ListPolicies(ctx,
		storage.Eq("policy_type", in.PolicyType),
		storage.Eq("status", PolicyStatusActive),
	)
	if err != nil {
		return RetentionPolicy{}, err
	}
	if len(active) > 0 {
		return RetentionPolicy{}, fmt.Errorf("%w: policy %s is already active for %s", ErrInvalidState, active[0].ID, in.PolicyType)
	}
	p := s.newPolicy(in)
	if _, err := s.store.CreatePolicy(ctx, p); err != nil {
		return RetentionPolicy{}, err
	}
	s.logEvent(ctx, EventPolicyCreated, storage.TableRetentionPolicies, p.ID, map[string]any{
		"policyType":            p.PolicyType,
		"retentionPeriodMonths": p.RetentionPeriodMonths,
		"autoDelete":            p.AutoDelete,
	})
	return p, nil
}

// UpdatePolicy replaces an active policy with a new version and marks the old
// one superseded. Jobs keep pointing at the version they were scheduled from.
func (s *Service) UpdatePolicy(ctx context.Context, id string, in PolicyInput) (RetentionPolicy, error) {
	old, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return RetentionPolicy{}, err
	}
	if old.Status != PolicyStatusActive {
		return RetentionPolicy{}, fmt.Errorf("%w: policy %s is %s", ErrInvalidState, old.ID, old.Status)
	}
	in.PolicyType = strings.TrimSpace(in.PolicyType)
	if in.PolicyType == "" {
		in.PolicyType = old.PolicyType
	}
	if in.PolicyType != old.PolicyType {
		return RetentionPolicy{}, fmt.Errorf("%w: policy type cannot change", ErrInvalidInput)
	}
	if err := validatePolicyInput(in); err != nil {
		return RetentionPolicy{}, err
	}
	next := s.newPolicy(in)
	if _, err := s.store.CreatePolicy(ctx, next); err != nil {
		return RetentionPolicy{}, err
	}
	if err := s.store.UpdatePolicy(ctx, old.ID, storage.Row{
		"status":        PolicyStatusSuperseded,
		"superseded_by": next.ID,
	}); err != nil {
		return RetentionPolicy{}, err
	}
	s.logEvent(ctx, EventPolicySuperseded, storage.TableRetentionPolicies, old.ID, map[string]any{
		"policyType":   old.PolicyType,
		"supersededBy": next.ID,
		"fromMonths":   old.RetentionPeriodMonths,
		"toMonths":     next.RetentionPeriodMonths,
	})
	return next, nil
}

func (s *Service) GetPolicy(ctx context.Context, id string) (RetentionPolicy, error) {
	return s.store.GetPolicy(ctx, id)
}

func (s *Service) ListPolicies(ctx context.Context, includeSuperseded bool) ([]RetentionPolicy, error) {
	if includeSuperseded {
		return s.store.ListPolicies(ctx)
	}
	return s.store.ListPolicies(ctx, storage.Eq("status", PolicyStatusActive))
}

// SeedPolicies creates policies for types that have no active policy yet and
// returns how many were added.
func (s *Service) SeedPolicies(ctx context.Context, seeds []PolicyInput) (int, error) {
	created := 0
	for _, seed := range seeds {
		_, err := s.CreatePolicy(ctx, seed)
		if errors.Is(err, ErrInvalidState) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s policy: %w", seed.PolicyType, err)
		}
		created++
	}
	return created, nil
}

func (s *Service) ScheduleRetentionJob(ctx context.Context, policyID string, scheduledDate time.Time) (RetentionJob, error) {
	return s.retention.ScheduleJob(ctx, policyID, scheduledDate)
}

func (s *Service) ExecuteRetentionJob(ctx context.Context, jobID string) error {
	return s.retention.ExecuteJob(ctx, jobID)
}

func (s *Service) CancelRetentionJob(ctx context.Context, jobID string) (RetentionJob, error) {
	return s.retention.CancelJob(ctx, jobID)
}

func (s *Service) GetRetentionJob(ctx context.Context, jobID string) (RetentionJob, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *Service) ListRetentionJobs(ctx context.Context, policyID string) ([]RetentionJob, error) {
	return s.store.ListJobs(ctx, strings.TrimSpace(policyID))
}

// RunAutomaticRetention schedules and runs one job for every active policy
// with AutoDelete set. A failing policy does not stop the others.
func (s *Service) RunAutomaticRetention(ctx context.Context) (int, error) {
	policies, err := s.store.ListPolicies(ctx,
		storage.Eq("status", PolicyStatusActive),
		storage.Eq("auto_delete", true),
	)
	if err != nil {
		return 0, err
	}
	ran := 0
	var errs []error
	for _, p := range policies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		job, err := s.retention.ScheduleJob(ctx, p.ID, time.Time{})
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", p.PolicyType, err))
			continue
		}
		ran++
		if err := s.retention.ExecuteJob(ctx, job.ID); err != nil {
			errs = append(errs, fmt.Errorf("execute %s: %w", p.PolicyType, err))
		}
	}
	return ran, errors.Join(errs...)
}
