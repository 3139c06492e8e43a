package gdprhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hrmprivacy/internal/domain/gdpr"
	"hrmprivacy/internal/platform/jobs"
	"hrmprivacy/internal/transport/http/api"
	"hrmprivacy/internal/transport/http/middleware"
	"hrmprivacy/internal/transport/http/shared"
)

func validatePolicy(v *shared.Validator, in gdpr.PolicyInput, requireType bool) {
	if requireType {
		v.Required("policyType", in.PolicyType, "is required")
	}
	v.Enum("policyType", in.PolicyType, gdpr.PolicyTypes(), "must be a supported policy type")
	if in.RetentionPeriodMonths <= 0 {
		v.Add("retentionPeriodMonths", "must be positive")
	}
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	includeSuperseded, _ := strconv.ParseBool(r.URL.Query().Get("includeSuperseded"))
	policies, err := h.Service.ListPolicies(r.Context(), includeSuperseded)
	if err != nil {
		writeError(w, r, err, "policy_list_failed")
		return
	}
	api.Success(w, policies, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var payload gdpr.PolicyInput
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	validatePolicy(v, payload, true)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	policy, err := h.Service.CreatePolicy(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "policy_create_failed")
		return
	}
	api.Created(w, policy, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Service.GetPolicy(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, r, err, "policy_get_failed")
		return
	}
	api.Success(w, policy, middleware.GetRequestID(r.Context()))
}

// handleUpdatePolicy supersedes the policy with a new version and returns
// the new one.
func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var payload gdpr.PolicyInput
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	validatePolicy(v, payload, false)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	policy, err := h.Service.UpdatePolicy(r.Context(), chi.URLParam(r, "policyID"), payload)
	if err != nil {
		writeError(w, r, err, "policy_update_failed")
		return
	}
	api.Success(w, policy, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleIdentifyExpired(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Service.GetPolicy(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, r, err, "expired_lookup_failed")
		return
	}
	expired, err := h.Service.Retention().IdentifyExpired(r.Context(), policy.PolicyType, policy.RetentionPeriodMonths)
	if err != nil {
		writeError(w, r, err, "expired_lookup_failed")
		return
	}
	api.Success(w, expired, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "policyID")
	if _, err := h.Service.GetPolicy(r.Context(), policyID); err != nil {
		writeError(w, r, err, "job_list_failed")
		return
	}
	jobList, err := h.Service.ListRetentionJobs(r.Context(), policyID)
	if err != nil {
		writeError(w, r, err, "job_list_failed")
		return
	}
	api.Success(w, jobList, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload struct {
		ScheduledDate string `json:"scheduledDate"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	var scheduled time.Time
	if payload.ScheduledDate != "" {
		v := shared.NewValidator()
		scheduled, _ = v.Date("scheduledDate", payload.ScheduledDate)
		if v.Reject(w, reqID) {
			return
		}
	}
	job, err := h.Service.ScheduleRetentionJob(r.Context(), chi.URLParam(r, "policyID"), scheduled)
	if err != nil {
		writeError(w, r, err, "job_schedule_failed")
		return
	}
	api.Created(w, job, reqID)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Service.GetRetentionJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err, "job_get_failed")
		return
	}
	api.Success(w, job, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExecuteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := h.Service.GetRetentionJob(r.Context(), id); err != nil {
		writeError(w, r, err, "job_execute_failed")
		return
	}
	if isAsync(r) {
		h.accepted(w, r, jobs.JobRetentionExecute, id, func(ctx context.Context) (any, error) {
			return nil, h.Service.ExecuteRetentionJob(ctx, id)
		})
		return
	}

	runErr := h.Service.ExecuteRetentionJob(r.Context(), id)
	job, err := h.Service.GetRetentionJob(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "job_execute_failed")
		return
	}
	if runErr != nil && job.Status != gdpr.JobStatusFailed {
		writeError(w, r, runErr, "job_execute_failed")
		return
	}
	api.Success(w, job, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Service.CancelRetentionJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err, "job_cancel_failed")
		return
	}
	api.Success(w, job, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunRetention(w http.ResponseWriter, r *http.Request) {
	if isAsync(r) {
		h.accepted(w, r, jobs.JobRetentionSweep, "manual", func(ctx context.Context) (any, error) {
			n, err := h.Service.RunAutomaticRetention(ctx)
			return n, err
		})
		return
	}
	n, err := h.Service.RunAutomaticRetention(r.Context())
	if err != nil {
		slog.Warn("retention sweep incomplete", "executed", n, "err", err)
		api.FailWithDetails(w, http.StatusInternalServerError, "retention_run_failed", "retention sweep incomplete",
			map[string]int{"executed": n}, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]int{"executed": n}, middleware.GetRequestID(r.Context()))
}

// decodeOptional accepts an empty body as the zero payload.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
