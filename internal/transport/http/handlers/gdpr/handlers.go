package gdprhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrmprivacy/internal/domain/auth"
	"hrmprivacy/internal/domain/gdpr"
	"hrmprivacy/internal/platform/jobs"
	"hrmprivacy/internal/requestctx"
	"hrmprivacy/internal/transport/http/api"
	"hrmprivacy/internal/transport/http/middleware"
)

type Handler struct {
	Service     *gdpr.Service
	Perms       middleware.PermissionStore
	Jobs        *jobs.Service
	Idempotency *middleware.IdempotencyStore
}

func NewHandler(service *gdpr.Service, perms middleware.PermissionStore, jobsSvc *jobs.Service, idem *middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Perms: perms, Jobs: jobsSvc, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	require := func(permission string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(permission, h.Perms)
	}
	r.Route("/privacy", func(r chi.Router) {
		r.With(require(auth.PermErasureRead)).Get("/subjects/{subjectID}/scope", h.handleAnalyzeScope)

		r.With(require(auth.PermErasureRead)).Get("/erasure-requests", h.handleListErasure)
		r.With(require(auth.PermErasureWrite)).Post("/erasure-requests", h.handleCreateErasure)
		r.With(require(auth.PermErasureRead)).Get("/erasure-requests/{requestID}", h.handleGetErasure)
		r.With(require(auth.PermErasureWrite)).Post("/erasure-requests/{requestID}/execute", h.handleExecuteErasure)
		r.With(require(auth.PermErasureWrite)).Post("/erasure-requests/{requestID}/resume", h.handleResumeErasure)
		r.With(require(auth.PermErasureWrite)).Post("/erasure-requests/{requestID}/cancel", h.handleCancelErasure)
		r.With(require(auth.PermErasureRead)).Get("/erasure-requests/{requestID}/verification", h.handleVerifyErasure)

		r.With(require(auth.PermExportRead)).Get("/export-requests", h.handleListExports)
		r.With(require(auth.PermExportWrite)).Post("/export-requests", h.handleCreateExport)
		r.With(require(auth.PermExportRead)).Get("/export-requests/{exportID}", h.handleGetExport)
		r.With(require(auth.PermExportWrite)).Post("/export-requests/{exportID}/process", h.handleProcessExport)
		r.With(require(auth.PermExportWrite)).Post("/export-requests/{exportID}/cancel", h.handleCancelExport)
		r.With(require(auth.PermExportDownload)).Get("/export-requests/{exportID}/download", h.handleDownloadExport)
		r.With(require(auth.PermExportWrite)).Post("/exports/cleanup", h.handleCleanupExports)

		r.With(require(auth.PermRetentionRead)).Get("/retention/policies", h.handleListPolicies)
		r.With(require(auth.PermRetentionWrite)).Post("/retention/policies", h.handleCreatePolicy)
		r.With(require(auth.PermRetentionRead)).Get("/retention/policies/{policyID}", h.handleGetPolicy)
		r.With(require(auth.PermRetentionWrite)).Put("/retention/policies/{policyID}", h.handleUpdatePolicy)
		r.With(require(auth.PermRetentionRead)).Get("/retention/policies/{policyID}/expired", h.handleIdentifyExpired)
		r.With(require(auth.PermRetentionRead)).Get("/retention/policies/{policyID}/jobs", h.handleListJobs)
		r.With(require(auth.PermRetentionWrite)).Post("/retention/policies/{policyID}/jobs", h.handleScheduleJob)
		r.With(require(auth.PermRetentionRead)).Get("/retention/jobs/{jobID}", h.handleGetJob)
		r.With(require(auth.PermRetentionWrite)).Post("/retention/jobs/{jobID}/execute", h.handleExecuteJob)
		r.With(require(auth.PermRetentionWrite)).Post("/retention/jobs/{jobID}/cancel", h.handleCancelJob)
		r.With(require(auth.PermRetentionWrite)).Post("/retention/run", h.handleRunRetention)
	})
}

// writeError maps engine errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 with fallbackCode.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, gdpr.ErrRequestNotFound),
		errors.Is(err, gdpr.ErrExportNotFound),
		errors.Is(err, gdpr.ErrPolicyNotFound),
		errors.Is(err, gdpr.ErrJobNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, gdpr.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), reqID)
	case errors.Is(err, gdpr.ErrExportExpired):
		api.Fail(w, http.StatusGone, "export_expired", err.Error(), reqID)
	case errors.Is(err, gdpr.ErrInvalidInput),
		errors.Is(err, gdpr.ErrInvalidMethod),
		errors.Is(err, gdpr.ErrInvalidScope),
		errors.Is(err, gdpr.ErrInvalidPolicyType),
		errors.Is(err, gdpr.ErrUnsupportedFormat):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
	case errors.Is(err, middleware.ErrIdempotencyConflict):
		api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), reqID)
	default:
		slog.Warn("privacy request failed", "code", fallbackCode, "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "request failed", reqID)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func isAsync(r *http.Request) bool {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return async
}

// accepted queues run on the job worker and answers 202, or 503 when the
// queue is full. The job keeps the caller's actor and request id.
func (h *Handler) accepted(w http.ResponseWriter, r *http.Request, jobType, key string, run func(ctx context.Context) (any, error)) {
	reqID := middleware.GetRequestID(r.Context())
	actor := requestctx.GetActorID(r.Context())
	queued := func(ctx context.Context) (any, error) {
		if actor != "" {
			ctx = requestctx.WithActorID(ctx, actor)
		}
		return run(requestctx.WithRequestID(ctx, reqID))
	}
	if h.Jobs == nil || !h.Jobs.Enqueue(jobType, key, queued) {
		api.Fail(w, http.StatusServiceUnavailable, "queue_unavailable", "background queue unavailable", reqID)
		return
	}
	api.Accepted(w, map[string]string{"id": key, "jobType": jobType, "status": "queued"}, reqID)
}

func trimmedQuery(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
