package gdprhandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrmprivacy/internal/domain/gdpr"
	"hrmprivacy/internal/platform/jobs"
	"hrmprivacy/internal/transport/http/api"
	"hrmprivacy/internal/transport/http/middleware"
	"hrmprivacy/internal/transport/http/shared"
)

const endpointErasureCreate = "privacy.erasure.create"

func (h *Handler) handleAnalyzeScope(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.Service.AnalyzeScope(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, r, err, "scope_failed")
		return
	}
	api.Success(w, map[string]any{
		"subjectId":      chi.URLParam(r, "subjectID"),
		"tables":         scopes,
		"affectedTables": len(scopes),
		"totalRecords":   gdpr.CountRecords(scopes),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListErasure(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.ListErasureRequests(r.Context(), trimmedQuery(r, "subjectId"), trimmedQuery(r, "status"))
	if err != nil {
		writeError(w, r, err, "erasure_list_failed")
		return
	}
	api.Success(w, requests, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateErasure(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	var payload gdpr.CreateErasureInput
	if err := json.Unmarshal(raw, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("subjectId", payload.SubjectID, "is required")
	v.Required("erasureMethod", payload.ErasureMethod, "is required")
	v.Enum("erasureMethod", payload.ErasureMethod, gdpr.ErasureMethods(), "must be one of "+strings.Join(gdpr.ErasureMethods(), ", "))
	if v.Reject(w, reqID) {
		return
	}
	payload.RequesterID = user.UserID

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	hash := middleware.RequestHash(raw)
	stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, endpointErasureCreate, key, hash)
	if err != nil {
		writeError(w, r, err, "erasure_create_failed")
		return
	}
	if found {
		api.Created(w, stored, reqID)
		return
	}

	req, err := h.Service.CreateErasureRequest(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "erasure_create_failed")
		return
	}
	if key != "" {
		encoded, err := json.Marshal(req)
		if err == nil {
			err = h.Idempotency.Save(r.Context(), user.UserID, endpointErasureCreate, key, hash, encoded)
		}
		if err != nil {
			slog.Warn("idempotency save failed", "endpoint", endpointErasureCreate, "err", err)
		}
	}
	api.Created(w, req, reqID)
}

func (h *Handler) handleGetErasure(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.GetErasureRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "erasure_get_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExecuteErasure(w http.ResponseWriter, r *http.Request) {
	h.runErasure(w, r, jobs.JobErasureExecute, h.Service.ExecuteErasureRequest)
}

func (h *Handler) handleResumeErasure(w http.ResponseWriter, r *http.Request) {
	h.runErasure(w, r, jobs.JobErasureResume, h.Service.ResumeErasureRequest)
}

// runErasure returns the request as it stands after the run, including a
// rejected or failed outcome. Only state errors surface as HTTP errors.
func (h *Handler) runErasure(w http.ResponseWriter, r *http.Request, jobType string, run func(context.Context, string) error) {
	id := chi.URLParam(r, "requestID")
	if _, err := h.Service.GetErasureRequest(r.Context(), id); err != nil {
		writeError(w, r, err, "erasure_execute_failed")
		return
	}
	if isAsync(r) {
		h.accepted(w, r, jobType, id, func(ctx context.Context) (any, error) {
			return nil, run(ctx, id)
		})
		return
	}

	runErr := run(r.Context(), id)
	req, err := h.Service.GetErasureRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "erasure_execute_failed")
		return
	}
	if runErr != nil && req.Status != gdpr.ErasureStatusFailed {
		writeError(w, r, runErr, "erasure_execute_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelErasure(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.CancelErasureRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "erasure_cancel_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleVerifyErasure(w http.ResponseWriter, r *http.Request) {
	verification, err := h.Service.VerifyErasure(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "erasure_verify_failed")
		return
	}
	api.Success(w, verification, middleware.GetRequestID(r.Context()))
}
