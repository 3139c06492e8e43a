package gdprhandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hrmprivacy/internal/domain/auth"
	"hrmprivacy/internal/domain/gdpr"
	"hrmprivacy/internal/platform/jobs"
	"hrmprivacy/internal/transport/http/api"
	"hrmprivacy/internal/transport/http/middleware"
	"hrmprivacy/internal/transport/http/shared"
)

// selfServiceOnly reports whether the caller may only see their own exports.
func selfServiceOnly(user auth.UserContext) bool {
	return !auth.HasPermission(user.RoleName, auth.PermExportWrite)
}

func (h *Handler) handleListExports(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	subjectID := trimmedQuery(r, "subjectId")
	if selfServiceOnly(user) {
		subjectID = user.UserID
	}
	exports, err := h.Service.ListExportRequests(r.Context(), subjectID, trimmedQuery(r, "status"))
	if err != nil {
		writeError(w, r, err, "export_list_failed")
		return
	}

	shared.SetTotalCount(w, len(exports))
	api.Success(w, shared.Page(exports, shared.ParsePagination(r, 100, 500)), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	var payload gdpr.CreateExportInput
	if !decode(w, r, &payload) {
		return
	}

	v := shared.NewValidator()
	v.Required("subjectId", payload.SubjectID, "is required")
	v.Enum("exportFormat", payload.ExportFormat, gdpr.ExportFormats(), "must be json, csv or pdf")
	v.Enum("exportScope", payload.ExportScope, gdpr.ExportScopes(), "must be a supported export scope")
	if payload.ExpiryDays < 0 {
		v.Add("expiryDays", "must not be negative")
	}
	if v.Reject(w, reqID) {
		return
	}
	payload.RequesterID = user.UserID

	req, err := h.Service.CreateExportRequest(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "export_create_failed")
		return
	}
	api.Created(w, req, reqID)
}

func (h *Handler) handleGetExport(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	req, err := h.Service.GetExportRequest(r.Context(), chi.URLParam(r, "exportID"))
	if err == nil && selfServiceOnly(user) && req.SubjectID != user.UserID {
		err = gdpr.ErrExportNotFound
	}
	if err != nil {
		writeError(w, r, err, "export_get_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleProcessExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "exportID")
	if _, err := h.Service.GetExportRequest(r.Context(), id); err != nil {
		writeError(w, r, err, "export_process_failed")
		return
	}
	if isAsync(r) {
		h.accepted(w, r, jobs.JobExportProcess, id, func(ctx context.Context) (any, error) {
			return nil, h.Service.ProcessExportRequest(ctx, id)
		})
		return
	}

	runErr := h.Service.ProcessExportRequest(r.Context(), id)
	req, err := h.Service.GetExportRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "export_process_failed")
		return
	}
	if runErr != nil && req.Status != gdpr.ExportStatusFailed {
		writeError(w, r, runErr, "export_process_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.CancelExportRequest(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		writeError(w, r, err, "export_cancel_failed")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.Service.OpenExport(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		writeError(w, r, err, "export_download_failed")
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(file.Data); err != nil {
		slog.Warn("export download write failed", "err", err)
	}
}

func (h *Handler) handleCleanupExports(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.CleanupExpiredExports(r.Context())
	if err != nil {
		slog.Warn("export cleanup incomplete", "expired", n, "err", err)
		api.FailWithDetails(w, http.StatusInternalServerError, "export_cleanup_failed", "export cleanup incomplete",
			map[string]int{"expired": n}, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]int{"expired": n}, middleware.GetRequestID(r.Context()))
}
