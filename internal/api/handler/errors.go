package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/api/response"
	"github.com/kiranshivaraju/matchintel/internal/orchestrator"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// writeServiceError maps an orchestrator error onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *orchestrator.ValidationError
		notReady *orchestrator.ResultNotReadyError
		failed   *orchestrator.ResultFailedError
	)
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED",
			"Request validation failed", map[string]string{verr.Field: verr.Reason})
	case errors.Is(err, orchestrator.ErrDuplicateActiveJob):
		response.Error(w, http.StatusConflict, "DUPLICATE_ACTIVE_JOB",
			"An analysis for this input is already pending or processing", nil)
	case errors.Is(err, orchestrator.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
			"The job cannot make that transition", nil)
	case errors.As(err, &notReady):
		response.Error(w, http.StatusConflict, "RESULT_NOT_READY",
			"The job has not completed yet", map[string]models.State{"state": notReady.State})
	case errors.As(err, &failed):
		response.Error(w, http.StatusConflict, "ANALYSIS_FAILED",
			failed.Info.Message, map[string]models.ErrorInfo{"error": failed.Info})
	case errors.Is(err, models.ErrVideoStorageUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "VIDEO_STORAGE_UNAVAILABLE",
			"Video readiness could not be determined", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// jobIDParam parses the {jobID} URL parameter, writing a 400 when malformed.
func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func invalidJSON(w http.ResponseWriter) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
}
