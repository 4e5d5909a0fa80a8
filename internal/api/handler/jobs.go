package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/api/response"
	"github.com/kiranshivaraju/matchintel/internal/orchestrator"
)

// JobService defines the kind-agnostic job operations.
type JobService interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*orchestrator.Status, error)
	Cancel(ctx context.Context, id uuid.UUID) (*orchestrator.Status, error)
}

// NewGetStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		status, err := svc.GetStatus(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, status)
	}
}

// NewCancelHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
// Cancelling a finished job is not an error; the current status is returned.
func NewCancelHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		status, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, status)
	}
}
