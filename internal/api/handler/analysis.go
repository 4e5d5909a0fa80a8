package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/api/response"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// AnalysisService defines the orchestrator operations the analysis handlers use.
type AnalysisService interface {
	CreateAnalysisJob(ctx context.Context, inputRef, intent string) (*models.AnalysisJob, error)
	ListAnalysisJobs(ctx context.Context, inputRef string) ([]*models.AnalysisJob, error)
	GetResult(ctx context.Context, id uuid.UUID) (*models.IntelligenceResult, error)
}

type acceptedJob struct {
	JobID uuid.UUID    `json:"job_id"`
	State models.State `json:"state"`
}

// NewCreateAnalysisHandler returns an http.HandlerFunc for POST /api/v1/analyses.
func NewCreateAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InputRef string `json:"input_ref"`
			Intent   string `json:"intent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			invalidJSON(w)
			return
		}

		job, err := svc.CreateAnalysisJob(r.Context(), req.InputRef, req.Intent)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Accepted(w, acceptedJob{JobID: job.ID, State: job.State})
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses?input_ref=.
func NewListAnalysesHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inputRef := strings.TrimSpace(r.URL.Query().Get("input_ref"))
		if inputRef == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "input_ref is required", nil)
			return
		}

		jobs, err := svc.ListAnalysisJobs(r.Context(), inputRef)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []*models.AnalysisJob{}
		}
		response.Collection(w, jobs, response.PaginationMeta{
			Page:  1,
			Limit: len(jobs),
			Total: len(jobs),
		})
	}
}

// NewGetResultHandler returns an http.HandlerFunc for GET /api/v1/analyses/{jobID}/result.
func NewGetResultHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		result, err := svc.GetResult(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, result)
	}
}
