package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchintel/internal/api/response"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// ExportService defines the orchestrator operations the export handlers use.
type ExportService interface {
	CreateExportJob(ctx context.Context, analysisRef uuid.UUID, exportType models.ExportType, opts *models.ExportOptions) (*models.ExportJob, error)
	ListExportJobs(ctx context.Context, analysisRef uuid.UUID) ([]*models.ExportJob, error)
	GetExport(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
	OpenArtifact(ctx context.Context, id uuid.UUID) (*os.File, *models.ArtifactRef, error)
}

// NewCreateExportHandler returns an http.HandlerFunc for POST /api/v1/exports.
// Options omitted from the body keep their default values.
func NewCreateExportHandler(svc ExportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AnalysisRef string          `json:"analysis_ref"`
			ExportType  string          `json:"export_type"`
			Options     json.RawMessage `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			invalidJSON(w)
			return
		}

		analysisRef, err := uuid.Parse(strings.TrimSpace(req.AnalysisRef))
		if err != nil {
			response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED",
				"Request validation failed", map[string]string{"analysis_ref": "must be a valid UUID"})
			return
		}

		var opts *models.ExportOptions
		if len(req.Options) > 0 && string(req.Options) != "null" {
			o := models.DefaultExportOptions()
			if err := json.Unmarshal(req.Options, &o); err != nil {
				invalidJSON(w)
				return
			}
			opts = &o
		}

		job, err := svc.CreateExportJob(r.Context(), analysisRef, models.ExportType(req.ExportType), opts)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Accepted(w, acceptedJob{JobID: job.ID, State: job.State})
	}
}

// NewListExportsHandler returns an http.HandlerFunc for GET /api/v1/exports?analysis_ref=.
func NewListExportsHandler(svc ExportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisRef, err := uuid.Parse(r.URL.Query().Get("analysis_ref"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "analysis_ref must be a valid UUID", nil)
			return
		}

		jobs, err := svc.ListExportJobs(r.Context(), analysisRef)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []*models.ExportJob{}
		}
		response.Collection(w, jobs, response.PaginationMeta{
			Page:  1,
			Limit: len(jobs),
			Total: len(jobs),
		})
	}
}

// NewGetExportHandler returns an http.HandlerFunc for GET /api/v1/exports/{jobID}.
func NewGetExportHandler(svc ExportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.GetExport(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewDownloadExportHandler returns an http.HandlerFunc for
// GET /api/v1/exports/{jobID}/download. It streams the rendered artifact.
func NewDownloadExportHandler(svc ExportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		f, ref, err := svc.OpenArtifact(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		defer f.Close()

		response.Download(w, ref.ContentType, id.String()+path.Ext(ref.Path), ref.SizeBytes, f)
	}
}
