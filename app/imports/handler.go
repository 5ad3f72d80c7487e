package imports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pcparts/partsdb/app/api"
	"github.com/pcparts/partsdb/importer"
	"github.com/pcparts/partsdb/models"
	"go.uber.org/zap"
)

// RunResponse is the stored audit record of an import.
type RunResponse struct {
	ID          uuid.UUID            `json:"id"`
	Category    string               `json:"category"`
	Source      string               `json:"source"`
	Status      string               `json:"status"`
	Total       int                  `json:"total"`
	Created     int                  `json:"created"`
	Updated     int                  `json:"updated"`
	Unchanged   int                  `json:"unchanged"`
	Skipped     int                  `json:"skipped"`
	Errors      []models.RecordIssue `json:"errors"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, category string) (*importer.Summary, error)
}

type RunProvider interface {
	List(ctx context.Context, limit int) ([]models.ImportRun, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
}

type ImportHandler struct {
	runner Runner
	runs   RunProvider
	logger *zap.Logger
}

func NewImportHandler(runner Runner, runs RunProvider, logger *zap.Logger) *ImportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportHandler{runner: runner, runs: runs, logger: logger}
}

// HandleRun imports a category synchronously and returns the summary.
func (h *ImportHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	summary, err := h.runner.Run(r.Context(), category)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrUnsupportedCategory):
			api.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, importer.ErrImportInProgress):
			api.WriteError(w, http.StatusConflict, err.Error())
		case errors.Is(err, importer.ErrSourceUnavailable):
			api.WriteError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Error("Import failed", zap.String("category", category), zap.Error(err))
			api.WriteError(w, http.StatusInternalServerError, "import failed")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, summary)
}

func (h *ImportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := api.Clamp(api.QueryInt(r, "limit", 20), 1, 100)

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "failed to list import runs")
		return
	}

	response := make([]RunResponse, len(runs))
	for i := range runs {
		response[i] = toRunResponse(&runs[i])
	}
	api.WriteJSON(w, http.StatusOK, response)
}

func (h *ImportHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "Import run not found")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrImportRunNotFound) {
			api.WriteError(w, http.StatusNotFound, "Import run not found")
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "failed to get import run")
		return
	}

	api.WriteJSON(w, http.StatusOK, toRunResponse(run))
}

func toRunResponse(run *models.ImportRun) RunResponse {
	issues := []models.RecordIssue(run.ErrorDetails)
	if issues == nil {
		issues = []models.RecordIssue{}
	}
	return RunResponse{
		ID:          run.ID,
		Category:    run.Category,
		Source:      run.Source,
		Status:      string(run.Status),
		Total:       run.Total,
		Created:     run.Created,
		Updated:     run.Updated,
		Unchanged:   run.Unchanged,
		Skipped:     run.Skipped,
		Errors:      issues,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}
