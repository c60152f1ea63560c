package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/jobs"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/rs/zerolog"
)

// JobService is the job management surface exposed over HTTP.
type JobService interface {
	CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
	JobDeals(ctx context.Context, id string) ([]models.ProductRecord, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// PageExtractor runs one detail page cycle.
type PageExtractor interface {
	Extract(ctx context.Context, url string) models.PageOutcome
}

type Handlers struct {
	extractor PageExtractor
	jobs      JobService
	logger    zerolog.Logger
}

func NewHandlers(extractor PageExtractor, jobs JobService, logger zerolog.Logger) *Handlers {
	return &Handlers{
		extractor: extractor,
		jobs:      jobs,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type ExtractRequest struct {
	URL     string `json:"url"`
	Article string `json:"article"`
}

// Extract runs a single product page extraction and returns its outcome.
// Non-success outcomes are still 200: the outcome kind is the answer.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	url := req.URL
	if url == "" && req.Article != "" {
		url = parser.ProductURL(req.Article)
	}
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "either url or article is required")
		return
	}
	if !parser.IsProductURL(url) {
		h.respondError(w, http.StatusBadRequest, "url is not a product detail page")
		return
	}

	outcome := h.extractor.Extract(r.Context(), url)
	if !outcome.IsSuccess() {
		h.logger.Warn().Str("url", url).Str("kind", string(outcome.Kind)).Str("message", outcome.Message).Msg("extraction did not succeed")
	}

	h.respondJSON(w, http.StatusOK, outcome)
}

type CreateJobResponse struct {
	JobID   string           `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var spec models.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), spec)
	if errors.Is(err, jobs.ErrInvalidSpec) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create job")
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondLookupError(w, err, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	list, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list jobs")
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

// GetJobDeals returns the deals found by a job, largest discount difference
// first, each with its discount_difference.
func (h *Handlers) GetJobDeals(w http.ResponseWriter, r *http.Request) {
	records, err := h.jobs.JobDeals(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondLookupError(w, err, "failed to get deals")
		return
	}

	type deal struct {
		models.ProductRecord
		DiscountDifference float64 `json:"discount_difference"`
	}
	out := make([]deal, len(records))
	for i, rec := range records {
		out[i] = deal{ProductRecord: rec, DiscountDifference: rec.DiscountDifference()}
	}

	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get stats")
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Health reports ok unless the outbox backlog looks stuck.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	status := http.StatusOK

	stats, err := h.jobs.Stats(r.Context())
	switch {
	case err != nil:
		body["status"] = "error"
		body["message"] = "database unavailable"
		status = http.StatusServiceUnavailable
	case stats.Outbox.DeadLetter > 100:
		body["status"] = "error"
		body["message"] = "High number of dead letter events"
		body["outbox"] = stats.Outbox
		status = http.StatusServiceUnavailable
	case stats.Outbox.Pending > 1000:
		body["status"] = "warning"
		body["message"] = "High number of pending outbox events"
		body["outbox"] = stats.Outbox
	default:
		body["outbox"] = stats.Outbox
	}

	h.respondJSON(w, status, body)
}

func (h *Handlers) respondLookupError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.logger.Error().Err(err).Msg(msg)
	h.respondError(w, http.StatusInternalServerError, msg)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
