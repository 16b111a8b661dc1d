package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-finder/internal/backfill"
	"github.com/kozaktomas/face-finder/internal/storage"
)

// Backfiller stores reference embeddings.
type Backfiller interface {
	Run(ctx context.Context, progress backfill.ProgressFunc) (backfill.Result, error)
	Register(ctx context.Context, personID, imageURL string) (int64, error)
}

var errBackfillUnavailable = errors.New("embeddings require DATABASE_URL")

// BackfillHandler handles embedding registration and backfill jobs
type BackfillHandler struct {
	backfiller Backfiller
	jobs       *JobManager
	logger     *slog.Logger
}

// NewBackfillHandler creates a backfill handler. backfiller may be nil when
// no database is configured.
func NewBackfillHandler(backfiller Backfiller, jobs *JobManager, logger *slog.Logger) *BackfillHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillHandler{backfiller: backfiller, jobs: jobs, logger: logger}
}

// Start launches a backfill job and returns its ID.
func (h *BackfillHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.backfiller == nil {
		respondError(w, http.StatusServiceUnavailable, errBackfillUnavailable.Error())
		return
	}

	// The job outlives the request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	job, running := h.jobs.StartIfIdle(cancel)
	if running != nil {
		cancel()
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "a backfill is already running",
			"job_id": running.ID,
		})
		return
	}

	go func() {
		defer cancel()
		job.setRunning()
		res, err := h.backfiller.Run(ctx, job.progress)
		if err != nil {
			h.logger.ErrorContext(ctx, "backfill job failed", "job_id", job.ID, "error", err)
		}
		job.finish(res, err)
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// Status reports the progress of a backfill job.
func (h *BackfillHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// RegisterRequest is the body of POST /embeddings.
type RegisterRequest struct {
	PersonID       string `json:"person_id"`
	ImageURL       string `json:"image_url"`
	PersonIDCompat string `json:"personId"`
	ImageURLCompat string `json:"imageUrl"`
}

// Register embeds one image for a person.
func (h *BackfillHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.backfiller == nil {
		respondError(w, http.StatusServiceUnavailable, errBackfillUnavailable.Error())
		return
	}

	var body RegisterRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	personID := firstNonEmpty(body.PersonID, body.PersonIDCompat)
	imageURL := firstNonEmpty(body.ImageURL, body.ImageURLCompat)

	id, err := h.backfiller.Register(r.Context(), personID, imageURL)
	switch {
	case errors.Is(err, backfill.ErrMissingField), errors.Is(err, storage.ErrUnsupportedLocator):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, backfill.ErrPersonNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "embedding registration failed",
			"person_id", sanitizeForLog(personID),
			"image_url", sanitizeForLog(imageURL),
			"error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"embedding_id": id,
	})
}
