package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"contentscore/internal/config"
	"contentscore/internal/core/job"
	"contentscore/internal/core/result"
	"contentscore/internal/core/usage"
	"contentscore/internal/utils/parser"
)

type StatusReader interface {
	GetJobStatus(ctx context.Context, jobID string) (*job.Job, error)
}

type Handler struct {
	batch *Service
	jobs  StatusReader
}

func NewHandler(batch *Service, jobs StatusReader) *Handler {
	return &Handler{batch: batch, jobs: jobs}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ScoreQuery struct {
	URL string `form:"url"`
}

type ScoreResponse struct {
	Success bool           `json:"success"`
	Result  result.Record  `json:"result"`
	Usage   usage.Snapshot `json:"usage"`
}

type CreateRunResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
}

type RunStatusResponse struct {
	Success bool         `json:"success"`
	RunID   string       `json:"run_id"`
	Status  job.Status   `json:"status"`
	Error   string       `json:"error,omitempty"`
	Data    *job.Summary `json:"data,omitempty"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorResponse{Success: false, Error: msg})
}

// HandleScore scores one URL synchronously.
func (h *Handler) HandleScore(c *fiber.Ctx) error {
	var q ScoreQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if !strings.HasPrefix(q.URL, "http://") && !strings.HasPrefix(q.URL, "https://") {
		return fail(c, fiber.StatusBadRequest, "url must be an absolute http(s) URL")
	}
	rec, stats := h.batch.ScoreOne(c.Context(), q.URL)
	return c.JSON(ScoreResponse{Success: rec.Succeeded(), Result: rec, Usage: stats})
}

func (h *Handler) HandleCreateRun(c *fiber.Ctx) error {
	var req Request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid body")
		}
	}
	id, err := h.batch.Enqueue(c.Context(), req)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(CreateRunResponse{Success: true, RunID: id})
}

func (h *Handler) HandleGetRun(c *fiber.Ctx) error {
	id := c.Params("runId")
	j, err := h.jobs.GetJobStatus(c.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "not_found")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(RunStatusResponse{Success: true, RunID: id, Status: j.Status, Error: j.Error, Data: j.Summary})
}
