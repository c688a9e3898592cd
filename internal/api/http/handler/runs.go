package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/EternisAI/silo-provisioner/internal/api/http/dto"
	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/EternisAI/silo-provisioner/internal/results"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Runner interface {
	Execute(ctx context.Context, flavor provisioning.Flavor, src provisioning.Source) (*provisioning.Run, error)
}

// InputSource is an opened workbook.
type InputSource interface {
	provisioning.Source
	Close() error
}

type SourceOpener func(path string) (InputSource, error)

type RunsHandler struct {
	runner       Runner
	store        results.Store
	open         SourceOpener
	defaultInput string
}

func NewRunsHandler(runner Runner, store results.Store, open SourceOpener, defaultInput string) *RunsHandler {
	return &RunsHandler{
		runner:       runner,
		store:        store,
		open:         open,
		defaultInput: defaultInput,
	}
}

// Create runs one batch synchronously.
// POST /api/v1/runs
func (h *RunsHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := req.Path
	if path == "" {
		path = h.defaultInput
	}

	src, err := h.open(path)
	if err != nil {
		slog.Warn("Failed to open input", "path", path, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open input"})
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("Failed to close input", "path", path, "error", err)
		}
	}()

	run, err := h.runner.Execute(c.Request.Context(), provisioning.Flavor(req.Flavor), src)
	if err != nil {
		var authErr *provisioning.AuthError
		if errors.As(err, &authErr) {
			slog.Error("Provisioning aborted", "service", authErr.Service, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "authentication failed for " + authErr.Service})
			return
		}
		slog.Error("Provisioning failed", "flavor", req.Flavor, "path", path, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.NewRunResponse(run))
}

// List returns the most recent runs without entries.
// GET /api/v1/runs?limit=N
func (h *RunsHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunResponse, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, dto.NewRunRecordResponse(r.Summary()))
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one run with its entries.
// GET /api/v1/runs/:id
func (h *RunsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	rec, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, results.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.Error("Failed to get run", "run_id", id.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	c.JSON(http.StatusOK, dto.NewRunRecordResponse(*rec))
}
