package handlers

import (
	"context"
	"net/http"

	"collection-runner/internal/models"
	"collection-runner/internal/runner"
	"collection-runner/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type RunHandler struct {
	store    *store.Store
	registry *runner.Registry
	// base is the parent context of every run; runs outlive the HTTP request
	// that started them and end when base is cancelled.
	base context.Context
}

func NewRunHandler(base context.Context, s *store.Store, registry *runner.Registry) *RunHandler {
	return &RunHandler{
		store:    s,
		registry: registry,
		base:     base,
	}
}

// StartRunRequest represents the request body for starting a folder run
type StartRunRequest struct {
	Environment string `json:"environment"`
	StopOnError bool   `json:"stop_on_error"`
}

// StartRun handles POST /folders/:id/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	var req StartRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request body",
			})
			return
		}
	}

	env, ok := environmentParam(c, req.Environment)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	folder, err := h.store.GetFolder(ctx, c.Param("id"))
	if err != nil {
		storeError(c, err, "Folder")
		return
	}

	vars, err := h.store.GetEnvironment(ctx, folder.ProjectID, env)
	if err != nil {
		storeError(c, err, "Project")
		return
	}

	ctrl, err := h.registry.Start(h.base, folder.ID, runner.Options{
		Requests:    folder.Requests,
		Environment: env,
		Variables:   vars,
		StopOnError: req.StopOnError,
	})
	switch {
	case errors.Is(err, runner.ErrEmptyCollection):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "empty_collection",
			Message: "Folder has no requests to run",
		})
		return
	case errors.Is(err, runner.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "already_running",
			Message: "A run for this folder is already in progress",
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "run_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, ctrl.Status())
}

// GetRun handles GET /runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	ctrl, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Run not found",
		})
		return
	}
	c.JSON(http.StatusOK, ctrl.Status())
}

// CancelRun handles POST /runs/:id/cancel. The request in flight finishes;
// it and everything after it are reported as skipped.
func (h *RunHandler) CancelRun(c *gin.Context) {
	ctrl, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Run not found",
		})
		return
	}

	ctrl.Cancel()
	c.JSON(http.StatusAccepted, ctrl.Status())
}
