package handlers

import (
	"net/http"

	"collection-runner/internal/models"
	"collection-runner/internal/store"

	"github.com/gin-gonic/gin"
)

type EnvironmentHandler struct {
	store *store.Store
}

func NewEnvironmentHandler(s *store.Store) *EnvironmentHandler {
	return &EnvironmentHandler{store: s}
}

// UpdateEnvironmentRequest represents the request body for replacing an environment
type UpdateEnvironmentRequest struct {
	Variables map[string]string `json:"variables"`
}

// BatchUpdateVariablesRequest represents the request body for batch updating environment variables
type BatchUpdateVariablesRequest struct {
	Variables map[string]string `json:"variables" binding:"required"`
}

// EnvironmentResponse is a named variable set of a project.
type EnvironmentResponse struct {
	ProjectID string                 `json:"project_id"`
	Name      models.EnvironmentName `json:"name"`
	Variables map[string]string      `json:"variables"`
}

// GetEnvironment handles GET /projects/:id/environments/:name
func (h *EnvironmentHandler) GetEnvironment(c *gin.Context) {
	name, ok := environmentParam(c, c.Param("name"))
	if !ok {
		return
	}

	vars, err := h.store.GetEnvironment(c.Request.Context(), c.Param("id"), name)
	if err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, EnvironmentResponse{ProjectID: c.Param("id"), Name: name, Variables: vars})
}

// UpdateEnvironment handles PUT /projects/:id/environments/:name
func (h *EnvironmentHandler) UpdateEnvironment(c *gin.Context) {
	name, ok := environmentParam(c, c.Param("name"))
	if !ok {
		return
	}

	var req UpdateEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}
	if req.Variables == nil {
		req.Variables = make(map[string]string)
	}

	if err := h.store.PutEnvironment(c.Request.Context(), c.Param("id"), name, req.Variables); err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, EnvironmentResponse{ProjectID: c.Param("id"), Name: name, Variables: req.Variables})
}

// BatchUpdateVariables handles PATCH /projects/:id/environments/:name/variables
// Existing variables are kept; the given ones are added or overwritten.
func (h *EnvironmentHandler) BatchUpdateVariables(c *gin.Context) {
	name, ok := environmentParam(c, c.Param("name"))
	if !ok {
		return
	}

	var req BatchUpdateVariablesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Variables are required",
		})
		return
	}

	merged, err := h.store.MergeEnvironment(c.Request.Context(), c.Param("id"), name, req.Variables)
	if err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, EnvironmentResponse{ProjectID: c.Param("id"), Name: name, Variables: merged})
}
