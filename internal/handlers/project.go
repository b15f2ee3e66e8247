package handlers

import (
	"io"
	"net/http"

	"collection-runner/internal/config"
	"collection-runner/internal/models"
	"collection-runner/internal/store"
	"collection-runner/internal/validator"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	store *store.Store
	cfg   *config.Config
}

func NewProjectHandler(s *store.Store, cfg *config.Config) *ProjectHandler {
	return &ProjectHandler{
		store: s,
		cfg:   cfg,
	}
}

// ListProjects handles GET /projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		storeError(c, err, "Projects")
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject handles POST /projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}

	project, err := h.store.CreateProject(c.Request.Context(), name)
	if err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetProject handles GET /projects/:id and returns the full tree.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, project)
}

// RenameProject handles PUT /projects/:id
func (h *ProjectHandler) RenameProject(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}

	if err := h.store.RenameProject(c.Request.Context(), c.Param("id"), name); err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project renamed successfully"})
}

// DeleteProject handles DELETE /projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.store.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}

// ImportProjects handles POST /projects/import. The body is an array of
// projects as produced by the export endpoint, as JSON or, with a YAML
// Content-Type or ?format=yaml, as YAML. Every id is regenerated.
func (h *ProjectHandler) ImportProjects(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.cfg.MaxRequestSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "read_error",
			Message: "Failed to read request body",
		})
		return
	}

	if isYAML(c) {
		if body, err = yamlToJSON(body); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}
	}

	projects, err := validator.ValidateImport(body, h.cfg.MaxRequestSize, h.cfg.MaxHeaderCount)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	imported, err := h.store.ImportProjects(c.Request.Context(), projects)
	if err != nil {
		storeError(c, err, "Projects")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"projects": imported,
		"message":  "Projects imported successfully",
	})
}

// ExportProjects handles GET /projects/export?format=json|yaml
func (h *ProjectHandler) ExportProjects(c *gin.Context) {
	projects, err := h.store.ExportProjects(c.Request.Context())
	if err != nil {
		storeError(c, err, "Projects")
		return
	}

	if isYAML(c) {
		out, err := toYAML(projects)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "yaml_error",
				Message: "Failed to encode projects",
			})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="projects.yaml"`)
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="projects.json"`)
	c.JSON(http.StatusOK, projects)
}

func isYAML(c *gin.Context) bool {
	if f := c.Query("format"); f != "" {
		return f == "yaml" || f == "yml"
	}
	ct := c.ContentType()
	return ct == "application/yaml" || ct == "application/x-yaml" || ct == "text/yaml"
}
