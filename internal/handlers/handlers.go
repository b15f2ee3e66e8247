package handlers

import (
	"net/http"
	"strings"

	"collection-runner/internal/models"
	"collection-runner/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// HealthCheck handles GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NameRequest is the body of every create/rename call that only carries a name.
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

func bindName(c *gin.Context) (string, bool) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Name is required",
		})
		return "", false
	}
	return strings.TrimSpace(req.Name), true
}

// storeError answers with 404 for missing entities and 500 for everything else.
func storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: what + " not found",
		})
		return
	}

	log.WithError(err).WithField("path", c.FullPath()).Error("database error")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "Failed to access " + strings.ToLower(what),
	})
}

func environmentParam(c *gin.Context, value string) (models.EnvironmentName, bool) {
	if value == "" {
		return models.EnvDev, true
	}
	name := models.EnvironmentName(value)
	if !name.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_environment",
			Message: "Environment must be 'dev' or 'production'",
		})
		return "", false
	}
	return name, true
}
