package handlers

import (
	"encoding/json"
	"net/http"

	"collection-runner/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// GetLastResponse handles GET /requests/:id/response?path=
// Without path the whole last response is returned. With a gjson path
// (e.g. items.0.id) only the matching part of the response data is returned.
func (h *RequestHandler) GetLastResponse(c *gin.Context) {
	req, err := h.store.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "Request")
		return
	}
	if req.LastResponse == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_response",
			Message: "Request has not been executed yet",
		})
		return
	}

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusOK, req.LastResponse)
		return
	}

	raw, err := json.Marshal(req.LastResponse.Data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "json_error",
			Message: "Failed to encode response data",
		})
		return
	}

	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "path_not_found",
			Message: "Nothing matches path " + path,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"value": json.RawMessage(result.Raw),
	})
}
