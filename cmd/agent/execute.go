package main

import (
	"net/http"
	"time"

	"collection-runner/internal/models"
	"collection-runner/internal/transport"

	"github.com/gin-gonic/gin"
)

// executeHandler sends the posted call and answers 200 with either the
// response or the transport failure in the error field.
func executeHandler(tr transport.Transport) gin.HandlerFunc {
	return func(c *gin.Context) {
		var call transport.Call
		if err := c.ShouldBindJSON(&call); err != nil || call.URL == "" || !models.AllowedMethods[call.Method] {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "method and url are required",
			})
			return
		}

		start := time.Now()
		resp, err := tr.Do(c.Request.Context(), call)
		out := transport.AgentResponse{Duration: time.Since(start).Milliseconds()}
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Response = *resp
		}
		c.JSON(http.StatusOK, out)
	}
}
