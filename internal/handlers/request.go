package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"collection-runner/internal/config"
	"collection-runner/internal/models"
	"collection-runner/internal/runner"
	"collection-runner/internal/schema"
	"collection-runner/internal/store"
	"collection-runner/internal/validator"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	store  *store.Store
	cfg    *config.Config
	newRun func() *runner.Controller
}

// NewRequestHandler wires request CRUD and single execution. newRun builds the
// controller used to execute one request.
func NewRequestHandler(s *store.Store, cfg *config.Config, newRun func() *runner.Controller) *RequestHandler {
	return &RequestHandler{
		store:  s,
		cfg:    cfg,
		newRun: newRun,
	}
}

// RequestPayload represents the request body for creating or updating a request.
// expectedTypes may be a JSON Schema object or the schema as a string.
type RequestPayload struct {
	FolderID      string            `json:"folder_id"`
	Name          string            `json:"name"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers"`
	Params        map[string]string `json:"params"`
	Body          json.RawMessage   `json:"body"`
	ExpectedTypes json.RawMessage   `json:"expectedTypes"`
}

func (p RequestPayload) toRequest() models.Request {
	req := models.Request{
		Name:    strings.TrimSpace(p.Name),
		Method:  strings.ToUpper(strings.TrimSpace(p.Method)),
		URL:     strings.TrimSpace(p.URL),
		Headers: p.Headers,
		Params:  p.Params,
		Body:    p.Body,
	}
	if req.Method == "" {
		req.Method = "GET"
	}
	if req.Name == "" {
		req.Name = "New Request"
	}

	if len(p.ExpectedTypes) > 0 && string(p.ExpectedTypes) != "null" {
		var text string
		if err := json.Unmarshal(p.ExpectedTypes, &text); err == nil {
			req.ExpectedSchema = text
		} else {
			req.ExpectedSchema = string(p.ExpectedTypes)
		}
	}
	return req
}

func (h *RequestHandler) bindRequest(c *gin.Context) (RequestPayload, models.Request, bool) {
	var payload RequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return payload, models.Request{}, false
	}

	req := payload.toRequest()
	if err := validator.ValidateRequest(req, h.cfg.MaxHeaderCount); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return payload, models.Request{}, false
	}
	return payload, req, true
}

// CreateRequest handles POST /projects/:id/requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	payload, req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	created, err := h.store.AddRequest(c.Request.Context(), c.Param("id"), payload.FolderID, req)
	if err != nil {
		storeError(c, err, "Project or folder")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetRequest handles GET /requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	req, err := h.store.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "Request")
		return
	}
	c.JSON(http.StatusOK, req)
}

// UpdateRequest handles PUT /requests/:id
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	_, req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	updated, err := h.store.UpdateRequest(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		storeError(c, err, "Request")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRequest handles DELETE /requests/:id
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	if err := h.store.DeleteRequest(c.Request.Context(), c.Param("id")); err != nil {
		storeError(c, err, "Request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request deleted successfully"})
}

// DuplicateRequest handles POST /requests/:id/duplicate
func (h *RequestHandler) DuplicateRequest(c *gin.Context) {
	dup, err := h.store.DuplicateRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "Request")
		return
	}
	c.JSON(http.StatusCreated, dup)
}

// ExecuteRequest handles POST /requests/:id/execute?environment=dev
func (h *RequestHandler) ExecuteRequest(c *gin.Context) {
	ctx := c.Request.Context()

	env, ok := environmentParam(c, c.Query("environment"))
	if !ok {
		return
	}

	req, err := h.store.GetRequest(ctx, c.Param("id"))
	if err != nil {
		storeError(c, err, "Request")
		return
	}

	vars, err := h.store.GetEnvironment(ctx, req.ProjectID, env)
	if err != nil {
		storeError(c, err, "Environment")
		return
	}

	snap, err := h.newRun().Run(ctx, runner.Options{
		Requests:    []models.Request{*req},
		Environment: env,
		Variables:   vars,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "execution_error",
			Message: err.Error(),
		})
		return
	}

	result := snap.Items[0]
	if latest, err := h.store.GetRequest(ctx, req.ID); err == nil {
		req = latest
	}

	c.JSON(http.StatusOK, gin.H{
		"result":       result,
		"lastResponse": req.LastResponse,
	})
}

// GenerateSchemaRequest optionally carries the sample to infer from.
type GenerateSchemaRequest struct {
	Data any  `json:"data"`
	Save bool `json:"save"`
}

// GenerateSchema handles POST /requests/:id/schema/generate. Without a sample
// in the body the schema is inferred from the last response. With save=true
// the schema becomes the request's expected schema.
func (h *RequestHandler) GenerateSchema(c *gin.Context) {
	ctx := c.Request.Context()

	var body GenerateSchemaRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request body",
			})
			return
		}
	}

	req, err := h.store.GetRequest(ctx, c.Param("id"))
	if err != nil {
		storeError(c, err, "Request")
		return
	}

	sample := body.Data
	if sample == nil {
		if req.LastResponse == nil || req.LastResponse.Data == nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "no_sample",
				Message: "Request has no response data to infer a schema from",
			})
			return
		}
		sample = req.LastResponse.Data
	}

	generated, err := schema.Generate(sample)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "schema_error",
			Message: err.Error(),
		})
		return
	}

	if body.Save {
		req.ExpectedSchema = generated
		if _, err := h.store.UpdateRequest(ctx, req.ID, *req); err != nil {
			storeError(c, err, "Request")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"schema": json.RawMessage(generated),
		"saved":  body.Save,
	})
}
