package handlers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every API handler.
type Handlers struct {
	Project     *ProjectHandler
	Folder      *FolderHandler
	Request     *RequestHandler
	Environment *EnvironmentHandler
	Run         *RunHandler
}

// Register mounts the API on api. limit guards the endpoints that send
// outbound requests.
func (h Handlers) Register(api *gin.RouterGroup, limit gin.HandlerFunc) {
	// Project routes
	api.GET("/projects", h.Project.ListProjects)
	api.POST("/projects", h.Project.CreateProject)
	api.POST("/projects/import", h.Project.ImportProjects)
	api.GET("/projects/export", h.Project.ExportProjects)
	api.GET("/projects/:id", h.Project.GetProject)
	api.PUT("/projects/:id", h.Project.RenameProject)
	api.DELETE("/projects/:id", h.Project.DeleteProject)

	// Folder routes
	api.POST("/projects/:id/folders", h.Folder.CreateFolder)
	api.GET("/folders/:id", h.Folder.GetFolder)
	api.PUT("/folders/:id", h.Folder.RenameFolder)
	api.DELETE("/folders/:id", h.Folder.DeleteFolder)

	// Request routes
	api.POST("/projects/:id/requests", h.Request.CreateRequest)
	api.GET("/requests/:id", h.Request.GetRequest)
	api.PUT("/requests/:id", h.Request.UpdateRequest)
	api.DELETE("/requests/:id", h.Request.DeleteRequest)
	api.POST("/requests/:id/duplicate", h.Request.DuplicateRequest)
	api.POST("/requests/:id/execute", limit, h.Request.ExecuteRequest)
	api.POST("/requests/:id/schema/generate", h.Request.GenerateSchema)
	api.GET("/requests/:id/response", h.Request.GetLastResponse)

	// Environment routes
	api.GET("/projects/:id/environments/:name", h.Environment.GetEnvironment)
	api.PUT("/projects/:id/environments/:name", h.Environment.UpdateEnvironment)
	api.PATCH("/projects/:id/environments/:name/variables", h.Environment.BatchUpdateVariables)

	// Run routes
	api.POST("/folders/:id/runs", limit, h.Run.StartRun)
	api.GET("/runs/:id", h.Run.GetRun)
	api.POST("/runs/:id/cancel", h.Run.CancelRun)
}
