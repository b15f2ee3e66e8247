package handlers

import (
	"net/http"

	"collection-runner/internal/store"

	"github.com/gin-gonic/gin"
)

type FolderHandler struct {
	store *store.Store
}

func NewFolderHandler(s *store.Store) *FolderHandler {
	return &FolderHandler{store: s}
}

// CreateFolder handles POST /projects/:id/folders
func (h *FolderHandler) CreateFolder(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}

	folder, err := h.store.CreateFolder(c.Request.Context(), c.Param("id"), name)
	if err != nil {
		storeError(c, err, "Project")
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// GetFolder handles GET /folders/:id
func (h *FolderHandler) GetFolder(c *gin.Context) {
	folder, err := h.store.GetFolder(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err, "Folder")
		return
	}
	c.JSON(http.StatusOK, folder)
}

// RenameFolder handles PUT /folders/:id
func (h *FolderHandler) RenameFolder(c *gin.Context) {
	name, ok := bindName(c)
	if !ok {
		return
	}

	if err := h.store.RenameFolder(c.Request.Context(), c.Param("id"), name); err != nil {
		storeError(c, err, "Folder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Folder renamed successfully"})
}

// DeleteFolder handles DELETE /folders/:id along with its requests.
func (h *FolderHandler) DeleteFolder(c *gin.Context) {
	if err := h.store.DeleteFolder(c.Request.Context(), c.Param("id")); err != nil {
		storeError(c, err, "Folder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Folder deleted successfully"})
}
