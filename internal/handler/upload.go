package handler

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/flicky/farm-market-api/internal/storage"
)

type UploadHandler struct {
	store storage.BlobStore
}

func NewUploadHandler(store storage.BlobStore) *UploadHandler {
	return &UploadHandler{store: store}
}

// Serve streams a stored image. Only the base name of the path is used.
func (h *UploadHandler) Serve(c *gin.Context) {
	name := storage.SafeName(c.Param("filename"))
	rc, err := h.store.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		writeError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
