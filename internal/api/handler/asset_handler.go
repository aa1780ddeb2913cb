package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/cuongbtq/story-factory/internal/blob"
	"github.com/gin-gonic/gin"
)

// AssetHandler serves blobs from the local store behind signed URLs
type AssetHandler struct {
	logger *slog.Logger
	assets AssetVerifier
}

func NewAssetHandler(deps *Dependencies) *AssetHandler {
	return &AssetHandler{logger: deps.Logger, assets: deps.Assets}
}

// ServeAsset handles GET /assets/*key
func (h *AssetHandler) ServeAsset(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	if err := h.assets.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		status := http.StatusForbidden
		if !errors.Is(err, blob.ErrInvalidSignature) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	p, err := h.assets.Path(key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
			return
		}
		h.logger.Error("Failed to stat asset", slog.String("key", key), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read asset"})
		return
	}

	c.File(p)
}
