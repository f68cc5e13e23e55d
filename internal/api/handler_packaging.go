package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brewery-production-backend/internal/store"
)

type packagingRequest struct {
	LotID   *int64                  `json:"lotId"`
	Details *store.PackagingDetails `json:"details"`
}

// StartPackaging handles POST /api/batches/:id/packaging. The body is optional.
func (h *Handler) StartPackaging(c *gin.Context) {
	batchID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req packagingRequest
	if !h.bindOptional(c, &req) {
		return
	}
	res, err := h.store.StartPackaging(c.Request.Context(), store.PackagingInput{
		BatchID: batchID,
		LotID:   req.LotID,
		Details: req.Details,
	})
	if err != nil {
		h.writeError(c, "StartPackaging", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetPackageTypes handles GET /api/package-types.
func (h *Handler) GetPackageTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packageTypes": h.packageTypes.All()})
}
