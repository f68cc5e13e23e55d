package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brewery-production-backend/internal/store"
)

// ListBlendCandidates handles GET /api/blends/candidates.
func (h *Handler) ListBlendCandidates(c *gin.Context) {
	candidates, err := h.store.ListBlendCandidates(c.Request.Context())
	if err != nil {
		h.writeError(c, "ListBlendCandidates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lots": candidates})
}

// CreateBlend handles POST /api/blends.
func (h *Handler) CreateBlend(c *gin.Context) {
	var req store.BlendInput
	if !h.bind(c, &req) {
		return
	}
	res, err := h.store.CreateBlend(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "CreateBlend", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
