package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brewery-production-backend/internal/store"
)

// RegisterTank handles POST /api/tanks.
func (h *Handler) RegisterTank(c *gin.Context) {
	var req store.NewTank
	if !h.bind(c, &req) {
		return
	}
	view, err := h.store.RegisterTank(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "RegisterTank", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListTanks(c *gin.Context) {
	tanks, err := h.store.ListTanks(c.Request.Context())
	if err != nil {
		h.writeError(c, "ListTanks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tanks": tanks})
}

func (h *Handler) GetTank(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.store.GetTank(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "GetTank", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CompleteCIP handles POST /api/tanks/:id/cip.
func (h *Handler) CompleteCIP(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.store.CompleteCIP(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "CompleteCIP", err)
		return
	}
	c.JSON(http.StatusOK, view)
}
