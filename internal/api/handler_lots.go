package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/store"
)

// StartBrew handles POST /api/brews.
func (h *Handler) StartBrew(c *gin.Context) {
	var req store.BrewInput
	if !h.bind(c, &req) {
		return
	}
	res, err := h.store.StartBrew(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "StartBrew", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type splitRequest struct {
	Parts []store.SplitPart `json:"parts" binding:"required"`
}

// SplitBatch handles POST /api/batches/:id/split.
func (h *Handler) SplitBatch(c *gin.Context) {
	batchID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req splitRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.store.SplitBatch(c.Request.Context(), batchID, req.Parts)
	if err != nil {
		h.writeError(c, "SplitBatch", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetTimeline(c *gin.Context) {
	batchID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	events, err := h.store.GetTimeline(c.Request.Context(), batchID)
	if err != nil {
		h.writeError(c, "GetTimeline", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) GetLot(c *gin.Context) {
	lotID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.store.GetLotView(c.Request.Context(), lotID)
	if err != nil {
		h.writeError(c, "GetLot", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type advancePhaseRequest struct {
	Phase model.Phase `json:"phase" binding:"required"`
}

// AdvancePhase handles POST /api/lots/:id/phase.
func (h *Handler) AdvancePhase(c *gin.Context) {
	lotID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req advancePhaseRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.store.AdvancePhase(c.Request.Context(), lotID, req.Phase)
	if err != nil {
		h.writeError(c, "AdvancePhase", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type transferRequest struct {
	TankID int64 `json:"tankId" binding:"required"`
}

func (h *Handler) TransferLot(c *gin.Context) {
	lotID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req transferRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.store.TransferLot(c.Request.Context(), lotID, req.TankID)
	if err != nil {
		h.writeError(c, "TransferLot", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) CompleteLot(c *gin.Context) {
	lotID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.store.CompleteLot(c.Request.Context(), lotID)
	if err != nil {
		h.writeError(c, "CompleteLot", err)
		return
	}
	c.JSON(http.StatusOK, view)
}
