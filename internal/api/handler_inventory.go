package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/store"
)

// CreateItem handles POST /api/inventory/items.
func (h *Handler) CreateItem(c *gin.Context) {
	var req store.NewItem
	if !h.bind(c, &req) {
		return
	}
	item, err := h.store.CreateItem(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "CreateItem", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.store.GetItem(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "GetItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RecordMovement handles POST /api/inventory/items/:id/movements.
func (h *Handler) RecordMovement(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req store.MovementInput
	if !h.bind(c, &req) {
		return
	}
	req.ItemID = id
	res, err := h.store.RecordMovement(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "RecordMovement", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListMovements handles GET /api/inventory/items/:id/movements.
func (h *Handler) ListMovements(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.store.ListMovements(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "ListMovements", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type adjustRequest struct {
	NewBalance decimal.Decimal       `json:"newBalance"`
	Reason     string                `json:"reason"`
	Type       model.LedgerEntryType `json:"type"`
}

// AdjustBalance handles PUT /api/inventory/items/:id/balance.
func (h *Handler) AdjustBalance(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req adjustRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.store.AdjustBalanceDirect(c.Request.Context(), store.AdjustInput{
		ItemID:     id,
		NewBalance: req.NewBalance,
		Reason:     req.Reason,
		Type:       req.Type,
	})
	if err != nil {
		h.writeError(c, "AdjustBalance", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reverseRequest struct {
	Notes string `json:"notes"`
}

// ReverseMovement handles POST /api/inventory/movements/:uuid/reverse.
func (h *Handler) ReverseMovement(c *gin.Context) {
	var req reverseRequest
	if !h.bindOptional(c, &req) {
		return
	}
	res, err := h.store.ReverseMovement(c.Request.Context(), c.Param("uuid"), req.Notes)
	if err != nil {
		h.writeError(c, "ReverseMovement", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
