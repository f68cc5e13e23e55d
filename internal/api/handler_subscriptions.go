package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brewery-production-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers or refreshes a browser push subscription for the
// tenant's stock and tank alerts.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.store.SaveAlertSubscription(c.Request.Context(), model.AlertSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	})
	if err != nil {
		h.writeError(c, "PutSubscription", err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.store.DeleteAlertSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.writeError(c, "DeleteSubscription", err)
		return
	}

	c.Status(http.StatusNoContent)
}
