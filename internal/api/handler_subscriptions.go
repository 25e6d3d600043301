package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"course-push-backend/internal/model"
	"course-push-backend/internal/mw"
)

type subscribeRequest struct {
	Endpoint  string     `json:"endpoint"`
	Keys      model.Keys `json:"keys"`
	UserAgent string     `json:"userAgent"`
}

// Subscribe registers or refreshes the caller's device.
func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	sub, err := h.store.Upsert(c.Request.Context(), mw.GetWorkspaceID(c), mw.GetUserID(c), req.Endpoint, req.Keys, userAgent)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "subscribed to push notifications",
		"id":      sub.ID,
	})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe removes the caller's device.
func (h *Handler) Unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.store.Remove(c.Request.Context(), mw.GetWorkspaceID(c), mw.GetUserID(c), req.Endpoint); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "unsubscribed from push notifications"})
}

// ListSubscriptions returns the caller's devices in the current workspace.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.ListByUser(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	workspaceID := mw.GetWorkspaceID(c)
	out := make([]model.PushSubscription, 0, len(subs))
	for _, sub := range subs {
		if sub.WorkspaceID == workspaceID {
			out = append(out, sub)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscriptions": out})
}
