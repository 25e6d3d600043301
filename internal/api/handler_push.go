package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"course-push-backend/internal/events"
	"course-push-backend/internal/model"
	"course-push-backend/internal/mw"
	"course-push-backend/internal/notification"
)

const defaultCleanupDays = 30

var testPayload = model.NotificationPayload{
	Title: "Test notification",
	Body:  "Push notifications are working on this device.",
	Icon:  "/icons/icon-192x192.png",
	Badge: "/icons/badge-72x72.png",
	Tag:   "push-test",
	Data:  map[string]any{"type": "test"},
}

// SendTest dispatches a sample notification to the caller's workspace.
func (h *Handler) SendTest(c *gin.Context) {
	target := notification.Target{WorkspaceID: mw.GetWorkspaceID(c)}
	res, err := h.dispatcher.Dispatch(c.Request.Context(), target, testPayload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := fmt.Sprintf("delivered to %d/%d subscribers", res.Successful, res.Total)
	if res.Total == 0 {
		message = "no subscriptions found for this workspace"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": res.Success,
		"message": message,
		"details": res,
	})
}

type cleanupRequest struct {
	DaysOld *int `json:"daysOld"`
}

// Cleanup deletes stale and inactive subscriptions.
func (h *Handler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	days := defaultCleanupDays
	if req.DaysOld != nil {
		days = *req.DaysOld
	}

	deleted, err := h.store.CleanupInactive(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info("subscription cleanup finished",
		zap.String("user_id", mw.GetUserID(c)),
		zap.Int("days_old", days),
		zap.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("removed %d inactive subscriptions", deleted),
		"deletedCount": deleted,
	})
}

type eventRequest struct {
	Type   events.Type          `json:"type"`
	Target *notification.Target `json:"target"`
	Data   map[string]any       `json:"data"`
}

// PostEvent queues a domain event. Without a target the caller's workspace is notified.
func (h *Handler) PostEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		fail(c, http.StatusBadRequest, "event type is required")
		return
	}

	target := notification.Target{WorkspaceID: mw.GetWorkspaceID(c)}
	if req.Target != nil {
		target = *req.Target
	}

	if err := h.queue.Enqueue(events.Job{Type: req.Type, Target: target, Data: req.Data}); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "event queued"})
}
