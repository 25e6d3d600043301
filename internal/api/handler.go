package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"course-push-backend/internal/events"
	"course-push-backend/internal/model"
	"course-push-backend/internal/notification"
	"course-push-backend/internal/store"
)

// Dispatcher fans a payload out to a target.
type Dispatcher interface {
	Dispatch(ctx context.Context, target notification.Target, payload model.NotificationPayload) (*notification.Result, error)
}

// EventQueue accepts domain events for asynchronous delivery.
type EventQueue interface {
	Enqueue(job events.Job) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	dispatcher Dispatcher
	queue      EventQueue
	webpush    *webpush.Options
	log        *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d Dispatcher, q EventQueue, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	return &Handler{
		store:      s,
		dispatcher: d,
		queue:      q,
		webpush:    webpushOptions,
		log:        log,
	}
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// respondError maps registry and dispatch errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var vErr *store.ValidationError
	switch {
	case errors.As(err, &vErr):
		fail(c, http.StatusBadRequest, vErr.Error())
	case store.IsNotFound(err):
		fail(c, http.StatusNotFound, "subscription not found")
	case errors.Is(err, store.ErrDeviceLimitReached):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "device_limit_reached",
			"message": "maximum number of devices reached",
		})
	case errors.Is(err, notification.ErrInvalidTarget):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, events.ErrQueueFull):
		fail(c, http.StatusServiceUnavailable, "event queue is full, try again later")
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}
