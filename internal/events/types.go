package events

import "course-push-backend/internal/notification"

// Type identifies a domain event that may produce a notification.
type Type string

const (
	NewOrder          Type = "new_order"
	OrderStatusChange Type = "order_status_change"
	SyncCompleted     Type = "sync_completed"
)

// Job is a domain event waiting to be turned into a notification.
type Job struct {
	Type   Type                `json:"type"`
	Target notification.Target `json:"target"`
	Data   map[string]any      `json:"data"`
}
