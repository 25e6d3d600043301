package events

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"course-push-backend/internal/model"
	"course-push-backend/internal/notification"
)

// Notifier delivers a payload to a target.
type Notifier interface {
	Dispatch(ctx context.Context, target notification.Target, payload model.NotificationPayload) (*notification.Result, error)
}

type template struct {
	title              string
	body               string
	icon               string
	badge              string
	tag                string
	actions            []model.NotificationAction
	requireInteraction bool
	silent             bool
}

const (
	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"
)

var (
	newOrderTemplate = template{
		title: "New order",
		body:  "{{customerName}} bought {{courseName}} for {{amount}}",
		icon:  defaultIcon,
		badge: defaultBadge,
		tag:   "order-{{orderId}}",
		actions: []model.NotificationAction{
			{Action: "view", Title: "View order"},
			{Action: "dismiss", Title: "Dismiss"},
		},
		requireInteraction: true,
	}

	orderStatusTemplate = template{
		title: "Order updated",
		body:  "Order {{orderId}} is now {{status}}",
		icon:  defaultIcon,
		badge: defaultBadge,
		tag:   "order-{{orderId}}",
		actions: []model.NotificationAction{
			{Action: "view", Title: "View order"},
		},
	}

	syncCompletedTemplate = template{
		title:  "Sync completed",
		body:   "{{platform}} sync finished with {{count}} records",
		icon:   defaultIcon,
		badge:  defaultBadge,
		tag:    "sync-{{platform}}",
		silent: true,
	}
)

// BuildPayload renders the notification for an event. ok is false for
// event types that have no notification.
func BuildPayload(t Type, data map[string]any) (payload model.NotificationPayload, ok bool) {
	var tmpl template
	switch t {
	case NewOrder:
		tmpl = newOrderTemplate
	case OrderStatusChange:
		tmpl = orderStatusTemplate
	case SyncCompleted:
		tmpl = syncCompletedTemplate
	default:
		return model.NotificationPayload{}, false
	}

	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["type"] = string(t)

	return model.NotificationPayload{
		Title:              renderTemplate(tmpl.title, data),
		Body:               renderTemplate(tmpl.body, data),
		Icon:               tmpl.icon,
		Badge:              tmpl.badge,
		Tag:                renderTemplate(tmpl.tag, data),
		Data:               merged,
		Actions:            append([]model.NotificationAction(nil), tmpl.actions...),
		RequireInteraction: tmpl.requireInteraction,
		Silent:             tmpl.silent,
	}, true
}

// Mapper turns domain events into dispatches.
type Mapper struct {
	notifier Notifier
	log      *zap.Logger
}

// NewMapper creates a Mapper that sends through n.
func NewMapper(n Notifier, log *zap.Logger) *Mapper {
	return &Mapper{notifier: n, log: log}
}

// Notify maps the event and dispatches it. Unknown event types are ignored
// and return a nil result with no error.
func (m *Mapper) Notify(ctx context.Context, target notification.Target, t Type, data map[string]any) (*notification.Result, error) {
	payload, ok := BuildPayload(t, data)
	if !ok {
		m.log.Debug("ignoring event without notification", zap.String("type", string(t)))
		return nil, nil
	}
	return m.notifier.Dispatch(ctx, target, payload)
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// renderTemplate substitutes {{key}} placeholders in one pass over tmpl and
// drops any left unfilled. Substituted values are never expanded again.
func renderTemplate(tmpl string, data map[string]any) string {
	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(placeholder string) string {
		v, ok := data[placeholder[2:len(placeholder)-2]]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	})
	return strings.TrimSpace(result)
}
