package notification

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"course-push-backend/config"
)

// ErrMissingVAPIDKeys is returned when the signing key pair is not configured.
var ErrMissingVAPIDKeys = errors.New("vapid keys must be configured")

// NewOptions validates the configured signing credential and builds the
// delivery options shared by every attempt.
func NewOptions(cfg config.PushConfig) (*webpush.Options, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, ErrMissingVAPIDKeys
	}
	if err := checkKey("public", cfg.PublicKey, 65); err != nil {
		return nil, err
	}
	if err := checkKey("private", cfg.PrivateKey, 32); err != nil {
		return nil, err
	}

	urgency, err := parseUrgency(cfg.Urgency)
	if err != nil {
		return nil, err
	}

	return &webpush.Options{
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             cfg.TTL,
		Urgency:         urgency,
	}, nil
}

func checkKey(kind, key string, size int) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
	if err != nil {
		return fmt.Errorf("decode vapid %s key: %w", kind, err)
	}
	if len(raw) != size {
		return fmt.Errorf("vapid %s key must be %d bytes, got %d", kind, size, len(raw))
	}
	return nil
}

func parseUrgency(s string) (webpush.Urgency, error) {
	switch s {
	case "", "normal":
		return webpush.UrgencyNormal, nil
	case "very-low":
		return webpush.UrgencyVeryLow, nil
	case "low":
		return webpush.UrgencyLow, nil
	case "high":
		return webpush.UrgencyHigh, nil
	default:
		return "", fmt.Errorf("unknown push urgency %q", s)
	}
}
