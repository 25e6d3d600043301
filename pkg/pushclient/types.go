// Package pushclient manages one device's push subscription: platform
// permission, background agent registration, and registration with the
// push registry API.
package pushclient

import (
	"context"
	"errors"
	"time"
)

// State is the derived subscription state shown to the user.
type State string

const (
	StateUnsupported       State = "unsupported"
	StateUnknownPermission State = "unknown-permission"
	StateDenied            State = "denied"
	StateNotSubscribed     State = "default-not-subscribed"
	StateSubscribed        State = "subscribed"
)

// Permission is the platform notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var (
	ErrNotInitialized   = errors.New("manager is not initialized")
	ErrUnsupported      = errors.New("push notifications are not supported on this platform")
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrNotAuthenticated = errors.New("caller is not authenticated or not entitled")
	// ErrDeviceLimit is returned when the registry refuses another device for the account.
	ErrDeviceLimit = errors.New("maximum number of devices reached")
	// ErrNotFound is returned by the registry when the endpoint is not registered.
	ErrNotFound = errors.New("subscription not found")
)

// Keys is the credential pair issued with a platform subscription.
type Keys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is the platform's local push subscription.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// ServerSubscription is a device the registry knows for the caller.
type ServerSubscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	UserAgent string    `json:"userAgent,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Platform is the device capability surface.
type Platform interface {
	Supported() bool
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission blocks until the user answers the prompt.
	RequestPermission(ctx context.Context) (Permission, error)
	// RegisterAgent registers the background delivery agent and waits until it is ready.
	RegisterAgent(ctx context.Context) error
	// CurrentSubscription returns nil when the device has no subscription.
	CurrentSubscription(ctx context.Context) (*Subscription, error)
	Subscribe(ctx context.Context, applicationServerKey string) (*Subscription, error)
	Unsubscribe(ctx context.Context) error
}

// Registry is the server side of the subscription lifecycle.
type Registry interface {
	PublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, sub Subscription, userAgent string) error
	Unsubscribe(ctx context.Context, endpoint string) error
	List(ctx context.Context) ([]ServerSubscription, error)
}

// AuthState reports whether server calls may be made.
type AuthState interface {
	// Resolved is false while the authentication context is still loading.
	Resolved() bool
	Entitled() bool
}

// StaticAuth is an AuthState with fixed answers.
type StaticAuth struct {
	IsResolved bool
	IsEntitled bool
}

// Resolved reports IsResolved.
func (a StaticAuth) Resolved() bool { return a.IsResolved }

// Entitled reports IsEntitled.
func (a StaticAuth) Entitled() bool { return a.IsEntitled }
