package pushclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager drives a device through the subscription lifecycle. Operations are
// serialized; State and Subscriptions may be read from any goroutine.
type Manager struct {
	platform  Platform
	registry  Registry
	auth      AuthState
	log       *zap.Logger
	userAgent string

	op sync.Mutex

	mu          sync.RWMutex
	supported   bool
	initialized bool
	agentReady  bool
	permission  Permission
	local       *Subscription
	server      []ServerSubscription
	publicKey   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithUserAgent sets the diagnostic string sent with every registration.
func WithUserAgent(ua string) Option {
	return func(m *Manager) { m.userAgent = ua }
}

// NewManager creates a manager. Call Initialize before anything else.
func NewManager(p Platform, r Registry, auth AuthState, opts ...Option) *Manager {
	m := &Manager{
		platform:   p,
		registry:   r,
		auth:       auth,
		log:        zap.NewNop(),
		permission: PermissionDefault,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State derives the current state from permission and local subscription.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case !m.initialized:
		return StateUnknownPermission
	case !m.supported:
		return StateUnsupported
	case m.permission == PermissionDenied:
		return StateDenied
	case m.local != nil && m.permission == PermissionGranted:
		return StateSubscribed
	case m.permission == PermissionGranted:
		return StateNotSubscribed
	default:
		return StateUnknownPermission
	}
}

// Permission returns the last known platform permission.
func (m *Manager) Permission() Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permission
}

// Subscriptions returns the devices the registry knows for the caller. It is
// empty until the caller is authenticated and entitled.
func (m *Manager) Subscriptions() []ServerSubscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ServerSubscription(nil), m.server...)
}

// Initialize detects platform support and loads local and server state. On an
// unsupported platform the manager stays in StateUnsupported.
func (m *Manager) Initialize(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	supported := m.platform.Supported()
	m.mu.Lock()
	m.initialized = true
	m.supported = supported
	m.mu.Unlock()

	if !supported {
		m.log.Info("push notifications not supported on this platform")
		return nil
	}
	return m.refresh(ctx)
}

// RequestPermission shows the platform prompt and waits for the answer. Call
// only in response to a user action.
func (m *Manager) RequestPermission(ctx context.Context) (Permission, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireSupported(); err != nil {
		return "", err
	}
	return m.requestPermission(ctx)
}

func (m *Manager) requestPermission(ctx context.Context) (Permission, error) {
	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		return "", fmt.Errorf("request permission: %w", err)
	}
	m.mu.Lock()
	m.permission = perm
	m.mu.Unlock()
	return perm, nil
}

// Subscribe creates or reuses the local subscription and registers it with the
// registry. A registry capacity rejection is reported as ErrDeviceLimit.
func (m *Manager) Subscribe(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireSupported(); err != nil {
		return err
	}
	if !m.serverAllowed() {
		return ErrNotAuthenticated
	}

	perm := m.Permission()
	if perm == PermissionDefault {
		var err error
		if perm, err = m.requestPermission(ctx); err != nil {
			return err
		}
	}
	if perm != PermissionGranted {
		return ErrPermissionDenied
	}

	if err := m.ensureAgent(ctx); err != nil {
		return err
	}

	key, err := m.applicationServerKey(ctx)
	if err != nil {
		return err
	}

	sub, err := m.platform.CurrentSubscription(ctx)
	if err != nil {
		return fmt.Errorf("read local subscription: %w", err)
	}
	created := false
	if sub == nil {
		if sub, err = m.platform.Subscribe(ctx, key); err != nil {
			return fmt.Errorf("create local subscription: %w", err)
		}
		created = true
	}

	if err := m.registry.Subscribe(ctx, *sub, m.userAgent); err != nil {
		if created {
			// Do not leave a device subscription the registry never accepted.
			if uerr := m.platform.Unsubscribe(ctx); uerr != nil {
				m.log.Warn("failed to roll back local subscription", zap.Error(uerr))
			} else {
				sub = nil
			}
		}
		m.mu.Lock()
		m.local = sub
		m.mu.Unlock()
		if errors.Is(err, ErrDeviceLimit) {
			return ErrDeviceLimit
		}
		return fmt.Errorf("register subscription: %w", err)
	}

	m.mu.Lock()
	m.local = sub
	m.mu.Unlock()
	m.log.Info("push subscription registered", zap.String("endpoint", sub.Endpoint))

	m.loadServer(ctx)
	return nil
}

// Unsubscribe removes the local subscription and then the registry row. Both
// steps are attempted. The manager reports unsubscribed whenever the local
// step succeeded, even if the registry call failed.
func (m *Manager) Unsubscribe(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireSupported(); err != nil {
		return err
	}

	endpoint := ""
	if sub, err := m.platform.CurrentSubscription(ctx); err == nil && sub != nil {
		endpoint = sub.Endpoint
	} else {
		m.mu.RLock()
		if m.local != nil {
			endpoint = m.local.Endpoint
		}
		m.mu.RUnlock()
	}
	if endpoint == "" {
		return nil
	}

	localErr := m.platform.Unsubscribe(ctx)
	if localErr != nil {
		localErr = fmt.Errorf("remove local subscription: %w", localErr)
	} else {
		m.mu.Lock()
		m.local = nil
		m.mu.Unlock()
	}

	var serverErr error
	if m.serverAllowed() {
		if err := m.registry.Unsubscribe(ctx, endpoint); err != nil && !errors.Is(err, ErrNotFound) {
			serverErr = fmt.Errorf("remove registry subscription: %w", err)
			m.log.Warn("registry unsubscribe failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
		m.loadServer(ctx)
	} else {
		m.log.Warn("not authenticated, registry subscription left in place",
			zap.String("endpoint", endpoint))
	}

	return errors.Join(localErr, serverErr)
}

// RefreshSubscriptions re-reads permission, the local subscription and the
// registry list to pick up changes made elsewhere.
func (m *Manager) RefreshSubscriptions(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireSupported(); err != nil {
		return err
	}
	return m.refresh(ctx)
}

func (m *Manager) refresh(ctx context.Context) error {
	perm, err := m.platform.Permission(ctx)
	if err != nil {
		return fmt.Errorf("read permission: %w", err)
	}
	sub, err := m.platform.CurrentSubscription(ctx)
	if err != nil {
		return fmt.Errorf("read local subscription: %w", err)
	}

	m.mu.Lock()
	m.permission = perm
	m.local = sub
	m.mu.Unlock()

	m.loadServer(ctx)
	return nil
}

// loadServer replaces the registry list, or clears it when server calls are
// not allowed. Failures keep the previous list.
func (m *Manager) loadServer(ctx context.Context) {
	if !m.serverAllowed() {
		m.mu.Lock()
		m.server = nil
		m.mu.Unlock()
		return
	}

	subs, err := m.registry.List(ctx)
	if err != nil {
		m.log.Warn("failed to load registry subscriptions", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.server = subs
	m.mu.Unlock()
}

func (m *Manager) ensureAgent(ctx context.Context) error {
	m.mu.RLock()
	ready := m.agentReady
	m.mu.RUnlock()
	if ready {
		return nil
	}

	if err := m.platform.RegisterAgent(ctx); err != nil {
		return fmt.Errorf("register background agent: %w", err)
	}
	m.mu.Lock()
	m.agentReady = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) applicationServerKey(ctx context.Context) (string, error) {
	m.mu.RLock()
	key := m.publicKey
	m.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	key, err := m.registry.PublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch public key: %w", err)
	}
	m.mu.Lock()
	m.publicKey = key
	m.mu.Unlock()
	return key, nil
}

func (m *Manager) requireSupported() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	if !m.supported {
		return ErrUnsupported
	}
	return nil
}

func (m *Manager) serverAllowed() bool {
	return m.auth != nil && m.auth.Resolved() && m.auth.Entitled()
}
