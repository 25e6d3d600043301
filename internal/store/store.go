package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"course-push-backend/internal/model"
)

// Store defines the subscription registry operations.
type Store interface {
	Upsert(ctx context.Context, workspaceID, userID, endpoint string, keys model.Keys, userAgent string) (*model.PushSubscription, error)
	Remove(ctx context.Context, workspaceID, userID, endpoint string) (int64, error)
	RemoveByID(ctx context.Context, id string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]model.PushSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, id string, at time.Time) error
	CleanupInactive(ctx context.Context, daysOld int) (int64, error)
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithMaxDevicesPerUser caps the number of endpoints a single user may register.
// Zero disables the limit.
func WithMaxDevicesPerUser(n int) Option {
	return func(s *gormStore) { s.maxDevices = n }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *gormStore) { s.now = now }
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db         *gorm.DB
	maxDevices int
	now        func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts the subscription or refreshes the existing row for the same
// (workspace, user, endpoint). The conflict clause makes concurrent calls for
// one triple collapse into a single row.
func (s *gormStore) Upsert(ctx context.Context, workspaceID, userID, endpoint string, keys model.Keys, userAgent string) (*model.PushSubscription, error) {
	switch {
	case strings.TrimSpace(workspaceID) == "":
		return nil, missing("workspaceId")
	case strings.TrimSpace(userID) == "":
		return nil, missing("userId")
	case strings.TrimSpace(endpoint) == "":
		return nil, missing("endpoint")
	case strings.TrimSpace(keys.P256DH) == "":
		return nil, missing("keys.p256dh")
	case strings.TrimSpace(keys.Auth) == "":
		return nil, missing("keys.auth")
	}

	now := s.now()
	sub := model.PushSubscription{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Endpoint:    endpoint,
		P256DH:      keys.P256DH,
		Auth:        keys.Auth,
		UserAgent:   userAgent,
		IsActive:    true,
		LastUsed:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.maxDevices <= 0 {
		return s.upsert(s.db.WithContext(ctx), &sub)
	}

	// The limit check and the insert share a transaction so concurrent
	// registrations for one user cannot overshoot the cap.
	var stored *model.PushSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkDeviceLimit(tx, workspaceID, userID, endpoint); err != nil {
			return err
		}
		var err error
		stored, err = s.upsert(tx, &sub)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *gormStore) upsert(db *gorm.DB, sub *model.PushSubscription) (*model.PushSubscription, error) {
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"p256dh", "auth", "user_agent", "last_used", "is_active", "updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	// On conflict the generated id is discarded, so read back the stored row.
	var stored model.PushSubscription
	if err := db.
		Where("workspace_id = ? AND user_id = ? AND endpoint = ?", sub.WorkspaceID, sub.UserID, sub.Endpoint).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload subscription: %w", err)
	}
	return &stored, nil
}

// checkDeviceLimit must run inside a transaction. On postgres it holds a
// per-user advisory lock until commit; sqlite serializes writers itself.
func (s *gormStore) checkDeviceLimit(tx *gorm.DB, workspaceID, userID, endpoint string) error {
	if tx.Dialector.Name() == "postgres" {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; err != nil {
			return fmt.Errorf("lock devices for user %s: %w", userID, err)
		}
	}

	var existing int64
	if err := tx.Model(&model.PushSubscription{}).
		Where("workspace_id = ? AND user_id = ? AND endpoint = ?", workspaceID, userID, endpoint).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("lookup subscription: %w", err)
	}
	if existing > 0 {
		return nil
	}

	count, err := countByUser(tx, userID)
	if err != nil {
		return err
	}
	if count >= int64(s.maxDevices) {
		return ErrDeviceLimitReached
	}
	return nil
}

// Remove deletes the subscription for the triple, returning ErrNotFound when none matched.
func (s *gormStore) Remove(ctx context.Context, workspaceID, userID, endpoint string) (int64, error) {
	if strings.TrimSpace(endpoint) == "" {
		return 0, missing("endpoint")
	}

	res := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ? AND endpoint = ?", workspaceID, userID, endpoint).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return res.RowsAffected, nil
}

// RemoveByID deletes a subscription by id. Deleting a missing id is not an error.
func (s *gormStore) RemoveByID(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

// ListByWorkspace returns every subscription in the workspace, active or not.
func (s *gormStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions for workspace %s: %w", workspaceID, err)
	}
	return subs, nil
}

// ListByUser returns every subscription owned by the user, active or not.
func (s *gormStore) ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

// CountByUser returns how many devices the user has registered across workspaces.
func (s *gormStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	return countByUser(s.db.WithContext(ctx), userID)
}

func countByUser(db *gorm.DB, userID string) (int64, error) {
	var count int64
	if err := db.Model(&model.PushSubscription{}).
		Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count subscriptions for user %s: %w", userID, err)
	}
	return count, nil
}

// Touch refreshes last_used for a subscription that just received a delivery.
func (s *gormStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.PushSubscription{}).
		Where("id = ?", id).
		UpdateColumn("last_used", at).Error
	if err != nil {
		return fmt.Errorf("touch subscription %s: %w", id, err)
	}
	return nil
}

// CleanupInactive deletes rows unused for daysOld days and rows marked inactive.
func (s *gormStore) CleanupInactive(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 0 {
		return 0, &ValidationError{Field: "daysOld", Reason: "must not be negative"}
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)

	res := s.db.WithContext(ctx).
		Where("last_used < ? OR is_active = ?", cutoff, false).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// IsNotFound reports whether err signals a missing subscription.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
