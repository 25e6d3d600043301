package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription holds the information for a browser push subscription.
// A device endpoint is unique per (workspace, user).
type PushSubscription struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	WorkspaceID string    `gorm:"size:64;not null;uniqueIndex:idx_push_subscriptions_triple,priority:1" json:"workspaceId"`
	UserID      string    `gorm:"size:64;not null;index;uniqueIndex:idx_push_subscriptions_triple,priority:2" json:"userId"`
	Endpoint    string    `gorm:"size:2048;not null;uniqueIndex:idx_push_subscriptions_triple,priority:3" json:"endpoint"`
	P256DH      string    `gorm:"column:p256dh;not null" json:"-"`
	Auth        string    `gorm:"not null" json:"-"`
	UserAgent   string    `gorm:"size:512" json:"userAgent,omitempty"`
	IsActive    bool      `gorm:"not null;index" json:"isActive"`
	LastUsed    time.Time `gorm:"not null;index" json:"lastUsed"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a surrogate key so rows can be deleted by id.
func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Keys is the credential pair issued by the platform push service.
type Keys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}
