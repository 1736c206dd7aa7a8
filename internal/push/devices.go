package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceEndpoint is one registered push target for an identity. A user may
// hold several (phone, tablet); re-registering the same token refreshes it.
type DeviceEndpoint struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Token     string    `gorm:"column:device_token;primaryKey;size:512;not null"`
	Platform  string    `gorm:"column:platform;size:16;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeviceEndpoint) TableName() string {
	return "device_endpoints"
}

// Devices manages push endpoint registrations.
type Devices struct {
	db *gorm.DB
}

func NewDevices(db *gorm.DB) (*Devices, error) {
	if db == nil {
		return nil, fmt.Errorf("push: database connection required")
	}
	return &Devices{db: db}, nil
}

// Register upserts a device endpoint for the user.
func (d *Devices) Register(ctx context.Context, userID, token, platform string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	if userID == "" || token == "" {
		return fmt.Errorf("push: user id and device token are required")
	}
	switch platform {
	case "ios", "android", "web":
	default:
		return fmt.Errorf("push: unsupported platform %q", platform)
	}

	endpoint := DeviceEndpoint{UserID: userID, Token: token, Platform: platform}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_token"}},
			DoUpdates: clause.AssignmentColumns([]string{"platform", "updated_at"}),
		}).
		Create(&endpoint).Error
}

// Endpoints lists the registered targets for a user.
func (d *Devices) Endpoints(ctx context.Context, userID string) ([]DeviceEndpoint, error) {
	var endpoints []DeviceEndpoint
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}
