package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// ErrUnknownUser indicates no identity row exists for the requested user id.
var ErrUnknownUser = errors.New("users: unknown user")

// DirectoryConfig describes the dependencies for identity lookups.
type DirectoryConfig struct {
	Database *gorm.DB
}

// Directory resolves display attributes for user ids. Lookups are cached for
// the process lifetime; identity rows are immutable from this backend's point
// of view.
type Directory struct {
	db    *gorm.DB
	cache sync.Map
}

func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	return &Directory{db: cfg.Database}, nil
}

// DisplayName returns the display name recorded for userID, falling back to
// the account email when no display name was provisioned.
func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	userID = normalize(userID)
	if userID == "" {
		return "", ErrUnknownUser
	}

	if cached, ok := d.cache.Load(userID); ok {
		if name, ok := cached.(string); ok {
			return name, nil
		}
	}

	var identity Identity
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", err
	}

	name := normalize(identity.DisplayName)
	if name == "" {
		name = normalize(identity.Email)
	}
	d.cache.Store(userID, name)
	return name, nil
}
