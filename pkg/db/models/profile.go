package models

import "time"

// Profile caches the display names supplied by the identity provider.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey"`
	DisplayName *string   `gorm:"column:display_name"`
	Name        *string   `gorm:"column:name"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
