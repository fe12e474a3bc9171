package users

import (
	"strings"
	"time"
)

// Profile records a user seen by the API, keyed by lowercased email.
type Profile struct {
	Email       string    `gorm:"column:user_email;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:user_display_name;size:190;not null;default:''"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
