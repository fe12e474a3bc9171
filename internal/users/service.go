package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
)

// ErrInvalidIdentity indicates the claims did not contain a usable email.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies of the user directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service remembers who has talked to the API and under which display name.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the user directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Record upserts the profile carried by the session claims and returns it.
// A display name already on file is kept when the claims carry none.
func (s *Service) Record(ctx context.Context, claims auth.SessionClaims) (Profile, error) {
	email := normalizeEmail(claims.Email())
	if email == "" {
		return Profile{}, ErrInvalidIdentity
	}
	displayName := normalize(claims.UserDisplayName)

	if cached, ok := s.cache.Load(email); ok {
		if profile, ok := cached.(Profile); ok && (displayName == "" || displayName == profile.DisplayName) {
			return profile, nil
		}
	}

	profile := Profile{Email: email, DisplayName: displayName, LastSeenAt: s.now().UTC()}
	updates := []string{"last_seen_at", "updated_at"}
	if displayName != "" {
		updates = append(updates, "user_display_name")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_email"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&profile).Error
	if err != nil {
		s.logger.Error("users service error",
			zap.String("operation", "users.record"),
			zap.String("reason", "upsert_failed"),
			zap.String("user_email", email),
			zap.Error(err))
		return Profile{}, err
	}

	var stored Profile
	if err := s.db.WithContext(ctx).Where("user_email = ?", email).Take(&stored).Error; err != nil {
		return Profile{}, err
	}
	s.cache.Store(email, stored)
	return stored, nil
}
