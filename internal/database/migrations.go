package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

const (
	migrationLowercaseIdentities = "2026-09-01_lowercase_identities"
	migrationDropNeutralReaction = "2026-09-14_drop_neutral_reactions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowercaseIdentities, apply: lowercaseIdentities},
		{name: migrationDropNeutralReaction, apply: dropNeutralReactions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// lowercaseIdentities folds stored emails to lowercase so identity
// comparisons stay exact.
func lowercaseIdentities(db *gorm.DB) error {
	if err := db.Model(&posts.Post{}).
		Where("author_email <> LOWER(author_email)").
		Update("author_email", gorm.Expr("LOWER(author_email)")).Error; err != nil {
		return err
	}
	if err := db.Model(&posts.Comment{}).
		Where("author_email <> LOWER(author_email)").
		Update("author_email", gorm.Expr("LOWER(author_email)")).Error; err != nil {
		return err
	}
	return db.Model(&posts.Reaction{}).
		Where("user_email <> LOWER(user_email)").
		Update("user_email", gorm.Expr("LOWER(user_email)")).Error
}

// dropNeutralReactions removes rows that carry no reaction; neutral is the
// absence of a row.
func dropNeutralReactions(db *gorm.DB) error {
	return db.Where("state NOT IN ?", []string{string(reaction.StateLiked), string(reaction.StateDisliked)}).
		Delete(&posts.Reaction{}).Error
}
