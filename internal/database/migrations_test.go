package database

import (
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

func TestApplyMigrationsNormalizesReactions(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(Models()...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	seed := []posts.Reaction{
		{PostID: "p1", UserEmail: "Ada@Example.com", State: reaction.StateLiked, UpdatedAtMillis: 1},
		{PostID: "p1", UserEmail: "bea@example.com", State: reaction.StateNeutral, UpdatedAtMillis: 1},
	}
	if err := database.Create(&seed).Error; err != nil {
		testContext.Fatalf("failed to insert reactions: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored []posts.Reaction
	if err := database.Order("user_email").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload reactions: %v", err)
	}
	if len(stored) != 1 || stored[0].UserEmail != "ada@example.com" {
		testContext.Fatalf("unexpected reactions after migration: %+v", stored)
	}

	for _, name := range []string{migrationLowercaseIdentities, migrationDropNeutralReaction} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected rerun to be a no-op: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}, nil); !errors.Is(err, ErrUnsupportedDriver) {
		testContext.Fatalf("expected unsupported driver, got %v", err)
	}
	if _, err := Open(Config{Driver: DriverPostgres}, nil); !errors.Is(err, ErrMissingTarget) {
		testContext.Fatalf("expected missing dsn, got %v", err)
	}
	database, err := Open(Config{Path: filepath.Join(testContext.TempDir(), "yapp.db")}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("expected sqlite default, got %v", err)
	}
	if !database.Migrator().HasTable(&posts.Post{}) {
		testContext.Fatalf("expected posts table to exist")
	}
}
