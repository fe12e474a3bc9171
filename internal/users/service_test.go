package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:yapp_users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestRecordNormalizesEmailAndKeepsOneRow(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	claims := auth.SessionClaims{UserEmail: "User@Example.com", UserDisplayName: "Example User"}
	profile, err := service.Record(ctx, claims)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if profile.Email != "user@example.com" || profile.DisplayName != "Example User" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	// second call should hit cache and not create a duplicate record.
	if _, err := service.Record(ctx, claims); err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one profile row, got %d", count)
	}
}

func TestRecordKeepsDisplayNameWhenClaimsOmitIt(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Record(ctx, auth.SessionClaims{UserEmail: "a@x.com", UserDisplayName: "Ada"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	service.cache.Delete("a@x.com")

	profile, err := service.Record(ctx, auth.SessionClaims{UserEmail: "a@x.com"})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if profile.DisplayName != "Ada" {
		t.Fatalf("expected display name to survive, got %q", profile.DisplayName)
	}

	renamed, err := service.Record(ctx, auth.SessionClaims{UserEmail: "a@x.com", UserDisplayName: "Ada L."})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if renamed.DisplayName != "Ada L." {
		t.Fatalf("expected rename, got %q", renamed.DisplayName)
	}
}

func TestRecordRejectsMissingIdentity(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.Record(context.Background(), auth.SessionClaims{}); err != ErrInvalidIdentity {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}
