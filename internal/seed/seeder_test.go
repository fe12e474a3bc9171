package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

func newPostsService(t *testing.T) *posts.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:yapp_seed_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(posts.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := posts.NewService(posts.ServiceConfig{Database: db, IDProvider: posts.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct posts service: %v", err)
	}
	return service
}

func TestSeederWritesConsistentData(t *testing.T) {
	service := newPostsService(t)
	seeder, err := NewSeeder(service, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := seeder.Run(context.Background(), Options{Posts: 6, Users: 4, MaxCommentsPerPost: 3, Seed: 42})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if summary.Posts != 6 {
		t.Fatalf("expected 6 posts, got %d", summary.Posts)
	}

	views, err := service.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(views) != 6 {
		t.Fatalf("expected 6 stored posts, got %d", len(views))
	}
	comments, reactions := 0, 0
	for _, view := range views {
		if !reaction.Disjoint(view.LikedBy, view.DislikedBy) {
			t.Fatalf("post %s has overlapping reaction sets", view.Post.PostID)
		}
		comments += len(view.Comments)
		reactions += len(view.LikedBy) + len(view.DislikedBy)
	}
	if comments != summary.Comments || reactions != summary.Reactions {
		t.Fatalf("summary %+v does not match stored comments=%d reactions=%d", summary, comments, reactions)
	}
}

func TestSeederZeroPostsIsNoop(t *testing.T) {
	seeder, err := NewSeeder(newPostsService(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	summary, err := seeder.Run(context.Background(), Options{})
	if err != nil || summary != (Summary{}) {
		t.Fatalf("expected empty summary, got %+v (%v)", summary, err)
	}
	if _, err := NewSeeder(nil, nil); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}
