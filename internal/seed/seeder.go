// Package seed fills a development database with plausible feed data.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

var errMissingPostsService = errors.New("seed: posts service required")

// Options controls how much data is generated. Seed zero picks a random seed.
type Options struct {
	Posts              int
	Users              int
	MaxCommentsPerPost int
	Seed               uint64
}

// Summary counts what was written.
type Summary struct {
	Posts     int
	Comments  int
	Reactions int
}

// Seeder writes generated data through the posts service so every invariant
// the API enforces also holds for seeded rows.
type Seeder struct {
	posts  *posts.Service
	logger *zap.Logger
}

// NewSeeder creates a seeder over the posts service.
func NewSeeder(service *posts.Service, logger *zap.Logger) (*Seeder, error) {
	if service == nil {
		return nil, errMissingPostsService
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{posts: service, logger: logger}, nil
}

// Run generates opts.Posts posts by a pool of opts.Users authors, each with
// random reactions and comments from the same pool.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Posts <= 0 {
		return Summary{}, nil
	}
	userCount := opts.Users
	if userCount <= 0 {
		userCount = 5
	}
	maxComments := opts.MaxCommentsPerPost
	if maxComments < 0 {
		maxComments = 0
	}

	faker := gofakeit.New(opts.Seed)
	authors, err := s.authors(faker, userCount)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{}
	for index := 0; index < opts.Posts; index++ {
		author := authors[faker.IntRange(0, len(authors)-1)]
		content, err := posts.NewContent(faker.HipsterSentence())
		if err != nil {
			return summary, fmt.Errorf("seed: content: %w", err)
		}
		view, err := s.posts.CreatePost(ctx, author, content)
		if err != nil {
			return summary, fmt.Errorf("seed: create post: %w", err)
		}
		summary.Posts++
		postID := posts.PostID(view.Post.PostID)

		for _, reactor := range authors {
			var target reaction.State
			switch faker.IntRange(0, 2) {
			case 1:
				target = reaction.StateLiked
			case 2:
				target = reaction.StateDisliked
			default:
				continue
			}
			if _, err := s.posts.SetReaction(ctx, reactor, postID, target); err != nil {
				return summary, fmt.Errorf("seed: reaction: %w", err)
			}
			summary.Reactions++
		}

		if maxComments == 0 {
			continue
		}
		for count := faker.IntRange(0, maxComments); count > 0; count-- {
			commenter := authors[faker.IntRange(0, len(authors)-1)]
			text, err := posts.NewContent(faker.Phrase())
			if err != nil {
				return summary, fmt.Errorf("seed: comment content: %w", err)
			}
			if _, err := s.posts.AddComment(ctx, commenter, postID, text); err != nil {
				return summary, fmt.Errorf("seed: comment: %w", err)
			}
			summary.Comments++
		}
	}

	s.logger.Info("seed completed",
		zap.Int("posts", summary.Posts),
		zap.Int("comments", summary.Comments),
		zap.Int("reactions", summary.Reactions))
	return summary, nil
}

func (s *Seeder) authors(faker *gofakeit.Faker, count int) ([]posts.Author, error) {
	seen := make(map[string]struct{}, count)
	authors := make([]posts.Author, 0, count)
	for attempts := 0; len(authors) < count && attempts < count*10; attempts++ {
		email := strings.ToLower(faker.Email())
		if _, exists := seen[email]; exists {
			continue
		}
		author, err := posts.NewAuthor(email, faker.Name())
		if err != nil {
			continue
		}
		seen[email] = struct{}{}
		authors = append(authors, author)
	}
	if len(authors) == 0 {
		return nil, fmt.Errorf("seed: could not generate authors")
	}
	return authors, nil
}
