// Package posts persists posts, reactions and comments.
package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "posts.service.new"
	opCreatePost      = "posts.create_post"
	opListPosts       = "posts.list_posts"
	opListByAuthor    = "posts.list_posts_by_author"
	opGetPost         = "posts.get_post"
	opUpdatePost      = "posts.update_post"
	opDeletePost      = "posts.delete_post"
	opToggleReaction  = "posts.toggle_reaction"
	opSetReaction     = "posts.set_reaction"
	opAddComment      = "posts.add_comment"
	opListComments    = "posts.list_comments"
	reasonNotFound    = "post_not_found"
	reasonForbidden   = "forbidden"
	reasonInvalidSets = "invalid_reaction_sets"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreatePost stores a new post authored by author.
func (s *Service) CreatePost(ctx context.Context, author Author, content Content) (PostView, error) {
	postID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return PostView{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}
	now := s.clock().UTC().UnixMilli()
	post := Post{
		PostID:          postID,
		AuthorEmail:     author.Email.String(),
		AuthorName:      author.DisplayName,
		Content:         content.String(),
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		s.logError(opCreatePost, "insert_failed", err, zap.String("author", author.Email.String()))
		return PostView{}, newServiceError(opCreatePost, "insert_failed", err)
	}
	return PostView{Post: post, LikedBy: []string{}, DislikedBy: []string{}, Comments: []Comment{}}, nil
}

// ListPosts returns every post newest first with reactions and comments.
func (s *Service) ListPosts(ctx context.Context) ([]PostView, error) {
	var stored []Post
	if err := s.db.WithContext(ctx).
		Order("created_at_ms DESC").
		Order("post_id DESC").
		Find(&stored).Error; err != nil {
		s.logError(opListPosts, "query_failed", err)
		return nil, newServiceError(opListPosts, "query_failed", err)
	}
	return s.assemble(ctx, opListPosts, stored)
}

// ListPostsByAuthor returns the posts written by author, newest first.
func (s *Service) ListPostsByAuthor(ctx context.Context, author Email) ([]PostView, error) {
	var stored []Post
	if err := s.db.WithContext(ctx).
		Where("author_email = ?", author.String()).
		Order("created_at_ms DESC").
		Order("post_id DESC").
		Find(&stored).Error; err != nil {
		s.logError(opListByAuthor, "query_failed", err, zap.String("author", author.String()))
		return nil, newServiceError(opListByAuthor, "query_failed", err)
	}
	return s.assemble(ctx, opListByAuthor, stored)
}

// GetPost returns one post.
func (s *Service) GetPost(ctx context.Context, postID PostID) (PostView, error) {
	post, err := s.findPost(s.db.WithContext(ctx), opGetPost, postID)
	if err != nil {
		return PostView{}, err
	}
	views, err := s.assemble(ctx, opGetPost, []Post{post})
	if err != nil {
		return PostView{}, err
	}
	return views[0], nil
}

// UpdatePost applies a partial update. Content changes are reserved to the
// author; reaction set changes may only touch the actor's own membership.
func (s *Service) UpdatePost(ctx context.Context, actor Author, postID PostID, update PostUpdate) (PostView, error) {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.lockPost(tx, opUpdatePost, postID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		if update.Content != nil {
			if post.AuthorEmail != actor.Email.String() {
				return newServiceError(opUpdatePost, reasonForbidden, ErrForbidden)
			}
			post.Content = update.Content.String()
			post.UpdatedAtMillis = now.UnixMilli()
			if err := tx.Save(&post).Error; err != nil {
				s.logError(opUpdatePost, "post_save_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opUpdatePost, "post_save_failed", err)
			}
		}
		if update.LikedBy == nil && update.DislikedBy == nil {
			return nil
		}
		var existing []Reaction
		if err := tx.Where("post_id = ?", postID.String()).Find(&existing).Error; err != nil {
			s.logError(opUpdatePost, "reaction_select_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opUpdatePost, "reaction_select_failed", err)
		}
		outcome, err := resolveReactionSets(postID.String(), existing, update.LikedBy, update.DislikedBy, actor, now)
		switch {
		case errors.Is(err, ErrForbidden):
			return newServiceError(opUpdatePost, reasonForbidden, err)
		case err != nil:
			return newServiceError(opUpdatePost, reasonInvalidSets, err)
		}
		return s.applyReactionOutcome(tx, opUpdatePost, postID, outcome)
	})
	if txErr != nil {
		return PostView{}, txErr
	}
	return s.GetPost(ctx, postID)
}

// DeletePost removes a post with its reactions and comments. Only the
// author may delete.
func (s *Service) DeletePost(ctx context.Context, actor Author, postID PostID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.lockPost(tx, opDeletePost, postID)
		if err != nil {
			return err
		}
		if post.AuthorEmail != actor.Email.String() {
			return newServiceError(opDeletePost, reasonForbidden, ErrForbidden)
		}
		if err := tx.Where("post_id = ?", postID.String()).Delete(&Reaction{}).Error; err != nil {
			s.logError(opDeletePost, "reaction_delete_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opDeletePost, "reaction_delete_failed", err)
		}
		if err := tx.Where("post_id = ?", postID.String()).Delete(&Comment{}).Error; err != nil {
			s.logError(opDeletePost, "comment_delete_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opDeletePost, "comment_delete_failed", err)
		}
		if err := tx.Delete(&post).Error; err != nil {
			s.logError(opDeletePost, "post_delete_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opDeletePost, "post_delete_failed", err)
		}
		return nil
	})
}

// ToggleReaction flips the actor's like or dislike.
func (s *Service) ToggleReaction(ctx context.Context, actor Author, postID PostID, action reaction.Action) (PostView, error) {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.lockReaction(tx, opToggleReaction, postID, actor.Email)
		if err != nil {
			return err
		}
		outcome, _ := resolveReactionToggle(postID.String(), existing, actor, action, s.clock().UTC())
		return s.applyReactionOutcome(tx, opToggleReaction, postID, outcome)
	})
	if txErr != nil {
		return PostView{}, txErr
	}
	return s.GetPost(ctx, postID)
}

// SetReaction stores the actor's reaction as target.
func (s *Service) SetReaction(ctx context.Context, actor Author, postID PostID, target reaction.State) (PostView, error) {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.lockReaction(tx, opSetReaction, postID, actor.Email)
		if err != nil {
			return err
		}
		outcome := resolveReactionState(postID.String(), existing, actor, target, s.clock().UTC())
		return s.applyReactionOutcome(tx, opSetReaction, postID, outcome)
	})
	if txErr != nil {
		return PostView{}, txErr
	}
	return s.GetPost(ctx, postID)
}

// AddComment appends a comment to a post.
func (s *Service) AddComment(ctx context.Context, author Author, postID PostID, content Content) (Comment, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), opAddComment, postID); err != nil {
		return Comment{}, err
	}
	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, newServiceError(opAddComment, "id_generation_failed", err)
	}
	comment := Comment{
		CommentID:       commentID,
		PostID:          postID.String(),
		AuthorEmail:     author.Email.String(),
		AuthorName:      author.DisplayName,
		Content:         content.String(),
		CreatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opAddComment, "insert_failed", err, zap.String("post_id", postID.String()))
		return Comment{}, newServiceError(opAddComment, "insert_failed", err)
	}
	return comment, nil
}

// ListComments returns a post's comments in creation order.
func (s *Service) ListComments(ctx context.Context, postID PostID) ([]Comment, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), opListComments, postID); err != nil {
		return nil, err
	}
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", postID.String()).
		Order("created_at_ms ASC").
		Order("comment_id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("post_id", postID.String()))
		return nil, newServiceError(opListComments, "query_failed", err)
	}
	return comments, nil
}

func (s *Service) findPost(db *gorm.DB, operation string, postID PostID) (Post, error) {
	var post Post
	err := db.Where("post_id = ?", postID.String()).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, newServiceError(operation, reasonNotFound, ErrPostNotFound)
	}
	if err != nil {
		s.logError(operation, "post_select_failed", err, zap.String("post_id", postID.String()))
		return Post{}, newServiceError(operation, "post_select_failed", err)
	}
	return post, nil
}

func (s *Service) lockPost(tx *gorm.DB, operation string, postID PostID) (Post, error) {
	return s.findPost(tx.Clauses(clause.Locking{Strength: "UPDATE"}), operation, postID)
}

func (s *Service) lockReaction(tx *gorm.DB, operation string, postID PostID, email Email) (*Reaction, error) {
	if _, err := s.lockPost(tx, operation, postID); err != nil {
		return nil, err
	}
	var existing Reaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("post_id = ? AND user_email = ?", postID.String(), email.String()).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(operation, "reaction_select_failed", err,
			zap.String("post_id", postID.String()),
			zap.String("user_email", email.String()))
		return nil, newServiceError(operation, "reaction_select_failed", err)
	}
	return &existing, nil
}

func (s *Service) applyReactionOutcome(tx *gorm.DB, operation string, postID PostID, outcome reactionOutcome) error {
	if outcome.Empty() {
		return nil
	}
	if len(outcome.Removals) > 0 {
		if err := tx.Where("post_id = ? AND user_email IN ?", postID.String(), outcome.Removals).
			Delete(&Reaction{}).Error; err != nil {
			s.logError(operation, "reaction_delete_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(operation, "reaction_delete_failed", err)
		}
	}
	for index := range outcome.Upserts {
		upsert := outcome.Upserts[index]
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_email"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "display_name", "updated_at_ms"}),
		}).Create(&upsert).Error; err != nil {
			s.logError(operation, "reaction_upsert_failed", err,
				zap.String("post_id", postID.String()),
				zap.String("user_email", upsert.UserEmail))
			return newServiceError(operation, "reaction_upsert_failed", err)
		}
	}
	return nil
}

// assemble attaches reaction sets and comments to posts with one query per
// table.
func (s *Service) assemble(ctx context.Context, operation string, stored []Post) ([]PostView, error) {
	views := make([]PostView, 0, len(stored))
	if len(stored) == 0 {
		return views, nil
	}
	postIDs := make([]string, 0, len(stored))
	for _, post := range stored {
		postIDs = append(postIDs, post.PostID)
	}

	var reactions []Reaction
	if err := s.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("updated_at_ms ASC").
		Order("user_email ASC").
		Find(&reactions).Error; err != nil {
		s.logError(operation, "reaction_query_failed", err)
		return nil, newServiceError(operation, "reaction_query_failed", err)
	}
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("created_at_ms ASC").
		Order("comment_id ASC").
		Find(&comments).Error; err != nil {
		s.logError(operation, "comment_query_failed", err)
		return nil, newServiceError(operation, "comment_query_failed", err)
	}

	liked := make(map[string][]string, len(stored))
	disliked := make(map[string][]string, len(stored))
	for _, row := range reactions {
		switch row.State {
		case reaction.StateLiked:
			liked[row.PostID] = append(liked[row.PostID], row.UserEmail)
		case reaction.StateDisliked:
			disliked[row.PostID] = append(disliked[row.PostID], row.UserEmail)
		}
	}
	commentsByPost := make(map[string][]Comment, len(stored))
	for _, comment := range comments {
		commentsByPost[comment.PostID] = append(commentsByPost[comment.PostID], comment)
	}

	for _, post := range stored {
		views = append(views, PostView{
			Post:       post,
			LikedBy:    append([]string{}, liked[post.PostID]...),
			DislikedBy: append([]string{}, disliked[post.PostID]...),
			Comments:   append([]Comment{}, commentsByPost[post.PostID]...),
		})
	}
	return views, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("posts service error", attrs...)
}
