package posts

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

const (
	maxIdentifierLength = 190
	maxContentLength    = 5000
	maxDisplayName      = 190
)

var (
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("posts: invalid post id")
	// ErrInvalidEmail indicates that a user email is empty, malformed or too long.
	ErrInvalidEmail = errors.New("posts: invalid email")
	// ErrInvalidContent indicates empty or oversized post or comment text.
	ErrInvalidContent = errors.New("posts: invalid content")
	// ErrInvalidReactionSets indicates overlapping or malformed likedBy/dislikedBy sets.
	ErrInvalidReactionSets = errors.New("posts: invalid reaction sets")
	// ErrPostNotFound indicates the post does not exist.
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrForbidden indicates the actor may not perform the change.
	ErrForbidden = errors.New("posts: forbidden")
)

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// Email represents a validated, lowercased user email.
type Email string

// NewEmail validates raw input and returns an Email.
func NewEmail(rawInput string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	if len(normalized) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEmail, maxIdentifierLength)
	}
	if at := strings.Index(normalized, "@"); at <= 0 || at == len(normalized)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	return Email(normalized), nil
}

// String returns the underlying email.
func (e Email) String() string {
	return string(e)
}

// Content represents validated post or comment text.
type Content string

// NewContent trims raw input and validates its length.
func NewContent(rawInput string) (Content, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContent)
	}
	if utf8.RuneCountInString(trimmed) > maxContentLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidContent, maxContentLength)
	}
	return Content(trimmed), nil
}

// String returns the underlying text.
func (c Content) String() string {
	return string(c)
}

// Author identifies the acting user with an optional display name.
type Author struct {
	Email       Email
	DisplayName string
}

// NewAuthor validates the email and bounds the display name.
func NewAuthor(email, displayName string) (Author, error) {
	validated, err := NewEmail(email)
	if err != nil {
		return Author{}, err
	}
	name := strings.TrimSpace(displayName)
	if utf8.RuneCountInString(name) > maxDisplayName {
		name = string([]rune(name)[:maxDisplayName])
	}
	return Author{Email: validated, DisplayName: name}, nil
}

// Post models a persisted post.
type Post struct {
	PostID          string `gorm:"column:post_id;primaryKey;size:190;not null"`
	AuthorEmail     string `gorm:"column:author_email;size:190;not null;index:idx_posts_author_created,priority:1"`
	AuthorName      string `gorm:"column:author_name;size:190;not null;default:''"`
	Content         string `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_posts_created;index:idx_posts_author_created,priority:2"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Reaction records one identity's like or dislike. The composite key keeps
// likedBy and dislikedBy disjoint by construction.
type Reaction struct {
	PostID          string         `gorm:"column:post_id;primaryKey;size:190;not null"`
	UserEmail       string         `gorm:"column:user_email;primaryKey;size:190;not null"`
	State           reaction.State `gorm:"column:state;size:16;not null"`
	DisplayName     string         `gorm:"column:display_name;size:190;not null;default:''"`
	UpdatedAtMillis int64          `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reaction) TableName() string {
	return "post_reactions"
}

// Comment models a persisted comment.
type Comment struct {
	CommentID       string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	PostID          string `gorm:"column:post_id;size:190;not null;index:idx_comments_post_created,priority:1"`
	AuthorEmail     string `gorm:"column:author_email;size:190;not null"`
	AuthorName      string `gorm:"column:author_name;size:190;not null;default:''"`
	Content         string `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_comments_post_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "post_comments"
}

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&Post{}, &Reaction{}, &Comment{}}
}

// PostView is a post with its reaction sets and comments.
type PostView struct {
	Post       Post
	LikedBy    []string
	DislikedBy []string
	Comments   []Comment
}

// PostUpdate carries a partial post update. Nil fields are left untouched.
type PostUpdate struct {
	Content    *Content
	LikedBy    *[]string
	DislikedBy *[]string
}
