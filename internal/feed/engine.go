package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

const (
	opLike       = "feed.like"
	opDislike    = "feed.dislike"
	opAddComment = "feed.add_comment"
	opRefresh    = "feed.refresh"
	opCreatePost = "feed.create_post"
	opEditPost   = "feed.edit_post"
	opDeletePost = "feed.delete_post"
	opPush       = "feed.push"
	opProfile    = "feed.profile"
	opFetchPost  = "feed.fetch_post"

	tempIDPrefix = "tmp-"
)

var noOpLogger = zap.NewNop()

// ReactionMode selects how reactions are sent to the backend.
type ReactionMode string

const (
	// ReactionModeSet sends the target state in one call.
	ReactionModeSet ReactionMode = "set"
	// ReactionModeToggle flips server-side state with one call per step,
	// removing the opposite reaction before adding the new one.
	ReactionModeToggle ReactionMode = "toggle"
)

// ParseReactionMode validates a configured mode. Empty selects ReactionModeSet.
func ParseReactionMode(raw string) (ReactionMode, error) {
	switch ReactionMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ReactionModeSet:
		return ReactionModeSet, nil
	case ReactionModeToggle:
		return ReactionModeToggle, nil
	default:
		return "", fmt.Errorf("%w: unknown reaction mode %q", ErrValidation, raw)
	}
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Backend             Backend
	Identity            IdentityResolver
	Store               *Store
	Drafts              *Drafts
	ReactionMode        ReactionMode
	RefreshAfterComment bool
	DedupeWindow        time.Duration
	Clock               func() time.Time
	TempIDs             func() string
	Notifier            Notifier
	Observer            Observer
	Logger              *zap.Logger
}

// Engine reconciles the local feed with the remote store.
type Engine struct {
	backend             Backend
	identity            IdentityResolver
	store               *Store
	drafts              *Drafts
	reactionMode        ReactionMode
	refreshAfterComment bool
	dedupeWindow        time.Duration
	clock               func() time.Time
	tempIDs             func() string
	notifier            Notifier
	observer            Observer
	logger              *zap.Logger
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	if cfg.Identity == nil {
		return nil, errMissingIdentity
	}
	mode := cfg.ReactionMode
	if mode == "" {
		mode = ReactionModeSet
	}
	if mode != ReactionModeSet && mode != ReactionModeToggle {
		return nil, fmt.Errorf("%w: unknown reaction mode %q", ErrValidation, mode)
	}

	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	drafts := cfg.Drafts
	if drafts == nil {
		drafts = NewDrafts()
	}
	window := cfg.DedupeWindow
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tempIDs := cfg.TempIDs
	if tempIDs == nil {
		tempIDs = func() string {
			return newTempID(clock)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Engine{
		backend:             cfg.Backend,
		identity:            cfg.Identity,
		store:               store,
		drafts:              drafts,
		reactionMode:        mode,
		refreshAfterComment: cfg.RefreshAfterComment,
		dedupeWindow:        window,
		clock:               clock,
		tempIDs:             tempIDs,
		notifier:            cfg.Notifier,
		observer:            cfg.Observer,
		logger:              logger,
	}, nil
}

func newTempID(clock func() time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s%d", tempIDPrefix, clock().UnixNano())
	}
	return tempIDPrefix + id.String()
}

// IsTempID reports whether id was issued locally for a pending comment.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Posts returns a copy of the current feed.
func (e *Engine) Posts() []Post {
	return e.store.Posts()
}

// Post returns a copy of one post.
func (e *Engine) Post(postID string) (Post, bool) {
	post, _, ok := e.store.Post(strings.TrimSpace(postID))
	return post, ok
}

// Drafts exposes the per-post comment input buffers.
func (e *Engine) Drafts() *Drafts {
	return e.drafts
}

// Store exposes the underlying store, for subscribing to changes.
func (e *Engine) Store() *Store {
	return e.store
}

// CreatePost publishes a new post and prepends the confirmed result.
func (e *Engine) CreatePost(ctx context.Context, content string) (Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		e.observe(opCreatePost, OutcomeRejectedLocally)
		return Post{}, fmt.Errorf("%w: empty post content", ErrValidation)
	}
	actor := e.actor()
	if !actor.HasCredential() {
		e.observe(opCreatePost, OutcomeRejectedLocally)
		return Post{}, ErrAuthMissing
	}
	created, err := e.backend.CreatePost(ctx, actor, content)
	if err != nil {
		e.fail(opCreatePost, "backend_failed", err, "Failed to create post", "")
		return Post{}, err
	}
	created = NormalizePost(created)
	e.store.Dispatch(PrependPost{Post: created})
	e.observe(opCreatePost, OutcomeConfirmed)
	e.notify(Notification{Severity: SeveritySuccess, Title: "Post created", PostID: created.ID})
	return created, nil
}

// EditPost replaces a post's content after the backend accepts it.
func (e *Engine) EditPost(ctx context.Context, postID, content string) (Post, error) {
	postID = strings.TrimSpace(postID)
	content = strings.TrimSpace(content)
	if postID == "" || content == "" {
		e.observe(opEditPost, OutcomeRejectedLocally)
		return Post{}, fmt.Errorf("%w: post id and content are required", ErrValidation)
	}
	actor := e.actor()
	if !actor.HasCredential() {
		e.observe(opEditPost, OutcomeRejectedLocally)
		return Post{}, ErrAuthMissing
	}
	updated, err := e.backend.UpdatePost(ctx, actor, postID, PostPatch{Content: &content})
	if err != nil {
		e.fail(opEditPost, "backend_failed", err, "Failed to update post", postID)
		return Post{}, err
	}
	updated = NormalizePost(updated)
	e.store.Dispatch(MergePostUpdate{Post: updated})
	e.observe(opEditPost, OutcomeConfirmed)
	e.notify(Notification{Severity: SeveritySuccess, Title: "Post updated", PostID: postID})
	return updated, nil
}

// DeletePost removes a post remotely, then locally.
func (e *Engine) DeletePost(ctx context.Context, postID string) error {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		e.observe(opDeletePost, OutcomeRejectedLocally)
		return fmt.Errorf("%w: missing post id", ErrValidation)
	}
	actor := e.actor()
	if !actor.HasCredential() {
		e.observe(opDeletePost, OutcomeRejectedLocally)
		return ErrAuthMissing
	}
	if err := e.backend.DeletePost(ctx, actor, postID); err != nil {
		e.fail(opDeletePost, "backend_failed", err, "Failed to delete post", postID)
		return err
	}
	e.store.Dispatch(RemovePost{PostID: postID})
	e.observe(opDeletePost, OutcomeConfirmed)
	e.notify(Notification{Severity: SeveritySuccess, Title: "Post deleted", PostID: postID})
	return nil
}

func (e *Engine) actor() Actor {
	return actorFrom(e.identity.Current())
}

func (e *Engine) observe(operation, outcome string) {
	if e.observer != nil {
		e.observer.Observe(operation, outcome)
	}
}

func (e *Engine) notify(notification Notification) {
	if e.notifier != nil {
		e.notifier.Notify(notification)
	}
}

func (e *Engine) fail(operation, reason string, err error, title, postID string) {
	e.logError(operation, reason, err, zap.String("post_id", postID))
	e.observe(operation, OutcomeFailed)
	e.notify(Notification{Severity: SeverityError, Title: title, Detail: err.Error(), PostID: postID})
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("feed engine error", attrs...)
}

func (e *Engine) logWarn(operation, reason string, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	attrs = append(attrs, fields...)
	e.logger.Warn("feed engine warning", attrs...)
}

func reactionOperation(action reaction.Action) string {
	if action == reaction.ActionDislike {
		return opDislike
	}
	return opLike
}
