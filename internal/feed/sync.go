package feed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// EventType names a push channel event.
type EventType string

const (
	EventPostCreated    EventType = "postCreated"
	EventPostUpdated    EventType = "postUpdated"
	EventPostDeleted    EventType = "postDeleted"
	EventCommentCreated EventType = "commentCreated"
)

// Event is a decoded push channel message. Post is set for post events,
// Comment for comment events and PostID for deletions.
type Event struct {
	Type    EventType
	Post    *Post
	Comment *Comment
	PostID  string
}

// Refresh replaces the local feed with the backend's collection. On failure
// the local feed is left untouched.
func (e *Engine) Refresh(ctx context.Context) error {
	posts, err := e.backend.ListPosts(ctx, e.actor())
	if err != nil {
		e.fail(opRefresh, "list_failed", err, "Failed to load posts", "")
		return err
	}
	e.store.Dispatch(ReplaceAll{Posts: NormalizePosts(posts)})
	e.observe(opRefresh, OutcomeApplied)
	return nil
}

// HandleEvent reconciles one push event with the local feed. It reports
// whether the feed changed.
func (e *Engine) HandleEvent(event Event) (bool, error) {
	switch event.Type {
	case EventPostCreated:
		if event.Post == nil || event.Post.ID == "" {
			return false, e.malformed(event)
		}
		if _, exists := e.Post(event.Post.ID); exists {
			e.observe(opPush, OutcomeDiscarded)
			return false, nil
		}
		created := NormalizePost(*event.Post)
		created.LikedBy = []string{}
		created.DislikedBy = []string{}
		created.Comments = []Comment{}
		e.store.Dispatch(PrependPost{Post: created})
	case EventPostUpdated:
		if event.Post == nil || event.Post.ID == "" {
			return false, e.malformed(event)
		}
		if _, exists := e.Post(event.Post.ID); !exists {
			e.observe(opPush, OutcomeDiscarded)
			return false, nil
		}
		e.store.Dispatch(MergePostUpdate{Post: NormalizePost(*event.Post)})
	case EventPostDeleted:
		postID := event.PostID
		if postID == "" && event.Post != nil {
			postID = event.Post.ID
		}
		if postID == "" {
			return false, e.malformed(event)
		}
		if _, exists := e.Post(postID); !exists {
			e.observe(opPush, OutcomeDiscarded)
			return false, nil
		}
		e.store.Dispatch(RemovePost{PostID: postID})
	case EventCommentCreated:
		if event.Comment == nil || event.Comment.PostID == "" {
			return false, e.malformed(event)
		}
		comment := *event.Comment
		comment.Pending = false
		comment.LocalOnly = false
		post, exists := e.Post(comment.PostID)
		if !exists || HasEquivalentComment(post.Comments, comment, e.dedupeWindow) {
			e.observe(opPush, OutcomeDiscarded)
			return false, nil
		}
		e.store.Dispatch(ReceiveComment{PostID: comment.PostID, Comment: comment, Window: e.dedupeWindow})
	default:
		return false, e.malformed(event)
	}
	e.observe(opPush, OutcomeApplied)
	return true, nil
}

func (e *Engine) malformed(event Event) error {
	e.logWarn(opPush, "malformed_event", zap.String("type", string(event.Type)))
	e.observe(opPush, OutcomeDiscarded)
	return fmt.Errorf("%w: malformed %q event", ErrValidation, event.Type)
}
