package feed

import (
	"context"

	"github.com/MarcoPoloResearchLab/yapp/internal/identity"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

// Actor is the acting user passed with every remote call.
type Actor struct {
	Identity    string
	DisplayName string
	Credential  string
}

func actorFrom(current identity.Identity) Actor {
	return Actor{
		Identity:    current.Email,
		DisplayName: current.Name(),
		Credential:  current.Credential,
	}
}

// HasCredential reports whether a bearer credential is present.
func (a Actor) HasCredential() bool {
	return a.Credential != ""
}

// PostPatch carries the fields of a partial post update. Nil fields are
// left untouched; a non-nil empty set clears it.
type PostPatch struct {
	Content    *string
	LikedBy    *[]string
	DislikedBy *[]string
}

// Backend is the persistence collaborator.
type Backend interface {
	CreatePost(ctx context.Context, actor Actor, content string) (Post, error)
	ListPosts(ctx context.Context, actor Actor) ([]Post, error)
	ListPostsByAuthor(ctx context.Context, actor Actor, email string) ([]Post, error)
	GetPost(ctx context.Context, actor Actor, postID string) (Post, error)
	UpdatePost(ctx context.Context, actor Actor, postID string, patch PostPatch) (Post, error)
	DeletePost(ctx context.Context, actor Actor, postID string) error
	AddComment(ctx context.Context, actor Actor, postID string, content string) (Comment, error)
	ListComments(ctx context.Context, actor Actor, postID string) ([]Comment, error)
	// ToggleReaction flips the actor's like or dislike server-side.
	ToggleReaction(ctx context.Context, actor Actor, postID string, action reaction.Action) (Post, error)
	// SetReaction stores the actor's reaction as the given state.
	SetReaction(ctx context.Context, actor Actor, postID string, state reaction.State) (Post, error)
}

// IdentityResolver supplies the acting identity.
type IdentityResolver interface {
	Current() identity.Identity
}

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-facing outcome message.
type Notification struct {
	Severity Severity
	Title    string
	Detail   string
	PostID   string
}

// Notifier receives outcome notifications.
type Notifier interface {
	Notify(notification Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(notification Notification) {
	f(notification)
}

// Outcome labels reported to an Observer.
const (
	OutcomeConfirmed       = "confirmed"
	OutcomeReverted        = "reverted"
	OutcomeRevertSkipped   = "revert_skipped"
	OutcomeDegraded        = "degraded"
	OutcomeRejectedLocally = "rejected_locally"
	OutcomeFailed          = "failed"
	OutcomeApplied         = "applied"
	OutcomeDiscarded       = "discarded"
)

// Observer counts engine outcomes, typically for metrics.
type Observer interface {
	Observe(operation, outcome string)
}
