package posts

import (
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

var appliedAt = time.Unix(1700000600, 0).UTC()

func mustAuthor(t *testing.T, email string) Author {
	t.Helper()
	author, err := NewAuthor(email, "")
	if err != nil {
		t.Fatalf("unexpected author error: %v", err)
	}
	return author
}

func TestResolveReactionSetsChangesOnlyActorMembership(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	existing := []Reaction{
		{PostID: "p1", UserEmail: "b@x.com", State: reaction.StateLiked},
		{PostID: "p1", UserEmail: "a@x.com", State: reaction.StateDisliked},
	}
	liked := []string{"b@x.com", "A@X.com"}
	disliked := []string{}

	outcome, err := resolveReactionSets("p1", existing, &liked, &disliked, actor, appliedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Upserts) != 1 || outcome.Upserts[0].UserEmail != "a@x.com" || outcome.Upserts[0].State != reaction.StateLiked {
		t.Fatalf("unexpected upserts %+v", outcome.Upserts)
	}
	if len(outcome.Removals) != 0 {
		t.Fatalf("unexpected removals %+v", outcome.Removals)
	}
}

func TestResolveReactionSetsRejectsForeignChanges(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	existing := []Reaction{{PostID: "p1", UserEmail: "b@x.com", State: reaction.StateLiked}}
	liked := []string{}

	_, err := resolveReactionSets("p1", existing, &liked, nil, actor, appliedAt)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveReactionSetsRejectsOverlap(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	liked := []string{"a@x.com"}
	disliked := []string{"a@x.com"}

	_, err := resolveReactionSets("p1", nil, &liked, &disliked, actor, appliedAt)
	if !errors.Is(err, ErrInvalidReactionSets) {
		t.Fatalf("expected invalid sets, got %v", err)
	}

	bogus := []string{"not-an-email"}
	_, err = resolveReactionSets("p1", nil, &bogus, nil, actor, appliedAt)
	if !errors.Is(err, ErrInvalidReactionSets) {
		t.Fatalf("expected invalid sets, got %v", err)
	}
}

func TestResolveReactionSetsKeepsUntouchedSet(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	existing := []Reaction{{PostID: "p1", UserEmail: "a@x.com", State: reaction.StateLiked}}
	disliked := []string{"a@x.com"}

	_, err := resolveReactionSets("p1", existing, nil, &disliked, actor, appliedAt)
	if !errors.Is(err, ErrInvalidReactionSets) {
		t.Fatalf("expected overlap with stored likedBy to be rejected, got %v", err)
	}
}

func TestResolveReactionToggleFollowsTransitionTable(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	tests := []struct {
		name    string
		current reaction.State
		action  reaction.Action
		want    reaction.State
	}{
		{name: "neutral like", current: reaction.StateNeutral, action: reaction.ActionLike, want: reaction.StateLiked},
		{name: "liked like", current: reaction.StateLiked, action: reaction.ActionLike, want: reaction.StateNeutral},
		{name: "liked dislike", current: reaction.StateLiked, action: reaction.ActionDislike, want: reaction.StateDisliked},
		{name: "disliked dislike", current: reaction.StateDisliked, action: reaction.ActionDislike, want: reaction.StateNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var existing *Reaction
			if tt.current != reaction.StateNeutral {
				existing = &Reaction{PostID: "p1", UserEmail: "a@x.com", State: tt.current}
			}
			outcome, state := resolveReactionToggle("p1", existing, actor, tt.action, appliedAt)
			if state != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, state)
			}
			if tt.want == reaction.StateNeutral && (len(outcome.Removals) != 1 || len(outcome.Upserts) != 0) {
				t.Fatalf("expected a removal, got %+v", outcome)
			}
			if tt.want != reaction.StateNeutral && (len(outcome.Upserts) != 1 || outcome.Upserts[0].State != tt.want) {
				t.Fatalf("expected an upsert to %s, got %+v", tt.want, outcome)
			}
		})
	}
}

func TestResolveReactionStateNoopWhenUnchanged(t *testing.T) {
	actor := mustAuthor(t, "a@x.com")
	existing := &Reaction{PostID: "p1", UserEmail: "a@x.com", State: reaction.StateLiked}
	if outcome := resolveReactionState("p1", existing, actor, reaction.StateLiked, appliedAt); !outcome.Empty() {
		t.Fatalf("expected no-op, got %+v", outcome)
	}
	if outcome := resolveReactionState("p1", nil, actor, reaction.StateNeutral, appliedAt); !outcome.Empty() {
		t.Fatalf("expected no-op, got %+v", outcome)
	}
}

func TestValidatedIdentifiers(t *testing.T) {
	if _, err := NewPostID("  "); !errors.Is(err, ErrInvalidPostID) {
		t.Fatalf("expected invalid post id, got %v", err)
	}
	if _, err := NewEmail("nobody"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	email, err := NewEmail(" Ada@Example.COM ")
	if err != nil || email.String() != "ada@example.com" {
		t.Fatalf("unexpected email %q (%v)", email, err)
	}
	if _, err := NewContent(" \n "); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected invalid content, got %v", err)
	}
}
