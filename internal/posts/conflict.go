package posts

import (
	"fmt"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

// reactionOutcome captures the rows to write and delete after resolving a
// reaction change.
type reactionOutcome struct {
	Upserts  []Reaction
	Removals []string
}

// Empty reports whether the change is a no-op.
func (o reactionOutcome) Empty() bool {
	return len(o.Upserts) == 0 && len(o.Removals) == 0
}

// resolveReactionSets turns requested likedBy/dislikedBy sets into row
// changes. A nil set keeps the stored membership. Only the actor's own
// membership may change.
func resolveReactionSets(postID string, existing []Reaction, likedBy, dislikedBy *[]string, actor Author, appliedAt time.Time) (reactionOutcome, error) {
	current := make(map[string]Reaction, len(existing))
	currentLiked := make([]string, 0, len(existing))
	currentDisliked := make([]string, 0, len(existing))
	for _, row := range existing {
		current[row.UserEmail] = row
		switch row.State {
		case reaction.StateLiked:
			currentLiked = append(currentLiked, row.UserEmail)
		case reaction.StateDisliked:
			currentDisliked = append(currentDisliked, row.UserEmail)
		}
	}

	targetLiked, err := requestedSet(likedBy, currentLiked)
	if err != nil {
		return reactionOutcome{}, err
	}
	targetDisliked, err := requestedSet(dislikedBy, currentDisliked)
	if err != nil {
		return reactionOutcome{}, err
	}
	if !reaction.Disjoint(targetLiked, targetDisliked) {
		return reactionOutcome{}, fmt.Errorf("%w: identity in both sets", ErrInvalidReactionSets)
	}

	identities := make(map[string]struct{}, len(current)+len(targetLiked)+len(targetDisliked))
	for identity := range current {
		identities[identity] = struct{}{}
	}
	for _, identity := range targetLiked {
		identities[identity] = struct{}{}
	}
	for _, identity := range targetDisliked {
		identities[identity] = struct{}{}
	}
	ordered := make([]string, 0, len(identities))
	for identity := range identities {
		ordered = append(ordered, identity)
	}
	sort.Strings(ordered)

	outcome := reactionOutcome{}
	for _, identity := range ordered {
		from := reaction.StateOf(currentLiked, currentDisliked, identity)
		to := reaction.StateOf(targetLiked, targetDisliked, identity)
		if from == to {
			continue
		}
		if identity != actor.Email.String() {
			return reactionOutcome{}, fmt.Errorf("%w: cannot change reaction of %s", ErrForbidden, identity)
		}
		outcome = outcome.with(postID, identity, to, actor.DisplayName, appliedAt)
	}
	return outcome, nil
}

// resolveReactionState moves the actor to target.
func resolveReactionState(postID string, existing *Reaction, actor Author, target reaction.State, appliedAt time.Time) reactionOutcome {
	from := reaction.StateNeutral
	if existing != nil {
		from = existing.State
	}
	if from == target {
		return reactionOutcome{}
	}
	return reactionOutcome{}.with(postID, actor.Email.String(), target, actor.DisplayName, appliedAt)
}

// resolveReactionToggle applies a toggle-endpoint action for the actor.
func resolveReactionToggle(postID string, existing *Reaction, actor Author, action reaction.Action, appliedAt time.Time) (reactionOutcome, reaction.State) {
	from := reaction.StateNeutral
	if existing != nil {
		from = existing.State
	}
	to := reaction.Transition(from, action)
	return resolveReactionState(postID, existing, actor, to, appliedAt), to
}

func (o reactionOutcome) with(postID, identity string, to reaction.State, displayName string, appliedAt time.Time) reactionOutcome {
	if to == reaction.StateNeutral {
		o.Removals = append(o.Removals, identity)
		return o
	}
	o.Upserts = append(o.Upserts, Reaction{
		PostID:          postID,
		UserEmail:       identity,
		State:           to,
		DisplayName:     displayName,
		UpdatedAtMillis: appliedAt.UnixMilli(),
	})
	return o
}

func requestedSet(requested *[]string, current []string) ([]string, error) {
	if requested == nil {
		return current, nil
	}
	normalized := make([]string, 0, len(*requested))
	for _, raw := range *requested {
		email, err := NewEmail(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReactionSets, err)
		}
		normalized = append(normalized, email.String())
	}
	return reaction.Dedupe(normalized), nil
}
