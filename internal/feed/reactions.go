package feed

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

type reactionChange struct {
	postID string
	actor  Actor
	before Post
	stamp  Stamp
	from   reaction.State
	to     reaction.State

	// partial is set once a toggle sequence failed after its first call.
	partial bool
}

// Like toggles the acting identity's like on a post. The returned state is
// the one held locally once the call settles.
func (e *Engine) Like(ctx context.Context, postID string) (reaction.State, error) {
	return e.react(ctx, postID, reaction.ActionLike)
}

// Dislike toggles the acting identity's dislike on a post.
func (e *Engine) Dislike(ctx context.Context, postID string) (reaction.State, error) {
	return e.react(ctx, postID, reaction.ActionDislike)
}

func (e *Engine) react(ctx context.Context, postID string, action reaction.Action) (reaction.State, error) {
	operation := reactionOperation(action)
	postID = strings.TrimSpace(postID)
	if postID == "" {
		e.observe(operation, OutcomeRejectedLocally)
		return reaction.StateNeutral, fmt.Errorf("%w: missing post id", ErrValidation)
	}
	actor := e.actor()

	change := &reactionChange{postID: postID, actor: actor}
	err := Optimistically(ctx, Optimistic[*reactionChange]{
		Apply: func() (*reactionChange, error) {
			before, stamp, err := e.store.Mutate(postID, func(post Post) (Command, error) {
				change.from = post.ReactionOf(actor.Identity)
				change.to = reaction.Transition(change.from, action)
				likedBy, dislikedBy := reaction.ApplyState(post.LikedBy, post.DislikedBy, actor.Identity, change.to)
				return SetReactions{PostID: postID, LikedBy: likedBy, DislikedBy: dislikedBy}, nil
			})
			if err != nil {
				return nil, err
			}
			change.before = before
			change.stamp = stamp
			return change, nil
		},
		Confirm: e.confirmReaction,
		Revert: func(change *reactionChange, cause error) {
			e.revertPost(operation, change, cause)
		},
		Settle: func(_ context.Context, change *reactionChange) {
			e.observe(operation, OutcomeConfirmed)
		},
	})
	if err != nil {
		if change.stamp == (Stamp{}) {
			e.observe(operation, OutcomeRejectedLocally)
			return reaction.StateNeutral, err
		}
		if current, ok := e.Post(postID); ok {
			return current.ReactionOf(actor.Identity), err
		}
		return change.from, err
	}
	return change.to, nil
}

func (e *Engine) confirmReaction(ctx context.Context, change *reactionChange) error {
	if !change.actor.HasCredential() {
		return ErrAuthMissing
	}
	if e.reactionMode == ReactionModeSet {
		_, err := e.backend.SetReaction(ctx, change.actor, change.postID, change.to)
		return err
	}
	steps := reaction.ToggleSteps(change.from, change.to)
	for index, step := range steps {
		if _, err := e.backend.ToggleReaction(ctx, change.actor, change.postID, step); err != nil {
			if index > 0 {
				change.partial = true
				e.logWarn(reactionOperation(step), "partial_toggle",
					zap.String("post_id", change.postID),
					zap.Int("completed_steps", index))
			}
			return err
		}
	}
	return nil
}

// revertPost restores the captured post unless something newer touched it
// after the optimistic write. A partially applied toggle sequence is always
// restored within the same refresh generation: its own first call may have
// echoed back through the push channel before the failure.
func (e *Engine) revertPost(operation string, change *reactionChange, cause error) {
	before := change.before
	var restored bool
	if change.partial {
		restored = e.store.DispatchIfGeneration(RestorePost{Post: before}, change.stamp.Generation)
	} else {
		restored = e.store.DispatchIf(RestorePost{Post: before}, change.stamp)
	}
	if !restored {
		e.logWarn(operation, "revert_superseded",
			zap.String("post_id", before.ID),
			zap.Error(cause))
		e.observe(operation, OutcomeRevertSkipped)
	} else {
		e.logError(operation, "reverted", cause, zap.String("post_id", before.ID))
		e.observe(operation, OutcomeReverted)
	}
	e.notify(Notification{
		Severity: SeverityError,
		Title:    "Failed to update reaction",
		Detail:   cause.Error(),
		PostID:   before.ID,
	})
}
