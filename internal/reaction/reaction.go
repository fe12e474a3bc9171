// Package reaction holds the like/dislike state machine shared by the feed
// engine and the posts service.
package reaction

import (
	"errors"
	"fmt"
	"strings"
)

// State is the reaction a single identity holds on a single post.
type State string

const (
	// StateNeutral means the identity neither likes nor dislikes the post.
	StateNeutral State = "neutral"
	// StateLiked means the identity is a member of likedBy.
	StateLiked State = "liked"
	// StateDisliked means the identity is a member of dislikedBy.
	StateDisliked State = "disliked"
)

// Action is a user gesture against a post.
type Action string

const (
	// ActionLike toggles towards liked.
	ActionLike Action = "like"
	// ActionDislike toggles towards disliked.
	ActionDislike Action = "dislike"
)

var (
	// ErrInvalidState indicates an unknown reaction state.
	ErrInvalidState = errors.New("reaction: invalid state")
	// ErrInvalidAction indicates an unknown reaction action.
	ErrInvalidAction = errors.New("reaction: invalid action")
)

// ParseState validates raw input and returns a State.
func ParseState(rawInput string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(rawInput))) {
	case StateNeutral:
		return StateNeutral, nil
	case StateLiked:
		return StateLiked, nil
	case StateDisliked:
		return StateDisliked, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, rawInput)
	}
}

// ParseAction validates raw input and returns an Action.
func ParseAction(rawInput string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ActionLike:
		return ActionLike, nil
	case ActionDislike:
		return ActionDislike, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, rawInput)
	}
}

// Transition returns the state reached by applying action to current.
// Repeating an action toggles it off.
func Transition(current State, action Action) State {
	switch action {
	case ActionLike:
		if current == StateLiked {
			return StateNeutral
		}
		return StateLiked
	case ActionDislike:
		if current == StateDisliked {
			return StateNeutral
		}
		return StateDisliked
	default:
		return current
	}
}

// StateOf reports which set, if any, contains identity.
func StateOf(likedBy, dislikedBy []string, identity string) State {
	if contains(likedBy, identity) {
		return StateLiked
	}
	if contains(dislikedBy, identity) {
		return StateDisliked
	}
	return StateNeutral
}

// ApplyState returns copies of likedBy and dislikedBy in which identity holds
// exactly the target state. Duplicate members are collapsed. Inputs are not
// modified.
func ApplyState(likedBy, dislikedBy []string, identity string, target State) ([]string, []string) {
	liked := without(likedBy, identity)
	disliked := without(dislikedBy, identity)
	switch target {
	case StateLiked:
		liked = append(liked, identity)
	case StateDisliked:
		disliked = append(disliked, identity)
	}
	return liked, disliked
}

// ToggleSteps lists the toggle-endpoint actions that move an identity from
// one state to another. Leaving a reaction always precedes entering the
// opposite one.
func ToggleSteps(from, to State) []Action {
	if from == to {
		return nil
	}
	steps := make([]Action, 0, 2)
	switch from {
	case StateLiked:
		steps = append(steps, ActionLike)
	case StateDisliked:
		steps = append(steps, ActionDislike)
	}
	switch to {
	case StateLiked:
		steps = append(steps, ActionLike)
	case StateDisliked:
		steps = append(steps, ActionDislike)
	}
	return steps
}

// Disjoint reports whether no identity appears in both sets.
func Disjoint(likedBy, dislikedBy []string) bool {
	if len(likedBy) == 0 || len(dislikedBy) == 0 {
		return true
	}
	seen := make(map[string]struct{}, len(likedBy))
	for _, member := range likedBy {
		seen[member] = struct{}{}
	}
	for _, member := range dislikedBy {
		if _, ok := seen[member]; ok {
			return false
		}
	}
	return true
}

// Dedupe returns members with duplicates and blanks removed, preserving the
// first occurrence order.
func Dedupe(members []string) []string {
	result := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if member == "" {
			continue
		}
		if _, ok := seen[member]; ok {
			continue
		}
		seen[member] = struct{}{}
		result = append(result, member)
	}
	return result
}

func contains(members []string, identity string) bool {
	for _, member := range members {
		if member == identity {
			return true
		}
	}
	return false
}

func without(members []string, identity string) []string {
	result := make([]string, 0, len(members)+1)
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if member == identity || member == "" {
			continue
		}
		if _, ok := seen[member]; ok {
			continue
		}
		seen[member] = struct{}{}
		result = append(result, member)
	}
	return result
}
