package feed

import "time"

// DefaultDedupeWindow bounds how far apart two comments with identical
// content and author may be created and still count as the same comment.
const DefaultDedupeWindow = 5 * time.Second

// SameComment reports whether a and b describe one logical comment: equal
// ids, or equal content and author with creation times closer than window.
func SameComment(a, b Comment, window time.Duration) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.Content != b.Content || a.AuthorIdentity != b.AuthorIdentity {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta < window
}

// HasEquivalentComment reports whether comments already hold candidate.
func HasEquivalentComment(comments []Comment, candidate Comment, window time.Duration) bool {
	for _, existing := range comments {
		if SameComment(existing, candidate, window) {
			return true
		}
	}
	return false
}
