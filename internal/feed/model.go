// Package feed implements the client-side reaction reconciliation engine:
// an in-memory feed of posts mutated optimistically by likes, dislikes and
// comments, and reconciled with the remote store and its push channel.
package feed

import (
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

// Post is the client-held copy of a feed post.
type Post struct {
	ID             string
	Content        string
	AuthorIdentity string
	AuthorName     string
	CreatedAt      time.Time
	LikedBy        []string
	DislikedBy     []string
	Comments       []Comment
}

// Comment is a post comment. Pending comments carry a temporary id until the
// server confirms them; LocalOnly comments were never accepted remotely.
type Comment struct {
	ID             string
	PostID         string
	Content        string
	AuthorIdentity string
	AuthorName     string
	CreatedAt      time.Time
	Pending        bool
	LocalOnly      bool
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	clone := p
	clone.LikedBy = append([]string{}, p.LikedBy...)
	clone.DislikedBy = append([]string{}, p.DislikedBy...)
	clone.Comments = append([]Comment{}, p.Comments...)
	return clone
}

// ReactionOf returns the reaction identity holds on the post.
func (p Post) ReactionOf(identity string) reaction.State {
	return reaction.StateOf(p.LikedBy, p.DislikedBy, identity)
}

// CommentByID returns the comment with the given id.
func (p Post) CommentByID(commentID string) (Comment, bool) {
	for _, comment := range p.Comments {
		if comment.ID == commentID {
			return comment, true
		}
	}
	return Comment{}, false
}

// NormalizePost fills absent collections with empty ones and collapses
// duplicate reaction members.
func NormalizePost(post Post) Post {
	normalized := post.Clone()
	normalized.LikedBy = reaction.Dedupe(normalized.LikedBy)
	normalized.DislikedBy = reaction.Dedupe(normalized.DislikedBy)
	for index := range normalized.Comments {
		if normalized.Comments[index].PostID == "" {
			normalized.Comments[index].PostID = normalized.ID
		}
	}
	return normalized
}

// NormalizePosts normalizes every post and orders them newest first. Posts
// with equal timestamps keep their relative order.
func NormalizePosts(posts []Post) []Post {
	normalized := make([]Post, 0, len(posts))
	for _, post := range posts {
		normalized = append(normalized, NormalizePost(post))
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].CreatedAt.After(normalized[j].CreatedAt)
	})
	return normalized
}
