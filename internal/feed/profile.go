package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/yapp/internal/identity"
)

// ProfilePosts lists the posts written by email, newest first. An empty
// email selects the acting identity. The result is a separate view and does
// not replace the local feed.
func (e *Engine) ProfilePosts(ctx context.Context, email string) ([]Post, error) {
	actor := e.actor()
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = actor.Identity
	}
	if email == "" || email == identity.AnonymousEmail {
		e.observe(opProfile, OutcomeRejectedLocally)
		return nil, fmt.Errorf("%w: no identity to list posts for", ErrValidation)
	}
	posts, err := e.backend.ListPostsByAuthor(ctx, actor, email)
	if err != nil {
		e.fail(opProfile, "list_failed", err, "Failed to load profile posts", "")
		return nil, err
	}
	e.observe(opProfile, OutcomeApplied)
	return NormalizePosts(posts), nil
}

// FetchPost reloads one post and its comments from the backend. A post
// already in the feed is replaced, keeping local comments the server does
// not hold yet.
func (e *Engine) FetchPost(ctx context.Context, postID string) (Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		e.observe(opFetchPost, OutcomeRejectedLocally)
		return Post{}, fmt.Errorf("%w: missing post id", ErrValidation)
	}
	actor := e.actor()
	post, err := e.backend.GetPost(ctx, actor, postID)
	if err != nil {
		e.fail(opFetchPost, "get_failed", err, "Failed to load post", postID)
		return Post{}, err
	}
	comments, err := e.backend.ListComments(ctx, actor, postID)
	if err != nil {
		e.fail(opFetchPost, "comments_failed", err, "Failed to load comments", postID)
		return Post{}, err
	}
	post.Comments = comments
	post = NormalizePost(post)

	if _, exists := e.Post(postID); !exists {
		e.observe(opFetchPost, OutcomeApplied)
		return post, nil
	}
	e.store.Dispatch(ReplacePost{Post: post, Window: e.dedupeWindow})
	e.observe(opFetchPost, OutcomeApplied)
	current, _ := e.Post(postID)
	return current, nil
}
