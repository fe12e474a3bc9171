// Package apiclient binds the feed engine's persistence collaborator to the
// yapp REST API.
package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
	"github.com/MarcoPoloResearchLab/yapp/internal/wire"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "yapp-cli/1.0"

	opCreatePost     = "create_post"
	opListPosts      = "list_posts"
	opListByAuthor   = "list_posts_by_author"
	opGetPost        = "get_post"
	opUpdatePost     = "update_post"
	opDeletePost     = "delete_post"
	opAddComment     = "add_comment"
	opListComments   = "list_comments"
	opToggleReaction = "toggle_reaction"
	opSetReaction    = "set_reaction"
)

var errMissingBaseURL = errors.New("apiclient: base url is required")

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Logger    *zap.Logger
}

// Client implements feed.Backend over HTTP.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

var _ feed.Backend = (*Client)(nil)

// New builds a Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(wire.JSON.Marshal).
		SetJSONUnmarshaler(wire.JSON.Unmarshal)

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug("http request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("http response",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()))
		return nil
	})

	return &Client{http: httpClient, logger: logger}, nil
}

func (c *Client) request(ctx context.Context, actor feed.Actor) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if actor.HasCredential() {
		req.SetAuthToken(actor.Credential)
	}
	return req
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, actor feed.Actor, content string) (feed.Post, error) {
	var created wire.Post
	resp, err := c.request(ctx, actor).
		SetBody(wire.ContentRequest{Content: content}).
		SetResult(&created).
		Post("/posts")
	if err := classify(opCreatePost, resp, err); err != nil {
		return feed.Post{}, err
	}
	return created.ToFeed(), nil
}

// ListPosts returns the full feed.
func (c *Client) ListPosts(ctx context.Context, actor feed.Actor) ([]feed.Post, error) {
	resp, err := c.request(ctx, actor).Get("/posts")
	return decodePosts(opListPosts, resp, err)
}

// ListPostsByAuthor returns the posts written by email.
func (c *Client) ListPostsByAuthor(ctx context.Context, actor feed.Actor, email string) ([]feed.Post, error) {
	resp, err := c.request(ctx, actor).
		SetPathParam("email", strings.TrimSpace(email)).
		Get("/posts/user/{email}")
	return decodePosts(opListByAuthor, resp, err)
}

func decodePosts(operation string, resp *resty.Response, err error) ([]feed.Post, error) {
	if err := classify(operation, resp, err); err != nil {
		return nil, err
	}
	posts, decodeErr := wire.DecodePostList(resp.Body())
	if decodeErr != nil {
		return nil, feed.NewRemoteError(feed.ErrRemoteRejected, operation, resp.StatusCode(), "", decodeErr)
	}
	return wire.PostsToFeed(posts), nil
}

// GetPost fetches one post.
func (c *Client) GetPost(ctx context.Context, actor feed.Actor, postID string) (feed.Post, error) {
	var post wire.Post
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetResult(&post).
		Get("/posts/{id}")
	if err := classify(opGetPost, resp, err); err != nil {
		return feed.Post{}, err
	}
	return post.ToFeed(), nil
}

// UpdatePost applies a partial update.
func (c *Client) UpdatePost(ctx context.Context, actor feed.Actor, postID string, patch feed.PostPatch) (feed.Post, error) {
	var updated wire.Post
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetBody(wire.UpdatePostRequest{Content: patch.Content, LikedBy: patch.LikedBy, DislikedBy: patch.DislikedBy}).
		SetResult(&updated).
		Put("/posts/{id}")
	if err := classify(opUpdatePost, resp, err); err != nil {
		return feed.Post{}, err
	}
	return updated.ToFeed(), nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, actor feed.Actor, postID string) error {
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		Delete("/posts/{id}")
	return classify(opDeletePost, resp, err)
}

// AddComment posts a comment.
func (c *Client) AddComment(ctx context.Context, actor feed.Actor, postID string, content string) (feed.Comment, error) {
	var created wire.Comment
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetBody(wire.ContentRequest{Content: content}).
		SetResult(&created).
		Post("/posts/{id}/comments")
	if err := classify(opAddComment, resp, err); err != nil {
		return feed.Comment{}, err
	}
	return created.ToFeed(), nil
}

// ListComments returns a post's comments in creation order.
func (c *Client) ListComments(ctx context.Context, actor feed.Actor, postID string) ([]feed.Comment, error) {
	var comments []wire.Comment
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetResult(&comments).
		Get("/posts/{id}/comments")
	if err := classify(opListComments, resp, err); err != nil {
		return nil, err
	}
	converted := make([]feed.Comment, 0, len(comments))
	for _, comment := range comments {
		converted = append(converted, comment.ToFeed())
	}
	return converted, nil
}

// ToggleReaction calls the like or dislike toggle endpoint.
func (c *Client) ToggleReaction(ctx context.Context, actor feed.Actor, postID string, action reaction.Action) (feed.Post, error) {
	var updated wire.Post
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetPathParam("action", string(action)).
		SetBody(wire.ToggleRequest{Name: actor.DisplayName}).
		SetResult(&updated).
		Post("/posts/{id}/{action}")
	if err := classify(opToggleReaction, resp, err); err != nil {
		return feed.Post{}, err
	}
	return updated.ToFeed(), nil
}

// SetReaction stores the actor's reaction state.
func (c *Client) SetReaction(ctx context.Context, actor feed.Actor, postID string, state reaction.State) (feed.Post, error) {
	var updated wire.Post
	resp, err := c.request(ctx, actor).
		SetPathParam("id", postID).
		SetBody(wire.ReactionRequest{State: string(state)}).
		SetResult(&updated).
		Put("/posts/{id}/reaction")
	if err := classify(opSetReaction, resp, err); err != nil {
		return feed.Post{}, err
	}
	return updated.ToFeed(), nil
}

// classify maps a resty outcome onto the engine's error taxonomy. A 404
// carrying a structured error body is a missing resource and counts as a
// rejection; any other 404, 405 or 501 means the endpoint itself is absent.
func classify(operation string, resp *resty.Response, err error) error {
	if err != nil {
		return feed.NewRemoteError(feed.ErrNetworkFailure, operation, 0, "", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	status := resp.StatusCode()
	code := errorCode(resp.Body())
	switch {
	case status == http.StatusNotFound && code != "":
		return feed.NewRemoteError(feed.ErrRemoteRejected, operation, status, code, nil)
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed, status == http.StatusNotImplemented:
		return feed.NewRemoteError(feed.ErrRemoteUnavailable, operation, status, code, nil)
	default:
		return feed.NewRemoteError(feed.ErrRemoteRejected, operation, status, code, nil)
	}
}

func errorCode(body []byte) string {
	var payload wire.ErrorResponse
	if err := wire.JSON.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
