// Package wire defines the JSON contract shared by the API server, the REST
// client and the push channel consumer.
package wire

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
)

// JSON is the codec used on both ends of the contract.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedPayload indicates a payload that does not match the contract.
var ErrMalformedPayload = errors.New("wire: malformed payload")

// Post is the JSON shape of a post.
type Post struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LikedBy     []string  `json:"likedBy"`
	DislikedBy  []string  `json:"dislikedBy"`
	Comments    []Comment `json:"comments"`
}

// Comment is the JSON shape of a comment.
type Comment struct {
	ID          string    `json:"id"`
	PostID      string    `json:"postId"`
	Content     string    `json:"content"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ContentRequest carries post or comment text.
type ContentRequest struct {
	Content string `json:"content"`
}

// UpdatePostRequest is a partial post update.
type UpdatePostRequest struct {
	Content    *string   `json:"content,omitempty"`
	LikedBy    *[]string `json:"likedBy,omitempty"`
	DislikedBy *[]string `json:"dislikedBy,omitempty"`
}

// ToggleRequest accompanies a toggle-endpoint call.
type ToggleRequest struct {
	Name string `json:"name,omitempty"`
}

// ReactionRequest sets a reaction state.
type ReactionRequest struct {
	State string `json:"state"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeletedResponse acknowledges a deletion.
type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}

// PostDeleted is the payload of a postDeleted event.
type PostDeleted struct {
	ID string `json:"id"`
}

// Event is a push channel frame.
type Event struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload"`
}

// Timestamp normalizes t to UTC with millisecond precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ToFeed converts a wire post to the engine model.
func (p Post) ToFeed() feed.Post {
	comments := make([]feed.Comment, 0, len(p.Comments))
	for _, comment := range p.Comments {
		converted := comment.ToFeed()
		if converted.PostID == "" {
			converted.PostID = p.ID
		}
		comments = append(comments, converted)
	}
	return feed.Post{
		ID:             p.ID,
		Content:        p.Content,
		AuthorIdentity: p.AuthorEmail,
		AuthorName:     p.AuthorName,
		CreatedAt:      p.CreatedAt,
		LikedBy:        append([]string{}, p.LikedBy...),
		DislikedBy:     append([]string{}, p.DislikedBy...),
		Comments:       comments,
	}
}

// ToFeed converts a wire comment to the engine model.
func (c Comment) ToFeed() feed.Comment {
	return feed.Comment{
		ID:             c.ID,
		PostID:         c.PostID,
		Content:        c.Content,
		AuthorIdentity: c.AuthorEmail,
		AuthorName:     c.AuthorName,
		CreatedAt:      c.CreatedAt,
	}
}

// PostsToFeed converts a list of wire posts.
func PostsToFeed(posts []Post) []feed.Post {
	converted := make([]feed.Post, 0, len(posts))
	for _, post := range posts {
		converted = append(converted, post.ToFeed())
	}
	return converted
}

type postList struct {
	Data    []Post `json:"data"`
	Posts   []Post `json:"posts"`
	Results []Post `json:"results"`
}

// DecodePostList decodes a bare array of posts or one wrapped in a
// data, posts or results field.
func DecodePostList(body []byte) ([]Post, error) {
	trimmed := skipSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []Post{}, nil
	}
	if trimmed[0] == '[' {
		var posts []Post
		if err := JSON.Unmarshal(trimmed, &posts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return posts, nil
	}
	var wrapped postList
	if err := JSON.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch {
	case wrapped.Data != nil:
		return wrapped.Data, nil
	case wrapped.Posts != nil:
		return wrapped.Posts, nil
	case wrapped.Results != nil:
		return wrapped.Results, nil
	default:
		return []Post{}, nil
	}
}

func skipSpace(body []byte) []byte {
	for len(body) > 0 {
		switch body[0] {
		case ' ', '\t', '\r', '\n':
			body = body[1:]
		default:
			return body
		}
	}
	return body
}

// EncodeEvent builds a push frame.
func EncodeEvent(eventType feed.EventType, payload any) ([]byte, error) {
	raw, err := JSON.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return JSON.Marshal(Event{Type: string(eventType), Payload: raw})
}

// DecodeEvent parses a push frame into an engine event.
func DecodeEvent(frame []byte) (feed.Event, error) {
	var envelope Event
	if err := JSON.Unmarshal(frame, &envelope); err != nil {
		return feed.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	eventType := feed.EventType(envelope.Type)
	switch eventType {
	case feed.EventPostCreated, feed.EventPostUpdated:
		var post Post
		if err := JSON.Unmarshal(envelope.Payload, &post); err != nil {
			return feed.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		converted := post.ToFeed()
		return feed.Event{Type: eventType, Post: &converted, PostID: post.ID}, nil
	case feed.EventPostDeleted:
		var deleted PostDeleted
		if err := JSON.Unmarshal(envelope.Payload, &deleted); err != nil {
			return feed.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return feed.Event{Type: eventType, PostID: deleted.ID}, nil
	case feed.EventCommentCreated:
		var comment Comment
		if err := JSON.Unmarshal(envelope.Payload, &comment); err != nil {
			return feed.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		converted := comment.ToFeed()
		return feed.Event{Type: eventType, Comment: &converted, PostID: comment.PostID}, nil
	default:
		return feed.Event{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedPayload, envelope.Type)
	}
}
