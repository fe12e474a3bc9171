package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

var testActor = feed.Actor{Identity: "a@x.com", DisplayName: "Ada", Credential: "token-a"}

type capturedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

func newTestClient(t *testing.T, handler func(http.ResponseWriter, *http.Request)) (*Client, *[]capturedRequest) {
	t.Helper()
	captured := &[]capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = append(*captured, capturedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client, captured
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestListPostsUnwrapsAndConverts(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"posts":[{"id":"p1","content":"hi","authorEmail":"b@x.com","createdAt":"2024-03-01T12:00:00.000Z","likedBy":["a@x.com"],"dislikedBy":[],"comments":[{"id":"c1","content":"yo","authorEmail":"c@x.com","createdAt":"2024-03-01T12:01:00.000Z"}]}]}`)
	})

	posts, err := client.ListPosts(context.Background(), testActor)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "b@x.com", posts[0].AuthorIdentity)
	assert.Equal(t, []string{"a@x.com"}, posts[0].LikedBy)
	require.Len(t, posts[0].Comments, 1)
	assert.Equal(t, "p1", posts[0].Comments[0].PostID)

	require.Len(t, *captured, 1)
	assert.Equal(t, "Bearer token-a", (*captured)[0].Authorization)
	assert.Equal(t, "/posts", (*captured)[0].Path)
}

func TestRequestsWithoutCredentialCarryNoAuthorization(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})

	_, err := client.ListPosts(context.Background(), feed.Actor{Identity: "anonymous"})
	require.NoError(t, err)
	assert.Empty(t, (*captured)[0].Authorization)
}

func TestReactionEndpoints(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"p1","likedBy":["a@x.com"],"dislikedBy":[]}`)
	})
	ctx := context.Background()

	post, err := client.SetReaction(ctx, testActor, "p1", reaction.StateLiked)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, post.LikedBy)

	_, err = client.ToggleReaction(ctx, testActor, "p1", reaction.ActionDislike)
	require.NoError(t, err)

	require.Len(t, *captured, 2)
	assert.Equal(t, http.MethodPut, (*captured)[0].Method)
	assert.Equal(t, "/posts/p1/reaction", (*captured)[0].Path)
	assert.JSONEq(t, `{"state":"liked"}`, (*captured)[0].Body)
	assert.Equal(t, http.MethodPost, (*captured)[1].Method)
	assert.Equal(t, "/posts/p1/dislike", (*captured)[1].Path)
	assert.JSONEq(t, `{"name":"Ada"}`, (*captured)[1].Body)
}

func TestUpdatePostSendsOnlyPatchedFields(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"p1","content":"edited"}`)
	})
	content := "edited"
	empty := []string{}

	post, err := client.UpdatePost(context.Background(), testActor, "p1", feed.PostPatch{Content: &content, DislikedBy: &empty})
	require.NoError(t, err)
	assert.Equal(t, "edited", post.Content)
	assert.JSONEq(t, `{"content":"edited","dislikedBy":[]}`, (*captured)[0].Body)
}

func TestAddCommentDecodesServerComment(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"c1","postId":"p1","content":"hello","authorEmail":"a@x.com","createdAt":"2024-03-01T12:00:00.000Z"}`)
	})

	comment, err := client.AddComment(context.Background(), testActor, "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", comment.ID)
	assert.Equal(t, "/posts/p1/comments", (*captured)[0].Path)
	assert.JSONEq(t, `{"content":"hello"}`, (*captured)[0].Body)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{name: "missing route", status: http.StatusNotFound, body: `404 page not found`, kind: feed.ErrRemoteUnavailable},
		{name: "missing resource", status: http.StatusNotFound, body: `{"error":"posts.add_comment.post_not_found"}`, kind: feed.ErrRemoteRejected},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, body: ``, kind: feed.ErrRemoteUnavailable},
		{name: "not implemented", status: http.StatusNotImplemented, body: ``, kind: feed.ErrRemoteUnavailable},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"unauthorized"}`, kind: feed.ErrRemoteRejected},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"posts.add_comment.insert_failed"}`, kind: feed.ErrRemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := client.AddComment(context.Background(), testActor, "p1", "hello")
			require.ErrorIs(t, err, tt.kind)

			var remote *feed.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.status, remote.StatusCode)
		})
	}
}

func TestNetworkFailureClassification(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := New(Config{BaseURL: baseURL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.ListPosts(context.Background(), testActor)
	require.ErrorIs(t, err, feed.ErrNetworkFailure)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestDeleteAndListByAuthor(t *testing.T) {
	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			writeJSON(w, http.StatusOK, `{"deleted":true}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":[{"id":"p2","authorEmail":"b@x.com"}]}`)
	})

	require.NoError(t, client.DeletePost(context.Background(), testActor, "p1"))
	posts, err := client.ListPostsByAuthor(context.Background(), testActor, "b@x.com")
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "/posts/p1", (*captured)[0].Path)
	assert.Equal(t, "/posts/user/b@x.com", (*captured)[1].Path)
}
