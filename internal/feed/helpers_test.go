package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/yapp/internal/identity"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

const (
	testIdentity   = "a@x.com"
	testCredential = "token-a"
)

type staticIdentity struct {
	current identity.Identity
}

func (s staticIdentity) Current() identity.Identity {
	return s.current
}

func signedIn() staticIdentity {
	return staticIdentity{current: identity.Identity{Email: testIdentity, DisplayName: "Ada", Credential: testCredential}}
}

type backendCall struct {
	Operation string
	PostID    string
	Action    reaction.Action
	State     reaction.State
	Content   string
}

// fakeBackend records calls and answers with scripted results. Hooks run
// while the call is in flight, before the result is returned.
type fakeBackend struct {
	mu sync.Mutex

	calls []backendCall

	posts       []Post
	authorPosts map[string][]Post
	comments    []Comment
	listErr     error
	commentErr  error
	comment     Comment
	reactionErr []error
	createErr   error
	updateErr   error
	deleteErr   error

	onReaction func()
	onComment  func()
}

func (f *fakeBackend) record(call backendCall) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return len(f.calls)
}

func (f *fakeBackend) Calls() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backendCall(nil), f.calls...)
}

func (f *fakeBackend) nextReactionErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reactionErr) == 0 {
		return nil
	}
	err := f.reactionErr[0]
	f.reactionErr = f.reactionErr[1:]
	return err
}

func (f *fakeBackend) CreatePost(_ context.Context, actor Actor, content string) (Post, error) {
	f.record(backendCall{Operation: "create_post", Content: content})
	if f.createErr != nil {
		return Post{}, f.createErr
	}
	return Post{ID: "p-new", Content: content, AuthorIdentity: actor.Identity, CreatedAt: time.Now()}, nil
}

func (f *fakeBackend) ListPosts(context.Context, Actor) ([]Post, error) {
	f.record(backendCall{Operation: "list_posts"})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.posts, nil
}

func (f *fakeBackend) ListPostsByAuthor(_ context.Context, _ Actor, email string) ([]Post, error) {
	f.record(backendCall{Operation: "list_posts_by_author", Content: email})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.authorPosts[email], nil
}

func (f *fakeBackend) GetPost(_ context.Context, _ Actor, postID string) (Post, error) {
	f.record(backendCall{Operation: "get_post", PostID: postID})
	for _, post := range f.posts {
		if post.ID == postID {
			return post, nil
		}
	}
	return Post{}, NewRemoteError(ErrRemoteRejected, "get_post", 404, "not found", nil)
}

func (f *fakeBackend) UpdatePost(_ context.Context, _ Actor, postID string, patch PostPatch) (Post, error) {
	content := ""
	if patch.Content != nil {
		content = *patch.Content
	}
	f.record(backendCall{Operation: "update_post", PostID: postID, Content: content})
	if f.updateErr != nil {
		return Post{}, f.updateErr
	}
	return Post{ID: postID, Content: content, AuthorIdentity: testIdentity, LikedBy: []string{"server@x.com"}}, nil
}

func (f *fakeBackend) DeletePost(_ context.Context, _ Actor, postID string) error {
	f.record(backendCall{Operation: "delete_post", PostID: postID})
	return f.deleteErr
}

func (f *fakeBackend) AddComment(_ context.Context, _ Actor, postID string, content string) (Comment, error) {
	f.record(backendCall{Operation: "add_comment", PostID: postID, Content: content})
	if f.onComment != nil {
		f.onComment()
	}
	if f.commentErr != nil {
		return Comment{}, f.commentErr
	}
	return f.comment, nil
}

func (f *fakeBackend) ListComments(_ context.Context, _ Actor, postID string) ([]Comment, error) {
	f.record(backendCall{Operation: "list_comments", PostID: postID})
	return f.comments, nil
}

func (f *fakeBackend) ToggleReaction(_ context.Context, _ Actor, postID string, action reaction.Action) (Post, error) {
	f.record(backendCall{Operation: "toggle_reaction", PostID: postID, Action: action})
	if f.onReaction != nil {
		f.onReaction()
	}
	return Post{ID: postID}, f.nextReactionErr()
}

func (f *fakeBackend) SetReaction(_ context.Context, _ Actor, postID string, state reaction.State) (Post, error) {
	f.record(backendCall{Operation: "set_reaction", PostID: postID, State: state})
	if f.onReaction != nil {
		f.onReaction()
	}
	return Post{ID: postID}, f.nextReactionErr()
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) Observe(operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[operation+"/"+outcome]++
}

func (o *countingObserver) Count(operation, outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[operation+"/"+outcome]
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *recordingNotifier) Notify(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *recordingNotifier) Last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notifications) == 0 {
		return Notification{}
	}
	return n.notifications[len(n.notifications)-1]
}

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func seedPost(id string) Post {
	return Post{
		ID:             id,
		Content:        "hello " + id,
		AuthorIdentity: "author@x.com",
		CreatedAt:      baseTime,
		LikedBy:        []string{"b@x.com"},
		DislikedBy:     []string{"c@x.com"},
	}
}

type engineFixture struct {
	engine   *Engine
	backend  *fakeBackend
	observer *countingObserver
	notifier *recordingNotifier
}

func newEngineFixture(t *testing.T, mutate func(*EngineConfig), posts ...Post) engineFixture {
	t.Helper()
	backend := &fakeBackend{}
	observer := &countingObserver{}
	notifier := &recordingNotifier{}
	tempCounter := 0
	cfg := EngineConfig{
		Backend:  backend,
		Identity: signedIn(),
		Store:    NewStore(posts...),
		Clock:    func() time.Time { return baseTime },
		TempIDs: func() string {
			tempCounter++
			return "tmp-" + string(rune('a'+tempCounter-1))
		},
		Observer: observer,
		Notifier: notifier,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engineFixture{engine: engine, backend: backend, observer: observer, notifier: notifier}
}
