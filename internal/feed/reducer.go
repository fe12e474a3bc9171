package feed

import "time"

// State is an immutable snapshot of the feed. Reducers never modify the
// posts of the state they receive.
type State struct {
	Posts []Post
}

func (s State) indexOf(postID string) int {
	for index, post := range s.Posts {
		if post.ID == postID {
			return index
		}
	}
	return -1
}

// Command is a pure state transition.
type Command interface {
	// Target returns the id of the post the command touches, or "" when it
	// replaces the whole collection.
	Target() string
	reduce(State) State
}

// Reduce applies command to state and returns the resulting state.
func Reduce(state State, command Command) State {
	return command.reduce(state)
}

func withPost(state State, postID string, mutate func(*Post)) State {
	index := state.indexOf(postID)
	if index < 0 {
		return state
	}
	posts := append([]Post(nil), state.Posts...)
	post := posts[index].Clone()
	mutate(&post)
	posts[index] = post
	return State{Posts: posts}
}

// ReplaceAll swaps the whole collection, as after a refresh.
type ReplaceAll struct {
	Posts []Post
}

func (c ReplaceAll) Target() string { return "" }

func (c ReplaceAll) reduce(State) State {
	posts := make([]Post, 0, len(c.Posts))
	for _, post := range c.Posts {
		posts = append(posts, post.Clone())
	}
	return State{Posts: posts}
}

// PrependPost inserts a new post at the head of the feed. A post whose id is
// already present is ignored.
type PrependPost struct {
	Post Post
}

func (c PrependPost) Target() string { return c.Post.ID }

func (c PrependPost) reduce(state State) State {
	if state.indexOf(c.Post.ID) >= 0 {
		return state
	}
	posts := make([]Post, 0, len(state.Posts)+1)
	posts = append(posts, c.Post.Clone())
	posts = append(posts, state.Posts...)
	return State{Posts: posts}
}

// RestorePost puts a previously captured post object back in place.
type RestorePost struct {
	Post Post
}

func (c RestorePost) Target() string { return c.Post.ID }

func (c RestorePost) reduce(state State) State {
	return withPost(state, c.Post.ID, func(post *Post) {
		*post = c.Post.Clone()
	})
}

// RemovePost drops a post from the feed.
type RemovePost struct {
	PostID string
}

func (c RemovePost) Target() string { return c.PostID }

func (c RemovePost) reduce(state State) State {
	index := state.indexOf(c.PostID)
	if index < 0 {
		return state
	}
	posts := make([]Post, 0, len(state.Posts)-1)
	posts = append(posts, state.Posts[:index]...)
	posts = append(posts, state.Posts[index+1:]...)
	return State{Posts: posts}
}

// MergePostUpdate replaces a post's server-owned fields and keeps its local
// comment list.
type MergePostUpdate struct {
	Post Post
}

func (c MergePostUpdate) Target() string { return c.Post.ID }

func (c MergePostUpdate) reduce(state State) State {
	return withPost(state, c.Post.ID, func(post *Post) {
		comments := post.Comments
		*post = c.Post.Clone()
		post.Comments = comments
	})
}

// ReplacePost installs a freshly fetched post. Pending and local-only
// comments survive unless the fetched post already holds an equivalent one.
type ReplacePost struct {
	Post   Post
	Window time.Duration
}

func (c ReplacePost) Target() string { return c.Post.ID }

func (c ReplacePost) reduce(state State) State {
	return withPost(state, c.Post.ID, func(post *Post) {
		local := post.Comments
		*post = c.Post.Clone()
		for _, comment := range local {
			if !comment.Pending && !comment.LocalOnly {
				continue
			}
			if HasEquivalentComment(post.Comments, comment, c.Window) {
				continue
			}
			post.Comments = append(post.Comments, comment)
		}
	})
}

// SetReactions overwrites both reaction sets of a post.
type SetReactions struct {
	PostID     string
	LikedBy    []string
	DislikedBy []string
}

func (c SetReactions) Target() string { return c.PostID }

func (c SetReactions) reduce(state State) State {
	return withPost(state, c.PostID, func(post *Post) {
		post.LikedBy = append([]string{}, c.LikedBy...)
		post.DislikedBy = append([]string{}, c.DislikedBy...)
	})
}

// AppendComment adds a comment at the end of a post's comment list.
type AppendComment struct {
	PostID  string
	Comment Comment
}

func (c AppendComment) Target() string { return c.PostID }

func (c AppendComment) reduce(state State) State {
	return withPost(state, c.PostID, func(post *Post) {
		post.Comments = append(post.Comments, c.Comment)
	})
}

// RemoveComment drops a comment by id.
type RemoveComment struct {
	PostID    string
	CommentID string
}

func (c RemoveComment) Target() string { return c.PostID }

func (c RemoveComment) reduce(state State) State {
	return withPost(state, c.PostID, func(post *Post) {
		kept := post.Comments[:0]
		for _, comment := range post.Comments {
			if comment.ID != c.CommentID {
				kept = append(kept, comment)
			}
		}
		post.Comments = kept
	})
}

// ConfirmComment swaps a pending comment for its server-confirmed version.
// When the confirmed comment already arrived by another path the pending
// one is simply dropped.
type ConfirmComment struct {
	PostID    string
	PendingID string
	Comment   Comment
}

func (c ConfirmComment) Target() string { return c.PostID }

func (c ConfirmComment) reduce(state State) State {
	return withPost(state, c.PostID, func(post *Post) {
		confirmed := c.Comment
		confirmed.Pending = false
		confirmed.LocalOnly = false
		if confirmed.ID == "" {
			confirmed.ID = c.PendingID
		}
		if confirmed.PostID == "" {
			confirmed.PostID = c.PostID
		}
		if _, exists := post.CommentByID(confirmed.ID); exists && confirmed.ID != c.PendingID {
			kept := post.Comments[:0]
			for _, comment := range post.Comments {
				if comment.ID != c.PendingID {
					kept = append(kept, comment)
				}
			}
			post.Comments = kept
			return
		}
		for index, comment := range post.Comments {
			if comment.ID == c.PendingID {
				post.Comments[index] = confirmed
				return
			}
		}
	})
}

// MarkCommentLocal flags a pending comment as kept locally only.
type MarkCommentLocal struct {
	PostID    string
	CommentID string
}

func (c MarkCommentLocal) Target() string { return c.PostID }

func (c MarkCommentLocal) reduce(state State) State {
	return withPost(state, c.PostID, func(post *Post) {
		for index, comment := range post.Comments {
			if comment.ID == c.CommentID {
				post.Comments[index].Pending = false
				post.Comments[index].LocalOnly = true
			}
		}
	})
}

// ReceiveComment appends a pushed comment unless an equivalent one is
// already present.
type ReceiveComment struct {
	PostID  string
	Comment Comment
	Window  time.Duration
}

func (c ReceiveComment) Target() string { return c.PostID }

func (c ReceiveComment) reduce(state State) State {
	index := state.indexOf(c.PostID)
	if index < 0 || HasEquivalentComment(state.Posts[index].Comments, c.Comment, c.Window) {
		return state
	}
	return withPost(state, c.PostID, func(post *Post) {
		post.Comments = append(post.Comments, c.Comment)
	})
}
