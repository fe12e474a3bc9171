package feed

import "sync"

// Stamp identifies the version of one post at the time it was read.
type Stamp struct {
	Generation uint64
	Revision   uint64
}

// Store holds the feed state and serializes every transition through its
// reducers. Each command touching a post bumps that post's revision; a
// ReplaceAll bumps the generation.
type Store struct {
	mu         sync.RWMutex
	state      State
	generation uint64
	sequence   uint64
	revisions  map[string]uint64
	listeners  []func(State)
}

// NewStore creates a Store seeded with posts.
func NewStore(posts ...Post) *Store {
	store := &Store{revisions: make(map[string]uint64)}
	if len(posts) > 0 {
		store.state = ReplaceAll{Posts: posts}.reduce(State{})
	}
	return store
}

// OnChange registers a listener invoked with a copy of the new state after
// every dispatch. Listeners run outside the store lock.
func (s *Store) OnChange(listener func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Dispatch applies command unconditionally.
func (s *Store) Dispatch(command Command) Stamp {
	s.mu.Lock()
	stamp := s.applyLocked(command)
	state, listeners := s.publishLocked()
	s.mu.Unlock()
	notifyListeners(listeners, state)
	return stamp
}

// DispatchIf applies command only when the targeted post still carries
// expected. It reports whether the command was applied.
func (s *Store) DispatchIf(command Command, expected Stamp) bool {
	s.mu.Lock()
	if s.stampLocked(command.Target()) != expected {
		s.mu.Unlock()
		return false
	}
	s.applyLocked(command)
	state, listeners := s.publishLocked()
	s.mu.Unlock()
	notifyListeners(listeners, state)
	return true
}

// DispatchIfGeneration applies command when no refresh happened since
// generation and the targeted post is still present, regardless of newer
// revisions of that post.
func (s *Store) DispatchIfGeneration(command Command, generation uint64) bool {
	s.mu.Lock()
	if s.generation != generation || s.state.indexOf(command.Target()) < 0 {
		s.mu.Unlock()
		return false
	}
	s.applyLocked(command)
	state, listeners := s.publishLocked()
	s.mu.Unlock()
	notifyListeners(listeners, state)
	return true
}

// Mutate reads a post, builds a command from it and applies it atomically.
// It returns the post as it was before the command together with the stamp
// after it.
func (s *Store) Mutate(postID string, build func(Post) (Command, error)) (Post, Stamp, error) {
	s.mu.Lock()
	index := s.state.indexOf(postID)
	if index < 0 {
		s.mu.Unlock()
		return Post{}, Stamp{}, ErrPostNotFound
	}
	before := s.state.Posts[index].Clone()
	command, err := build(before.Clone())
	if err != nil {
		s.mu.Unlock()
		return Post{}, Stamp{}, err
	}
	stamp := s.applyLocked(command)
	state, listeners := s.publishLocked()
	s.mu.Unlock()
	notifyListeners(listeners, state)
	return before, stamp, nil
}

// Posts returns a deep copy of the current feed.
func (s *Store) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]Post, 0, len(s.state.Posts))
	for _, post := range s.state.Posts {
		posts = append(posts, post.Clone())
	}
	return posts
}

// Post returns a copy of one post and its current stamp.
func (s *Store) Post(postID string) (Post, Stamp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := s.state.indexOf(postID)
	if index < 0 {
		return Post{}, Stamp{}, false
	}
	return s.state.Posts[index].Clone(), s.stampLocked(postID), true
}

// Generation returns the number of whole-collection replacements so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) applyLocked(command Command) Stamp {
	s.state = command.reduce(s.state)
	target := command.Target()
	if target == "" {
		s.generation++
		s.revisions = make(map[string]uint64)
		return Stamp{Generation: s.generation}
	}
	s.sequence++
	s.revisions[target] = s.sequence
	return s.stampLocked(target)
}

func (s *Store) stampLocked(postID string) Stamp {
	if postID == "" {
		return Stamp{Generation: s.generation}
	}
	return Stamp{Generation: s.generation, Revision: s.revisions[postID]}
}

// publishLocked returns a private copy of the state for listeners, so a
// listener cannot reach the store's posts.
func (s *Store) publishLocked() (State, []func(State)) {
	if len(s.listeners) == 0 {
		return State{}, nil
	}
	return cloneState(s.state), append([]func(State)(nil), s.listeners...)
}

func cloneState(state State) State {
	posts := make([]Post, 0, len(state.Posts))
	for _, post := range state.Posts {
		posts = append(posts, post.Clone())
	}
	return State{Posts: posts}
}

// notifyListeners hands each listener its own copy of state.
func notifyListeners(listeners []func(State), state State) {
	for index, listener := range listeners {
		view := state
		if index < len(listeners)-1 {
			view = cloneState(state)
		}
		listener(view)
	}
}
