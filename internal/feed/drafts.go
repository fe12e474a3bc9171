package feed

import "sync"

// Drafts holds per-post comment input text.
type Drafts struct {
	mu     sync.Mutex
	values map[string]string
}

// NewDrafts creates an empty draft store.
func NewDrafts() *Drafts {
	return &Drafts{values: make(map[string]string)}
}

// Get returns the draft for postID.
func (d *Drafts) Get(postID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[postID]
}

// Set stores the draft for postID. Empty text clears it.
func (d *Drafts) Set(postID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		delete(d.values, postID)
		return
	}
	d.values[postID] = text
}

// Clear removes the draft for postID.
func (d *Drafts) Clear(postID string) {
	d.Set(postID, "")
}
