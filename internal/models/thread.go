package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a single post in a discussion. Root threads have no ParentID;
// replies point at the thread they answer.
type Thread struct {
	ID        uuid.UUID   `json:"id"`
	Text      string      `json:"text"`
	AuthorID  uuid.UUID   `json:"authorId"`
	ParentID  *uuid.UUID  `json:"parentId,omitempty"`
	Children  []uuid.UUID `json:"children"`
	Community *uuid.UUID  `json:"community"` // Never set by current logic
	CreatedAt time.Time   `json:"createdAt"`
}

// IsRoot reports whether the thread is a top-level post.
func (t *Thread) IsRoot() bool {
	return t.ParentID == nil
}

// ThreadNode is a Thread with some of its references resolved. AuthorID and
// ChildIDs are always present; Author and Children are nil when the
// reference was not populated at this depth.
type ThreadNode struct {
	ID        uuid.UUID     `json:"id"`
	Text      string        `json:"text"`
	AuthorID  uuid.UUID     `json:"authorId"`
	Author    *Author       `json:"author,omitempty"`
	ParentID  *uuid.UUID    `json:"parentId,omitempty"`
	Community *uuid.UUID    `json:"community"`
	CreatedAt time.Time     `json:"createdAt"`
	ChildIDs  []uuid.UUID   `json:"childIds"`
	Children  []*ThreadNode `json:"children,omitempty"`
}

// NewThreadNode wraps a thread without resolving anything.
func NewThreadNode(t *Thread) *ThreadNode {
	childIDs := make([]uuid.UUID, len(t.Children))
	copy(childIDs, t.Children)

	return &ThreadNode{
		ID:        t.ID,
		Text:      t.Text,
		AuthorID:  t.AuthorID,
		ParentID:  t.ParentID,
		Community: t.Community,
		CreatedAt: t.CreatedAt,
		ChildIDs:  childIDs,
	}
}

// PostsPage is one page of root threads.
type PostsPage struct {
	Posts  []*ThreadNode `json:"posts"`
	IsNext bool          `json:"isNext"`
}

// ThreadEventType names what happened to a thread.
type ThreadEventType string

const (
	ThreadCreated ThreadEventType = "thread_created"
	CommentAdded  ThreadEventType = "comment_added"
)

// ThreadEvent is published after a mutation has fully succeeded. For
// CommentAdded, ThreadID is the reply and ParentID the thread it answers.
type ThreadEvent struct {
	Type      ThreadEventType `json:"type"`
	ThreadID  uuid.UUID       `json:"threadId"`
	ParentID  *uuid.UUID      `json:"parentId,omitempty"`
	AuthorID  uuid.UUID       `json:"authorId"`
	CreatedAt time.Time       `json:"createdAt"`
}
