package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is owned by the identity subsystem; this service only appends to Threads.
type User struct {
	ID        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	Image     string      `json:"image"`
	Bio       string      `json:"bio"`
	Threads   []uuid.UUID `json:"threads"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Author is a user as seen through a projection. Only the fields selected by
// the projection are filled in.
type Author struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username,omitempty"`
	Name     string      `json:"name,omitempty"`
	Image    string      `json:"image,omitempty"`
	Bio      string      `json:"bio,omitempty"`
	ParentID string      `json:"parentId,omitempty"`
	Threads  []uuid.UUID `json:"threads,omitempty"`
}

// UserProjection lists the user document fields to load. A nil projection
// loads the whole document.
type UserProjection []string

var (
	// FullUser loads every field.
	FullUser UserProjection = nil

	// AuthorSummary is used for the author of a thread opened on its own page.
	AuthorSummary = UserProjection{"_id", "name", "image"}

	// ReplyAuthorSummary is used for reply authors. parentId is not a user
	// field; it is selected as-is and normally comes back empty.
	ReplyAuthorSummary = UserProjection{"_id", "name", "parentId", "image"}
)

// Includes reports whether field is part of the projection.
func (p UserProjection) Includes(field string) bool {
	if p == nil {
		return true
	}
	for _, f := range p {
		if f == field {
			return true
		}
	}
	return false
}

// Key identifies the projection, used to group lookups.
func (p UserProjection) Key() string {
	if p == nil {
		return "*"
	}
	return strings.Join(p, ",")
}

// ProjectAuthor builds the projected view of a user.
func ProjectAuthor(u *User, p UserProjection) *Author {
	a := &Author{ID: u.ID}
	if p.Includes("username") {
		a.Username = u.Username
	}
	if p.Includes("name") {
		a.Name = u.Name
	}
	if p.Includes("image") {
		a.Image = u.Image
	}
	if p.Includes("bio") {
		a.Bio = u.Bio
	}
	if p.Includes("threads") {
		a.Threads = append([]uuid.UUID(nil), u.Threads...)
	}
	return a
}
