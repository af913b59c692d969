package models

import (
	"time"
)

// PostContentType tags the source platform a post's content was extracted from.
type PostContentType string

const (
	// PostContentBluesky is currently the only supported source platform.
	PostContentBluesky PostContentType = "bluesky"
)

// PostContent is the normalized content extracted from the source platform.
// It is absent on a Post until the background extraction job completes, and
// is written exactly once.
type PostContent struct {
	Type PostContentType `json:"type"`
	// DID is the canonical at:// URI of the source post.
	DID      string   `json:"did"`
	Text     string   `json:"text,omitempty"`
	ImageURL []string `json:"imageUrl,omitempty"`
}

// IsReady reports whether the content can feed comment generation: it must be
// a supported type and carry either text or at least one image.
func (c *PostContent) IsReady() bool {
	if c == nil || c.Type != PostContentBluesky {
		return false
	}
	return c.Text != "" || len(c.ImageURL) > 0
}

// Post represents a user-submitted source URL and its eventually-populated
// extracted content. Posts are created in a pending state (Content nil) and
// transition to ready exactly once.
type Post struct {
	ID        string       `json:"id" db:"id"`
	OriginURL string       `json:"originUrl" db:"origin_url"`
	Content   *PostContent `json:"content,omitempty" db:"content"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
}

// Comment holds AI-generated reaction text tied to a Post. Comments are
// written once, as a single insert with the final text, and never mutated.
type Comment struct {
	ID        string    `json:"id" db:"id"`
	PostID    string    `json:"postId" db:"post_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
