package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusArchived  PostStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// DefaultImage is used when a post is saved without an image.
const DefaultImage = "https://via.placeholder.com/1200x630"

// Post represents a single blog post.
type Post struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       string     `json:"excerpt"`
	Image         string     `json:"image"`
	ImagePublicID string     `json:"imagePublicId,omitempty"`
	Category      string     `json:"category"`
	Tags          []string   `json:"tags"`
	AuthorID      string     `json:"-"`
	Author        Author     `json:"author"`
	Status        PostStatus `json:"status"`
	Views         int64      `json:"views"`
	Likes         int64      `json:"likes"`
	Featured      bool       `json:"featured"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	// JSON string field for DB storage
	TagsJSON string `json:"-"`
}

// PrepareForSave marshals Tags into TagsJSON for DB storage.
func (p *Post) PrepareForSave() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	// Keep '<', '>' and '&' as the author wrote them.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.Encode(p.Tags)
	p.TagsJSON = strings.TrimSpace(buf.String())
}

// PrepareForAPI unmarshals TagsJSON into Tags for API responses.
func (p *Post) PrepareForAPI() {
	p.Tags = []string{}
	if p.TagsJSON != "" {
		json.Unmarshal([]byte(p.TagsJSON), &p.Tags)
	}
}

// PostStats summarises one author's posts.
type PostStats struct {
	TotalBlogs     int   `json:"totalBlogs"`
	PublishedBlogs int   `json:"publishedBlogs"`
	DraftBlogs     int   `json:"draftBlogs"`
	TotalViews     int64 `json:"totalViews"`
}
