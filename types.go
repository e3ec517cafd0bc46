package sitemeta

import (
	"errors"
	"time"
)

// BlogPost is a post from the blog_posts table.
type BlogPost struct {
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Image     string    `json:"image"`
	Published bool      `json:"published"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SEOMeta is a per-path override row from seo_meta. Empty fields fall
// through to lower-precedence sources.
type SEOMeta struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	ImageAlt    string    `json:"image_alt"`
	Keywords    string    `json:"keywords"`
	OGType      string    `json:"og_type"`
	NoIndex     bool      `json:"noindex"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageMetadata registers a route for the sitemap along with default copy.
type PageMetadata struct {
	Path        string  `json:"path"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ChangeFreq  string  `json:"changefreq"`
	Priority    float64 `json:"priority"`
	LastMod     string  `json:"lastmod"`
}

// DevModeChange records an edit made from the site's in-browser dev mode.
// Applying it writes NewValue into the matching seo_meta field.
type DevModeChange struct {
	ID        string     `json:"id"`
	Path      string     `json:"path"`
	Field     string     `json:"field"`
	OldValue  string     `json:"old_value"`
	NewValue  string     `json:"new_value"`
	Author    string     `json:"author"`
	Applied   bool       `json:"applied"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// ErrInvalidField is returned for a dev mode change naming an unknown field.
var ErrInvalidField = errors.New("invalid field")

// DevModeFields lists the seo_meta fields a dev mode change may target.
var DevModeFields = []string{"title", "description", "image", "image_alt", "keywords"}

// Get returns the value of a dev mode field.
func (m SEOMeta) Get(field string) string {
	switch field {
	case "title":
		return m.Title
	case "description":
		return m.Description
	case "image":
		return m.Image
	case "image_alt":
		return m.ImageAlt
	case "keywords":
		return m.Keywords
	}
	return ""
}

// Set assigns a dev mode field. It reports false for unknown fields.
func (m *SEOMeta) Set(field, value string) bool {
	switch field {
	case "title":
		m.Title = value
	case "description":
		m.Description = value
	case "image":
		m.Image = value
	case "image_alt":
		m.ImageAlt = value
	case "keywords":
		m.Keywords = value
	default:
		return false
	}
	return true
}
