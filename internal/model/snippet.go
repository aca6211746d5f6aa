package model

import "time"

// Snippet is a link shared with the community, grouped by taxonomy
// (for example "news" or "tutorials"). Hidden snippets are visible to admins only.
type Snippet struct {
	ID          int64     `json:"id"`
	CreatorID   int64     `json:"creatorId"`
	Taxonomy    string    `json:"taxonomy"`
	Hidden      bool      `json:"hidden"`
	Title       string    `json:"title"`
	Icon        string    `json:"icon,omitempty"`
	SharedBy    string    `json:"sharedBy"`
	SharedOn    time.Time `json:"sharedOn"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Href        string    `json:"href"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
