package models

import "time"

// Asset is an image held by the external asset store.
type Asset struct {
	URL       string    `json:"url"`
	AssetID   string    `json:"public_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetPage is one page of an asset listing, newest first.
type AssetPage struct {
	Items      []Asset `json:"images"`
	NextCursor string  `json:"next_cursor,omitempty"`
}
