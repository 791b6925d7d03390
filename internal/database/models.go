package database

import (
	"errors"
	"time"
)

// ErrAssetNotFound is returned when no catalog row matches a lookup.
var ErrAssetNotFound = errors.New("asset not found")

// Asset is one catalog row: an uploaded image or document and the size
// variants recorded for it.
type Asset struct {
	ID int64 `json:"id"`
	// File is the primary file, relative to the uploads root
	// (e.g. "2024/05/photo.jpg").
	File      string                 `json:"file"`
	MimeType  string                 `json:"mimeType"`
	Width     int                    `json:"width"`
	Height    int                    `json:"height"`
	FileSize  int64                  `json:"fileSize"`
	Sizes     map[string]SizeVariant `json:"sizes"`
	Quality   *int                   `json:"quality,omitempty"`
	ImageMeta map[string]string      `json:"imageMeta,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// SizeVariant describes one generated size. File is a base name in the same
// directory as the primary.
type SizeVariant struct {
	File     string `json:"file"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime-type"`
}
