package catalog

import (
	"time"
)

// MediaKind identifies the kind of asset a catalog entry describes.
type MediaKind string

const (
	// MediaKindMovie is a standalone feature.
	MediaKindMovie MediaKind = "movie"

	// MediaKindEpisode is a series-episode-like unit.
	MediaKindEpisode MediaKind = "episode"
)

// Valid reports whether the media kind is one of the known values.
func (k MediaKind) Valid() bool {
	return k == MediaKindMovie || k == MediaKindEpisode
}

// Entry is the durable index record for one cached asset.
//
// ContentID is the stable key ("<kind>_<externalID>", e.g. "movie_550") and is
// unique across active and inactive rows. Rows are never hard-deleted: eviction
// and missing-file detection flip IsActive to false and clear LocalPath, keeping
// access history available for later priority decisions.
//
// IsActive == true means LocalPath is expected to point at an existing file.
// Any operation that discovers otherwise must mark the row inactive before
// proceeding (self-healing on filesystem drift).
type Entry struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	ContentID  string    `gorm:"uniqueIndex;not null;size:128" json:"content_id"`
	ExternalID string    `gorm:"size:64" json:"external_id"`
	MediaKind  MediaKind `gorm:"size:16" json:"media_kind"`
	Title      string    `gorm:"size:512" json:"title"`

	// LocalPath is the absolute path of the stored file; empty when inactive.
	LocalPath string `gorm:"size:1024" json:"local_path,omitempty"`

	// FileSizeMB is recomputed from the stored file at commit time and is
	// never trusted from caller input.
	FileSizeMB float64 `json:"file_size_mb"`

	Quality string `gorm:"size:16" json:"quality"`
	Format  string `gorm:"size:16" json:"format"`

	AccessCount  int64     `gorm:"default:0" json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Priority is the primary eviction sort key; lower tiers evict first.
	Priority int `gorm:"default:1;index" json:"priority"`

	IsActive bool `gorm:"default:false;index" json:"is_active"`
}

// TableName returns the table name for Entry.
func (Entry) TableName() string {
	return "catalog_entries"
}

// UpsertFields carries the writable fields of a catalog entry for Upsert.
// FileSizeMB and LocalPath always come from the content store commit, never
// from an external caller.
type UpsertFields struct {
	ExternalID string
	MediaKind  MediaKind
	Title      string
	LocalPath  string
	FileSizeMB float64
	Quality    string
	Format     string
	Priority   int
}

// AggregateStats summarizes the active portion of the catalog.
type AggregateStats struct {
	Count          int64   `json:"count"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	AvgAccessCount float64 `json:"avg_access_count"`
}

// AllModels returns every model migrated at store open.
func AllModels() []any {
	return []any{
		&Entry{},
	}
}
