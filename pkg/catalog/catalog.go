package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Find returns the entry for a content id regardless of active state.
func (s *Store) Find(ctx context.Context, contentID string) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		First(&entry).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return &entry, nil
}

// FindActive returns the entry for a content id only when it is active.
func (s *Store) FindActive(ctx context.Context, contentID string) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("content_id = ? AND is_active = ?", contentID, true).
		First(&entry).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return &entry, nil
}

// Upsert creates or updates the entry for a content id and marks it active.
//
// The insert carries an ON CONFLICT clause on content_id, so two concurrent
// commits for a brand-new id converge: the loser's insert becomes an update of
// the winner's row instead of a duplicate-key failure. The winning row keeps
// its id, creation time and access stats on every update.
func (s *Store) Upsert(ctx context.Context, contentID string, fields UpsertFields) (*Entry, error) {
	var result Entry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		entry := Entry{
			ID:           uuid.New().String(),
			ContentID:    contentID,
			ExternalID:   fields.ExternalID,
			MediaKind:    fields.MediaKind,
			Title:        fields.Title,
			LocalPath:    fields.LocalPath,
			FileSizeMB:   fields.FileSizeMB,
			Quality:      fields.Quality,
			Format:       fields.Format,
			Priority:     fields.Priority,
			LastAccessed: now,
			IsActive:     true,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"external_id":  fields.ExternalID,
				"media_kind":   fields.MediaKind,
				"title":        fields.Title,
				"local_path":   fields.LocalPath,
				"file_size_mb": fields.FileSizeMB,
				"quality":      fields.Quality,
				"format":       fields.Format,
				"priority":     fields.Priority,
				"is_active":    true,
				"updated_at":   now,
			}),
		}).Create(&entry).Error
		if err != nil {
			return err
		}

		// Re-read inside the transaction: on conflict the persisted row is
		// the winner's, not the entry literal above.
		return tx.Where("content_id = ?", contentID).First(&result).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert catalog entry %q: %w", contentID, err)
	}

	return &result, nil
}

// MarkInactive soft-deletes the entry: the row stays for history but no longer
// claims a local file.
func (s *Store) MarkInactive(ctx context.Context, contentID string) error {
	return s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("content_id = ?", contentID).
		Updates(map[string]any{
			"is_active":  false,
			"local_path": "",
			"updated_at": time.Now(),
		}).Error
}

// BumpAccess increments the access counter and refreshes the last-accessed
// timestamp. Call sites on the read path treat failures as best-effort.
func (s *Store) BumpAccess(ctx context.Context, contentID string) error {
	return s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("content_id = ?", contentID).
		Updates(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": time.Now(),
		}).Error
}

// EvictionCandidates returns active entries in eviction order: lowest priority
// tier first, then least recently accessed, then least often accessed. The
// content id tie break keeps the order deterministic.
func (s *Store) EvictionCandidates(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC").
		Order("last_accessed ASC").
		Order("access_count ASC").
		Order("content_id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eviction candidates: %w", err)
	}
	return entries, nil
}

// ListActive returns a page of active entries sorted by recency, and the total
// count of active entries for pagination.
func (s *Store) ListActive(ctx context.Context, limit, offset int) ([]Entry, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("is_active = ?", true).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("last_accessed DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Stats aggregates count, total size and average access count over active
// entries in a single query.
func (s *Store) Stats(ctx context.Context) (AggregateStats, error) {
	var stats AggregateStats
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("is_active = ?", true).
		Select("COUNT(*) AS count, COALESCE(SUM(file_size_mb), 0) AS total_size_mb, COALESCE(AVG(access_count), 0) AS avg_access_count").
		Scan(&stats).Error
	if err != nil {
		return AggregateStats{}, fmt.Errorf("failed to aggregate catalog stats: %w", err)
	}
	return stats, nil
}
