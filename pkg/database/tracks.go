package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/jukebox-queue-system/pkg/models"
)

// StoreTrack upserts track metadata.
func (db *DB) StoreTrack(ctx context.Context, track *models.Track) error {
	if err := db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(track).Error; err != nil {
		return fmt.Errorf("failed to store track: %w", err)
	}
	return nil
}

// GetTracks returns the stored metadata for the given ids, keyed by track id.
func (db *DB) GetTracks(ctx context.Context, trackIDs []string) (map[string]*models.Track, error) {
	result := make(map[string]*models.Track)
	if len(trackIDs) == 0 {
		return result, nil
	}

	var tracks []*models.Track
	if err := db.DB.WithContext(ctx).Where("track_id IN ?", trackIDs).Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to get tracks: %w", err)
	}
	for _, t := range tracks {
		result[t.TrackID] = t
	}
	return result, nil
}

type TrackRequestCount struct {
	TrackID  string `json:"track_id"`
	Requests int64  `json:"requests"`
}

func (db *DB) RecordRequest(ctx context.Context, trackID string, userID uuid.UUID, at time.Time) error {
	entry := &models.RequestHistory{
		ID:          uuid.New(),
		TrackID:     trackID,
		RequestedBy: userID,
		RequestedAt: at.UTC(),
	}
	if err := db.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// TopRequestedTracks lists the most requested tracks, most requests first.
func (db *DB) TopRequestedTracks(ctx context.Context, limit int) ([]TrackRequestCount, error) {
	var rows []TrackRequestCount
	if err := db.DB.WithContext(ctx).
		Model(&models.RequestHistory{}).
		Select("track_id, COUNT(*) AS requests").
		Group("track_id").
		Order("requests DESC, track_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get top tracks: %w", err)
	}
	return rows, nil
}
