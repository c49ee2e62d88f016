package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/metrics"
	"github.com/jukebox-queue-system/pkg/models"
)

const (
	removedMessage = "Your request was removed from the queue."
	skippedMessage = "Your request was skipped by staff."
	evictedMessage = "Your request was skipped by popular vote."
)

// MetadataFetcher resolves filler tracks so they show up with titles.
type MetadataFetcher interface {
	FetchTrackMetadata(ctx context.Context, trackID string) (*models.Track, error)
}

type Service struct {
	db      *database.DB
	fetcher MetadataFetcher
	events  events.Publisher
}

// NewService creates the queue service. fetcher may be nil, in which case
// filler tracks are queued without metadata.
func NewService(db *database.DB, fetcher MetadataFetcher, publisher events.Publisher) *Service {
	return &Service{
		db:      db,
		fetcher: fetcher,
		events:  publisher,
	}
}

// Entry is a queue item as shown to one caller.
type Entry struct {
	*models.QueueItem
	Track *models.Track `json:"track,omitempty"`
	// UserVote is the caller's vote on the item; nil when they have not voted.
	UserVote *bool `json:"user_vote"`
}

// GetQueue returns the now playing item followed by the pending items in
// order. Non-admin callers must identify themselves; their own votes are
// attached to each entry.
func (s *Service) GetQueue(ctx context.Context, userID *uuid.UUID, isAdmin bool) ([]*Entry, error) {
	if !isAdmin && userID == nil {
		return nil, fmt.Errorf("user id required for non-admin queue request: %w", apperr.ErrBadRequest)
	}

	items, err := s.db.GetQueue(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []*Entry{}, nil
	}

	itemIDs := make([]uuid.UUID, len(items))
	trackIDs := make([]string, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
		trackIDs[i] = item.TrackID
	}

	tracks, err := s.db.GetTracks(ctx, trackIDs)
	if err != nil {
		return nil, err
	}

	votes := map[uuid.UUID]bool{}
	if userID != nil {
		if votes, err = s.db.VotesForUser(ctx, *userID, itemIDs); err != nil {
			return nil, err
		}
	}

	entries := make([]*Entry, len(items))
	for i, item := range items {
		entry := &Entry{QueueItem: item, Track: tracks[item.TrackID]}
		if isUpvote, ok := votes[item.ID]; ok {
			entry.UserVote = &isUpvote
		}
		entries[i] = entry
	}
	return entries, nil
}

// RemoveItem deletes an item on staff request and tells its requester.
func (s *Service) RemoveItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	removed, err := s.db.RemoveQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Info().Str("queue_item_id", id.String()).Str("track_id", removed.TrackID).Msg("queue item removed")

	events.Emit(ctx, s.events, events.EventTypeQueueChanged, events.QueueChangedPayload{
		Type:        events.QueueItemRemoved,
		QueueItemID: &removed.ID,
	})
	if removed.IsRequest && removed.RequestedBy != nil {
		events.NotifyUser(ctx, s.events, *removed.RequestedBy, removedMessage)
	}
	return removed, nil
}

// SkipNowPlaying advances past the item the caller believes is playing. A
// mismatch means the caller's view is stale and nothing changes.
func (s *Service) SkipNowPlaying(ctx context.Context, id uuid.UUID) (*database.AdvanceResult, error) {
	var result *database.AdvanceResult
	err := s.db.Transaction(ctx, func(tx *database.DB) error {
		if err := tx.LockQueue(ctx); err != nil {
			return err
		}
		playing, err := tx.GetNowPlaying(ctx)
		if err != nil {
			return err
		}
		if playing == nil {
			return fmt.Errorf("no track is currently playing: %w", apperr.ErrConflict)
		}
		if playing.ID != id {
			return fmt.Errorf("skip mismatch: attempted to skip %s, but now playing is %s: %w", id, playing.ID, apperr.ErrConflict)
		}
		result, err = tx.AdvanceQueue(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if f := result.Finished; f != nil && f.IsRequest && f.RequestedBy != nil {
		events.NotifyUser(ctx, s.events, *f.RequestedBy, skippedMessage)
	}
	s.advanced(ctx, result)
	return result, nil
}

// Advance moves to the next track when the current one ends.
func (s *Service) Advance(ctx context.Context) (*database.AdvanceResult, error) {
	result, err := s.db.AdvanceQueue(ctx)
	if err != nil {
		return nil, err
	}
	s.advanced(ctx, result)
	return result, nil
}

func (s *Service) advanced(ctx context.Context, result *database.AdvanceResult) {
	metrics.Advances.Inc()
	metrics.Evictions.Add(float64(len(result.Evicted)))

	evictedIDs := make([]uuid.UUID, len(result.Evicted))
	for i, item := range result.Evicted {
		evictedIDs[i] = item.ID
	}

	logEvent := log.Info().Int("evicted", len(evictedIDs))
	if result.NowPlaying != nil {
		logEvent = logEvent.Str("now_playing", result.NowPlaying.ID.String())
	}
	logEvent.Msg("queue advanced")

	for _, userID := range result.EvictedRequesterIDs {
		events.NotifyUser(ctx, s.events, userID, evictedMessage)
	}
	events.Emit(ctx, s.events, events.EventTypeQueueChanged, events.QueueChangedPayload{
		Type:           events.QueueAdvanced,
		NowPlaying:     result.NowPlaying,
		EvictedItemIDs: evictedIDs,
	})
}

// AddFiller appends a system-chosen track at the back of the queue.
func (s *Service) AddFiller(ctx context.Context, trackID string) (*models.QueueItem, error) {
	if trackID == "" {
		return nil, fmt.Errorf("track id is required: %w", apperr.ErrBadRequest)
	}

	var track *models.Track
	if s.fetcher != nil {
		var err error
		if track, err = s.fetcher.FetchTrackMetadata(ctx, trackID); err != nil {
			return nil, fmt.Errorf("failed to fetch track metadata: %w", err)
		}
	}

	var item *models.QueueItem
	err := s.db.Transaction(ctx, func(tx *database.DB) error {
		if track != nil {
			if err := tx.StoreTrack(ctx, track); err != nil {
				return err
			}
		}
		var err error
		item, err = tx.AppendQueueItem(ctx, trackID, nil, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, events.EventTypeQueueChanged, events.QueueChangedPayload{
		Type:      events.QueueItemAdded,
		QueueItem: item,
		Track:     track,
	})
	return item, nil
}

// ResetForNewDay empties the queue and the vote ledger.
func (s *Service) ResetForNewDay(ctx context.Context) error {
	if err := s.db.ResetQueue(ctx); err != nil {
		return err
	}
	log.Info().Msg("queue reset for new day")
	events.Emit(ctx, s.events, events.EventTypeQueueChanged, events.QueueChangedPayload{Type: events.QueueReset})
	return nil
}

type TopTrack struct {
	database.TrackRequestCount
	Track *models.Track `json:"track,omitempty"`
}

// TopTracks reports the most requested tracks with their metadata.
func (s *Service) TopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	if limit <= 0 || limit > 100 {
		return nil, fmt.Errorf("limit must be between 1 and 100: %w", apperr.ErrBadRequest)
	}

	counts, err := s.db.TopRequestedTracks(ctx, limit)
	if err != nil {
		return nil, err
	}
	trackIDs := make([]string, len(counts))
	for i, c := range counts {
		trackIDs[i] = c.TrackID
	}
	tracks, err := s.db.GetTracks(ctx, trackIDs)
	if err != nil {
		return nil, err
	}

	top := make([]TopTrack, len(counts))
	for i, c := range counts {
		top[i] = TopTrack{TrackRequestCount: c, Track: tracks[c.TrackID]}
	}
	return top, nil
}
