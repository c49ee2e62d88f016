package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/models"
)

// AdvanceResult describes one advance of the queue.
type AdvanceResult struct {
	// Finished is the item that was playing before the advance, if any.
	Finished   *models.QueueItem
	NowPlaying *models.QueueItem
	// Evicted holds the front items deleted because they were marked for skipping.
	Evicted             []*models.QueueItem
	EvictedRequesterIDs []uuid.UUID
}

// lockQueue takes the queue-wide row lock. Must be called inside a transaction.
func (db *DB) lockQueue() error {
	var lock models.QueueLock
	if err := db.DB.Clauses(lockRow()).First(&lock, 1).Error; err != nil {
		return fmt.Errorf("failed to lock queue: %w", err)
	}
	return nil
}

// LockQueue holds the queue-wide lock until the enclosing transaction ends, so
// checks made after it cannot be invalidated by a concurrent append.
func (db *DB) LockQueue(ctx context.Context) error {
	if !db.inTx {
		return errors.New("LockQueue requires a transaction")
	}
	return db.lockQueue()
}

func (db *DB) pending() *gorm.DB {
	return db.DB.Model(&models.QueueItem{}).Where("is_now_playing = ?", false)
}

// compactAfter closes the gap left at position by shifting every later
// pending item forward by one.
func (db *DB) compactAfter(position int) error {
	err := db.pending().
		Where("position > ?", position).
		UpdateColumn("position", gorm.Expr("position - ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to compact positions: %w", err)
	}
	return nil
}

// deleteItem removes the item and every vote cast on it.
func (db *DB) deleteItem(item *models.QueueItem) error {
	if err := db.DB.Where("queue_item_id = ?", item.ID).Delete(&models.Vote{}).Error; err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	if err := db.DB.Delete(&models.QueueItem{}, "id = ?", item.ID).Error; err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	return nil
}

// AppendQueueItem adds a track at the back of the pending queue.
func (db *DB) AppendQueueItem(ctx context.Context, trackID string, requestedBy *uuid.UUID, isRequest bool) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := db.Transaction(ctx, func(tx *DB) error {
		if err := tx.lockQueue(); err != nil {
			return err
		}

		var maxPosition int
		if err := tx.pending().Select("COALESCE(MAX(position), 0)").Scan(&maxPosition).Error; err != nil {
			return fmt.Errorf("failed to read max position: %w", err)
		}

		item = &models.QueueItem{
			ID:          uuid.New(),
			TrackID:     trackID,
			RequestedBy: requestedBy,
			IsRequest:   isRequest,
			Position:    maxPosition + 1,
			AddedAt:     time.Now().UTC(),
		}
		return tx.DB.Create(item).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append queue item: %w", err)
	}
	return item, nil
}

// RemoveQueueItem deletes the item and compacts the positions behind it.
func (db *DB) RemoveQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	var removed models.QueueItem
	err := db.Transaction(ctx, func(tx *DB) error {
		if err := tx.lockQueue(); err != nil {
			return err
		}
		if err := tx.DB.First(&removed, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("queue item %s: %w", id, apperr.ErrNotFound)
			}
			return fmt.Errorf("failed to get queue item: %w", err)
		}
		if err := tx.deleteItem(&removed); err != nil {
			return err
		}
		if removed.IsNowPlaying {
			return nil
		}
		return tx.compactAfter(removed.Position)
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// AdvanceQueue drops the now playing item, deletes every front item marked for
// skipping and promotes the first one that is not. The whole loop is one
// transaction.
func (db *DB) AdvanceQueue(ctx context.Context) (*AdvanceResult, error) {
	var result AdvanceResult
	err := db.Transaction(ctx, func(tx *DB) error {
		result = AdvanceResult{}
		if err := tx.lockQueue(); err != nil {
			return err
		}

		var playing models.QueueItem
		err := tx.DB.Where("is_now_playing = ?", true).First(&playing).Error
		switch {
		case err == nil:
			if err := tx.deleteItem(&playing); err != nil {
				return err
			}
			result.Finished = &playing
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to get now playing item: %w", err)
		}

		for {
			var front models.QueueItem
			err := tx.pending().Order("position ASC").First(&front).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get front item: %w", err)
			}

			if front.WillBeSkipped {
				if err := tx.deleteItem(&front); err != nil {
					return err
				}
				if err := tx.compactAfter(front.Position); err != nil {
					return err
				}
				evicted := front
				result.Evicted = append(result.Evicted, &evicted)
				if front.IsRequest && front.RequestedBy != nil {
					result.EvictedRequesterIDs = append(result.EvictedRequesterIDs, *front.RequestedBy)
				}
				continue
			}

			err = tx.DB.Model(&models.QueueItem{}).Where("id = ?", front.ID).
				Updates(map[string]any{"is_now_playing": true, "position": 0}).Error
			if err != nil {
				return fmt.Errorf("failed to promote queue item: %w", err)
			}
			if err := tx.compactAfter(front.Position); err != nil {
				return err
			}
			front.IsNowPlaying = true
			front.Position = 0
			result.NowPlaying = &front
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance queue: %w", err)
	}
	return &result, nil
}

// GetNowPlaying returns nil when nothing is playing.
func (db *DB) GetNowPlaying(ctx context.Context) (*models.QueueItem, error) {
	var item models.QueueItem
	err := db.DB.WithContext(ctx).Where("is_now_playing = ?", true).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get now playing item: %w", err)
	}
	return &item, nil
}

func (db *DB) GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	return db.getQueueItem(db.DB.WithContext(ctx), id)
}

// LockQueueItem reads the item under a row lock so concurrent votes on it
// serialize. Must be called inside a transaction.
func (db *DB) LockQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	return db.getQueueItem(db.DB.WithContext(ctx).Clauses(lockRow()), id)
}

func (db *DB) getQueueItem(q *gorm.DB, id uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := q.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("queue item %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

// UpdateVoteState stores the vote counts and skip flag derived for an item.
func (db *DB) UpdateVoteState(ctx context.Context, id uuid.UUID, upvotes, downvotes int, willBeSkipped bool) (*models.QueueItem, error) {
	item, err := db.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}

	err = db.DB.WithContext(ctx).Model(item).Updates(map[string]any{
		"upvotes":         upvotes,
		"downvotes":       downvotes,
		"will_be_skipped": willBeSkipped,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update vote state: %w", err)
	}

	item.Upvotes = upvotes
	item.Downvotes = downvotes
	item.WillBeSkipped = willBeSkipped
	return item, nil
}

// ContainsTrack reports whether the track occupies any queue slot, pending or
// playing, whoever put it there.
func (db *DB) ContainsTrack(ctx context.Context, trackID string) (bool, error) {
	var count int64
	err := db.DB.WithContext(ctx).Model(&models.QueueItem{}).Where("track_id = ?", trackID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check queue for track: %w", err)
	}
	return count > 0, nil
}

// GetQueue lists the now playing item first, then pending items by position.
func (db *DB) GetQueue(ctx context.Context) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := db.DB.WithContext(ctx).
		Order("is_now_playing DESC, position ASC, added_at ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return items, nil
}

// ResetQueue deletes every queue item and every vote.
func (db *DB) ResetQueue(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *DB) error {
		if err := tx.lockQueue(); err != nil {
			return err
		}
		if err := tx.ClearVotes(ctx); err != nil {
			return err
		}
		if err := tx.DB.Where("1 = 1").Delete(&models.QueueItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete queue: %w", err)
		}
		return nil
	})
}
