package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jukebox-queue-system/pkg/models"
)

// CastVote records the user's vote on an item, one row per (user, item).
// A repeat vote in the same direction is left alone; a repeat in the other
// direction flips the stored row.
func (db *DB) CastVote(ctx context.Context, itemID, userID uuid.UUID, isUpvote bool) (models.VoteOutcome, error) {
	var outcome models.VoteOutcome
	err := db.Transaction(ctx, func(tx *DB) error {
		now := time.Now().UTC()

		var existing models.Vote
		err := tx.DB.Clauses(lockRow()).
			Where("user_id = ? AND queue_item_id = ?", userID, itemID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			outcome = models.VoteInserted
			return tx.DB.Create(&models.Vote{
				ID:          uuid.New(),
				QueueItemID: itemID,
				UserID:      userID,
				IsUpvote:    isUpvote,
				Timestamp:   now,
			}).Error
		case err != nil:
			return fmt.Errorf("failed to get vote: %w", err)
		case existing.IsUpvote == isUpvote:
			outcome = models.VoteUnchanged
			return nil
		default:
			outcome = models.VoteSwitched
			return tx.DB.Model(&existing).Updates(map[string]any{
				"is_upvote": isUpvote,
				"timestamp": now,
			}).Error
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to store vote: %w", err)
	}
	return outcome, nil
}

// VotesForUser maps each of itemIDs the user voted on to the vote direction.
// Items without a vote are absent from the result.
func (db *DB) VotesForUser(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool)
	if len(itemIDs) == 0 {
		return result, nil
	}

	var votes []models.Vote
	if err := db.DB.WithContext(ctx).
		Where("user_id = ? AND queue_item_id IN ?", userID, itemIDs).
		Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to get user votes: %w", err)
	}
	for _, v := range votes {
		result[v.QueueItemID] = v.IsUpvote
	}
	return result, nil
}

func (db *DB) ClearVotes(ctx context.Context) error {
	if err := db.DB.WithContext(ctx).Where("1 = 1").Delete(&models.Vote{}).Error; err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}
