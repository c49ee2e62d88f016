package vote

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/internal/rules"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/metrics"
	"github.com/jukebox-queue-system/pkg/models"
)

// RuleLoader supplies the current rule set.
type RuleLoader interface {
	Load(ctx context.Context) (rules.Set, error)
}

type Service struct {
	db     *database.DB
	rules  RuleLoader
	events events.Publisher
}

func NewService(db *database.DB, rules RuleLoader, publisher events.Publisher) *Service {
	return &Service{
		db:     db,
		rules:  rules,
		events: publisher,
	}
}

type Result struct {
	Outcome models.VoteOutcome `json:"outcome"`
	Item    *models.QueueItem  `json:"queue_item"`
}

// ApplyVote records a vote and re-derives the item's counts and skip flag.
// Everything up to persisting the new counts runs in one transaction holding
// the item's row lock; the votesChanged broadcast happens after commit.
func (s *Service) ApplyVote(ctx context.Context, itemID, userID uuid.UUID, isUpvote bool) (*Result, error) {
	// Rules are read before the transaction starts; a missing rule still only
	// fails at the point where it is needed, after the vote was attempted.
	ruleSet, err := s.rules.Load(ctx)
	if err != nil {
		return nil, err
	}

	var result Result
	err = s.db.Transaction(ctx, func(tx *database.DB) error {
		item, err := tx.LockQueueItem(ctx, itemID)
		if err != nil {
			return err
		}

		outcome, err := tx.CastVote(ctx, itemID, userID, isUpvote)
		if err != nil {
			return err
		}
		up, down := outcome.Delta(isUpvote)
		item.Upvotes += up
		item.Downvotes += down

		threshold, minimum, err := ruleSet.VotingThresholds()
		if err != nil {
			return err
		}
		willBeSkipped := ShouldSkip(item.Upvotes, item.Downvotes, threshold, minimum)

		updated, err := tx.UpdateVoteState(ctx, itemID, item.Upvotes, item.Downvotes, willBeSkipped)
		if err != nil {
			return err
		}
		result = Result{Outcome: outcome, Item: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Votes.WithLabelValues(string(result.Outcome)).Inc()
	log.Debug().
		Str("queue_item_id", itemID.String()).
		Str("user_id", userID.String()).
		Str("outcome", string(result.Outcome)).
		Bool("will_be_skipped", result.Item.WillBeSkipped).
		Msg("vote applied")

	events.Emit(ctx, s.events, events.EventTypeVotesChanged, events.VotesChangedPayload{
		Type:          "itemUpdated",
		QueueItemID:   result.Item.ID,
		Upvotes:       result.Item.Upvotes,
		Downvotes:     result.Item.Downvotes,
		WillBeSkipped: result.Item.WillBeSkipped,
	})

	return &result, nil
}
