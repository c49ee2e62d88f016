package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/internal/rules"
	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/metrics"
	"github.com/jukebox-queue-system/pkg/models"
)

// MetadataFetcher looks up a track by its external id.
type MetadataFetcher interface {
	FetchTrackMetadata(ctx context.Context, trackID string) (*models.Track, error)
}

type RuleLoader interface {
	Load(ctx context.Context) (rules.Set, error)
}

type Service struct {
	db      *database.DB
	rules   RuleLoader
	fetcher MetadataFetcher
	events  events.Publisher
	now     func() time.Time
}

func NewService(db *database.DB, rules RuleLoader, fetcher MetadataFetcher, publisher events.Publisher) *Service {
	return &Service{
		db:      db,
		rules:   rules,
		fetcher: fetcher,
		events:  publisher,
		now:     time.Now,
	}
}

// Result is the admission decision. A denial is a normal outcome, not an
// error: Err carries the apperr sentinel for the reason.
type Result struct {
	Added     bool              `json:"added"`
	Reason    string            `json:"reason,omitempty"`
	Message   string            `json:"message"`
	WaitMs    int64             `json:"wait_time_ms,omitempty"`
	QueueItem *models.QueueItem `json:"queue_item,omitempty"`
	Err       error             `json:"-"`
}

func denied(err error, reason, message string) *Result {
	return &Result{Reason: reason, Message: message, Err: err}
}

// ProcessTrackRequest runs the admission checks in order (content rules,
// cooldown, duplicate) and queues the track when all pass. The first failing
// check decides the reason. The requester is told the outcome, including when
// the request fails with an error.
func (s *Service) ProcessTrackRequest(ctx context.Context, trackID string, userID uuid.UUID) (*Result, error) {
	result, err := s.process(ctx, trackID, userID)
	if err != nil {
		metrics.TrackRequests.WithLabelValues("error").Inc()
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("track_id", trackID).
			Msg("track request failed")
		events.NotifyUser(ctx, s.events, userID, failureMessage(err))
		return nil, err
	}

	s.report(ctx, userID, trackID, result)
	return result, nil
}

func (s *Service) process(ctx context.Context, trackID string, userID uuid.UUID) (*Result, error) {
	if trackID == "" {
		return nil, fmt.Errorf("track id is required: %w", apperr.ErrBadRequest)
	}

	track, err := s.fetcher.FetchTrackMetadata(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track metadata: %w", err)
	}

	ruleSet, err := s.rules.Load(ctx)
	if err != nil {
		return nil, err
	}

	broken, err := brokenContentRule(track, ruleSet)
	if err != nil {
		return nil, err
	}

	var result *Result
	if broken != nil {
		result = denied(apperr.ErrRuleViolation, broken.Name, ruleDeniedMessage(broken.Description))
	} else {
		result, err = s.admit(ctx, track, userID, ruleSet)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// admit runs the cooldown and duplicate checks and the queue write in one
// transaction holding the queue lock, so two requests cannot both pass.
func (s *Service) admit(ctx context.Context, track *models.Track, userID uuid.UUID, ruleSet rules.Set) (*Result, error) {
	cooldown, err := cooldownDuration(ruleSet)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.db.Transaction(ctx, func(tx *database.DB) error {
		if err := tx.LockQueue(ctx); err != nil {
			return err
		}
		now := s.now()

		if cooldown > 0 {
			last, ok, err := tx.GetLastRequestTime(ctx, userID)
			if err != nil {
				return err
			}
			if remaining := cooldown - now.Sub(last); ok && remaining > 0 {
				result = denied(apperr.ErrCooldownActive, "cooldownActive", cooldownMessage(remaining))
				result.WaitMs = remaining.Milliseconds()
				return nil
			}
		}

		queued, err := tx.ContainsTrack(ctx, track.TrackID)
		if err != nil {
			return err
		}
		if queued {
			result = denied(apperr.ErrDuplicateInQueue, "duplicateInQueue", duplicateMessage)
			return nil
		}

		if err := tx.StoreTrack(ctx, track); err != nil {
			return err
		}
		item, err := tx.AppendQueueItem(ctx, track.TrackID, &userID, true)
		if err != nil {
			return err
		}
		if err := tx.SetLastRequestTime(ctx, userID, now); err != nil {
			return err
		}
		if err := tx.RecordRequest(ctx, track.TrackID, userID, now); err != nil {
			return err
		}

		result = &Result{Added: true, Message: successMessage, QueueItem: item}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Added {
		events.Emit(ctx, s.events, events.EventTypeQueueChanged, events.QueueChangedPayload{
			Type:      events.QueueItemAdded,
			QueueItem: result.QueueItem,
			Track:     track,
		})
	}
	return result, nil
}

func (s *Service) report(ctx context.Context, userID uuid.UUID, trackID string, result *Result) {
	outcome := "added"
	if !result.Added {
		outcome = result.Reason
	}
	metrics.TrackRequests.WithLabelValues(outcome).Inc()

	log.Info().
		Str("user_id", userID.String()).
		Str("track_id", trackID).
		Bool("added", result.Added).
		Str("reason", result.Reason).
		Msg("track request processed")

	events.NotifyUser(ctx, s.events, userID, result.Message)
}

// brokenContentRule returns the first content rule the track violates, or nil.
// A rule that is not configured is not enforced.
func brokenContentRule(track *models.Track, ruleSet rules.Set) (*models.Rule, error) {
	if rule, ok := ruleSet[models.RuleExplicitDisallowed]; ok {
		active, err := rule.Bool()
		if err != nil {
			return nil, err
		}
		if active && track.IsExplicit {
			return &rule, nil
		}
	}

	if rule, ok := ruleSet[models.RuleMaxLengthMs]; ok {
		maxMs, err := rule.Int()
		if err != nil {
			return nil, err
		}
		if track.DurationMs > maxMs {
			return &rule, nil
		}
	}
	return nil, nil
}

func cooldownDuration(ruleSet rules.Set) (time.Duration, error) {
	rule, ok := ruleSet[models.RuleRequestCooldown]
	if !ok {
		return 0, nil
	}
	ms, err := rule.Int()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
