package rules

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/models"
)

// Cache is an optional read-through layer in front of the rule table.
type Cache interface {
	GetRules(ctx context.Context) ([]models.Rule, bool, error)
	SetRules(ctx context.Context, rules []models.Rule) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	db     *database.DB
	cache  Cache
	events events.Publisher
}

// NewService builds the rule service. cache may be nil.
func NewService(db *database.DB, cache Cache, publisher events.Publisher) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		events: publisher,
	}
}

// All returns every rule, from cache when possible.
func (s *Service) All(ctx context.Context) ([]models.Rule, error) {
	if s.cache != nil {
		rules, ok, err := s.cache.GetRules(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("rule cache read failed")
		} else if ok {
			return rules, nil
		}
	}

	rules, err := s.db.GetRules(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRules(ctx, rules); err != nil {
			log.Warn().Err(err).Msg("failed to cache rules")
		}
	}
	return rules, nil
}

// Set is the rule set keyed by name.
type Set map[string]models.Rule

func (s *Service) Load(ctx context.Context) (Set, error) {
	rules, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(rules))
	for _, r := range rules {
		set[r.Name] = r
	}
	return set, nil
}

// Require returns the named rule or an ErrNotFound configuration error.
func (rs Set) Require(name string) (models.Rule, error) {
	r, ok := rs[name]
	if !ok {
		return models.Rule{}, fmt.Errorf("rule %s is not configured: %w", name, apperr.ErrNotFound)
	}
	return r, nil
}

// VotingThresholds returns voteThreshold and minimumVotes.
func (rs Set) VotingThresholds() (threshold float64, minimum int, err error) {
	thresholdRule, err := rs.Require(models.RuleVoteThreshold)
	if err != nil {
		return 0, 0, err
	}
	minimumRule, err := rs.Require(models.RuleMinimumVotes)
	if err != nil {
		return 0, 0, err
	}
	if threshold, err = thresholdRule.Float(); err != nil {
		return 0, 0, err
	}
	minVotes, err := minimumRule.Int()
	if err != nil {
		return 0, 0, err
	}
	return threshold, int(minVotes), nil
}

// Update changes a rule, drops the cache and tells clients.
func (s *Service) Update(ctx context.Context, name, value, description string) (*models.Rule, error) {
	if err := validate(name, value); err != nil {
		return nil, err
	}

	rule, err := s.db.UpdateRule(ctx, name, value, description)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate rule cache")
		}
	}

	events.Emit(ctx, s.events, events.EventTypeRulesChanged, events.RulesChangedPayload{Rule: *rule})
	log.Info().Str("rule", name).Str("value", value).Msg("rule updated")
	return rule, nil
}

func validate(name, value string) error {
	probe := models.Rule{Name: name, Value: value}
	var err error
	switch name {
	case models.RuleExplicitDisallowed:
		_, err = probe.Bool()
	case models.RuleMaxLengthMs, models.RuleMinimumVotes, models.RuleRequestCooldown:
		var n int64
		if n, err = probe.Int(); err == nil && n < 0 {
			err = fmt.Errorf("rule %s must not be negative", name)
		}
	case models.RuleVoteThreshold:
		var f float64
		if f, err = probe.Float(); err == nil && (f < 0 || f > 1) {
			err = fmt.Errorf("rule %s must be between 0 and 1", name)
		}
	}
	if err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrBadRequest)
	}
	return nil
}
