package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Rule names understood by the admission pipeline and the skip evaluator.
const (
	RuleExplicitDisallowed = "explicitDisallowed"
	RuleMaxLengthMs        = "maxLengthMs"
	RuleVoteThreshold      = "voteThreshold"
	RuleMinimumVotes       = "minimumVotes"
	RuleRequestCooldown    = "requestCooldown"
)

// Rule categories.
const (
	RuleTypeContent = "content"
	RuleTypeVoting  = "voting"
	RuleTypeRequest = "request"
)

type User struct {
	ID              uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	IsAdmin         bool       `json:"is_admin"`
	LastRequestTime *time.Time `json:"last_request_time"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// QueueItem is a track slot. Pending items carry a dense position starting at
// 1; the now playing item sits outside the ranking at position 0.
type QueueItem struct {
	ID            uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	TrackID       string     `json:"track_id" gorm:"size:64;not null;index"`
	RequestedBy   *uuid.UUID `json:"requested_by" gorm:"type:char(36)"`
	IsRequest     bool       `json:"is_request"`
	Position      int        `json:"position" gorm:"not null;index"`
	IsNowPlaying  bool       `json:"is_now_playing" gorm:"not null;default:false"`
	Upvotes       int        `json:"upvotes" gorm:"not null;default:0"`
	Downvotes     int        `json:"downvotes" gorm:"not null;default:0"`
	WillBeSkipped bool       `json:"will_be_skipped" gorm:"not null;default:false"`
	AddedAt       time.Time  `json:"added_at" gorm:"not null"`
}

type Vote struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	QueueItemID uuid.UUID `json:"queue_item_id" gorm:"type:char(36);not null;uniqueIndex:ux_vote_user_item,priority:2"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:ux_vote_user_item,priority:1"`
	IsUpvote    bool      `json:"is_upvote"`
	Timestamp   time.Time `json:"timestamp"`
}

// VoteOutcome classifies what a ledger write did.
type VoteOutcome string

const (
	VoteInserted  VoteOutcome = "inserted"
	VoteSwitched  VoteOutcome = "switched"
	VoteUnchanged VoteOutcome = "unchanged"
)

// Delta returns the change to (upvotes, downvotes) implied by the outcome of a
// vote in direction isUpvote.
func (o VoteOutcome) Delta(isUpvote bool) (up, down int) {
	switch o {
	case VoteInserted:
		if isUpvote {
			return 1, 0
		}
		return 0, 1
	case VoteSwitched:
		if isUpvote {
			return 1, -1
		}
		return -1, 1
	default:
		return 0, 0
	}
}

// Rule is a named admission or eviction policy. Value holds the payload as
// text: "true"/"false", an integer or a ratio.
type Rule struct {
	Name        string    `json:"name" gorm:"size:64;primaryKey"`
	Type        string    `json:"type" gorm:"size:32;not null"`
	Value       string    `json:"value" gorm:"size:64;not null"`
	Description string    `json:"description" gorm:"size:255"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r Rule) Bool() (bool, error) {
	v, err := strconv.ParseBool(r.Value)
	if err != nil {
		return false, fmt.Errorf("rule %s: invalid boolean %q", r.Name, r.Value)
	}
	return v, nil
}

func (r Rule) Int() (int64, error) {
	v, err := strconv.ParseInt(r.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rule %s: invalid integer %q", r.Name, r.Value)
	}
	return v, nil
}

func (r Rule) Float() (float64, error) {
	v, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("rule %s: invalid number %q", r.Name, r.Value)
	}
	return v, nil
}

// Track is the metadata we keep about a requested track.
type Track struct {
	TrackID     string    `json:"track_id" gorm:"size:64;primaryKey"`
	Title       string    `json:"title" gorm:"size:255"`
	Artists     string    `json:"artists" gorm:"size:512"`
	ReleaseName string    `json:"release_name" gorm:"size:255"`
	CoverArtURL string    `json:"cover_art_url" gorm:"size:512"`
	IsExplicit  bool      `json:"is_explicit"`
	DurationMs  int64     `json:"duration_ms"`
	LastFetched time.Time `json:"last_fetched"`
}

// RequestHistory records every accepted request for reporting.
type RequestHistory struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	TrackID     string    `json:"track_id" gorm:"size:64;not null;index"`
	RequestedBy uuid.UUID `json:"requested_by" gorm:"type:char(36);not null"`
	RequestedAt time.Time `json:"requested_at"`
}

// QueueLock is a single row locked at the start of every structural queue
// mutation so appends, removals and advances serialize.
type QueueLock struct {
	ID uint `gorm:"primaryKey"`
}
