package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/pkg/models"
)

type EventType string

const (
	EventTypeQueueChanged EventType = "queueChanged"
	EventTypeVotesChanged EventType = "votesChanged"
	EventTypeRulesChanged EventType = "rulesChanged"
	// EventTypeNotification is addressed to a single user.
	EventTypeNotification EventType = "notification"
)

// Kinds of queueChanged payloads.
const (
	QueueItemAdded   = "itemAdded"
	QueueItemRemoved = "itemRemoved"
	QueueAdvanced    = "advanced"
	QueueReset       = "reset"
)

type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher delivers events to whoever listens: Kafka in production, the
// WebSocket hub directly when no broker is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func NewEvent(eventType EventType, userID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Emit broadcasts an event. Delivery is fire-and-forget: failures are logged
// and never reach the caller.
func Emit(ctx context.Context, p Publisher, eventType EventType, payload any) {
	publish(ctx, p, eventType, "", payload)
}

// NotifyUser sends a human-readable message to one user.
func NotifyUser(ctx context.Context, p Publisher, userID uuid.UUID, message string) {
	publish(ctx, p, EventTypeNotification, userID.String(), NotificationPayload{Message: message})
}

func publish(ctx context.Context, p Publisher, eventType EventType, userID string, payload any) {
	if p == nil {
		return
	}
	event, err := NewEvent(eventType, userID, payload)
	if err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("failed to build event")
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish event")
	}
}

// Event payload types
type QueueChangedPayload struct {
	Type           string            `json:"type"`
	QueueItem      *models.QueueItem `json:"queue_item,omitempty"`
	Track          *models.Track     `json:"track,omitempty"`
	QueueItemID    *uuid.UUID        `json:"queue_item_id,omitempty"`
	NowPlaying     *models.QueueItem `json:"now_playing,omitempty"`
	EvictedItemIDs []uuid.UUID       `json:"evicted_item_ids,omitempty"`
}

type VotesChangedPayload struct {
	Type          string    `json:"type"`
	QueueItemID   uuid.UUID `json:"queue_item_id"`
	Upvotes       int       `json:"upvotes"`
	Downvotes     int       `json:"downvotes"`
	WillBeSkipped bool      `json:"will_be_skipped"`
}

type RulesChangedPayload struct {
	Rule models.Rule `json:"rule"`
}

type NotificationPayload struct {
	Message string `json:"message"`
}
