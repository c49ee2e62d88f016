// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
)

// NewDB returns a migrated, seeded in-memory SQLite store closed at test end.
func NewDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewSQLiteDB("", database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SetRule overwrites a seeded rule value.
func SetRule(t *testing.T, db *database.DB, name, value string) {
	t.Helper()
	_, err := db.UpdateRule(context.Background(), name, value, "")
	require.NoError(t, err)
}

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	Events []events.Event
}

func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}

// OfType returns the recorded events of one type, in publish order.
func (p *Publisher) OfType(eventType events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Messages returns the notification texts sent to userID.
func (p *Publisher) Messages(t *testing.T, userID string) []string {
	t.Helper()
	var out []string
	for _, e := range p.OfType(events.EventTypeNotification) {
		if e.UserID != userID {
			continue
		}
		var payload events.NotificationPayload
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
		out = append(out, payload.Message)
	}
	return out
}
