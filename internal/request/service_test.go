package request

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-queue-system/internal/rules"
	"github.com/jukebox-queue-system/internal/testutil"
	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/models"
)

type fakeFetcher map[string]*models.Track

func (f fakeFetcher) FetchTrackMetadata(_ context.Context, trackID string) (*models.Track, error) {
	track, ok := f[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, apperr.ErrNotFound)
	}
	copied := *track
	return &copied, nil
}

var catalog = fakeFetcher{
	"short":    {TrackID: "short", Title: "Short", DurationMs: 180000},
	"other":    {TrackID: "other", Title: "Other", DurationMs: 200000},
	"explicit": {TrackID: "explicit", Title: "Explicit", DurationMs: 180000, IsExplicit: true},
	"long":     {TrackID: "long", Title: "Long", DurationMs: 900000},
}

var fixedNow = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *database.DB, *testutil.Publisher) {
	t.Helper()
	db := testutil.NewDB(t)
	pub := &testutil.Publisher{}
	svc := NewService(db, rules.NewService(db, nil, nil), catalog, pub)
	svc.now = func() time.Time { return fixedNow }
	return svc, db, pub
}

func TestProcessTrackRequestAccepts(t *testing.T) {
	svc, db, pub := setup(t)
	ctx := context.Background()
	user := uuid.New()

	res, err := svc.ProcessTrackRequest(ctx, "short", user)
	require.NoError(t, err)
	assert.True(t, res.Added)
	require.NotNil(t, res.QueueItem)
	assert.Equal(t, 1, res.QueueItem.Position)
	assert.True(t, res.QueueItem.IsRequest)
	assert.Equal(t, user, *res.QueueItem.RequestedBy)

	last, ok, err := db.GetLastRequestTime(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fixedNow.Equal(last))

	tracks, err := db.GetTracks(ctx, []string{"short"})
	require.NoError(t, err)
	assert.Equal(t, "Short", tracks["short"].Title)

	top, err := db.TopRequestedTracks(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.EqualValues(t, 1, top[0].Requests)

	assert.Equal(t, []string{successMessage}, pub.Messages(t, user.String()))
	added := pub.OfType(events.EventTypeQueueChanged)
	require.Len(t, added, 1)
	var payload events.QueueChangedPayload
	require.NoError(t, json.Unmarshal(added[0].Payload, &payload))
	assert.Equal(t, events.QueueItemAdded, payload.Type)
	assert.Equal(t, "short", payload.Track.TrackID)
}

func TestProcessTrackRequestContentRules(t *testing.T) {
	svc, _, pub := setup(t)
	user := uuid.New()

	res, err := svc.ProcessTrackRequest(context.Background(), "explicit", user)
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.ErrorIs(t, res.Err, apperr.ErrRuleViolation)
	assert.Equal(t, models.RuleExplicitDisallowed, res.Reason)
	assert.Equal(t, "Request denied: Explicit tracks are not allowed.", res.Message)

	res, err = svc.ProcessTrackRequest(context.Background(), "long", user)
	require.NoError(t, err)
	assert.Equal(t, models.RuleMaxLengthMs, res.Reason)

	assert.Len(t, pub.Messages(t, user.String()), 2)
	assert.Empty(t, pub.OfType(events.EventTypeQueueChanged))
}

func TestExplicitAllowedWhenRuleInactive(t *testing.T) {
	svc, db, _ := setup(t)
	testutil.SetRule(t, db, models.RuleExplicitDisallowed, "false")

	res, err := svc.ProcessTrackRequest(context.Background(), "explicit", uuid.New())
	require.NoError(t, err)
	assert.True(t, res.Added)
}

func TestContentRuleCheckedBeforeCooldown(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, db.SetLastRequestTime(ctx, user, fixedNow.Add(-time.Second)))

	res, err := svc.ProcessTrackRequest(ctx, "long", user)
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.ErrorIs(t, res.Err, apperr.ErrRuleViolation)
	assert.Zero(t, res.WaitMs)
}

func TestCooldownRemaining(t *testing.T) {
	svc, db, pub := setup(t)
	ctx := context.Background()
	testutil.SetRule(t, db, models.RuleRequestCooldown, "60000")
	user := uuid.New()
	require.NoError(t, db.SetLastRequestTime(ctx, user, fixedNow.Add(-30*time.Second)))

	res, err := svc.ProcessTrackRequest(ctx, "short", user)
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.ErrorIs(t, res.Err, apperr.ErrCooldownActive)
	assert.InDelta(t, 30000, res.WaitMs, 1000)
	assert.Equal(t, []string{"Request denied: You must wait 30 seconds."}, pub.Messages(t, user.String()))

	svc.now = func() time.Time { return fixedNow.Add(31 * time.Second) }
	res, err = svc.ProcessTrackRequest(ctx, "short", user)
	require.NoError(t, err)
	assert.True(t, res.Added)
}

func TestDuplicateOfFillerRejected(t *testing.T) {
	svc, db, pub := setup(t)
	ctx := context.Background()
	_, err := db.AppendQueueItem(ctx, "short", nil, false)
	require.NoError(t, err)
	user := uuid.New()

	res, err := svc.ProcessTrackRequest(ctx, "short", user)
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.ErrorIs(t, res.Err, apperr.ErrDuplicateInQueue)
	assert.Equal(t, []string{duplicateMessage}, pub.Messages(t, user.String()))

	_, ok, err := db.GetLastRequestTime(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok, "a denied request must not start the cooldown")
}

func TestSecondRequestHitsCooldown(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	user := uuid.New()

	res, err := svc.ProcessTrackRequest(ctx, "short", user)
	require.NoError(t, err)
	require.True(t, res.Added)

	res, err = svc.ProcessTrackRequest(ctx, "other", user)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, apperr.ErrCooldownActive)
	assert.EqualValues(t, 600000, res.WaitMs)

	queue, err := db.GetQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestFailedRequestNotifiesRequester(t *testing.T) {
	svc, db, pub := setup(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := svc.ProcessTrackRequest(ctx, "nope", user)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ProcessTrackRequest(ctx, "", user)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	testutil.SetRule(t, db, models.RuleMaxLengthMs, "not a number")
	_, err = svc.ProcessTrackRequest(ctx, "short", user)
	require.Error(t, err)

	assert.Equal(t, []string{
		"Request failed: Track not found.",
		"Request failed: No track was given.",
		"Request failed: Something went wrong, please try again later.",
	}, pub.Messages(t, user.String()))
	assert.Empty(t, pub.OfType(events.EventTypeQueueChanged))
}
