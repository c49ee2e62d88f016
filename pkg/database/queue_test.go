package database_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-queue-system/internal/testutil"
	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/models"
)

// assertQueueInvariants checks dense pending positions and a single now playing item.
func assertQueueInvariants(t *testing.T, db *database.DB) []*models.QueueItem {
	t.Helper()
	items, err := db.GetQueue(context.Background())
	require.NoError(t, err)

	var positions []int
	playing := 0
	for _, item := range items {
		if item.IsNowPlaying {
			playing++
			continue
		}
		positions = append(positions, item.Position)
	}
	sort.Ints(positions)
	for i, p := range positions {
		assert.Equal(t, i+1, p, "positions must be dense: %v", positions)
	}
	assert.LessOrEqual(t, playing, 1)
	return items
}

func appendTracks(t *testing.T, db *database.DB, trackIDs ...string) []*models.QueueItem {
	t.Helper()
	var out []*models.QueueItem
	for _, id := range trackIDs {
		user := uuid.New()
		item, err := db.AppendQueueItem(context.Background(), id, &user, true)
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func TestAppendAssignsNextPosition(t *testing.T) {
	db := testutil.NewDB(t)
	items := appendTracks(t, db, "a", "b", "c")

	for i, item := range items {
		assert.Equal(t, i+1, item.Position)
		assert.False(t, item.IsNowPlaying)
		assert.Zero(t, item.Upvotes)
		assert.Zero(t, item.Downvotes)
	}
	assertQueueInvariants(t, db)
}

func TestAppendFillerHasNoRequester(t *testing.T) {
	db := testutil.NewDB(t)
	item, err := db.AppendQueueItem(context.Background(), "filler", nil, false)
	require.NoError(t, err)

	stored, err := db.GetQueueItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RequestedBy)
	assert.False(t, stored.IsRequest)
}

func TestConcurrentAppendsKeepPositionsDense(t *testing.T) {
	db := testutil.NewDB(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.AppendQueueItem(context.Background(), fmt.Sprintf("track-%d", i), nil, false)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items := assertQueueInvariants(t, db)
	assert.Len(t, items, n)
}

func TestRemoveCompactsPositions(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a", "b", "c", "d")

	removed, err := db.RemoveQueueItem(ctx, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.TrackID)

	remaining := assertQueueInvariants(t, db)
	require.Len(t, remaining, 3)
	assert.Equal(t, []string{"a", "c", "d"}, []string{remaining[0].TrackID, remaining[1].TrackID, remaining[2].TrackID})
}

func TestRemoveMissingItem(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := db.RemoveQueueItem(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveDeletesVotes(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a")
	voter := uuid.New()

	_, err := db.CastVote(ctx, items[0].ID, voter, true)
	require.NoError(t, err)
	_, err = db.RemoveQueueItem(ctx, items[0].ID)
	require.NoError(t, err)

	votes, err := db.VotesForUser(ctx, voter, []uuid.UUID{items[0].ID})
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestAdvancePromotesFront(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a", "b")

	res, err := db.AdvanceQueue(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.NowPlaying)
	assert.Nil(t, res.Finished)
	assert.Equal(t, items[0].ID, res.NowPlaying.ID)
	assert.True(t, res.NowPlaying.IsNowPlaying)

	np, err := db.GetNowPlaying(ctx)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, items[0].ID, np.ID)

	next, err := db.GetQueueItem(ctx, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Position)

	// second advance drops "a" and plays "b"
	res, err = db.AdvanceQueue(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Finished)
	assert.Equal(t, items[0].ID, res.Finished.ID)
	assert.Equal(t, items[1].ID, res.NowPlaying.ID)
	assertQueueInvariants(t, db)
}

func TestAdvanceSkipCascade(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	requesterA, requesterB := uuid.New(), uuid.New()
	a, err := db.AppendQueueItem(ctx, "a", &requesterA, true)
	require.NoError(t, err)
	b, err := db.AppendQueueItem(ctx, "b", &requesterB, true)
	require.NoError(t, err)
	filler, err := db.AppendQueueItem(ctx, "filler", nil, false)
	require.NoError(t, err)
	c, err := db.AppendQueueItem(ctx, "c", nil, false)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{a.ID, b.ID, filler.ID} {
		_, err := db.UpdateVoteState(ctx, id, 1, 9, true)
		require.NoError(t, err)
	}

	res, err := db.AdvanceQueue(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.NowPlaying)
	assert.Equal(t, c.ID, res.NowPlaying.ID)
	assert.ElementsMatch(t, []uuid.UUID{requesterA, requesterB}, res.EvictedRequesterIDs)
	assert.Len(t, res.Evicted, 3)

	items := assertQueueInvariants(t, db)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsNowPlaying)
}

func TestAdvanceEmptiesQueue(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a")
	_, err := db.UpdateVoteState(ctx, items[0].ID, 0, 5, true)
	require.NoError(t, err)

	res, err := db.AdvanceQueue(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.NowPlaying)
	assert.Len(t, res.EvictedRequesterIDs, 1)

	np, err := db.GetNowPlaying(ctx)
	require.NoError(t, err)
	assert.Nil(t, np)
}

func TestAdvanceRespectsCancelledContext(t *testing.T) {
	db := testutil.NewDB(t)
	appendTracks(t, db, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.AdvanceQueue(ctx)
	require.Error(t, err)

	np, err := db.GetNowPlaying(context.Background())
	require.NoError(t, err)
	assert.Nil(t, np)
	assertQueueInvariants(t, db)
}

func TestMixedMutationsKeepInvariants(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a", "b", "c", "d", "e")

	_, err := db.AdvanceQueue(ctx)
	require.NoError(t, err)
	_, err = db.RemoveQueueItem(ctx, items[3].ID)
	require.NoError(t, err)
	appendTracks(t, db, "f")
	_, err = db.UpdateVoteState(ctx, items[1].ID, 0, 3, true)
	require.NoError(t, err)
	_, err = db.AdvanceQueue(ctx)
	require.NoError(t, err)

	np, err := db.GetNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, items[2].ID, np.ID)
	assertQueueInvariants(t, db)
}

func TestUpdateVoteStateMissingItem(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := db.UpdateVoteState(context.Background(), uuid.New(), 1, 0, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestContainsTrack(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	_, err := db.AppendQueueItem(ctx, "filler", nil, false)
	require.NoError(t, err)

	found, err := db.ContainsTrack(ctx, "filler")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = db.ContainsTrack(ctx, "other")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResetQueue(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	items := appendTracks(t, db, "a", "b")
	_, err := db.CastVote(ctx, items[0].ID, uuid.New(), false)
	require.NoError(t, err)

	require.NoError(t, db.ResetQueue(ctx))

	queue, err := db.GetQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	var votes int64
	require.NoError(t, db.DB.Model(&models.Vote{}).Count(&votes).Error)
	assert.Zero(t, votes)
}
