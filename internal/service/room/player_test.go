package room

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

func TestApplyIntentRelaysToOthersOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	connA, respA := env.join(t, "1", addrA)
	connB, _ := env.join(t, "1", addrB)
	connA.reset()
	connB.reset()

	resp, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPlay, Position: 5})
	require.NoError(t, err)
	assert.True(t, resp.Forwarded)
	assert.Equal(t, protocol.StatusPlaying, resp.Playback.Status)
	assert.Equal(t, uint64(1), resp.Playback.Seq)

	assert.Empty(t, connA.ofType(protocol.TypePlaybackUpdated), "the sender gets no echo")

	updates := connB.ofType(protocol.TypePlaybackUpdated)
	require.Len(t, updates, 1)
	upd := updates[0].Payload.(protocol.PlaybackUpdated)
	assert.Equal(t, protocol.StatusPlaying, upd.Status)
	assert.InDelta(t, 5, upd.Position, 0.1)
	assert.Equal(t, respA.MemberId, upd.By)
	assert.False(t, upd.Resync)

	resp, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPause, Position: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp.Playback.Seq)
	assert.Equal(t, protocol.StatusPaused, resp.Playback.Status)
	assert.Equal(t, 7.0, resp.Playback.Position)
}

func TestSeekWithinToleranceIsDropped(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.SeekTolerance = 1 })
	ctx := context.Background()

	_, respA := env.join(t, "1", addrA)
	connB, _ := env.join(t, "1", addrB)

	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPause, Position: 10})
	require.NoError(t, err)
	connB.reset()

	resp, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentSeek, Position: 10.5})
	require.NoError(t, err)
	assert.False(t, resp.Forwarded)
	assert.Equal(t, 10.0, resp.Playback.Position)
	assert.Empty(t, connB.all())

	resp, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentSeek, Position: 15})
	require.NoError(t, err)
	assert.True(t, resp.Forwarded)
	assert.Equal(t, protocol.StatusPaused, resp.Playback.Status, "seek keeps the play state")

	updates := connB.ofType(protocol.TypePlaybackUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, 15.0, updates[0].Payload.(protocol.PlaybackUpdated).Position)
}

func TestApplyIntentValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, resp := env.join(t, "1", addrA)

	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: resp.MemberId, Type: "rewind", Position: 1})
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: resp.MemberId, Type: protocol.IntentSeek, Position: -1})
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: resp.MemberId, Type: protocol.IntentSeek, Position: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidPosition)

	err = env.service.ReportPosition(ctx, &ReportPositionParams{RoomId: "1", SenderId: resp.MemberId, Position: math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestPlayerProjection(t *testing.T) {
	now := time.Now()
	p := player{status: protocol.StatusPlaying, position: 10, updatedAt: now.Add(-2 * time.Second)}
	assert.InDelta(t, 12, p.current(now), 0.001)

	p.status = protocol.StatusPaused
	assert.Equal(t, 10.0, p.current(now))
}

func TestReportPositionResync(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.ResyncThreshold = 5
		c.ResyncCooldown = time.Hour
		c.VoteTriggers = nil
	})
	ctx := context.Background()

	connA, respA := env.join(t, "1", addrA)
	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPause, Position: 100})
	require.NoError(t, err)
	connA.reset()

	require.NoError(t, env.service.ReportPosition(ctx, &ReportPositionParams{RoomId: "1", SenderId: respA.MemberId, Position: 102}))
	assert.Empty(t, connA.all(), "small drift is tolerated")

	require.NoError(t, env.service.ReportPosition(ctx, &ReportPositionParams{RoomId: "1", SenderId: respA.MemberId, Position: 40}))
	updates := connA.ofType(protocol.TypePlaybackUpdated)
	require.Len(t, updates, 1)
	upd := updates[0].Payload.(protocol.PlaybackUpdated)
	assert.True(t, upd.Resync)
	assert.Equal(t, 100.0, upd.Position)

	require.NoError(t, env.service.ReportPosition(ctx, &ReportPositionParams{RoomId: "1", SenderId: respA.MemberId, Position: 40}))
	assert.Len(t, connA.ofType(protocol.TypePlaybackUpdated), 1, "resync is rate limited per member")
}

func TestTriggerFiresWhilePlaying(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.VoteTriggers = []float64{0.1} })
	ctx := context.Background()

	connA, respA := env.join(t, "1", addrA)
	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPlay, Position: 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(connA.ofType(protocol.TypeVotingOpened)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	opened := connA.ofType(protocol.TypeVotingOpened)[0].Payload.(protocol.VotingOpened)
	assert.Equal(t, 0.1, opened.Trigger)
}

func TestPauseStopsTriggerTimer(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.VoteTriggers = []float64{0.2} })
	ctx := context.Background()

	connA, respA := env.join(t, "1", addrA)
	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPlay, Position: 0})
	require.NoError(t, err)
	_, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: respA.MemberId, Type: protocol.IntentPause, Position: 0.05})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, connA.ofType(protocol.TypeVotingOpened))
}
