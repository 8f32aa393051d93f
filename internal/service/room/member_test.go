package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

func TestJoinRoomSendsSnapshotFirst(t *testing.T) {
	env := newTestEnv(t, nil)

	connA, respA := env.join(t, "1", addrA)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", respA.MemberId)
	assert.NotEmpty(t, respA.AuthToken)
	assert.False(t, respA.Rejoined)

	require.Equal(t, []string{
		protocol.TypeRoomSnapshot,
		protocol.TypeMembershipChanged,
		protocol.TypeChatMessage,
	}, connA.types())

	events := connA.all()
	snap := events[0].Payload.(protocol.RoomSnapshot)
	assert.Equal(t, "1", snap.RoomID)
	assert.Equal(t, "Action Movie Night", snap.Title)
	assert.Equal(t, respA.MemberId, snap.YouID)
	assert.Equal(t, 1, snap.ViewerCount)
	assert.Equal(t, protocol.StatusPaused, snap.Playback.Status)
	assert.Nil(t, snap.Voting)

	changed := events[1].Payload.(protocol.MembershipChanged)
	assert.Equal(t, protocol.MembershipJoined, changed.Action)
	assert.Equal(t, "0x5290...9EE7", changed.Member.Identity)

	chat := events[2].Payload.(protocol.ChatMessage)
	assert.True(t, chat.System)
	assert.Equal(t, protocol.SystemSender, chat.Sender)
	assert.Equal(t, "0x5290...9EE7 joined the room", chat.Text)

	connB, _ := env.join(t, "1", addrB)
	snapB := connB.all()[0].Payload.(protocol.RoomSnapshot)
	assert.Equal(t, 2, snapB.ViewerCount)
	assert.Len(t, snapB.Members, 2)

	require.Len(t, connA.ofType(protocol.TypeMembershipChanged), 2)
	assert.Equal(t, 2, connA.ofType(protocol.TypeMembershipChanged)[1].Payload.(protocol.MembershipChanged).ViewerCount)
}

func TestJoinRoomNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.service.JoinRoom(context.Background(), &JoinRoomParams{RoomId: "404", Conn: &fakeConn{}})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinPaidRoomRequiresTicket(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "2", Conn: &fakeConn{}})
	assert.ErrorIs(t, err, ErrAccessDenied, "anonymous viewers never pass a ticket check")

	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "2", Address: addrA, Conn: &fakeConn{}})
	assert.ErrorIs(t, err, ErrAccessDenied)

	env.grantTicket(t, "2", addrA)

	conn, _ := env.join(t, "2", addrA)
	assert.Equal(t, protocol.TypeRoomSnapshot, conn.types()[0])
}

func TestJoinRoomFull(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MembersLimit = 1 })

	env.join(t, "1", addrA)

	_, err := env.service.JoinRoom(context.Background(), &JoinRoomParams{RoomId: "1", Address: addrB, Conn: &fakeConn{}})
	assert.ErrorIs(t, err, ErrRoomFull)

	// the same member reconnecting is not a new seat
	_, resp := env.join(t, "1", addrA)
	assert.True(t, resp.Rejoined)
}

func TestRejoinReplacesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	oldConn, _ := env.join(t, "1", addrA)
	connB, _ := env.join(t, "1", addrB)
	connB.reset()

	newConn, resp := env.join(t, "1", addrA)
	assert.True(t, resp.Rejoined)
	assert.True(t, oldConn.isClosed())

	left := oldConn.ofType(protocol.TypeLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "replaced", left[0].Payload.(protocol.LeftRoom).Reason)

	assert.Equal(t, []string{protocol.TypeRoomSnapshot}, newConn.types())
	assert.Empty(t, connB.all(), "a reconnect is invisible to other members")

	// the stale connection's disconnect must not evict the member
	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "1", MemberId: resp.MemberId, Conn: oldConn}))
	room, err := env.service.GetRoom(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, room.ViewerCount)
}

func TestAnonymousAuthTokenReclaimsIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	conn := &fakeConn{}
	first, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "1", Conn: conn})
	require.NoError(t, err)
	assert.Contains(t, first.MemberId, "anon-")

	snap := conn.all()[0].Payload.(protocol.RoomSnapshot)
	assert.Contains(t, snap.Members[0].Identity, "Anonymous#")

	again, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "1", AuthToken: first.AuthToken, Conn: &fakeConn{}})
	require.NoError(t, err)
	assert.Equal(t, first.MemberId, again.MemberId)
	assert.True(t, again.Rejoined)

	// a token from another room or a forged one gives a fresh identity
	other, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "3", AuthToken: first.AuthToken, Conn: &fakeConn{}})
	require.NoError(t, err)
	assert.NotEqual(t, first.MemberId, other.MemberId)

	forged, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "1", AuthToken: "not-a-token", Conn: &fakeConn{}})
	require.NoError(t, err)
	assert.NotEqual(t, first.MemberId, forged.MemberId)
}

func TestWalletAuthTokenRestoresTicketAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.grantTicket(t, "2", addrA)

	_, resp := env.join(t, "2", addrA)

	again, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "2", AuthToken: resp.AuthToken, Conn: &fakeConn{}})
	require.NoError(t, err)
	assert.Equal(t, resp.MemberId, again.MemberId)
}

func TestLeaveRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	connA, respA := env.join(t, "1", addrA)
	_, respB := env.join(t, "1", addrB)
	connA.reset()

	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "1", MemberId: respB.MemberId}))

	require.Equal(t, []string{protocol.TypeMembershipChanged, protocol.TypeChatMessage}, connA.types())
	changed := connA.all()[0].Payload.(protocol.MembershipChanged)
	assert.Equal(t, protocol.MembershipLeft, changed.Action)
	assert.Equal(t, 1, changed.ViewerCount)
	assert.Equal(t, "0x8617...070D left the room", connA.all()[1].Payload.(protocol.ChatMessage).Text)

	// idempotent
	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "1", MemberId: respB.MemberId}))
	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "3", MemberId: respA.MemberId}))
	assert.Len(t, connA.all(), 2)
}

func TestConcurrentJoinLeaveViewerCount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	watcher, _ := env.join(t, "1", addrA)
	watcher.reset()

	const workers = 40
	conns := make([]*fakeConn, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn := &fakeConn{}
			conns[i] = conn

			resp, err := env.service.JoinRoom(ctx, &JoinRoomParams{RoomId: "1", Conn: conn})
			if !assert.NoError(t, err) || i%2 == 0 {
				return
			}

			assert.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{
				RoomId:   "1",
				MemberId: resp.MemberId,
				Conn:     conn,
			}))
		}()
	}
	wg.Wait()

	r := env.service.lookupRoom("1")
	require.NotNil(t, r)
	r.mu.Lock()
	n := len(r.members)
	r.mu.Unlock()
	assert.Equal(t, 1+workers/2, n)

	lastCount := func(conn *fakeConn) int {
		changes := conn.ofType(protocol.TypeMembershipChanged)
		require.NotEmpty(t, changes)
		return changes[len(changes)-1].Payload.(protocol.MembershipChanged).ViewerCount
	}

	assert.Equal(t, n, lastCount(watcher))
	for i, conn := range conns {
		if i%2 == 0 {
			assert.Equal(t, n, lastCount(conn), "conn %d", i)
		}
	}

	// the watcher saw every change, each one step away from the previous
	changes := watcher.ofType(protocol.TypeMembershipChanged)
	require.Len(t, changes, workers+workers/2)

	count := 1
	for _, ev := range changes {
		changed := ev.Payload.(protocol.MembershipChanged)
		switch changed.Action {
		case protocol.MembershipJoined:
			count++
		case protocol.MembershipLeft:
			count--
		}

		require.Equal(t, count, changed.ViewerCount)
		require.Len(t, changed.Members, changed.ViewerCount)
	}
	assert.Equal(t, n, count)
}

func TestEmptyRoomIsTornDownAfterIdleTimeout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.IdleTimeout = 50 * time.Millisecond })
	ctx := context.Background()

	_, resp := env.join(t, "1", addrA)
	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: resp.MemberId, Type: protocol.IntentSeek, Position: 12})
	require.NoError(t, err)

	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "1", MemberId: resp.MemberId}))

	require.Eventually(t, func() bool {
		return env.service.lookupRoom("1") == nil
	}, time.Second, 10*time.Millisecond)

	closed := env.publisher.roomClosedEvents()
	require.Len(t, closed, 1)
	assert.Equal(t, "1", closed[0].RoomId)

	conn, _ := env.join(t, "1", addrA)
	snap := conn.all()[0].Payload.(protocol.RoomSnapshot)
	assert.Zero(t, snap.Playback.Position, "a torn down room starts over")
}

func TestRejoinBeforeIdleTimeoutKeepsRoom(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.IdleTimeout = 50 * time.Millisecond })
	ctx := context.Background()

	_, resp := env.join(t, "1", addrA)
	_, err := env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "1", SenderId: resp.MemberId, Type: protocol.IntentSeek, Position: 12})
	require.NoError(t, err)
	require.NoError(t, env.service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "1", MemberId: resp.MemberId}))

	conn, _ := env.join(t, "1", addrA)
	time.Sleep(100 * time.Millisecond)

	assert.NotNil(t, env.service.lookupRoom("1"))
	assert.Empty(t, env.publisher.roomClosedEvents())
	snap := conn.all()[0].Payload.(protocol.RoomSnapshot)
	assert.Equal(t, 12.0, snap.Playback.Position)
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.join(t, "3", addrA)
	env.join(t, "3", addrB)

	rooms, err := env.service.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, 0, rooms[0].ViewerCount)
	assert.True(t, rooms[1].RequiresTicket)
	assert.Equal(t, "0.01", rooms[1].TicketPrice)
	assert.Equal(t, 2, rooms[2].ViewerCount)

	_, err = env.service.GetRoom(ctx, "404")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestOperationsRequireMembership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.join(t, "1", addrA)

	_, err := env.service.SendChat(ctx, &SendChatParams{RoomId: "1", SenderId: "stranger", Text: "hi"})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = env.service.ApplyIntent(ctx, &ApplyIntentParams{RoomId: "3", SenderId: "stranger", Type: protocol.IntentPlay})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = env.service.CastVote(ctx, &CastVoteParams{RoomId: "1", SenderId: "stranger", ChoiceId: 1})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x5290...9EE7", shortAddress(addrA))
	assert.Equal(t, "0x1234", shortAddress("0x1234"))
	assert.Equal(t, "Anonymous#abcd", anonymousDisplay("anon-abcdef"))
}
