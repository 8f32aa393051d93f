package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/watch2earn/cinema-server/internal/repository/catalog"
	catalogInmemory "github.com/watch2earn/cinema-server/internal/repository/catalog/inmemory"
	"github.com/watch2earn/cinema-server/internal/repository/events"
	"github.com/watch2earn/cinema-server/internal/repository/ticket"
	ticketRedis "github.com/watch2earn/cinema-server/internal/repository/ticket/redis"
)

const (
	addrA = "0x52908400098527886E0F7030069857D2E4169EE7"
	addrB = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
)

var errConnClosed = errors.New("conn closed")

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *fakeConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) types() []string {
	events := c.all()
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}

	return types
}

func (c *fakeConn) ofType(t string) []Event {
	var out []Event
	for _, ev := range c.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}

	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = nil
}

type fakePublisher struct {
	mu           sync.Mutex
	votingClosed []*events.VotingClosedEvent
	roomClosed   []*events.RoomClosedEvent
}

func (p *fakePublisher) PublishVotingClosed(_ context.Context, ev *events.VotingClosedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.votingClosed = append(p.votingClosed, ev)
}

func (p *fakePublisher) PublishRoomClosed(_ context.Context, ev *events.RoomClosedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.roomClosed = append(p.roomClosed, ev)
}

func (p *fakePublisher) votingClosedEvents() []*events.VotingClosedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*events.VotingClosedEvent(nil), p.votingClosed...)
}

func (p *fakePublisher) roomClosedEvents() []*events.RoomClosedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*events.RoomClosedEvent(nil), p.roomClosed...)
}

type testEnv struct {
	service   *service
	publisher *fakePublisher
	tickets   interface {
		GrantTicket(context.Context, *ticket.GrantTicketParams) error
	}
}

func newTestEnv(t *testing.T, configure func(*Config)) *testEnv {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	catalogRepo, err := catalogInmemory.NewRepo(catalog.DefaultEntries())
	require.NoError(t, err)

	ticketRepo := ticketRedis.NewRepo(rc, slog.Default())
	publisher := &fakePublisher{}

	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	if configure != nil {
		configure(&cfg)
	}

	svc := NewService(catalogRepo, ticketRepo, publisher, &cfg, slog.Default())
	t.Cleanup(svc.Shutdown)

	return &testEnv{
		service:   svc,
		publisher: publisher,
		tickets:   ticketRepo,
	}
}

func (e *testEnv) grantTicket(t *testing.T, roomId, address string) {
	t.Helper()
	require.NoError(t, e.tickets.GrantTicket(context.Background(), &ticket.GrantTicketParams{
		RoomId:  roomId,
		Address: address,
	}))
}

func (e *testEnv) join(t *testing.T, roomId, address string) (*fakeConn, JoinRoomResponse) {
	t.Helper()

	conn := &fakeConn{}
	resp, err := e.service.JoinRoom(context.Background(), &JoinRoomParams{
		RoomId:  roomId,
		Address: address,
		Conn:    conn,
	})
	require.NoError(t, err)

	return conn, resp
}

func (c *fakeConn) ofTypes(types ...string) []string {
	var out []string
	for _, ev := range c.all() {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev.Type)
				break
			}
		}
	}

	return out
}
