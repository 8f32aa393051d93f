package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/watch2earn/cinema-server/internal/repository/catalog"
	"github.com/watch2earn/cinema-server/internal/repository/events"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrRoomFull         = errors.New("room is full")
	ErrMemberNotFound   = errors.New("member not found")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrInvalidChoice    = errors.New("invalid choice")
	ErrNoActiveSession  = errors.New("no active voting session")
	ErrInvalidIntent    = errors.New("invalid playback intent")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrMessageTooLong   = errors.New("message too long")
	ErrInvalidAuthToken = errors.New("invalid auth token")
)

const maxChatMessageLength = 4000

type iCatalogRepo interface {
	GetEntry(ctx context.Context, id string) (catalog.Entry, error)
	ListEntries(ctx context.Context) ([]catalog.Entry, error)
}

type iTicketRepo interface {
	HasTicket(ctx context.Context, roomId, address string) (bool, error)
}

type iEventPublisher interface {
	PublishVotingClosed(context.Context, *events.VotingClosedEvent)
	PublishRoomClosed(context.Context, *events.RoomClosedEvent)
}

// Conn is the outbound half of a member connection. Send must not block.
type Conn interface {
	Send(Event) error
	Close() error
}

type Event struct {
	Type    string
	Payload any
}

type Config struct {
	Secret       string
	MembersLimit int
	AuthTokenTTL time.Duration
	// Empty rooms are torn down after IdleTimeout.
	IdleTimeout  time.Duration
	VotingWindow time.Duration
	VoteTriggers []float64
	// Seeks closer than SeekTolerance seconds to the live position are not rebroadcast.
	SeekTolerance float64
	// ResyncThreshold <= 0 disables private resync corrections.
	ResyncThreshold float64
	ResyncCooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MembersLimit:    100,
		AuthTokenTTL:    24 * time.Hour,
		IdleTimeout:     30 * time.Minute,
		VotingWindow:    20 * time.Second,
		VoteTriggers:    []float64{30, 90, 180},
		SeekTolerance:   1,
		ResyncThreshold: 5,
		ResyncCooldown:  10 * time.Second,
	}
}

type service struct {
	catalogRepo iCatalogRepo
	ticketRepo  iTicketRepo
	publisher   iEventPublisher
	cfg         Config
	logger      *slog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

func NewService(catalogRepo iCatalogRepo, ticketRepo iTicketRepo, publisher iEventPublisher, cfg *Config, logger *slog.Logger) *service {
	c := *cfg
	c.VoteTriggers = slices.Clone(cfg.VoteTriggers)
	slices.Sort(c.VoteTriggers)
	c.VoteTriggers = slices.Compact(c.VoteTriggers)

	return &service{
		catalogRepo: catalogRepo,
		ticketRepo:  ticketRepo,
		publisher:   publisher,
		cfg:         c,
		logger:      logger,
		rooms:       make(map[string]*room),
	}
}

// getOrCreateRoom returns the live room for entry, creating it on first use.
func (s *service) getOrCreateRoom(entry catalog.Entry) *room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[entry.Id]; ok {
		return r
	}

	r := newRoom(entry, s.logger.With("room_id", entry.Id))
	s.rooms[entry.Id] = r
	s.logger.Info("room opened", "room_id", entry.Id)

	return r
}

func (s *service) lookupRoom(roomId string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rooms[roomId]
}

// withMember runs fn under the room lock after checking that memberId belongs to the room.
func (s *service) withMember(roomId, memberId string, fn func(r *room, m *member) error) error {
	r := s.lookupRoom(roomId)
	if r == nil {
		return ErrMemberNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrMemberNotFound
	}

	m := r.findMember(memberId)
	if m == nil {
		return ErrMemberNotFound
	}

	return fn(r, m)
}

func (s *service) scheduleTeardown(r *room) {
	r.stopIdleTimer()
	gen := r.idleGen
	r.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.teardown(r, gen)
	})
}

func (s *service) teardown(r *room, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.idleGen != gen || len(r.members) > 0 {
		return
	}

	r.close()
	if s.rooms[r.id] == r {
		delete(s.rooms, r.id)
	}

	r.logger.Info("room closed")
	s.publisher.PublishRoomClosed(context.Background(), &events.RoomClosedEvent{
		RoomId:   r.id,
		OpenedAt: r.openedAt.UnixMilli(),
		ClosedAt: time.Now().UnixMilli(),
	})
}

func (s *service) roomSummary(entry catalog.Entry) protocol.RoomSummary {
	viewers := 0
	if r := s.lookupRoom(entry.Id); r != nil {
		r.mu.Lock()
		viewers = len(r.members)
		r.mu.Unlock()
	}

	return protocol.RoomSummary{
		ID:             entry.Id,
		Title:          entry.Title,
		Description:    entry.Description,
		VideoURL:       entry.VideoURL,
		TicketPrice:    entry.TicketPrice,
		RequiresTicket: entry.RequiresTicket(),
		ViewerCount:    viewers,
	}
}

func (s *service) ListRooms(ctx context.Context) ([]protocol.RoomSummary, error) {
	entries, err := s.catalogRepo.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	rooms := make([]protocol.RoomSummary, 0, len(entries))
	for _, entry := range entries {
		rooms = append(rooms, s.roomSummary(entry))
	}

	return rooms, nil
}

func (s *service) GetRoom(ctx context.Context, roomId string) (protocol.RoomSummary, error) {
	entry, err := s.getEntry(ctx, roomId)
	if err != nil {
		return protocol.RoomSummary{}, err
	}

	return s.roomSummary(entry), nil
}

func (s *service) getEntry(ctx context.Context, roomId string) (catalog.Entry, error) {
	entry, err := s.catalogRepo.GetEntry(ctx, roomId)
	if err != nil {
		if errors.Is(err, catalog.ErrEntryNotFound) {
			return catalog.Entry{}, ErrRoomNotFound
		}

		return catalog.Entry{}, fmt.Errorf("failed to get catalog entry: %w", err)
	}

	return entry, nil
}

// Shutdown stops every timer and forgets all rooms. Connections are closed by the caller.
func (s *service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rooms {
		r.mu.Lock()
		r.close()
		r.mu.Unlock()
		delete(s.rooms, id)
	}
}
