package room

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/watch2earn/cinema-server/internal/repository/catalog"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

type member struct {
	id       string
	identity string
	address  string
	joinedAt time.Time
	conn     Conn
	resyncAt time.Time
}

func (m *member) view() protocol.Member {
	return protocol.Member{
		ID:       m.id,
		Identity: m.identity,
		Address:  m.address,
		JoinedAt: m.joinedAt.UnixMilli(),
	}
}

// room is a live screening. Every field is guarded by mu.
type room struct {
	mu       sync.Mutex
	id       string
	entry    catalog.Entry
	logger   *slog.Logger
	openedAt time.Time

	members []*member
	player  player

	voting     *votingSession
	consumed   map[float64]bool
	lastResult *protocol.VotingResult

	chatSeq uint64

	idleTimer    *time.Timer
	idleGen      uint64
	triggerTimer *time.Timer
	triggerGen   uint64

	closed bool
}

func newRoom(entry catalog.Entry, logger *slog.Logger) *room {
	if len(entry.SceneOptions) == 0 {
		entry.SceneOptions = catalog.DefaultSceneOptions
	}

	now := time.Now()
	return &room{
		id:       entry.Id,
		entry:    entry,
		logger:   logger,
		openedAt: now,
		player: player{
			status:    protocol.StatusPaused,
			updatedAt: now,
		},
		consumed: make(map[float64]bool),
	}
}

func (r *room) findMember(id string) *member {
	for _, m := range r.members {
		if m.id == id {
			return m
		}
	}

	return nil
}

func (r *room) removeMember(id string) *member {
	for i, m := range r.members {
		if m.id == id {
			r.members = slices.Delete(r.members, i, i+1)
			return m
		}
	}

	return nil
}

func (r *room) memberViews() []protocol.Member {
	members := make([]protocol.Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m.view())
	}

	return members
}

func (r *room) sendTo(m *member, ev Event) {
	if err := m.conn.Send(ev); err != nil {
		r.logger.Debug("failed to send event", "member_id", m.id, "type", ev.Type, "error", err)
	}
}

// broadcast delivers ev to every member except exceptId.
func (r *room) broadcast(ev Event, exceptId string) {
	for _, m := range r.members {
		if m.id == exceptId {
			continue
		}

		r.sendTo(m, ev)
	}
}

func (r *room) snapshot(m *member, authToken string, now time.Time) protocol.RoomSnapshot {
	snap := protocol.RoomSnapshot{
		RoomID:      r.id,
		Title:       r.entry.Title,
		Description: r.entry.Description,
		VideoURL:    r.entry.VideoURL,
		TicketPrice: r.entry.TicketPrice,
		YouID:       m.id,
		AuthToken:   authToken,
		Members:     r.memberViews(),
		ViewerCount: len(r.members),
		Playback:    r.player.view(now),
		LastResult:  r.lastResult,
	}

	if r.voting != nil {
		v := r.voting.view()
		_, v.HasVoted = r.voting.votes[m.id]
		snap.Voting = &v
	}

	return snap
}

func (r *room) stopIdleTimer() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
	r.idleGen++
}

func (r *room) stopTriggerTimer() {
	if r.triggerTimer != nil {
		r.triggerTimer.Stop()
		r.triggerTimer = nil
	}
	r.triggerGen++
}

func (r *room) close() {
	r.closed = true
	r.stopIdleTimer()
	r.stopTriggerTimer()
	if r.voting != nil {
		r.voting.timer.Stop()
		r.voting = nil
	}
}
