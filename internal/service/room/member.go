package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}

	return address[:6] + "..." + address[len(address)-4:]
}

type identity struct {
	id      string
	display string
	address string
}

// resolveIdentity picks the member id: the wallet address when given,
// otherwise the id carried by a valid auth token for this room, otherwise a fresh anonymous id.
func (s *service) resolveIdentity(ctx context.Context, params *JoinRoomParams) identity {
	if params.Address != "" {
		return identity{
			id:      strings.ToLower(params.Address),
			display: shortAddress(params.Address),
			address: params.Address,
		}
	}

	if params.AuthToken != "" {
		claims, err := s.parseAuthToken(params.AuthToken)
		switch {
		case err != nil:
			s.logger.InfoContext(ctx, "ignoring auth token", "error", err)
		case claims.RoomId != params.RoomId:
			s.logger.InfoContext(ctx, "ignoring auth token issued for another room", "token_room_id", claims.RoomId)
		case claims.Address != "":
			return identity{
				id:      strings.ToLower(claims.Address),
				display: shortAddress(claims.Address),
				address: claims.Address,
			}
		default:
			return identity{
				id:      claims.MemberId,
				display: anonymousDisplay(claims.MemberId),
			}
		}
	}

	id := "anon-" + uuid.NewString()
	return identity{
		id:      id,
		display: anonymousDisplay(id),
	}
}

func anonymousDisplay(id string) string {
	suffix := strings.TrimPrefix(id, "anon-")
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}

	return "Anonymous#" + suffix
}

type JoinRoomParams struct {
	RoomId    string
	Address   string
	AuthToken string
	Conn      Conn
}

type JoinRoomResponse struct {
	MemberId  string
	AuthToken string
	// Rejoined is set when the member was already present and only its connection was replaced.
	Rejoined bool
}

// JoinRoom admits a member and sends it a ROOM_SNAPSHOT before any other event.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	entry, err := s.getEntry(ctx, params.RoomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	ident := s.resolveIdentity(ctx, params)

	if entry.RequiresTicket() {
		if ident.address == "" {
			return JoinRoomResponse{}, ErrAccessDenied
		}

		ok, err := s.ticketRepo.HasTicket(ctx, entry.Id, ident.address)
		if err != nil {
			return JoinRoomResponse{}, fmt.Errorf("failed to check ticket: %w", err)
		}

		if !ok {
			s.logger.InfoContext(ctx, "ticket not found", "room_id", entry.Id, "member_id", ident.id)
			return JoinRoomResponse{}, ErrAccessDenied
		}
	}

	for {
		r := s.getOrCreateRoom(entry)
		resp, retry, err := s.joinRoom(ctx, r, ident, params.Conn)
		if retry {
			// lost the race with an idle teardown
			continue
		}

		return resp, err
	}
}

func (s *service) joinRoom(ctx context.Context, r *room, ident identity, conn Conn) (JoinRoomResponse, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinRoomResponse{}, true, nil
	}

	now := time.Now()

	if m := r.findMember(ident.id); m != nil {
		old := m.conn
		m.conn = conn
		if old != nil && old != conn {
			if err := old.Send(Event{Type: protocol.TypeLeftRoom, Payload: protocol.LeftRoom{RoomID: r.id, Reason: "replaced"}}); err != nil {
				s.logger.DebugContext(ctx, "failed to notify replaced connection", "error", err)
			}
			old.Close()
		}

		token, err := s.generateAuthToken(m, r.id, now)
		if err != nil {
			return JoinRoomResponse{}, false, fmt.Errorf("failed to generate auth token: %w", err)
		}

		r.sendTo(m, Event{Type: protocol.TypeRoomSnapshot, Payload: r.snapshot(m, token, now)})
		s.logger.InfoContext(ctx, "member reconnected", "room_id", r.id, "member_id", m.id)

		return JoinRoomResponse{MemberId: m.id, AuthToken: token, Rejoined: true}, false, nil
	}

	if s.cfg.MembersLimit > 0 && len(r.members) >= s.cfg.MembersLimit {
		return JoinRoomResponse{}, false, ErrRoomFull
	}

	m := &member{
		id:       ident.id,
		identity: ident.display,
		address:  ident.address,
		joinedAt: now,
		conn:     conn,
	}

	token, err := s.generateAuthToken(m, r.id, now)
	if err != nil {
		return JoinRoomResponse{}, false, fmt.Errorf("failed to generate auth token: %w", err)
	}

	r.members = append(r.members, m)
	r.stopIdleTimer()

	r.sendTo(m, Event{Type: protocol.TypeRoomSnapshot, Payload: r.snapshot(m, token, now)})
	r.broadcast(Event{Type: protocol.TypeMembershipChanged, Payload: protocol.MembershipChanged{
		Member:      m.view(),
		Action:      protocol.MembershipJoined,
		ViewerCount: len(r.members),
		Members:     r.memberViews(),
	}}, "")
	s.broadcastSystemMessage(r, m.identity+" joined the room", now)

	// a room that kept playing while empty may have crossed triggers
	s.syncTriggers(r, now, -1)

	s.logger.InfoContext(ctx, "member joined", "room_id", r.id, "member_id", m.id, "viewers", len(r.members))

	return JoinRoomResponse{MemberId: m.id, AuthToken: token}, false, nil
}

type LeaveRoomParams struct {
	RoomId   string
	MemberId string
	// When set, the leave only applies if Conn is still the member's connection.
	Conn Conn
}

// LeaveRoom removes a member. Leaving twice, or leaving a room never joined, is a no-op.
func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	r := s.lookupRoom(params.RoomId)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	m := r.findMember(params.MemberId)
	if m == nil {
		return nil
	}

	if params.Conn != nil && m.conn != params.Conn {
		return nil
	}

	now := time.Now()
	r.removeMember(m.id)

	r.broadcast(Event{Type: protocol.TypeMembershipChanged, Payload: protocol.MembershipChanged{
		Member:      m.view(),
		Action:      protocol.MembershipLeft,
		ViewerCount: len(r.members),
		Members:     r.memberViews(),
	}}, "")
	s.broadcastSystemMessage(r, m.identity+" left the room", now)

	s.logger.InfoContext(ctx, "member left", "room_id", r.id, "member_id", m.id, "viewers", len(r.members))

	if len(r.members) == 0 {
		if r.voting != nil {
			s.closeVoting(r, protocol.CloseReasonRoomEmpty, now)
		}

		r.stopTriggerTimer()
		s.scheduleTeardown(r)
		return nil
	}

	if r.voting != nil && r.voting.allVoted(r.members) {
		s.closeVoting(r, protocol.CloseReasonAllVoted, now)
	}

	return nil
}
