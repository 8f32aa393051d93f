package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/watch2earn/cinema-server/internal/repository/events"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

type votingSession struct {
	id       string
	trigger  float64
	options  []protocol.SceneOption
	votes    map[string]int
	tallies  map[int]int
	deadline time.Time
	timer    *time.Timer
}

func (vs *votingSession) hasOption(id int) bool {
	for _, o := range vs.options {
		if o.ID == id {
			return true
		}
	}

	return false
}

func (vs *votingSession) tallyList() []protocol.Tally {
	tallies := make([]protocol.Tally, 0, len(vs.options))
	for _, o := range vs.options {
		tallies = append(tallies, protocol.Tally{
			ID:    o.ID,
			Text:  o.Text,
			Votes: vs.tallies[o.ID],
		})
	}

	return tallies
}

func (vs *votingSession) allVoted(members []*member) bool {
	if len(members) == 0 {
		return false
	}

	for _, m := range members {
		if _, ok := vs.votes[m.id]; !ok {
			return false
		}
	}

	return true
}

func (vs *votingSession) view() protocol.Voting {
	return protocol.Voting{
		SessionID: vs.id,
		Trigger:   vs.trigger,
		Options:   vs.options,
		Tallies:   vs.tallyList(),
		Deadline:  vs.deadline.UnixMilli(),
	}
}

// checkTriggers consumes every crossed trigger and opens a single session for the latest one.
// While a session is open crossed triggers stay pending until it closes.
func (s *service) checkTriggers(r *room, position float64, now time.Time) {
	if r.voting != nil {
		return
	}

	var crossed []float64
	for _, t := range s.cfg.VoteTriggers {
		if t <= position && !r.consumed[t] {
			crossed = append(crossed, t)
		}
	}

	if len(crossed) == 0 {
		return
	}

	for _, t := range crossed {
		r.consumed[t] = true
	}

	s.openVoting(r, crossed[len(crossed)-1], now)
}

func (s *service) openVoting(r *room, trigger float64, now time.Time) {
	vs := &votingSession{
		id:       uuid.NewString(),
		trigger:  trigger,
		options:  r.entry.SceneOptions,
		votes:    make(map[string]int),
		tallies:  make(map[int]int),
		deadline: now.Add(s.cfg.VotingWindow),
	}

	sessionId := vs.id
	vs.timer = time.AfterFunc(s.cfg.VotingWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed || r.voting == nil || r.voting.id != sessionId {
			return
		}

		s.closeVoting(r, protocol.CloseReasonTimeout, time.Now())
	})
	r.voting = vs

	r.broadcast(Event{Type: protocol.TypeVotingOpened, Payload: protocol.VotingOpened{
		SessionID: vs.id,
		Trigger:   vs.trigger,
		Options:   vs.options,
		Tallies:   vs.tallyList(),
		Deadline:  vs.deadline.UnixMilli(),
	}}, "")

	r.logger.Info("voting opened", "session_id", vs.id, "trigger", trigger)
}

// closeVoting publishes the final tallies and re-arms trigger detection.
func (s *service) closeVoting(r *room, reason string, now time.Time) {
	vs := r.voting
	vs.timer.Stop()
	r.voting = nil

	result := &protocol.VotingResult{
		SessionID: vs.id,
		Trigger:   vs.trigger,
		Tallies:   vs.tallyList(),
		Reason:    reason,
		ClosedAt:  now.UnixMilli(),
	}
	r.lastResult = result

	r.broadcast(Event{Type: protocol.TypeVotingClosed, Payload: *result}, "")
	r.logger.Info("voting closed", "session_id", vs.id, "reason", reason, "voters", len(vs.votes))

	s.publisher.PublishVotingClosed(context.Background(), &events.VotingClosedEvent{
		RoomId:    r.id,
		SessionId: vs.id,
		Trigger:   vs.trigger,
		Tallies:   result.Tallies,
		Reason:    reason,
		Voters:    len(vs.votes),
		ClosedAt:  result.ClosedAt,
	})

	s.syncTriggers(r, now, -1)
}

type CastVoteParams struct {
	RoomId   string
	SenderId string
	ChoiceId int
}

type CastVoteResponse struct {
	Tallies []protocol.Tally
	// Closed is set when this vote completed the session.
	Closed bool
}

func (s *service) CastVote(ctx context.Context, params *CastVoteParams) (CastVoteResponse, error) {
	var resp CastVoteResponse
	err := s.withMember(params.RoomId, params.SenderId, func(r *room, m *member) error {
		vs := r.voting
		if vs == nil {
			return ErrNoActiveSession
		}

		if !vs.hasOption(params.ChoiceId) {
			return ErrInvalidChoice
		}

		if _, ok := vs.votes[m.id]; ok {
			return ErrAlreadyVoted
		}

		vs.votes[m.id] = params.ChoiceId
		vs.tallies[params.ChoiceId]++

		resp.Tallies = vs.tallyList()
		r.broadcast(Event{Type: protocol.TypeVoteTallyUpdated, Payload: protocol.VoteTallyUpdated{
			SessionID: vs.id,
			Tallies:   resp.Tallies,
		}}, "")

		if vs.allVoted(r.members) {
			s.closeVoting(r, protocol.CloseReasonAllVoted, time.Now())
			resp.Closed = true
		}

		return nil
	})
	if err != nil {
		s.logger.InfoContext(ctx, "vote rejected", "room_id", params.RoomId, "member_id", params.SenderId, "error", err)
		return CastVoteResponse{}, err
	}

	return resp, nil
}
