package room

import (
	"context"
	"math"
	"time"

	"github.com/watch2earn/cinema-server/pkg/protocol"
)

type player struct {
	status    string
	position  float64
	updatedAt time.Time
	seq       uint64
}

// current projects the position forward while playing.
func (p player) current(now time.Time) float64 {
	if p.status != protocol.StatusPlaying {
		return p.position
	}

	return p.position + now.Sub(p.updatedAt).Seconds()
}

func (p player) view(now time.Time) protocol.Playback {
	return protocol.Playback{
		Position:  p.current(now),
		Status:    p.status,
		Seq:       p.seq,
		UpdatedAt: now.UnixMilli(),
	}
}

func validPosition(position float64) bool {
	return position >= 0 && !math.IsNaN(position) && !math.IsInf(position, 0)
}

type ApplyIntentParams struct {
	RoomId   string
	SenderId string
	Type     string
	Position float64
}

type ApplyIntentResponse struct {
	// Forwarded is false when a seek fell within tolerance and was dropped.
	Forwarded bool
	Playback  protocol.Playback
}

// ApplyIntent applies a play, pause or seek and relays it to every member except the sender.
func (s *service) ApplyIntent(ctx context.Context, params *ApplyIntentParams) (ApplyIntentResponse, error) {
	if !validPosition(params.Position) {
		return ApplyIntentResponse{}, ErrInvalidPosition
	}

	switch params.Type {
	case protocol.IntentPlay, protocol.IntentPause, protocol.IntentSeek:
	default:
		return ApplyIntentResponse{}, ErrInvalidIntent
	}

	var resp ApplyIntentResponse
	err := s.withMember(params.RoomId, params.SenderId, func(r *room, m *member) error {
		now := time.Now()

		switch params.Type {
		case protocol.IntentPlay:
			r.player.status = protocol.StatusPlaying
		case protocol.IntentPause:
			r.player.status = protocol.StatusPaused
		case protocol.IntentSeek:
			if math.Abs(params.Position-r.player.current(now)) <= s.cfg.SeekTolerance {
				resp = ApplyIntentResponse{Playback: r.player.view(now)}
				return nil
			}
		}

		r.player.position = params.Position
		r.player.updatedAt = now
		r.player.seq++

		pb := r.player.view(now)
		r.broadcast(Event{Type: protocol.TypePlaybackUpdated, Payload: protocol.PlaybackUpdated{
			Playback: pb,
			By:       m.id,
		}}, m.id)

		s.syncTriggers(r, now, -1)

		resp = ApplyIntentResponse{Forwarded: true, Playback: pb}
		return nil
	})
	if err != nil {
		return ApplyIntentResponse{}, err
	}

	s.logger.DebugContext(ctx, "playback intent", "room_id", params.RoomId, "type", params.Type, "position", params.Position, "forwarded", resp.Forwarded)
	return resp, nil
}

type ReportPositionParams struct {
	RoomId   string
	SenderId string
	Position float64
}

// ReportPosition feeds a member's local position into trigger detection and
// privately resyncs members that drifted too far from the room clock. Drifted
// reports are left out of trigger detection.
func (s *service) ReportPosition(ctx context.Context, params *ReportPositionParams) error {
	if !validPosition(params.Position) {
		return ErrInvalidPosition
	}

	return s.withMember(params.RoomId, params.SenderId, func(r *room, m *member) error {
		now := time.Now()
		live := r.player.current(now)

		reported := params.Position
		if s.cfg.ResyncThreshold > 0 && math.Abs(params.Position-live) > s.cfg.ResyncThreshold {
			// a drifted client does not move the room past triggers
			reported = -1

			if now.Sub(m.resyncAt) >= s.cfg.ResyncCooldown {
				m.resyncAt = now
				r.sendTo(m, Event{Type: protocol.TypePlaybackUpdated, Payload: protocol.PlaybackUpdated{
					Playback: r.player.view(now),
					Resync:   true,
				}})
				s.logger.DebugContext(ctx, "resync sent", "room_id", r.id, "member_id", m.id, "reported", params.Position, "live", live)
			}
		}

		s.syncTriggers(r, now, reported)
		return nil
	})
}

// syncTriggers opens voting for crossed triggers and arms a timer for the next one.
// reported < 0 means only the room clock is considered. Must be called with r.mu held.
func (s *service) syncTriggers(r *room, now time.Time, reported float64) {
	r.stopTriggerTimer()

	if r.closed || len(r.members) == 0 {
		return
	}

	position := max(r.player.current(now), reported)
	s.checkTriggers(r, position, now)

	if r.voting != nil || r.player.status != protocol.StatusPlaying {
		return
	}

	next, ok := s.nextTrigger(r, position)
	if !ok {
		return
	}

	gen := r.triggerGen
	delay := time.Duration((next - position) * float64(time.Second))
	r.triggerTimer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.triggerGen != gen {
			return
		}
		r.triggerTimer = nil

		s.syncTriggers(r, time.Now(), next)
	})
}

func (s *service) nextTrigger(r *room, position float64) (float64, bool) {
	for _, t := range s.cfg.VoteTriggers {
		if t > position && !r.consumed[t] {
			return t, true
		}
	}

	return 0, false
}
