package events

import (
	"context"

	"github.com/watch2earn/cinema-server/pkg/protocol"
)

const (
	VotingClosedQueue = "cinema.voting.closed"
	RoomClosedQueue   = "cinema.room.closed"
)

type VotingClosedEvent struct {
	RoomId    string           `json:"room_id"`
	SessionId string           `json:"session_id"`
	Trigger   float64          `json:"trigger"`
	Tallies   []protocol.Tally `json:"tallies"`
	Reason    string           `json:"reason"`
	Voters    int              `json:"voters"`
	ClosedAt  int64            `json:"closed_at"`
}

type RoomClosedEvent struct {
	RoomId   string `json:"room_id"`
	OpenedAt int64  `json:"opened_at"`
	ClosedAt int64  `json:"closed_at"`
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishVotingClosed(context.Context, *VotingClosedEvent) {}

func (NopPublisher) PublishRoomClosed(context.Context, *RoomClosedEvent) {}
