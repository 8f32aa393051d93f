package ticket

import (
	"errors"
	"time"
)

var ErrTicketNotFound = errors.New("ticket not found")

type Ticket struct {
	RoomId    string `redis:"room_id"`
	Address   string `redis:"address"`
	GrantedAt int64  `redis:"granted_at"`
}

type GrantTicketParams struct {
	RoomId  string
	Address string
	// Zero means the ticket never expires.
	Expiration time.Duration
}

type RevokeTicketParams struct {
	RoomId  string
	Address string
}
