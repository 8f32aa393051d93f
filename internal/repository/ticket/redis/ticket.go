package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/watch2earn/cinema-server/internal/repository/ticket"
)

func (r repo) getTicketKey(roomId, address string) string {
	return "ticket:" + roomId + ":" + strings.ToLower(address)
}

func (r repo) getTicketListKey(roomId string) string {
	return "room:" + roomId + ":tickets"
}

func (r repo) GrantTicket(ctx context.Context, params *ticket.GrantTicketParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	address := strings.ToLower(params.Address)
	ticketKey := r.getTicketKey(params.RoomId, address)
	r.hSetStruct(ctx, pipe, ticketKey, ticket.Ticket{
		RoomId:    params.RoomId,
		Address:   address,
		GrantedAt: time.Now().UnixMilli(),
	})
	if params.Expiration > 0 {
		pipe.Expire(ctx, ticketKey, params.Expiration)
	}

	pipe.SAdd(ctx, r.getTicketListKey(params.RoomId), address)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) HasTicket(ctx context.Context, roomId, address string) (bool, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "address", address)
	n, err := r.rc.Exists(ctx, r.getTicketKey(roomId, address)).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return false, err
	}

	return n == 1, nil
}

func (r repo) GetTicket(ctx context.Context, roomId, address string) (ticket.Ticket, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "address", address)
	var t ticket.Ticket
	cmd := r.rc.HGetAll(ctx, r.getTicketKey(roomId, address))
	if err := cmd.Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return ticket.Ticket{}, err
	}

	if len(cmd.Val()) == 0 {
		return ticket.Ticket{}, ticket.ErrTicketNotFound
	}

	if err := cmd.Scan(&t); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return ticket.Ticket{}, err
	}

	return t, nil
}

// ListTickets returns the holders of still valid tickets, pruning expired ones from the room index.
func (r repo) ListTickets(ctx context.Context, roomId string) ([]string, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	listKey := r.getTicketListKey(roomId)
	addresses, err := r.rc.SMembers(ctx, listKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	valid := make([]string, 0, len(addresses))
	for _, address := range addresses {
		ok, err := r.HasTicket(ctx, roomId, address)
		if err != nil {
			return nil, err
		}

		if !ok {
			r.rc.SRem(ctx, listKey, address)
			continue
		}

		valid = append(valid, address)
	}

	return valid, nil
}

func (r repo) RevokeTicket(ctx context.Context, params *ticket.RevokeTicketParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	address := strings.ToLower(params.Address)
	pipe.Del(ctx, r.getTicketKey(params.RoomId, address))
	pipe.SRem(ctx, r.getTicketListKey(params.RoomId), address)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}
