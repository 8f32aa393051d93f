package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/ctxlogger"
	"github.com/watch2earn/cinema-server/pkg/protocol"
	"github.com/watch2earn/cinema-server/pkg/validator"
)

const maxMessageSize = 32 << 10

type EmptyStruct struct{}

func (es *EmptyStruct) UnmarshalJSON([]byte) error {
	return nil
}

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	wc := newWSConn(uuid.NewString(), conn, &c.cfg, c.logger)
	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("conn_id", wc.id))

	if err := c.connRepo.Add(wc.id, wc); err != nil {
		c.logger.WarnContext(ctx, "failed to register connection", "error", err)
		conn.Close()
		return
	}
	defer c.connRepo.Remove(wc.id)

	go wc.writePump()
	defer wc.Close()
	defer c.leaveCurrentRoom(ctx, wc)

	pongWait := 2 * c.cfg.PingPeriod
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.logger.InfoContext(ctx, "websocket connected", "remote_addr", r.RemoteAddr)
	if err := c.wsmux.ServeConn(ctx, wc); err != nil {
		c.logger.InfoContext(ctx, "websocket closed", "error", err)
	}
}

func (c controller) leaveCurrentRoom(ctx context.Context, conn *wsConn) {
	roomId, memberId := conn.membership()
	if roomId == "" {
		return
	}

	if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId:   roomId,
		MemberId: memberId,
		Conn:     conn,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to leave room", "error", err)
	}
	conn.setMembership("", "")
}

func (c controller) mustMembership(conn *wsConn) (string, string, error) {
	roomId, memberId := conn.membership()
	if roomId == "" {
		return "", "", ErrNotJoined
	}

	return roomId, memberId, nil
}

func (c controller) validateInput(input any) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %w", ErrValidationError, validator.Error(validationErrors))
	}

	return nil
}

func (c controller) handleAlive(ctx context.Context, conn *wsConn, _ EmptyStruct) error {
	return nil
}

func (c controller) handleJoinRoom(ctx context.Context, conn *wsConn, input protocol.JoinRoomInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	prevRoomId, prevMemberId := conn.membership()

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId:    input.RoomID,
		Address:   input.Address,
		AuthToken: input.AuthToken,
		Conn:      conn,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	// switching rooms or identities drops the previous membership
	if prevRoomId != "" && (prevRoomId != input.RoomID || prevMemberId != joinRoomResp.MemberId) {
		if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
			RoomId:   prevRoomId,
			MemberId: prevMemberId,
			Conn:     conn,
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to leave previous room", "error", err)
		}
	}

	conn.setMembership(input.RoomID, joinRoomResp.MemberId)
	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, conn *wsConn, _ EmptyStruct) error {
	roomId, memberId, err := c.mustMembership(conn)
	if err != nil {
		return err
	}

	if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId:   roomId,
		MemberId: memberId,
		Conn:     conn,
	}); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	conn.setMembership("", "")

	return conn.write(protocol.TypeLeftRoom, protocol.LeftRoom{
		RoomID: roomId,
		Reason: "left",
	})
}

func (c controller) handleSendChat(ctx context.Context, conn *wsConn, input protocol.SendChatInput) error {
	roomId, memberId, err := c.mustMembership(conn)
	if err != nil {
		return err
	}

	if _, err := c.roomService.SendChat(ctx, &room.SendChatParams{
		RoomId:   roomId,
		SenderId: memberId,
		Text:     input.Text,
	}); err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	return nil
}

func (c controller) handlePlaybackIntent(ctx context.Context, conn *wsConn, input protocol.PlaybackIntentInput) error {
	roomId, memberId, err := c.mustMembership(conn)
	if err != nil {
		return err
	}

	if err := c.validateInput(input); err != nil {
		return err
	}

	if _, err := c.roomService.ApplyIntent(ctx, &room.ApplyIntentParams{
		RoomId:   roomId,
		SenderId: memberId,
		Type:     input.Type,
		Position: input.Position,
	}); err != nil {
		return fmt.Errorf("failed to apply playback intent: %w", err)
	}

	return nil
}

func (c controller) handleReportPosition(ctx context.Context, conn *wsConn, input protocol.ReportPositionInput) error {
	roomId, memberId, err := c.mustMembership(conn)
	if err != nil {
		return err
	}

	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.ReportPosition(ctx, &room.ReportPositionParams{
		RoomId:   roomId,
		SenderId: memberId,
		Position: input.Position,
	}); err != nil {
		return fmt.Errorf("failed to report position: %w", err)
	}

	return nil
}

func (c controller) handleCastVote(ctx context.Context, conn *wsConn, input protocol.CastVoteInput) error {
	roomId, memberId, err := c.mustMembership(conn)
	if err != nil {
		return err
	}

	if _, err := c.roomService.CastVote(ctx, &room.CastVoteParams{
		RoomId:   roomId,
		SenderId: memberId,
		ChoiceId: input.ChoiceID,
	}); err != nil {
		return fmt.Errorf("failed to cast vote: %w", err)
	}

	return nil
}
