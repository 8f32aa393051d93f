package controller

import (
	"context"
	"errors"

	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/protocol"
	"github.com/watch2earn/cinema-server/pkg/wsrouter"
)

var (
	ErrValidationError = errors.New("validation error")
	ErrNotJoined       = errors.New("not joined to a room")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrAccessDenied):
		return protocol.CodeAccessDenied
	case errors.Is(err, room.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, room.ErrAlreadyVoted):
		return protocol.CodeAlreadyVoted
	case errors.Is(err, room.ErrInvalidChoice):
		return protocol.CodeInvalidChoice
	case errors.Is(err, room.ErrNoActiveSession):
		return protocol.CodeNoActiveSession
	case errors.Is(err, room.ErrMessageTooLong):
		return protocol.CodeMessageTooLong
	case errors.Is(err, ErrNotJoined), errors.Is(err, room.ErrMemberNotFound):
		return protocol.CodeNotJoined
	case errors.Is(err, ErrValidationError),
		errors.Is(err, room.ErrInvalidIntent),
		errors.Is(err, room.ErrInvalidPosition),
		errors.Is(err, wsrouter.ErrInvalidPayload):
		return protocol.CodeValidationError
	case errors.Is(err, wsrouter.ErrUnknownMessageType):
		return protocol.CodeUnknownMessageType
	default:
		return protocol.CodeInternalError
	}
}

// handleWSError reports a failed request to the originating connection only.
func (c controller) handleWSError(ctx context.Context, conn *wsConn, messageType string, err error) {
	code := errorCode(err)
	message := err.Error()

	if code == protocol.CodeInternalError {
		c.logger.ErrorContext(ctx, "websocket request failed", "error", err)
		message = "internal error"
	} else {
		c.logger.InfoContext(ctx, "websocket request rejected", "code", code, "error", err)
	}

	if err := conn.write(protocol.TypeError, protocol.Error{
		Code:        code,
		Message:     message,
		RequestType: messageType,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}
