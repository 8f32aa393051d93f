package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/watch2earn/cinema-server/pkg/ctxlogger"
	"github.com/watch2earn/cinema-server/pkg/wsrouter"
)

func (c controller) wsRequestIdMw() wsrouter.Middleware[*wsConn] {
	return func(next wsrouter.HandlerFunc[*wsConn, json.RawMessage]) wsrouter.HandlerFunc[*wsConn, json.RawMessage] {
		return func(ctx context.Context, conn *wsConn, payload json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware[*wsConn] {
	return func(next wsrouter.HandlerFunc[*wsConn, json.RawMessage]) wsrouter.HandlerFunc[*wsConn, json.RawMessage] {
		return func(ctx context.Context, conn *wsConn, payload json.RawMessage) error {
			roomId, memberId := conn.membership()
			ctx = ctxlogger.AppendCtx(ctx,
				slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)),
				slog.String("room_id", roomId),
				slog.String("member_id", memberId),
			)
			c.logger.DebugContext(ctx, "websocket message received", "payload_bytes", len(payload))

			start := time.Now()
			err := next(ctx, conn, payload)

			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"error", err,
			)

			return err
		}
	}
}
