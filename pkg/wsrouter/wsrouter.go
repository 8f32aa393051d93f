package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type ctxKey int

const messageTypeCtxKey ctxKey = iota

// Conn is the read side of a websocket connection.
type Conn interface {
	ReadJSON(v any) error
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[C Conn, T any] func(ctx context.Context, conn C, payload T) error

type Middleware[C Conn] func(next HandlerFunc[C, json.RawMessage]) HandlerFunc[C, json.RawMessage]

// ErrorHandler receives every error returned by a handler or produced while routing.
type ErrorHandler[C Conn] func(ctx context.Context, conn C, messageType string, err error)

type WSRouter[C Conn] struct {
	routes      map[string]HandlerFunc[C, json.RawMessage]
	middlewares []Middleware[C]
	onError     ErrorHandler[C]
}

func New[C Conn]() *WSRouter[C] {
	return &WSRouter[C]{
		routes:  make(map[string]HandlerFunc[C, json.RawMessage]),
		onError: func(context.Context, C, string, error) {},
	}
}

func (r *WSRouter[C]) Use(middlewares ...Middleware[C]) {
	r.middlewares = append(r.middlewares, middlewares...)
}

func (r *WSRouter[C]) OnError(h ErrorHandler[C]) {
	r.onError = h
}

// Handle registers a typed handler. The payload is decoded into T before h is called.
func Handle[C Conn, T any](r *WSRouter[C], messageType string, h HandlerFunc[C, T]) {
	r.routes[messageType] = func(ctx context.Context, conn C, raw json.RawMessage) error {
		var payload T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
			}
		}

		return h(ctx, conn, payload)
	}
}

func GetMessageTypeFromCtx(ctx context.Context) string {
	messageType, ok := ctx.Value(messageTypeCtxKey).(string)
	if !ok {
		return ""
	}

	return messageType
}

// ServeConn reads messages until the connection fails or ctx is done and routes each one.
func (r *WSRouter[C]) ServeConn(ctx context.Context, conn C) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				r.onError(ctx, conn, "", fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error()))
				continue
			}

			return err
		}

		r.dispatch(ctx, conn, &msg)
	}
}

func (r *WSRouter[C]) dispatch(ctx context.Context, conn C, msg *message) {
	ctx = context.WithValue(ctx, messageTypeCtxKey, msg.Type)

	handler, ok := r.routes[msg.Type]
	if !ok {
		r.onError(ctx, conn, msg.Type, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type))
		return
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	if err := handler(ctx, conn, msg.Payload); err != nil {
		r.onError(ctx, conn, msg.Type, err)
	}
}
