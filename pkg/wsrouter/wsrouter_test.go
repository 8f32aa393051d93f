package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	frames []string
}

func (c *fakeConn) ReadJSON(v any) error {
	if len(c.frames) == 0 {
		return io.EOF
	}

	frame := c.frames[0]
	c.frames = c.frames[1:]

	return json.Unmarshal([]byte(frame), v)
}

type chatInput struct {
	Text string `json:"text"`
}

func TestServeConnRoutesTypedPayloads(t *testing.T) {
	mux := New[*fakeConn]()

	var got []string
	Handle(mux, "SEND_CHAT", func(_ context.Context, _ *fakeConn, in chatInput) error {
		got = append(got, in.Text)
		return nil
	})

	conn := &fakeConn{frames: []string{
		`{"type":"SEND_CHAT","payload":{"text":"hi"}}`,
		`{"type":"SEND_CHAT","payload":{"text":"there"}}`,
	}}

	err := mux.ServeConn(context.Background(), conn)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"hi", "there"}, got)
}

func TestServeConnReportsErrors(t *testing.T) {
	mux := New[*fakeConn]()
	errBoom := errors.New("boom")

	Handle(mux, "FAIL", func(context.Context, *fakeConn, struct{}) error {
		return errBoom
	})
	Handle(mux, "TYPED", func(context.Context, *fakeConn, chatInput) error {
		return nil
	})

	type reported struct {
		messageType string
		err         error
	}
	var errs []reported
	mux.OnError(func(_ context.Context, _ *fakeConn, messageType string, err error) {
		errs = append(errs, reported{messageType, err})
	})

	conn := &fakeConn{frames: []string{
		`{"type":"NOPE"}`,
		`{"type":"FAIL"}`,
		`{"type":"TYPED","payload":{"text":5}}`,
	}}
	_ = mux.ServeConn(context.Background(), conn)

	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0].err, ErrUnknownMessageType)
	assert.Equal(t, "FAIL", errs[1].messageType)
	assert.ErrorIs(t, errs[1].err, errBoom)
	assert.ErrorIs(t, errs[2].err, ErrInvalidPayload)
}

func TestMiddlewareOrderAndMessageType(t *testing.T) {
	mux := New[*fakeConn]()

	var trace []string
	mw := func(name string) Middleware[*fakeConn] {
		return func(next HandlerFunc[*fakeConn, json.RawMessage]) HandlerFunc[*fakeConn, json.RawMessage] {
			return func(ctx context.Context, conn *fakeConn, payload json.RawMessage) error {
				trace = append(trace, name+":"+GetMessageTypeFromCtx(ctx))
				return next(ctx, conn, payload)
			}
		}
	}
	mux.Use(mw("outer"), mw("inner"))
	Handle(mux, "ALIVE", func(context.Context, *fakeConn, struct{}) error {
		trace = append(trace, "handler")
		return nil
	})

	_ = mux.ServeConn(context.Background(), &fakeConn{frames: []string{`{"type":"ALIVE"}`}})

	assert.Equal(t, []string{"outer:ALIVE", "inner:ALIVE", "handler"}, trace)
}
