package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrBackpressure = errors.New("send queue full")
)

// wsConn owns a websocket. Reads happen on the serving goroutine, all writes on writePump.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	writeTimeout time.Duration
	pingPeriod   time.Duration

	mu       sync.RWMutex
	roomId   string
	memberId string
}

func newWSConn(id string, conn *websocket.Conn, cfg *Config, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, cfg.SendQueueSize),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		pingPeriod:   cfg.PingPeriod,
	}
}

// ReadJSON reads the next frame and pushes the read deadline forward.
func (c *wsConn) ReadJSON(v any) error {
	if err := c.conn.ReadJSON(v); err != nil {
		return err
	}

	return c.conn.SetReadDeadline(time.Now().Add(2 * c.pingPeriod))
}

// Send enqueues ev without blocking. A full queue drops the event for this connection only.
func (c *wsConn) Send(ev room.Event) error {
	return c.write(ev.Type, ev.Payload)
}

func (c *wsConn) write(messageType string, payload any) error {
	data, err := json.Marshal(&protocol.Envelope{
		Type:    messageType,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn("dropping outbound message", "conn_id", c.id, "type", messageType)
		return ErrBackpressure
	}
}

// Close flushes what is already queued and closes the socket. Safe to call more than once.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})

	return nil
}

func (c *wsConn) membership() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.roomId, c.memberId
}

func (c *wsConn) setMembership(roomId, memberId string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.roomId = roomId
	c.memberId = memberId
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.writeMessage(data); err != nil {
				c.logger.Debug("write failed", "conn_id", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout),
			)
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.writeMessage(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) writeMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
