// Package roomclient is a Go client for the cinema room websocket protocol.
//
// A Client joins one room at a time, keeps a local view of it current, and
// transparently rejoins after a dropped connection.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

const maxChatHistory = 500

var errAborted = errors.New("join aborted")

type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/api/v1/ws.
	URL string
	// Address is the wallet address to join with. Empty joins anonymously.
	Address string
	Dialer  *websocket.Dialer

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
	// Chat history and the voted flag survive a rejoin that lands within PreserveWindow.
	PreserveWindow time.Duration
	JoinTimeout    time.Duration
	EventBuffer    int
	Logger         *slog.Logger
}

func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Dialer:         websocket.DefaultDialer,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxRetries:     8,
		PreserveWindow: 30 * time.Second,
		JoinTimeout:    10 * time.Second,
		EventBuffer:    256,
		Logger:         slog.Default(),
	}
}

type Client struct {
	cfg    Config
	events chan Event
	done   chan struct{}
	once   sync.Once

	writeMu sync.Mutex

	mu            sync.Mutex
	view          View
	conn          *websocket.Conn
	gen           uint64
	joinWait      chan error
	authToken     string
	lostAt        time.Time
	authoritative []protocol.Tally
}

func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.view.clone()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.view.State
}

// Join connects and blocks until the room snapshot arrives, the server rejects the join, or ctx ends.
func (c *Client) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClosed
	default:
	}

	switch c.view.State {
	case StateJoining, StateJoined, StateDisconnected:
		c.mu.Unlock()
		return ErrAlreadyJoined
	}

	c.view = View{RoomID: roomID}
	c.lostAt = time.Time{}
	c.authToken = ""
	c.authoritative = nil
	c.setState(StateJoining)
	c.mu.Unlock()

	if err := c.connect(ctx, roomID); err != nil {
		c.mu.Lock()
		if c.view.State == StateJoining {
			c.setState(StateNotJoined)
		}
		c.mu.Unlock()

		return err
	}

	return nil
}

// Leave leaves the room and closes the connection. It also stops a pending rejoin.
// The client can join again afterwards.
func (c *Client) Leave() error {
	c.mu.Lock()
	conn := c.conn
	state := c.view.State
	c.mu.Unlock()

	if state == StateNotJoined {
		return ErrNotJoined
	}

	var err error
	if conn != nil && state == StateJoined {
		err = c.write(conn, protocol.TypeLeaveRoom, nil)
	}

	c.mu.Lock()
	c.dropConnLocked()
	c.setState(StateNotJoined)
	c.mu.Unlock()

	return err
}

// Close stops reconnecting and closes the connection without a LEAVE_ROOM.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.dropConnLocked()
		if c.view.State != StateNotJoined {
			c.setState(StateNotJoined)
		}
		c.mu.Unlock()
	})

	return nil
}

func (c *Client) SendChat(text string) error {
	return c.send(protocol.TypeSendChat, protocol.SendChatInput{Text: text})
}

func (c *Client) Play(position float64) error {
	return c.playbackIntent(protocol.IntentPlay, position)
}

func (c *Client) Pause(position float64) error {
	return c.playbackIntent(protocol.IntentPause, position)
}

func (c *Client) Seek(position float64) error {
	return c.playbackIntent(protocol.IntentSeek, position)
}

func (c *Client) playbackIntent(intent string, position float64) error {
	if err := c.send(protocol.TypePlaybackIntent, protocol.PlaybackIntentInput{Type: intent, Position: position}); err != nil {
		return err
	}

	// local echo, the server does not send our own intents back
	c.mu.Lock()
	c.view.Playback.Position = position
	switch intent {
	case protocol.IntentPlay:
		c.view.Playback.Status = protocol.StatusPlaying
	case protocol.IntentPause:
		c.view.Playback.Status = protocol.StatusPaused
	}
	c.mu.Unlock()

	return nil
}

func (c *Client) ReportPosition(position float64) error {
	return c.send(protocol.TypeReportPosition, protocol.ReportPositionInput{Position: position})
}

// CastVote applies the vote to the local tallies right away. The next authoritative
// tally replaces it, and a rejection rolls it back.
func (c *Client) CastVote(choiceID int) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.view.State != StateJoined {
		c.mu.Unlock()
		return ErrNotJoined
	}

	v := c.view.Voting
	if v == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}

	if v.HasVoted {
		c.mu.Unlock()
		return ErrAlreadyVoted
	}

	v.HasVoted = true
	v.MyChoice = choiceID
	v.Tallies = slices.Clone(v.Tallies)
	for i := range v.Tallies {
		if v.Tallies[i].ID == choiceID {
			v.Tallies[i].Votes++
		}
	}
	sessionID := v.SessionID
	c.mu.Unlock()

	if err := c.write(conn, protocol.TypeCastVote, protocol.CastVoteInput{ChoiceID: choiceID}); err != nil {
		c.mu.Lock()
		c.rollbackVoteLocked(sessionID)
		c.mu.Unlock()

		return err
	}

	return nil
}

// rollbackVoteLocked restores the last authoritative tallies of an optimistic vote.
func (c *Client) rollbackVoteLocked(sessionID string) {
	v := c.view.Voting
	if v == nil || v.SessionID != sessionID {
		return
	}

	v.Tallies = slices.Clone(c.authoritative)
	v.HasVoted = false
	v.MyChoice = 0
}

func (c *Client) send(messageType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.view.State
	c.mu.Unlock()

	if conn == nil || state != StateJoined {
		return ErrNotJoined
	}

	return c.write(conn, messageType, payload)
}

func (c *Client) write(conn *websocket.Conn, messageType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(protocol.Envelope{Type: messageType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to write %s: %w", messageType, err)
	}

	return nil
}

// connect dials, sends JOIN_ROOM and waits for the outcome.
func (c *Client) connect(ctx context.Context, roomID string) error {
	if c.cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.JoinTimeout)
		defer cancel()
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	wait := make(chan error, 1)

	c.mu.Lock()
	if c.view.State != StateJoining {
		c.mu.Unlock()
		conn.Close()
		return errAborted
	}
	c.dropConnLocked()
	c.gen++
	gen := c.gen
	c.conn = conn
	c.joinWait = wait
	token := c.authToken
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	if err := c.write(conn, protocol.TypeJoinRoom, protocol.JoinRoomInput{
		RoomID:    roomID,
		Address:   c.cfg.Address,
		AuthToken: token,
	}); err != nil {
		c.abandon(gen)
		return err
	}

	select {
	case err := <-wait:
		if errors.Is(err, errAborted) {
			select {
			case <-c.done:
				return ErrClosed
			default:
				return err
			}
		}
		if err != nil {
			c.abandon(gen)
		}
		return err
	case <-ctx.Done():
		c.abandon(gen)
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// abandon drops the connection of generation gen if it is still current.
func (c *Client) abandon(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen == gen {
		c.dropConnLocked()
	}
}

func (c *Client) dropConnLocked() {
	c.gen++
	if c.joinWait != nil {
		c.joinWait <- errAborted
		c.joinWait = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		var env protocol.InboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			c.onReadError(gen, err)
			return
		}

		c.handleFrame(gen, &env)
	}
}

func (c *Client) onReadError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}

	if c.joinWait != nil {
		c.joinWait <- fmt.Errorf("connection closed while joining: %w", err)
		c.joinWait = nil
		return
	}

	if c.view.State != StateJoined {
		return
	}

	c.cfg.Logger.Info("connection lost, rejoining", "room_id", c.view.RoomID, "error", err)
	c.dropConnLocked()
	c.lostAt = time.Now()
	c.setState(StateDisconnected)

	go c.reconnect(c.view.RoomID)
}

// reconnect rejoins after a transport loss. Each attempt goes Disconnected -> Joining;
// a failed attempt falls back to Disconnected, a permanent rejection to NotJoined and an
// exhausted retry budget to ConnectionLost.
func (c *Client) reconnect(roomID string) {
	backoff := c.cfg.InitialBackoff
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		if !c.transition(StateDisconnected, StateJoining) {
			// left or closed meanwhile
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := c.connect(ctx, roomID)
		cancel()

		if err == nil {
			return
		}

		if errors.Is(err, ErrClosed) || errors.Is(err, errAborted) {
			return
		}

		c.cfg.Logger.Info("rejoin failed", "room_id", roomID, "attempt", attempt, "error", err)
		if permanent(err) {
			c.transition(StateJoining, StateNotJoined)
			return
		}

		if !c.transition(StateJoining, StateDisconnected) {
			return
		}

		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}

	c.transition(StateDisconnected, StateConnectionLost)
}

func (c *Client) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.State != from {
		return false
	}

	c.setState(to)
	return true
}

func (c *Client) handleFrame(gen uint64, env *protocol.InboundEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}

	var payload any
	var err error
	switch env.Type {
	case protocol.TypeRoomSnapshot:
		payload, err = decode[protocol.RoomSnapshot](env.Payload)
	case protocol.TypeChatMessage:
		payload, err = decode[protocol.ChatMessage](env.Payload)
	case protocol.TypeMembershipChanged:
		payload, err = decode[protocol.MembershipChanged](env.Payload)
	case protocol.TypePlaybackUpdated:
		payload, err = decode[protocol.PlaybackUpdated](env.Payload)
	case protocol.TypeVotingOpened:
		payload, err = decode[protocol.VotingOpened](env.Payload)
	case protocol.TypeVoteTallyUpdated:
		payload, err = decode[protocol.VoteTallyUpdated](env.Payload)
	case protocol.TypeVotingClosed:
		payload, err = decode[protocol.VotingResult](env.Payload)
	case protocol.TypeLeftRoom:
		payload, err = decode[protocol.LeftRoom](env.Payload)
	case protocol.TypeError:
		payload, err = decode[protocol.Error](env.Payload)
	default:
		c.cfg.Logger.Debug("ignoring unknown frame", "type", env.Type)
		return
	}
	if err != nil {
		c.cfg.Logger.Warn("failed to decode frame", "type", env.Type, "error", err)
		return
	}

	switch p := payload.(type) {
	case protocol.RoomSnapshot:
		c.applySnapshot(&p)
	case protocol.ChatMessage:
		c.view.Chat = append(c.view.Chat, p)
		if len(c.view.Chat) > maxChatHistory {
			c.view.Chat = slices.Clone(c.view.Chat[len(c.view.Chat)-maxChatHistory:])
		}
	case protocol.MembershipChanged:
		c.view.Members = p.Members
		c.view.ViewerCount = p.ViewerCount
	case protocol.PlaybackUpdated:
		c.view.Playback = p.Playback
	case protocol.VotingOpened:
		c.authoritative = p.Tallies
		c.view.Voting = &VotingView{
			SessionID: p.SessionID,
			Trigger:   p.Trigger,
			Options:   p.Options,
			Tallies:   slices.Clone(p.Tallies),
			Deadline:  p.Deadline,
		}
	case protocol.VoteTallyUpdated:
		if c.view.Voting != nil && c.view.Voting.SessionID == p.SessionID {
			c.authoritative = p.Tallies
			c.view.Voting.Tallies = slices.Clone(p.Tallies)
		}
	case protocol.VotingResult:
		c.authoritative = nil
		c.view.Voting = nil
		c.view.LastResult = &p
	case protocol.LeftRoom:
		// another connection took over this identity
		c.dropConnLocked()
		c.setState(StateNotJoined)
	case protocol.Error:
		c.applyError(&p)
	}

	c.emit(Event{Type: env.Type, Payload: payload})
}

func (c *Client) applySnapshot(snap *protocol.RoomSnapshot) {
	preserve := !c.lostAt.IsZero() && time.Since(c.lostAt) <= c.cfg.PreserveWindow
	c.lostAt = time.Time{}
	prevVoting := c.view.Voting

	if !preserve {
		c.view.Chat = nil
	}

	c.authToken = snap.AuthToken
	c.view.RoomID = snap.RoomID
	c.view.MemberID = snap.YouID
	c.view.Title = snap.Title
	c.view.VideoURL = snap.VideoURL
	c.view.Members = snap.Members
	c.view.ViewerCount = snap.ViewerCount
	c.view.Playback = snap.Playback
	c.view.LastResult = snap.LastResult
	c.view.LastError = nil
	c.view.Voting = nil
	c.authoritative = nil

	if v := snap.Voting; v != nil {
		c.authoritative = v.Tallies
		c.view.Voting = &VotingView{
			SessionID: v.SessionID,
			Trigger:   v.Trigger,
			Options:   v.Options,
			Tallies:   slices.Clone(v.Tallies),
			Deadline:  v.Deadline,
			HasVoted:  v.HasVoted,
		}

		if preserve && prevVoting != nil && prevVoting.SessionID == v.SessionID && prevVoting.HasVoted {
			c.view.Voting.HasVoted = true
			c.view.Voting.MyChoice = prevVoting.MyChoice
		}
	}

	c.setState(StateJoined)
	if c.joinWait != nil {
		c.joinWait <- nil
		c.joinWait = nil
	}
}

func (c *Client) applyError(p *protocol.Error) {
	serverErr := &ServerError{Code: p.Code, Message: p.Message, RequestType: p.RequestType}
	c.view.LastError = serverErr

	if p.RequestType == protocol.TypeJoinRoom && c.joinWait != nil {
		c.joinWait <- serverErr
		c.joinWait = nil
		return
	}

	if p.RequestType == protocol.TypeCastVote && c.view.Voting != nil &&
		(p.Code == protocol.CodeInvalidChoice || p.Code == protocol.CodeNoActiveSession) {
		c.rollbackVoteLocked(c.view.Voting.SessionID)
	}
}

func (c *Client) setState(s State) {
	if c.view.State == s {
		return
	}

	c.view.State = s
	c.emit(Event{Type: TypeStateChanged, Payload: s})
}

// emit never blocks. Observers that fall behind lose events but View stays exact.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
