// Package protocol holds the websocket wire contract shared by the room server and its clients.
//
// Every frame is a JSON object {"type": "...", "payload": {...}}.
package protocol

import "encoding/json"

// Client -> server message types.
const (
	TypeAlive          = "ALIVE"
	TypeJoinRoom       = "JOIN_ROOM"
	TypeLeaveRoom      = "LEAVE_ROOM"
	TypeSendChat       = "SEND_CHAT"
	TypePlaybackIntent = "PLAYBACK_INTENT"
	TypeReportPosition = "REPORT_POSITION"
	TypeCastVote       = "CAST_VOTE"
)

// Server -> client message types.
const (
	TypeRoomSnapshot      = "ROOM_SNAPSHOT"
	TypeChatMessage       = "CHAT_MESSAGE"
	TypeMembershipChanged = "MEMBERSHIP_CHANGED"
	TypePlaybackUpdated   = "PLAYBACK_UPDATED"
	TypeVotingOpened      = "VOTING_OPENED"
	TypeVoteTallyUpdated  = "VOTE_TALLY_UPDATED"
	TypeVotingClosed      = "VOTING_CLOSED"
	TypeLeftRoom          = "LEFT_ROOM"
	TypeError             = "ERROR"
)

// Error codes carried by ERROR frames.
const (
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeRoomFull           = "ROOM_FULL"
	CodeAlreadyVoted       = "ALREADY_VOTED"
	CodeInvalidChoice      = "INVALID_CHOICE"
	CodeNoActiveSession    = "NO_ACTIVE_SESSION"
	CodeMessageTooLong     = "MESSAGE_TOO_LONG"
	CodeNotJoined          = "NOT_JOINED"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeInternalError      = "INTERNAL_ERROR"
)

const (
	StatusPlaying = "playing"
	StatusPaused  = "paused"
)

const (
	IntentPlay  = "play"
	IntentPause = "pause"
	IntentSeek  = "seek"
)

const (
	MembershipJoined = "joined"
	MembershipLeft   = "left"
)

const (
	CloseReasonAllVoted  = "all_voted"
	CloseReasonTimeout   = "timeout"
	CloseReasonRoomEmpty = "room_empty"
)

// SystemSender is the reserved sender identity of generated chat lines.
const SystemSender = "System"

type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// InboundEnvelope keeps the payload raw until the type is known.
type InboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinRoomInput struct {
	RoomID    string `json:"room_id" validate:"required,max=64"`
	Address   string `json:"address,omitempty" validate:"omitempty,eth_addr"`
	AuthToken string `json:"auth_token,omitempty"`
}

type SendChatInput struct {
	Text string `json:"text"`
}

type PlaybackIntentInput struct {
	Type     string  `json:"type" validate:"required,oneof=play pause seek"`
	Position float64 `json:"position" validate:"gte=0"`
}

type ReportPositionInput struct {
	Position float64 `json:"position" validate:"gte=0"`
}

type CastVoteInput struct {
	ChoiceID int `json:"choice_id"`
}

type Member struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Address  string `json:"address,omitempty"`
	JoinedAt int64  `json:"joined_at"`
}

type Playback struct {
	Position  float64 `json:"position"`
	Status    string  `json:"status"`
	Seq       uint64  `json:"seq"`
	UpdatedAt int64   `json:"updated_at"`
}

type SceneOption struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type Tally struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Voting struct {
	SessionID string        `json:"session_id"`
	Trigger   float64       `json:"trigger"`
	Options   []SceneOption `json:"options"`
	Tallies   []Tally       `json:"tallies"`
	Deadline  int64         `json:"deadline"`
	HasVoted  bool          `json:"has_voted"`
}

type VotingResult struct {
	SessionID string  `json:"session_id"`
	Trigger   float64 `json:"trigger"`
	Tallies   []Tally `json:"tallies"`
	Reason    string  `json:"reason"`
	ClosedAt  int64   `json:"closed_at"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	SenderID  string `json:"sender_id,omitempty"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	System    bool   `json:"system"`
}

type RoomSnapshot struct {
	RoomID      string        `json:"room_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	VideoURL    string        `json:"video_url"`
	TicketPrice string        `json:"ticket_price,omitempty"`
	YouID       string        `json:"you_id"`
	AuthToken   string        `json:"auth_token"`
	Members     []Member      `json:"members"`
	ViewerCount int           `json:"viewer_count"`
	Playback    Playback      `json:"playback"`
	Voting      *Voting       `json:"voting,omitempty"`
	LastResult  *VotingResult `json:"last_result,omitempty"`
}

type MembershipChanged struct {
	Member      Member   `json:"member"`
	Action      string   `json:"action"`
	ViewerCount int      `json:"viewer_count"`
	Members     []Member `json:"members"`
}

type PlaybackUpdated struct {
	Playback
	By     string `json:"by,omitempty"`
	Resync bool   `json:"resync,omitempty"`
}

type VotingOpened struct {
	SessionID string        `json:"session_id"`
	Trigger   float64       `json:"trigger"`
	Options   []SceneOption `json:"options"`
	Tallies   []Tally       `json:"tallies"`
	Deadline  int64         `json:"deadline"`
}

type VoteTallyUpdated struct {
	SessionID string  `json:"session_id"`
	Tallies   []Tally `json:"tallies"`
}

type LeftRoom struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type Error struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
}

type RoomSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	VideoURL       string `json:"video_url"`
	TicketPrice    string `json:"ticket_price,omitempty"`
	RequiresTicket bool   `json:"requires_ticket"`
	ViewerCount    int    `json:"viewer_count"`
}
