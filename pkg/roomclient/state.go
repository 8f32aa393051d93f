package roomclient

import "github.com/watch2earn/cinema-server/pkg/protocol"

type State int

const (
	StateNotJoined State = iota
	StateJoining
	StateJoined
	StateDisconnected
	// StateConnectionLost is terminal: the retry budget was spent.
	StateConnectionLost
)

func (s State) String() string {
	switch s {
	case StateNotJoined:
		return "not_joined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	case StateConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

type VotingView struct {
	SessionID string
	Trigger   float64
	Options   []protocol.SceneOption
	Tallies   []protocol.Tally
	Deadline  int64
	HasVoted  bool
	// MyChoice is zero until this client votes.
	MyChoice int
}

// View is a point-in-time copy of everything the client knows about its room.
type View struct {
	State       State
	RoomID      string
	MemberID    string
	Title       string
	VideoURL    string
	Members     []protocol.Member
	ViewerCount int
	Playback    protocol.Playback
	Chat        []protocol.ChatMessage
	Voting      *VotingView
	LastResult  *protocol.VotingResult
	LastError   *ServerError
}

func (v View) clone() View {
	out := v
	out.Members = append([]protocol.Member(nil), v.Members...)
	out.Chat = append([]protocol.ChatMessage(nil), v.Chat...)

	if v.Voting != nil {
		voting := *v.Voting
		voting.Options = append([]protocol.SceneOption(nil), v.Voting.Options...)
		voting.Tallies = append([]protocol.Tally(nil), v.Voting.Tallies...)
		out.Voting = &voting
	}

	if v.LastResult != nil {
		result := *v.LastResult
		result.Tallies = append([]protocol.Tally(nil), v.LastResult.Tallies...)
		out.LastResult = &result
	}

	if v.LastError != nil {
		e := *v.LastError
		out.LastError = &e
	}

	return out
}

// Event is delivered on Client.Events. Payload holds the decoded protocol type,
// or a State for TypeStateChanged.
type Event struct {
	Type    string
	Payload any
}

const TypeStateChanged = "STATE_CHANGED"
