package roomclient

import (
	"errors"

	"github.com/watch2earn/cinema-server/pkg/protocol"
)

var (
	ErrNotJoined       = errors.New("not joined")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrClosed          = errors.New("client closed")
	ErrAccessDenied    = errors.New("access denied")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrNoActiveSession = errors.New("no active voting session")
	ErrAlreadyVoted    = errors.New("already voted")
	ErrInvalidChoice   = errors.New("invalid choice")
)

var codeErrors = map[string]error{
	protocol.CodeAccessDenied:    ErrAccessDenied,
	protocol.CodeRoomNotFound:    ErrRoomNotFound,
	protocol.CodeRoomFull:        ErrRoomFull,
	protocol.CodeNoActiveSession: ErrNoActiveSession,
	protocol.CodeAlreadyVoted:    ErrAlreadyVoted,
	protocol.CodeInvalidChoice:   ErrInvalidChoice,
	protocol.CodeNotJoined:       ErrNotJoined,
}

// ServerError is an ERROR frame. It unwraps to the matching sentinel when there is one.
type ServerError struct {
	Code        string
	Message     string
	RequestType string
}

func (e *ServerError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ServerError) Unwrap() error {
	return codeErrors[e.Code]
}

// permanent reports whether retrying the same join cannot succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrRoomNotFound)
}
