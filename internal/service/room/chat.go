package room

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/watch2earn/cinema-server/pkg/idgen"
	"github.com/watch2earn/cinema-server/pkg/protocol"
)

type SendChatParams struct {
	RoomId   string
	SenderId string
	Text     string
}

type SendChatResponse struct {
	// Message is nil when the text was blank and nothing was sent.
	Message *protocol.ChatMessage
}

// SendChat relays a message to every member of the room, the sender included.
func (s *service) SendChat(ctx context.Context, params *SendChatParams) (SendChatResponse, error) {
	text := strings.TrimSpace(params.Text)
	if utf8.RuneCountInString(text) > maxChatMessageLength {
		return SendChatResponse{}, ErrMessageTooLong
	}

	var resp SendChatResponse
	err := s.withMember(params.RoomId, params.SenderId, func(r *room, m *member) error {
		if text == "" {
			return nil
		}

		msg := r.nextChatMessage(m.id, m.identity, text, false, time.Now())
		r.broadcast(Event{Type: protocol.TypeChatMessage, Payload: msg}, "")
		resp.Message = &msg

		return nil
	})
	if err != nil {
		return SendChatResponse{}, err
	}

	if resp.Message != nil {
		s.logger.DebugContext(ctx, "chat message", "room_id", params.RoomId, "member_id", params.SenderId, "seq", resp.Message.Seq)
	}

	return resp, nil
}

func (r *room) nextChatMessage(senderId, sender, text string, system bool, now time.Time) protocol.ChatMessage {
	r.chatSeq++
	return protocol.ChatMessage{
		ID:        idgen.NewULID(),
		Seq:       r.chatSeq,
		SenderID:  senderId,
		Sender:    sender,
		Text:      text,
		Timestamp: now.UnixMilli(),
		System:    system,
	}
}

func (s *service) broadcastSystemMessage(r *room, text string, now time.Time) {
	msg := r.nextChatMessage("", protocol.SystemSender, text, true, now)
	r.broadcast(Event{Type: protocol.TypeChatMessage, Payload: msg}, "")
}
