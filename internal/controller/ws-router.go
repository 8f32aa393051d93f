package controller

import (
	"github.com/watch2earn/cinema-server/pkg/protocol"
	"github.com/watch2earn/cinema-server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter[*wsConn] {
	mux := wsrouter.New[*wsConn]()
	mux.Use(c.wsRequestIdMw(), c.loggerWSMw())
	mux.OnError(c.handleWSError)

	wsrouter.Handle(mux, protocol.TypeAlive, c.handleAlive)

	// membership
	wsrouter.Handle(mux, protocol.TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.TypeLeaveRoom, c.handleLeaveRoom)

	// chat
	wsrouter.Handle(mux, protocol.TypeSendChat, c.handleSendChat)

	// player
	wsrouter.Handle(mux, protocol.TypePlaybackIntent, c.handlePlaybackIntent)
	wsrouter.Handle(mux, protocol.TypeReportPosition, c.handleReportPosition)

	// voting
	wsrouter.Handle(mux, protocol.TypeCastVote, c.handleCastVote)

	return mux
}
