package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watch2earn/cinema-server/internal/repository/connection"
	"github.com/watch2earn/cinema-server/internal/repository/ticket"
	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/protocol"
	"github.com/watch2earn/cinema-server/pkg/validator"
	"github.com/watch2earn/cinema-server/pkg/wsrouter"
)

type iRoomService interface {
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) error
	ApplyIntent(context.Context, *room.ApplyIntentParams) (room.ApplyIntentResponse, error)
	ReportPosition(context.Context, *room.ReportPositionParams) error
	CastVote(context.Context, *room.CastVoteParams) (room.CastVoteResponse, error)
	SendChat(context.Context, *room.SendChatParams) (room.SendChatResponse, error)
	ListRooms(context.Context) ([]protocol.RoomSummary, error)
	GetRoom(context.Context, string) (protocol.RoomSummary, error)
}

type iTicketRepo interface {
	GrantTicket(context.Context, *ticket.GrantTicketParams) error
	RevokeTicket(context.Context, *ticket.RevokeTicketParams) error
	ListTickets(ctx context.Context, roomId string) ([]string, error)
}

type iConnRepo interface {
	Add(id string, conn connection.Conn) error
	Remove(id string) error
	Len() int
}

type Config struct {
	AdminSecret string
	// Zero means granted tickets never expire.
	TicketTTL     time.Duration
	SendQueueSize int
	WriteTimeout  time.Duration
	PingPeriod    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendQueueSize: 64,
		WriteTimeout:  10 * time.Second,
		PingPeriod:    30 * time.Second,
	}
}

type controller struct {
	roomService iRoomService
	ticketRepo  iTicketRepo
	connRepo    iConnRepo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter[*wsConn]
	cfg         Config
	logger      *slog.Logger
}

func NewController(roomService iRoomService, ticketRepo iTicketRepo, connRepo iConnRepo, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		roomService: roomService,
		ticketRepo:  ticketRepo,
		connRepo:    connRepo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		cfg:      *cfg,
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
