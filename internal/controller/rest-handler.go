package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/watch2earn/cinema-server/internal/repository/ticket"
	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/rest"
)

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListRooms(r.Context())
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to list rooms", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rooms})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	summary, err := c.roomService.GetRoom(r.Context(), roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to get room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": summary})
}

type grantTicketInput struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type ticketResponse struct {
	RoomId  string `json:"room_id"`
	Address string `json:"address"`
}

// requireRoom writes a 404 and returns false when the path names no catalog room.
func (c controller) requireRoom(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomId := chi.URLParam(r, "room-id")
	if _, err := c.roomService.GetRoom(r.Context(), roomId); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return "", false
		}

		c.logger.ErrorContext(r.Context(), "failed to get room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return "", false
	}

	return roomId, true
}

func (c controller) grantTicket(w http.ResponseWriter, r *http.Request) {
	roomId, ok := c.requireRoom(w, r)
	if !ok {
		return
	}

	var req grantTicketInput
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.InfoContext(r.Context(), "failed to read body", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	if err := c.ticketRepo.GrantTicket(r.Context(), &ticket.GrantTicketParams{
		RoomId:     roomId,
		Address:    req.Address,
		Expiration: c.cfg.TicketTTL,
	}); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to grant ticket", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	c.logger.InfoContext(r.Context(), "ticket granted", "room_id", roomId, "address", req.Address)
	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": ticketResponse{
		RoomId:  roomId,
		Address: req.Address,
	}})
}

func (c controller) listTickets(w http.ResponseWriter, r *http.Request) {
	roomId, ok := c.requireRoom(w, r)
	if !ok {
		return
	}

	addresses, err := c.ticketRepo.ListTickets(r.Context(), roomId)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to list tickets", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": addresses})
}

func (c controller) revokeTicket(w http.ResponseWriter, r *http.Request) {
	roomId, ok := c.requireRoom(w, r)
	if !ok {
		return
	}

	if err := c.ticketRepo.RevokeTicket(r.Context(), &ticket.RevokeTicketParams{
		RoomId:  roomId,
		Address: chi.URLParam(r, "address"),
	}); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to revoke ticket", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
