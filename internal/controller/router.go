package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/watch2earn/cinema-server/pkg/rest"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{
				"status":      "ok",
				"connections": c.connRepo.Len(),
			})
		})
		r.Get("/ws", c.serveWS)
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", c.listRooms)
			r.Route("/{room-id}", func(r chi.Router) {
				r.Get("/", c.getRoom)
				r.Route("/tickets", func(r chi.Router) {
					r.Use(c.adminSecretMw)
					r.Get("/", c.listTickets)
					r.Post("/", c.grantTicket)
					r.Delete("/{address}", c.revokeTicket)
				})
			})
		})
	})

	return r
}
