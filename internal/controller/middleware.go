package controller

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/watch2earn/cinema-server/pkg/ctxlogger"
	"github.com/watch2earn/cinema-server/pkg/idgen"
	"github.com/watch2earn/cinema-server/pkg/rest"
)

const adminSecretHeader = "Cinema-Admin-Secret"

func (c controller) generateTimeBasedId() string {
	return idgen.NewULID()
}

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

func (c controller) adminSecretMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(adminSecretHeader)
		if c.cfg.AdminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(c.cfg.AdminSecret)) != 1 {
			c.logger.InfoContext(r.Context(), "admin secret mismatch")
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
