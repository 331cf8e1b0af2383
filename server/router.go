package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router. Every route sits behind the gate; the
// callback and the configured unprotected paths are exempted by the gate itself.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware(a.Config.Server.HSTSMaxAge))
	}
	r.Use(a.Gate.Middleware)
	r.Use(IdentityLogMiddleware)

	r.Method(http.MethodGet, a.Provider.CallbackPath(), a.Exchanger)

	r.Get("/", a.handleHome)
	r.Get("/me", a.handleMe)
	r.Get("/health", a.handleHealth)

	return r
}
