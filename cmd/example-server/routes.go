package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"throttle-gateway/middleware/ratelimit"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/requestid"
)

func newRouter(l *ratelimit.Limiter, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware(logger))
	r.Use(headerIdentity)
	r.Use(l.Tiered())

	r.Get("/", reply("ok"))

	r.With(l.Endpoint(domain.CategoryLogin)).Post("/auth/login", reply("logged in"))
	r.With(l.Endpoint(domain.CategoryUpload)).Post("/uploads", reply("uploaded"))
	r.With(l.Endpoint(domain.CategorySearch)).Get("/search", reply("results"))
	r.With(l.Endpoint(domain.CategoryAnalytics)).Post("/analytics/events", reply("recorded"))

	r.Route("/chat/rooms", func(r chi.Router) {
		r.With(l.Endpoint(domain.CategoryChatRoomCreate)).Post("/", reply("room created"))
		r.With(l.Endpoint(domain.CategoryChatMessage)).Post("/{room}/messages", reply("sent"))
	})

	r.With(l.Endpoint(domain.CategoryAssignmentSubmit)).Post("/assignments/{id}/submissions", reply("submitted"))
	r.With(l.Endpoint(domain.CategoryReportGenerate)).Post("/reports", reply("report queued"))

	r.Route("/admin", func(r chi.Router) {
		r.Use(l.Endpoint(domain.CategoryAdminPanel))
		r.Use(l.Endpoint(domain.CategoryAdminPanelBurst))
		r.Get("/", reply("admin"))
	})

	// gates ad-hoc: cada view tem seu próprio bucket
	r.With(l.RateLimit(2, time.Minute, "export_csv")).Get("/exports/csv", reply("csv"))
	r.With(l.RateLimit(2, time.Minute, "export_pdf")).Get("/exports/pdf", reply("pdf"))

	return r
}

// headerIdentity é um stub de autenticação para a demo: confia em X-User-ID e
// X-User-Role (staff|admin|premium). Não use isso em produção.
func headerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role")))
		p := domain.Principal{
			ID:      id,
			Staff:   role == "staff" || role == "admin",
			Premium: role == "premium",
		}
		next.ServeHTTP(w, r.WithContext(ratelimit.WithPrincipal(r.Context(), p)))
	})
}

func reply(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":    msg,
			"request_id": requestid.FromContext(r.Context()),
		})
	}
}
