package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/gdg-garage/event-checkin/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Auth         *auth.AuthHandler
	ScannerKeys  *ScannerKeyHandler
	Events       *EventHandler
	Checkins     *CheckinHandler
	Participants *ParticipantHandler
	Exports      *ExportHandler
}

func protected(o *huma.Operation) {
	o.Security = []map[string][]string{{"cookieAuth": {}}, {"apiKeyAuth": {}}}
}

func RegisterRoutes(r *chi.Mux, h Handlers) huma.API {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Auth.AuthMiddleware)

	config := huma.DefaultConfig("Event Check-in API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: "auth_token",
		},
		"apiKeyAuth": {
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	api := humachi.New(r, config)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/auth/discord/login", h.Auth.HandleLogin)
	r.Get("/auth/discord/callback", h.Auth.HandleCallback)

	huma.Get(api, "/me", h.Auth.HandleMe, protected)

	huma.Get(api, "/api-keys", h.ScannerKeys.HandleList, protected)
	huma.Post(api, "/api-keys", h.ScannerKeys.HandleIssue, protected)
	huma.Delete(api, "/api-keys/{id}", h.ScannerKeys.HandleRevoke, protected)

	huma.Get(api, "/events", h.Events.HandleList, protected)
	huma.Post(api, "/events", h.Events.HandleCreate, protected)
	huma.Get(api, "/events/{id}", h.Events.HandleGet, protected)
	huma.Post(api, "/events/{id}/enrollments/import", h.Events.HandleImportEnrollments, protected)

	huma.Post(api, "/events/{id}/checkin", h.Checkins.HandleCheckIn, protected)
	huma.Post(api, "/enrollments/{id}/promote", h.Checkins.HandlePromote, protected)
	huma.Post(api, "/enrollments/{id}/revert", h.Checkins.HandleRevert, protected)

	huma.Get(api, "/events/{id}/export", h.Exports.HandleExportEvent, protected)
	huma.Get(api, "/export", h.Exports.HandleExportAll, protected)

	huma.Get(api, "/participants", h.Participants.HandleList, protected)
	huma.Post(api, "/participants", h.Participants.HandleRegister, protected)
	huma.Post(api, "/participants/import", h.Participants.HandleImport, protected)
	huma.Post(api, "/participants/email", h.Participants.HandleEmailAll, protected)
	huma.Get(api, "/participants/{id}/qrcode", h.Participants.HandleQRCode, protected)
	huma.Post(api, "/participants/{id}/email", h.Participants.HandleEmailOne, protected)

	return api
}
