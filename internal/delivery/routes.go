package delivery

import (
	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, h *SessionHandler) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Close)

			r.Put("/name", h.Rename)
			r.Put("/permission", h.SetPermission)

			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Post("/fragments", h.AppendFragment)

			r.Get("/audio", h.Audio)
			r.Post("/downloaded", h.MarkDownloaded)
			r.Post("/upload", h.Upload)
		})
	})
}
