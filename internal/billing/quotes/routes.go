package quotes

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/devis", h.Generate)
	r.Route("/devis/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Get("/solde", h.Balance)
		r.Post("/send", h.Send)
		r.Post("/accept", h.Accept)
		r.Post("/decline", h.Decline)
		r.Post("/expire", h.Expire)
	})
}
