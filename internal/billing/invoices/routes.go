package invoices

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/factures", h.Convert)
	r.Post("/devis/{id}/acompte", h.CreateDeposit)
	r.Route("/factures/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Post("/send", h.Send)
		r.Post("/paiement", h.MarkPaid)
	})
}
