package invoices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/billing/shared"
	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// Handler exposes invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the invoice handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Convert handles POST /documents/factures. Same response shape as quote
// generation, with the invoice identity in headers. A second conversion of
// the same quote returns 409.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "devisId must be a valid UUID")
		return
	}
	quoteID, err := uuid.Parse(req.DevisID)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "devisId must be a valid UUID")
		return
	}

	doc, err := h.service.ConvertFromQuote(r.Context(), quoteID)
	if err != nil {
		h.logger.Error("convert quote failed", slog.String("quote_id", req.DevisID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.respondPDF(w, doc)
}

// CreateDeposit handles POST /devis/{id}/acompte.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CreateDepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "pourcentage must be between 0 and 100")
		return
	}

	doc, err := h.service.CreateDeposit(r.Context(), quoteID, req.Pourcentage)
	if err != nil {
		h.logger.Error("create deposit failed", slog.String("quote_id", quoteID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.respondPDF(w, doc)
}

// Show handles GET /factures/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Send handles POST /factures/{id}/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkSent(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// MarkPaid handles POST /factures/{id}/paiement.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkPaid(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) respondPDF(w http.ResponseWriter, doc *shared.GeneratedDocument) {
	w.Header().Set("X-Facture-Id", doc.ID.String())
	w.Header().Set("X-Facture-Numero", doc.Number)
	w.Header().Set("X-PDF-Cache", cacheHeader(doc.PDFCached))
	httpx.PDF(w, doc.Filename, doc.PDF)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func cacheHeader(cached bool) string {
	if cached {
		return "hit"
	}
	return "miss"
}
