package quotes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// Handler exposes quote endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the quote handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Generate handles POST /documents/devis. The response body is the rendered
// PDF; the persisted identity travels in headers so clients can follow up
// without a second round trip.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "opportuniteId must be a valid UUID")
		return
	}
	opportunityID, err := uuid.Parse(req.OpportuniteID)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "opportuniteId must be a valid UUID")
		return
	}

	doc, err := h.service.Generate(r.Context(), opportunityID)
	if err != nil {
		h.logger.Error("generate quote failed", slog.String("opportunity_id", req.OpportuniteID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("X-Devis-Id", doc.ID.String())
	w.Header().Set("X-Devis-Numero", doc.Number)
	w.Header().Set("X-PDF-Cache", cacheHeader(doc.PDFCached))
	httpx.PDF(w, doc.Filename, doc.PDF)
}

// Show handles GET /devis/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Balance handles GET /devis/{id}/solde.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	b, err := h.service.RemainingBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// Send handles POST /devis/{id}/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkSent)
}

// Accept handles POST /devis/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Accept)
}

// Decline handles POST /devis/{id}/decline.
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Decline)
}

// Expire handles POST /devis/{id}/expire.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Expire)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*Quote, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := fn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
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
