package reminders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opale-crm/opale-crm/internal/platform/httpx"
)

// DispatchRequest triggers a reminder for an invoice.
type DispatchRequest struct {
	FactureID string `json:"factureId" validate:"required,uuid"`
}

// Handler exposes the reminder endpoint.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the reminder handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/relances", h.Dispatch)
}

// Dispatch handles POST /relances.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "factureId must be a valid UUID")
		return
	}
	invoiceID, err := uuid.Parse(req.FactureID)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.CodeValidation, "factureId must be a valid UUID")
		return
	}

	result, err := h.service.Dispatch(r.Context(), invoiceID)
	if err != nil {
		h.logger.Error("dispatch reminder failed", slog.String("invoice_id", req.FactureID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, result)
}
