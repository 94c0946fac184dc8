package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/platform/auth"
	"github.com/ds-advance/api/internal/platform/httpx"
	"github.com/ds-advance/api/internal/services"
)

// AdminSpecialRateHandlers exposes staff endpoints for negotiated customer rates.
type AdminSpecialRateHandlers struct {
	authn       *auth.Authenticator
	rates       services.SpecialRateService
	location    *time.Location
	idempotency func(http.Handler) http.Handler
}

// AdminOption customises admin special rate handlers.
type AdminOption func(*AdminSpecialRateHandlers)

// WithAdminIdempotency guards writes with mw, applied after authentication.
func WithAdminIdempotency(mw func(http.Handler) http.Handler) AdminOption {
	return func(h *AdminSpecialRateHandlers) {
		h.idempotency = mw
	}
}

// NewAdminSpecialRateHandlers constructs admin special rate handlers. Plain dates are read in loc.
func NewAdminSpecialRateHandlers(authn *auth.Authenticator, rates services.SpecialRateService, loc *time.Location, opts ...AdminOption) *AdminSpecialRateHandlers {
	if loc == nil {
		loc = time.UTC
	}
	h := &AdminSpecialRateHandlers{authn: authn, rates: rates, location: loc}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin special rate endpoints.
func (h *AdminSpecialRateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	if h.idempotency != nil {
		r.Use(h.idempotency)
	}
	r.Route("/customers/{customerID}/special-rates", func(rt chi.Router) {
		rt.Get("/", h.listRates)
		rt.Post("/", h.createRate)
		rt.Delete("/{rateID}", h.deleteRate)
	})
}

func (h *AdminSpecialRateHandlers) listRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "special rate service unavailable", http.StatusServiceUnavailable))
		return
	}
	rates, err := h.rates.ListSpecialRates(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeSpecialRateError(ctx, w, err)
		return
	}
	items := make([]specialRatePayload, 0, len(rates))
	for _, rate := range rates {
		items = append(items, newSpecialRatePayload(rate))
	}
	writeJSON(w, http.StatusOK, specialRateListResponse{SpecialRates: items})
}

func (h *AdminSpecialRateHandlers) createRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "special rate service unavailable", http.StatusServiceUnavailable))
		return
	}
	actorID, ok := actorFromContext(ctx, w)
	if !ok {
		return
	}

	var payload specialRateRequest
	details, err := decodeJSONBody(r, &payload)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).WithDetails(details))
		return
	}
	cmd, err := payload.toCommand(chi.URLParam(r, "customerID"), h.location)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.ActorID = actorID

	rate, err := h.rates.CreateSpecialRate(ctx, cmd)
	if err != nil {
		writeSpecialRateError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSpecialRatePayload(rate))
}

func (h *AdminSpecialRateHandlers) deleteRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "special rate service unavailable", http.StatusServiceUnavailable))
		return
	}
	actorID, ok := actorFromContext(ctx, w)
	if !ok {
		return
	}
	err := h.rates.DeleteSpecialRate(ctx, services.DeleteSpecialRateCommand{
		CustomerID: chi.URLParam(r, "customerID"),
		RateID:     chi.URLParam(r, "rateID"),
		ActorID:    actorID,
	})
	if err != nil {
		writeSpecialRateError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actorFromContext returns the authenticated uid, or "" when routes run without an authenticator.
func actorFromContext(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return "", true
	}
	if identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func writeSpecialRateError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSpecialRateInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_special_rate", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSpecialRateOverlap):
		httpx.WriteError(ctx, w, httpx.NewError("special_rate_overlap", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSpecialRateNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("special_rate_not_found", "special rate not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSpecialRateUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "special rate storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("special_rate_error", "failed to process special rate", http.StatusInternalServerError))
	}
}

type specialRateRequest struct {
	ServiceTypeID  string  `json:"service_type_id" validate:"required,max=128"`
	PriceBase      string  `json:"price_base" validate:"required,numeric"`
	PriceSecondary *string `json:"price_secondary" validate:"omitempty,numeric"`
	StartDate      string  `json:"start_date" validate:"required"`
	EndDate        string  `json:"end_date" validate:"required"`
}

func (p specialRateRequest) toCommand(customerID string, loc *time.Location) (services.CreateSpecialRateCommand, error) {
	cmd := services.CreateSpecialRateCommand{
		CustomerID:    customerID,
		ServiceTypeID: p.ServiceTypeID,
	}
	var err error
	if cmd.PriceBase, err = parseDecimal("price_base", p.PriceBase); err != nil {
		return services.CreateSpecialRateCommand{}, err
	}
	if p.PriceSecondary != nil {
		secondary, err := parseDecimal("price_secondary", *p.PriceSecondary)
		if err != nil {
			return services.CreateSpecialRateCommand{}, err
		}
		cmd.PriceSecondary = &secondary
	}
	if cmd.StartDate, err = parseDate("start_date", p.StartDate, loc); err != nil {
		return services.CreateSpecialRateCommand{}, err
	}
	if cmd.EndDate, err = parseDate("end_date", p.EndDate, loc); err != nil {
		return services.CreateSpecialRateCommand{}, err
	}
	return cmd, nil
}

type specialRateListResponse struct {
	SpecialRates []specialRatePayload `json:"special_rates"`
}

type specialRatePayload struct {
	ID             string  `json:"id"`
	CustomerID     string  `json:"customer_id"`
	ServiceTypeID  string  `json:"service_type_id"`
	PriceBase      string  `json:"price_base"`
	PriceSecondary *string `json:"price_secondary,omitempty"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

func newSpecialRatePayload(rate services.SpecialRate) specialRatePayload {
	return specialRatePayload{
		ID:             rate.ID,
		CustomerID:     rate.CustomerID,
		ServiceTypeID:  rate.ServiceTypeID,
		PriceBase:      rate.PriceBase.String(),
		PriceSecondary: optionalDecimalString(rate.PriceSecondary),
		StartDate:      formatTime(rate.StartDate),
		EndDate:        formatTime(rate.EndDate),
		CreatedAt:      formatTime(rate.CreatedAt),
		UpdatedAt:      formatTime(rate.UpdatedAt),
	}
}

func optionalDecimalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}
