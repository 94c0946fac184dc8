package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/platform/auth"
	"github.com/ds-advance/api/internal/platform/httpx"
	"github.com/ds-advance/api/internal/services"
)

var promotionTextPolicy = bluemonday.StrictPolicy()

// PricingHandlers exposes quote and promotion endpoints.
type PricingHandlers struct {
	authn    *auth.Authenticator
	roles    []string
	quotes   services.QuoteService
	location *time.Location
	display  amountFormatter
}

// PricingOption customises construction of PricingHandlers.
type PricingOption func(*PricingHandlers)

// WithPricingAuthenticator requires a Firebase token carrying one of roles on every pricing route.
func WithPricingAuthenticator(authn *auth.Authenticator, roles ...string) PricingOption {
	return func(h *PricingHandlers) {
		h.authn = authn
		h.roles = append([]string(nil), roles...)
	}
}

// WithPricingQuoteService injects the quote service dependency.
func WithPricingQuoteService(svc services.QuoteService) PricingOption {
	return func(h *PricingHandlers) {
		h.quotes = svc
	}
}

// WithPricingLocation sets the business location plain dates are interpreted in.
func WithPricingLocation(loc *time.Location) PricingOption {
	return func(h *PricingHandlers) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithPricingDisplay sets the default locale and the ISO currencies of the base and secondary sides.
func WithPricingDisplay(locale, baseISO, secondaryISO string) PricingOption {
	return func(h *PricingHandlers) {
		h.display = newAmountFormatter(locale, baseISO, secondaryISO)
	}
}

// NewPricingHandlers constructs handlers for pricing endpoints.
func NewPricingHandlers(opts ...PricingOption) *PricingHandlers {
	h := &PricingHandlers{
		location: time.UTC,
		display:  newAmountFormatter("", "", ""),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers pricing endpoints against the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(h.roles...))
	}
	r.Post("/quote", h.quote)
	r.Get("/promotions", h.listPromotions)
	r.Get("/promotions/{promotionID}/eligibility", h.checkPromotion)
}

func (h *PricingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var payload quoteRequest
	details, err := decodeJSONBody(r, &payload)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).WithDetails(details))
		return
	}
	req, err := payload.toPricingRequest(h.location)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	customerID, ok := h.scopeCustomer(ctx, w, req.CustomerID)
	if !ok {
		return
	}
	req.CustomerID = customerID

	result, err := h.quotes.Quote(ctx, services.QuoteCommand{Request: req})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(result, h.display.withLocale(r.Header.Get("Accept-Language"))))
}

func (h *PricingHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}
	query, ok := h.promotionQuery(w, r)
	if !ok {
		return
	}

	promotions, err := h.quotes.EligiblePromotions(ctx, query)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	items := make([]promotionPayload, 0, len(promotions))
	for _, promo := range promotions {
		items = append(items, newPromotionPayload(promo))
	}
	writeJSON(w, http.StatusOK, promotionListResponse{Promotions: items})
}

func (h *PricingHandlers) checkPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}
	query, ok := h.promotionQuery(w, r)
	if !ok {
		return
	}
	promotionID := strings.TrimSpace(chi.URLParam(r, "promotionID"))

	eligible, err := h.quotes.CheckPromotion(ctx, promotionID, query)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{PromotionID: promotionID, Eligible: eligible})
}

func (h *PricingHandlers) promotionQuery(w http.ResponseWriter, r *http.Request) (services.PromotionQuery, bool) {
	ctx := r.Context()
	values := r.URL.Query()
	bookingDate, err := parseDate("booking_date", values.Get("booking_date"), h.location)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.PromotionQuery{}, false
	}
	customerID, ok := h.scopeCustomer(ctx, w, strings.TrimSpace(values.Get("customer_id")))
	if !ok {
		return services.PromotionQuery{}, false
	}
	return services.PromotionQuery{
		ServiceTypeID: strings.TrimSpace(values.Get("service_type_id")),
		CustomerID:    customerID,
		BookingDate:   bookingDate,
	}, true
}

// scopeCustomer pins customer callers to their own id. Staff may price for any customer.
func (h *PricingHandlers) scopeCustomer(ctx context.Context, w http.ResponseWriter, requested string) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return requested, true
	}
	if requested != "" && requested != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "customers may only price their own bookings", http.StatusForbidden))
		return "", false
	}
	return identity.UID, true
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))
	case errors.Is(err, services.ErrQuoteSnapshotUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing data is temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "pricing timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to compute pricing", http.StatusInternalServerError))
	}
}

type quoteRequest struct {
	ServiceTypeID        string             `json:"service_type_id" validate:"required,max=128"`
	CustomerID           string             `json:"customer_id" validate:"omitempty,max=128"`
	BookingDate          string             `json:"booking_date"`
	ItemCount            int                `json:"item_count" validate:"gte=0,lte=10000"`
	CurrencyBasis        string             `json:"currency_basis" validate:"omitempty,oneofci=BASE SECONDARY"`
	SelectedPromotionID  string             `json:"selected_promotion_id" validate:"omitempty,max=128"`
	CustomerRegisteredAt string             `json:"customer_registered_at"`
	ExchangeRate         string             `json:"exchange_rate" validate:"omitempty,numeric"`
	Items                []quoteItemRequest `json:"items" validate:"max=1000,dive"`
	FeeMode              string             `json:"fee_mode" validate:"omitempty,oneof=single per_item"`
	Distance             string             `json:"distance" validate:"omitempty,numeric"`
}

type quoteItemRequest struct {
	ID          string `json:"id" validate:"max=128"`
	CODCurrency string `json:"cod_currency" validate:"omitempty,oneofci=BASE SECONDARY"`
	CODAmount   string `json:"cod_amount" validate:"omitempty,numeric"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
}

func (q quoteRequest) toPricingRequest(loc *time.Location) (domain.PricingRequest, error) {
	req := domain.PricingRequest{
		ServiceTypeID:       strings.TrimSpace(q.ServiceTypeID),
		CustomerID:          strings.TrimSpace(q.CustomerID),
		ItemCount:           q.ItemCount,
		SelectedPromotionID: strings.TrimSpace(q.SelectedPromotionID),
	}
	var err error
	if req.BookingDate, err = parseDate("booking_date", q.BookingDate, loc); err != nil {
		return domain.PricingRequest{}, err
	}
	if req.CustomerRegisteredAt, err = parseOptionalDate("customer_registered_at", q.CustomerRegisteredAt, loc); err != nil {
		return domain.PricingRequest{}, err
	}
	if req.ExchangeRate, err = parseDecimal("exchange_rate", q.ExchangeRate); err != nil {
		return domain.PricingRequest{}, err
	}
	if req.Distance, err = parseDecimal("distance", q.Distance); err != nil {
		return domain.PricingRequest{}, err
	}
	if code, ok := domain.ParseCurrencyCode(q.CurrencyBasis); ok {
		req.CurrencyBasis = code
	}
	if mode, ok := domain.ParseFeeMode(q.FeeMode); ok {
		req.FeeMode = mode
	}
	for _, item := range q.Items {
		amount, err := parseDecimal("cod_amount", item.CODAmount)
		if err != nil {
			return domain.PricingRequest{}, err
		}
		code, _ := domain.ParseCurrencyCode(item.CODCurrency)
		req.Items = append(req.Items, domain.BookingItem{
			ID:          strings.TrimSpace(item.ID),
			CODCurrency: code,
			CODAmount:   amount,
			Quantity:    item.Quantity,
		})
	}
	return req, nil
}

type quoteResponse struct {
	Currency           string            `json:"currency"`
	CurrencyISO        string            `json:"currency_iso"`
	Subtotal           string            `json:"subtotal"`
	Discount           string            `json:"discount"`
	Tax                string            `json:"tax"`
	Total              string            `json:"total"`
	UnitPrice          string            `json:"unit_price"`
	TotalBase          string            `json:"total_base"`
	TotalSecondary     string            `json:"total_secondary"`
	ExchangeRate       string            `json:"exchange_rate"`
	UsedSpecialRate    bool              `json:"used_special_rate"`
	SpecialRateID      string            `json:"special_rate_id,omitempty"`
	AppliedPromotionID string            `json:"applied_promotion_id,omitempty"`
	PromotionCleared   bool              `json:"promotion_cleared"`
	DiscountClamped    bool              `json:"discount_clamped"`
	TaxRateID          string            `json:"tax_rate_id,omitempty"`
	PerItemFees        []perItemFee      `json:"per_item_fees"`
	Warnings           []string          `json:"warnings,omitempty"`
	Display            map[string]string `json:"display"`
}

type perItemFee struct {
	Amount          string `json:"amount"`
	BaseAmount      string `json:"base_amount"`
	SecondaryAmount string `json:"secondary_amount"`
}

func newQuoteResponse(result services.PricingResult, display amountFormatter) quoteResponse {
	resp := quoteResponse{
		Currency:           string(result.Currency),
		CurrencyISO:        display.isoCode(result.Currency),
		Subtotal:           result.Subtotal.String(),
		Discount:           result.Discount.String(),
		Tax:                result.Tax.String(),
		Total:              result.Total.String(),
		UnitPrice:          result.UnitPrice.String(),
		TotalBase:          result.TotalBase.String(),
		TotalSecondary:     result.TotalSecondary.String(),
		ExchangeRate:       result.ExchangeRate.String(),
		UsedSpecialRate:    result.UsedSpecialRate,
		SpecialRateID:      result.SpecialRateID,
		AppliedPromotionID: result.AppliedPromotionID,
		PromotionCleared:   result.PromotionCleared,
		DiscountClamped:    result.DiscountClamped,
		TaxRateID:          result.TaxRateID,
		PerItemFees:        make([]perItemFee, 0, len(result.PerItemFees)),
		Warnings:           result.Warnings,
		Display: map[string]string{
			"subtotal":        display.format(result.Subtotal, result.Currency),
			"discount":        display.format(result.Discount, result.Currency),
			"tax":             display.format(result.Tax, result.Currency),
			"total":           display.format(result.Total, result.Currency),
			"total_base":      display.format(result.TotalBase, domain.CurrencyBase),
			"total_secondary": display.format(result.TotalSecondary, domain.CurrencySecondary),
		},
	}
	for _, fee := range result.PerItemFees {
		resp.PerItemFees = append(resp.PerItemFees, perItemFee{
			Amount:          fee.Amount.String(),
			BaseAmount:      fee.BaseAmount.String(),
			SecondaryAmount: fee.SecondaryAmount.String(),
		})
	}
	return resp
}

type promotionListResponse struct {
	Promotions []promotionPayload `json:"promotions"`
}

type promotionPayload struct {
	ID           string `json:"id"`
	Code         string `json:"code,omitempty"`
	Description  string `json:"description,omitempty"`
	DiscountType string `json:"discount_type"`
	Value        string `json:"value"`
	Currency     string `json:"currency,omitempty"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Eligibility  string `json:"eligibility"`
	ProductScope string `json:"product_scope"`
}

func newPromotionPayload(promo services.Promotion) promotionPayload {
	return promotionPayload{
		ID:           promo.ID,
		Code:         strings.TrimSpace(promotionTextPolicy.Sanitize(promo.Code)),
		Description:  strings.TrimSpace(promotionTextPolicy.Sanitize(promo.Description)),
		DiscountType: string(promo.DiscountType),
		Value:        promo.Value.String(),
		Currency:     string(promo.Currency),
		StartDate:    formatTime(promo.StartDate),
		EndDate:      formatTime(promo.EndDate),
		Eligibility:  string(promo.Eligibility),
		ProductScope: string(promo.ProductScope),
	}
}

type eligibilityResponse struct {
	PromotionID string `json:"promotion_id"`
	Eligible    bool   `json:"eligible"`
}
