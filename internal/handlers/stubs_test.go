package handlers

import (
	"context"
	"net/http"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/ds-advance/api/internal/platform/auth"
	"github.com/ds-advance/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubQuoteService struct {
	result      services.PricingResult
	promotions  []services.Promotion
	eligible    bool
	err         error
	lastCommand services.QuoteCommand
	lastQuery   services.PromotionQuery
	lastPromoID string
}

func (s *stubQuoteService) Quote(_ context.Context, cmd services.QuoteCommand) (services.PricingResult, error) {
	s.lastCommand = cmd
	return s.result, s.err
}

func (s *stubQuoteService) EligiblePromotions(_ context.Context, query services.PromotionQuery) ([]services.Promotion, error) {
	s.lastQuery = query
	return s.promotions, s.err
}

func (s *stubQuoteService) CheckPromotion(_ context.Context, id string, query services.PromotionQuery) (bool, error) {
	s.lastPromoID = id
	s.lastQuery = query
	return s.eligible, s.err
}

type stubSpecialRateService struct {
	rates      []services.SpecialRate
	created    services.SpecialRate
	err        error
	lastCreate services.CreateSpecialRateCommand
	lastDelete services.DeleteSpecialRateCommand
}

func (s *stubSpecialRateService) ListSpecialRates(context.Context, string) ([]services.SpecialRate, error) {
	return s.rates, s.err
}

func (s *stubSpecialRateService) CreateSpecialRate(_ context.Context, cmd services.CreateSpecialRateCommand) (services.SpecialRate, error) {
	s.lastCreate = cmd
	return s.created, s.err
}

func (s *stubSpecialRateService) DeleteSpecialRate(_ context.Context, cmd services.DeleteSpecialRateCommand) error {
	s.lastDelete = cmd
	return s.err
}

// tokenVerifier maps bearer tokens to uid and role claims.
type tokenVerifier map[string]*firebaseauth.Token

func (v tokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	token, ok := v[idToken]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return token, nil
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenVerifier{
		"staff-token":    {UID: "staff-1", Claims: map[string]interface{}{"role": "staff"}},
		"customer-token": {UID: "cust-1", Claims: map[string]interface{}{}},
	})
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

var (
	_ services.SystemService      = (*stubSystemService)(nil)
	_ services.QuoteService       = (*stubQuoteService)(nil)
	_ services.SpecialRateService = (*stubSpecialRateService)(nil)
)
