package services

import (
	"strings"
	"time"

	"github.com/ds-advance/api/internal/domain"
)

const day = 24 * time.Hour

// PromotionEligibilityQuery describes the booking a promotion is evaluated against.
type PromotionEligibilityQuery struct {
	CustomerID    string
	ServiceTypeID string
	BookingDate   time.Time
	RegisteredAt  *time.Time
	Now           time.Time
	Location      *time.Location
}

// FilterEligiblePromotions returns the promotions applicable to the query, preserving input order.
func FilterEligiblePromotions(q PromotionEligibilityQuery, promotions []domain.Promotion) []domain.Promotion {
	eligible := make([]domain.Promotion, 0, len(promotions))
	for _, promo := range promotions {
		if promotionEligible(q, promo) {
			eligible = append(eligible, promo)
		}
	}
	return eligible
}

// IsPromotionEligible reports whether the promotion identified by id is currently valid for the
// query. Callers re-check a previously selected promotion whenever the booking inputs change.
func IsPromotionEligible(id string, q PromotionEligibilityQuery, promotions []domain.Promotion) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, promo := range promotions {
		if promo.ID == id {
			return promotionEligible(q, promo)
		}
	}
	return false
}

func promotionEligible(q PromotionEligibilityQuery, promo domain.Promotion) bool {
	if !promo.IsActive {
		return false
	}
	booking, ok := calendarDateOf(q.BookingDate, q.Location)
	if !ok || !dateWithin(booking, promo.StartDate, promo.EndDate, q.Location) {
		return false
	}
	return customerEligible(q, promo) && scopeEligible(q.ServiceTypeID, promo)
}

func customerEligible(q PromotionEligibilityQuery, promo domain.Promotion) bool {
	switch promo.Eligibility {
	case domain.EligibilityAll:
		return true
	case domain.EligibilitySpecificUsers:
		return containsID(promo.AllowedUserIDs, q.CustomerID)
	case domain.EligibilityRegisteredLast7Days:
		return registeredWithin(q.RegisteredAt, q.Now, 7)
	case domain.EligibilityRegisteredLastMonth:
		return registeredWithin(q.RegisteredAt, q.Now, 30)
	case domain.EligibilityRegisteredLastYear:
		return registeredWithin(q.RegisteredAt, q.Now, 365)
	default:
		return false
	}
}

func scopeEligible(serviceTypeID string, promo domain.Promotion) bool {
	switch promo.ProductScope {
	case domain.ScopeAllProducts:
		return true
	case domain.ScopeSpecificProducts:
		return containsID(promo.AllowedProductIDs, serviceTypeID)
	default:
		return false
	}
}

// registeredWithin passes when the registration date is unknown.
func registeredWithin(registeredAt *time.Time, now time.Time, maxDays int64) bool {
	if registeredAt == nil || registeredAt.IsZero() {
		return true
	}
	days := registrationAgeDays(*registeredAt, now)
	return days >= 0 && days <= maxDays
}

func registrationAgeDays(registeredAt, now time.Time) int64 {
	elapsed := now.Sub(registeredAt)
	days := int64(elapsed / day)
	if elapsed < 0 && elapsed%day != 0 {
		days--
	}
	return days
}

func containsID(ids []string, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if strings.TrimSpace(candidate) == id {
			return true
		}
	}
	return false
}
