package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxPricingRequestBody = 256 * 1024

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSONBody reads a bounded JSON body into dst and runs struct validation.
func decodeJSONBody(r *http.Request, dst any) (map[string]any, error) {
	limited := io.LimitReader(r.Body, maxPricingRequestBody)
	defer r.Body.Close()
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body required")
		}
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return validateStruct(dst)
}

// validateStruct returns field level failures keyed by JSON name.
func validateStruct(payload any) (map[string]any, error) {
	err := requestValidator.Struct(payload)
	if err == nil {
		return nil, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return details, errors.New("request validation failed")
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number", field)
	}
	return value, nil
}

// parseDate accepts a calendar date (interpreted in loc) or an RFC3339 timestamp.
func parseDate(field, raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC3339", field)
	}
	return t, nil
}

func parseOptionalDate(field, raw string, loc *time.Location) (*time.Time, error) {
	t, err := parseDate(field, raw, loc)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}
