package utils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var DefaultPhoneRegion = "US"

// ValidateWalletPhone checks a mobile-wallet payout destination. Returns the
// E.164 form so the gateway always receives a normalized number.
func ValidateWalletPhone(phone string) (string, error) {
	num, err := libphonenumber.Parse(phone, DefaultPhoneRegion)
	if err != nil {
		return "", fmt.Errorf("invalid wallet phone number: %v", err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("invalid wallet phone number: %s", phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// ProcessValidationErrors flattens binding failures into field -> rule pairs
// for API responses. Returns nil when err is not a validation error.
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}
