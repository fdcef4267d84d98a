// Package validation provides common validation utilities for portalguard.
package validation

import (
	"time"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return pgerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is at least one millisecond,
// the resolution used for store TTLs.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value < time.Millisecond {
		return pgerrors.NewValidationError(module, field, value, "must be at least 1ms").
			WithHint("store TTLs have millisecond resolution")
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is zero or positive.
// Zero is the conventional "disabled" value.
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return pgerrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 to disable")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return pgerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return pgerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
