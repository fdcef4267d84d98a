// Package validation provides common validation utilities for configuration
// parameters across portalguard.
//
// Constructors call these helpers so that a bad policy or store setting is
// rejected once, at startup, with a consistent *errors.ValidationError.
package validation
