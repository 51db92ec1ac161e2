// Package apperr holds the typed failures surfaced by the bridge core.
// Library components return these; HTTP handlers classify them with
// errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError reports missing or unusable credentials. Not retryable.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Setting, e.Reason)
}

// SigningError reports that the app private key could not sign an assertion.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing app assertion: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// AuthError reports that GitHub rejected the installation token request.
type AuthError struct {
	InstallationID int64
	StatusCode     int
	Body           string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("installation %d token request rejected: HTTP %d: %s", e.InstallationID, e.StatusCode, e.Body)
}

// InstallationNotFound reports whether the installation was removed or never existed.
func (e *AuthError) InstallationNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Unauthorized reports whether the app itself is misconfigured or forbidden.
func (e *AuthError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ExternalAPIError is any non-success response from the GitHub issues API.
type ExternalAPIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("github %s: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ValidationError reports a missing or inconsistent request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrIdentityMismatch is wrapped by the ValidationError returned when the
// authenticated caller is not the user named in the request.
var ErrIdentityMismatch = errors.New("authenticated user does not match user_id")

// IdentityMismatch builds the ValidationError for a caller/user_id mismatch.
func IdentityMismatch() error {
	return fmt.Errorf("%w: %w", &ValidationError{Field: "user_id", Reason: "does not match authenticated user"}, ErrIdentityMismatch)
}

// NotFoundError reports that an internal record is absent.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Required returns a ValidationError for an empty required field.
func Required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
