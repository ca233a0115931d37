package service

import (
	"fmt"
	"net/http"
)

// AuthError standardizes errors surfaced to HTTP clients.
type AuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newAuthError(code, desc string, status int) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: status}
}

func errInvalidRequest(desc string) *AuthError {
	return newAuthError("invalid_request", desc, http.StatusBadRequest)
}

// errInvalidCredentials is shared by unknown-email and wrong-password
// failures so responses cannot be used to probe which emails exist.
func errInvalidCredentials() *AuthError {
	return newAuthError("invalid_credentials", "Wrong email or password.", http.StatusBadRequest)
}

func errEmailNotVerified() *AuthError {
	return newAuthError("email_not_verified", "Please verify your email before logging in.", http.StatusBadRequest)
}

func errConflict(desc string) *AuthError {
	return newAuthError("conflict", desc, http.StatusConflict)
}

func errInvalidToken(desc string, status int) *AuthError {
	return newAuthError("invalid_token", desc, status)
}

func errStoreUnavailable() *AuthError {
	return newAuthError("store_unavailable", "Service temporarily unavailable.", http.StatusServiceUnavailable)
}
