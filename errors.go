package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingFields       = "MISSING_FIELDS"
	TextCodeAlreadyExists       = "ALREADY_EXISTS"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeMissingAPIKey       = "MISSING_API_KEY"
	TextCodeInvalidAPIKey       = "INVALID_API_KEY"
	TextCodeInvalidToken        = "INVALID_TOKEN"
	TextCodeInvalidOrExpired    = "INVALID_OR_EXPIRED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeServiceKeyNotFound  = "SERVICE_KEY_NOT_FOUND"
	TextCodeForbiddenSelfDelete = "FORBIDDEN_SELF_DELETE"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodePasswordMismatch    = "PASSWORD_MISMATCH"
	TextCodeCSRFTokenMissing    = "CSRF_TOKEN_MISSING"
	TextCodeCSRFTokenInvalid    = "CSRF_TOKEN_INVALID"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodePasswordTooLong     = "PASSWORD_TOO_LONG"
	TextCodeInternal            = "INTERNAL_SERVER_ERROR"
)

// Sentinel errors are returned as is; callers that need to attach metadata
// must Clone them first.
var (
	ErrMissingFields = goerrors.New("Missing username or password", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeMissingFields)

	ErrAlreadyExists = goerrors.New("User already exists", goerrors.CategoryConflict).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeAlreadyExists)

	// ErrInvalidCredentials is returned for unknown users and bad passwords alike.
	ErrInvalidCredentials = goerrors.New("Invalid credentials", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidCredentials)

	ErrMissingAPIKey = goerrors.New("Missing API key", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeMissingAPIKey)

	ErrInvalidAPIKey = goerrors.New("Invalid API key", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeInvalidAPIKey)

	ErrInvalidToken = goerrors.New("Invalid or expired token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidToken)

	ErrInvalidOrExpired = goerrors.New("Invalid or expired reset link", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidOrExpired)

	ErrUserNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeUserNotFound)

	ErrServiceKeyNotFound = goerrors.New("Service API key not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeServiceKeyNotFound)

	ErrForbiddenSelfDelete = goerrors.New("You cannot delete yourself", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeForbiddenSelfDelete)

	ErrForbidden = goerrors.New("Forbidden", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeForbidden)

	ErrPasswordMismatch = goerrors.New("Passwords do not match", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodePasswordMismatch)

	ErrCSRFTokenMissing = goerrors.New("CSRF token missing", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeCSRFTokenMissing)

	ErrCSRFTokenInvalid = goerrors.New("Invalid or expired CSRF token", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeCSRFTokenInvalid)

	ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeEmptyPassword)

	ErrPasswordTooLong = goerrors.New("Password must be at most 72 bytes", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodePasswordTooLong)

	// ErrMismatchedHashAndPassword never leaves the service layer.
	ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
)

// StatusCode returns the HTTP status carried by err, or 500 when err is not
// one of the service errors.
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 500 {
		return richErr.Code
	}
	return goerrors.CodeInternal
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	return StatusCode(err) < 500
}

// IsUniqueViolation reports whether err is a unique constraint violation
// raised by sqlite, postgres or mysql.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate=23505") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "error 1062")
}
