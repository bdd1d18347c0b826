// Package services implements the business logic for widget chat turns,
// sessions, usage accounting, analytics, accounts, and billing.
//
// This file centralizes the service-level error values so they can be
// returned consistently by service methods and translated into HTTP status
// codes by the handler layer.
package services

import "errors"

// Turn and session errors.
var (
	// ErrQuotaExceeded is returned when the account has used its monthly
	// message allowance. No state is changed.
	ErrQuotaExceeded = errors.New("monthly message quota exceeded")

	// ErrSessionNotFound indicates there is no active, non-expired session
	// with the given id for the account.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionForbidden indicates the session id is held by another account.
	ErrSessionForbidden = errors.New("session belongs to another account")

	// ErrConcurrentWriteConflict is returned when a session write could not
	// be applied after retries.
	ErrConcurrentWriteConflict = errors.New("concurrent write conflict")

	// ErrStorageUnavailable is returned when no storage backend could be
	// initialized.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrEmptyMessage is returned for blank chat messages.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a chat message exceeds the configured limit.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidSessionID is returned for blank or oversized session ids.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrInvalidRole is returned when a message role is not user, assistant,
	// or system.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidRating is returned for scores outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrAlreadyRated is returned when a session already carries a rating.
	ErrAlreadyRated = errors.New("session already rated")
)

// Account errors.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidAccount     = errors.New("name, email and a password of at least 8 characters are required")

	// ErrInvalidWidgetConfig wraps the first widget field that failed validation.
	ErrInvalidWidgetConfig = errors.New("invalid widget configuration")
)

// Billing errors.
var (
	ErrInvalidPlan    = errors.New("invalid plan")
	ErrNoSubscription = errors.New("no active subscription")
)
