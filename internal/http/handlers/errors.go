// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Service sentinels are translated in one place, failErr,
// so every endpoint reports the same status and code for the same cause.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "monthly message quota exceeded"
//	}
package handlers

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"

	// Domain-specific:
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodeSessionNotFound  = "session_not_found"
	ErrCodeWriteConflict    = "write_conflict"
	ErrCodeEmailTaken       = "email_taken"
	ErrCodeInvalidPlan      = "invalid_plan"
	ErrCodeAlreadyRated     = "already_rated"
	ErrCodeNoSubscription   = "no_subscription"
	ErrCodeBillingDisabled  = "billing_disabled"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeListFailed       = "list_failed"
	ErrCodeInvalidWidget    = "invalid_widget_config"
)

// errorMapping pairs a sentinel with its response.
type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order with errors.Is.
var errorTable = []errorMapping{
	{services.ErrQuotaExceeded, http.StatusTooManyRequests, ErrCodeQuotaExceeded},
	{services.ErrSessionNotFound, http.StatusNotFound, ErrCodeSessionNotFound},
	{services.ErrSessionForbidden, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrConcurrentWriteConflict, http.StatusServiceUnavailable, ErrCodeWriteConflict},
	{services.ErrStorageUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidSessionID, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidRole, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidRating, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrAlreadyRated, http.StatusConflict, ErrCodeAlreadyRated},
	{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken},
	{services.ErrAccountNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrInvalidAccount, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidPlan, http.StatusBadRequest, ErrCodeInvalidPlan},
	{services.ErrInvalidWidgetConfig, http.StatusBadRequest, ErrCodeInvalidWidget},
	{services.ErrNoSubscription, http.StatusNotFound, ErrCodeNoSubscription},
	{billing.ErrNotConfigured, http.StatusServiceUnavailable, ErrCodeBillingDisabled},
	{billing.ErrInvalidSignature, http.StatusBadRequest, ErrCodeInvalidSignature},
}

// detailed sentinels carry the offending field in their wrapped message,
// which is safe to return as is.
var detailed = []error{services.ErrInvalidWidgetConfig}

// failErr translates err into an error response. Unknown errors become a
// logged 500 whose message hides the cause.
func failErr(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if slices.Contains(detailed, m.err) {
				msg = err.Error()
			}
			fail(c, m.status, m.code, msg)
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
