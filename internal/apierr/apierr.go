// Package apierr maps failures onto the stable HTTP error contract:
// a status code plus a body of {"error": CODE, "message": text}.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodePremiumRequired         = "PREMIUM_REQUIRED"
	CodeProfileNotFound         = "PROFILE_NOT_FOUND"
	CodeNotFound                = "NOT_FOUND"
	CodeMethodNotAllowed        = "METHOD_NOT_ALLOWED"
	CodeConflict                = "CONFLICT"
	CodeQuotaExceeded           = "QUOTA_EXCEEDED"
	CodeUpstream                = "UPSTREAM_ERROR"
	CodeUpstreamTimeout         = "UPSTREAM_TIMEOUT"
	CodeUpstreamInvalidResponse = "UPSTREAM_INVALID_RESPONSE"
	CodeServerMisconfigured     = "SERVER_MISCONFIGURED"
	CodeInternal                = "INTERNAL_ERROR"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, CodeValidation, message, nil)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func PremiumRequired() *Error {
	return New(http.StatusForbidden, CodePremiumRequired, "this feature requires a paid plan", nil)
}

func ProfileNotFound() *Error {
	return New(http.StatusNotFound, CodeProfileNotFound, "profile not found", nil)
}

func QuotaExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeQuotaExceeded, "daily limit reached", nil)
}

func Upstream(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstream, "AI service failed", err)
}

func UpstreamTimeout(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstreamTimeout, "AI service timed out", err)
}

func UpstreamInvalid(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstreamInvalidResponse, "AI service returned an unreadable answer", err)
}

func Misconfigured(message string) *Error {
	return New(http.StatusInternalServerError, CodeServerMisconfigured, message, nil)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, "internal error", err)
}

// Body is the JSON error envelope.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Extra   any    `json:"quota,omitempty"`
}

// Write renders err. Unclassified errors become 500 INTERNAL_ERROR and are
// logged; the cause of a classified 5xx is logged too.
func Write(w http.ResponseWriter, log *slog.Logger, err error) {
	WriteWith(w, log, err, nil)
}

// WriteWith is Write with an extra payload attached under "quota".
func WriteWith(w http.ResponseWriter, log *slog.Logger, err error, extra any) {
	if log == nil {
		log = slog.Default()
	}
	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal(err)
	}
	if ae.Status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ae.Code, "error", err)
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := ae.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Error: ae.Code, Message: msg, Extra: extra})
}
