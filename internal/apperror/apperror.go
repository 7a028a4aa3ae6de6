// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperror defines the business error codes returned by the API.
package apperror

import (
	"errors"
	"net/http"
)

// Error is a user-facing error with a stable numeric code.
// Key doubles as the i18n message ID.
type Error struct {
	Key    string
	Code   int
	Status int
}

func (e *Error) Error() string {
	return e.Key
}

var (
	MailCodeError         = &Error{Code: 1000, Key: "MAIL_CODE_ERROR", Status: http.StatusBadRequest}
	AccountExists         = &Error{Code: 1001, Key: "ACCOUNT_EXISTS", Status: http.StatusBadRequest}
	LoginError            = &Error{Code: 1002, Key: "LOGIN_ERROR", Status: http.StatusBadRequest}
	AccountConfigNotFound = &Error{Code: 1003, Key: "ACCOUNT_CONFIG_NOT_FOUND", Status: http.StatusInternalServerError}
	AccountNotFound       = &Error{Code: 1004, Key: "ACCOUNT_NOT_FOUND", Status: http.StatusNotFound}
	OTPSecretNotFound     = &Error{Code: 1005, Key: "OTP_SECRET_NOT_FOUND", Status: http.StatusBadRequest}
	OTPEnableError        = &Error{Code: 1006, Key: "OTP_ENABLE_ERROR", Status: http.StatusBadRequest}
	OTPCodeInvalid        = &Error{Code: 1007, Key: "OTP_CODE_INVALID", Status: http.StatusBadRequest}
	OTPCodeRequired       = &Error{Code: 1008, Key: "OTP_CODE_REQUIRED", Status: http.StatusBadRequest}
	CommonConfigNotFound  = &Error{Code: 1100, Key: "COMMON_CONFIG_NOT_FOUND", Status: http.StatusInternalServerError}

	Validation   = &Error{Code: http.StatusBadRequest, Key: "VALIDATION_ERROR", Status: http.StatusBadRequest}
	Unauthorized = &Error{Code: http.StatusUnauthorized, Key: "UNAUTHORIZED", Status: http.StatusUnauthorized}
	NotFound     = &Error{Code: http.StatusNotFound, Key: "NOT_FOUND", Status: http.StatusNotFound}
	Internal     = &Error{Code: http.StatusInternalServerError, Key: "INTERNAL_ERROR", Status: http.StatusInternalServerError}
)

// From extracts an *Error from err's chain. Anything else is Internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal
}
