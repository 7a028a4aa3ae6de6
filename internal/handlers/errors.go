// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/i18n"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ValidationError rejects a request before it reaches the services.
// MessageID names the localized explanation.
type ValidationError struct {
	MessageID string
}

func (e *ValidationError) Error() string {
	return e.MessageID
}

func (e *ValidationError) Unwrap() error {
	return apperror.Validation
}

func invalid(messageID string) error {
	return &ValidationError{MessageID: messageID}
}

// ErrorHandler renders errors as localized {code, message} bodies.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	message := ""

	var validationErr *ValidationError
	var appErr *apperror.Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &validationErr):
		appErr = apperror.Validation
		message = i18n.T(ctx, validationErr.MessageID)
	case errors.As(err, &appErr):
	case errors.As(err, &httpErr):
		appErr = fromHTTPError(httpErr)
	default:
		appErr = apperror.Internal
	}

	if appErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request_failed",
			"error", err,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
		)
	}
	if message == "" {
		message = i18n.T(ctx, appErr.Key)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(appErr.Status)
	} else {
		writeErr = c.JSON(appErr.Status, ErrorResponse{Code: appErr.Code, Message: message})
	}
	if writeErr != nil {
		slog.Error("failed to write error response", "error", writeErr)
	}
}

func fromHTTPError(he *echo.HTTPError) *apperror.Error {
	switch {
	case he.Code == http.StatusUnauthorized:
		return apperror.Unauthorized
	case he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed:
		return &apperror.Error{Code: he.Code, Key: apperror.NotFound.Key, Status: he.Code}
	case he.Code < http.StatusInternalServerError:
		return &apperror.Error{Code: he.Code, Key: apperror.Validation.Key, Status: he.Code}
	default:
		return apperror.Internal
	}
}
