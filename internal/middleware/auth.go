// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the Echo middleware shared by all API routes.
package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/appcontext"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/services/session"
)

const bearerPrefix = "bearer "

// SessionResolver looks up the user behind a token hash.
type SessionResolver interface {
	Get(ctx context.Context, tokenHash string) (*session.User, error)
}

// LoadSession resolves the bearer token into an *appcontext.Context.
// Requests without a live session continue unauthenticated.
func LoadSession(sessions SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &appcontext.Context{Context: c}

			if hash := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); hash != "" {
				user, err := sessions.Get(c.Request().Context(), hash)
				if err != nil {
					return err
				}
				if user != nil {
					cc.User = user
					cc.TokenHash = hash
				}
			}

			return next(cc)
		}
	}
}

// RequireAuth rejects requests that carry no live session.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !appcontext.From(c).IsAuthenticated() {
			return apperror.Unauthorized
		}
		return next(c)
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
