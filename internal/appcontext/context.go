// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context carrying the
// authenticated principal.
package appcontext

import (
	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/services/session"
)

// Context is a custom Echo context with the resolved session.
type Context struct {
	echo.Context
	User      *session.User // nil if not authenticated
	TokenHash string
}

// GetUser returns the authenticated user, or nil if not authenticated.
func (c *Context) GetUser() *session.User {
	return c.User
}

// IsAuthenticated returns true if the user is authenticated.
func (c *Context) IsAuthenticated() bool {
	return c.User != nil
}

// From unwraps c into a *Context. Contexts that were not wrapped yield an
// unauthenticated Context around c.
func From(c echo.Context) *Context {
	if cc, ok := c.(*Context); ok {
		return cc
	}
	return &Context{Context: c}
}
