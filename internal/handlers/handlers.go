// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/accountconfig"
	"github.com/meta-1/wiki/internal/services/account"
	"github.com/meta-1/wiki/internal/services/assets"
	"github.com/meta-1/wiki/internal/services/mailcode"
)

// Deps are the services behind the API.
type Deps struct {
	Accounts  *account.Service
	OTP       *account.OTPService
	MailCodes *mailcode.Service
	Config    *accountconfig.Store
	Assets    *assets.Service // nil disables the upload route
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	accounts  *account.Service
	otp       *account.OTPService
	mailCodes *mailcode.Service
	config    *accountconfig.Store
	assets    *assets.Service
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	return &Handlers{
		accounts:  deps.Accounts,
		otp:       deps.OTP,
		mailCodes: deps.MailCodes,
		config:    deps.Config,
		assets:    deps.Assets,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// bind decodes the JSON body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return invalid("invalid_request")
	}
	return nil
}

// normalizeEmail lowercases and trims, and rejects anything that is not a
// bare address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("invalid_email")
	}
	return email, nil
}

func requireCode(code string) error {
	if !mailcode.ValidCode(code) {
		return invalid("invalid_code")
	}
	return nil
}
