// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/services/mailcode"
)

// SendCodeRequest is the request body for sending a verification code.
type SendCodeRequest struct {
	Email  string `json:"email"`
	Action string `json:"action"`
}

// SendMailCode mails a fresh code for the given action.
func (h *Handlers) SendMailCode(c echo.Context) error {
	var req SendCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	action, err := mailcode.ParseAction(req.Action)
	if err != nil {
		return invalid("invalid_action")
	}

	if err := h.mailCodes.Send(c.Request().Context(), email, action); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
