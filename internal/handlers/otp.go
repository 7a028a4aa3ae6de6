// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/appcontext"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/services/mailcode"
	"github.com/meta-1/wiki/internal/services/session"
)

type OTPEnableRequest struct {
	Code    string `json:"code"`
	OTPCode string `json:"otpCode"`
}

type OTPDisableRequest struct {
	Code string `json:"code"`
}

func currentUser(c echo.Context) (*session.User, error) {
	user := appcontext.From(c).GetUser()
	if user == nil {
		return nil, apperror.Unauthorized
	}
	return user, nil
}

func (h *Handlers) OTPStatus(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	status, err := h.otp.Status(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handlers) OTPSecret(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	secret, err := h.otp.Secret(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, secret)
}

func (h *Handlers) OTPEnable(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req OTPEnableRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := requireCode(req.Code); err != nil {
		return err
	}
	if !mailcode.ValidCode(req.OTPCode) {
		return invalid("invalid_otp_code")
	}

	if err := h.otp.Enable(c.Request().Context(), user.Username, req.Code, req.OTPCode); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) OTPDisable(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req OTPDisableRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := requireCode(req.Code); err != nil {
		return err
	}

	if err := h.otp.Disable(c.Request().Context(), user.Username, req.Code); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
