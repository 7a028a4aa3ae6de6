// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/appcontext"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/services/account"
	"github.com/meta-1/wiki/internal/services/credential"
)

// RegisterRequest is the request body for registration.
// Password is encrypted with the published public key.
type RegisterRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  string `json:"otpCode"`
}

// Register creates an account and signs it in.
func (h *Handlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := requireCode(req.Code); err != nil {
		return err
	}
	if req.Password == "" {
		return invalid("password_required")
	}

	token, err := h.accounts.Register(c.Request().Context(), account.RegisterParams{
		Email:    email,
		Code:     req.Code,
		Password: req.Password,
	})
	if errors.Is(err, credential.ErrCrypto) {
		return invalid("invalid_password")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, token)
}

// Login signs an account in.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if req.Password == "" {
		return invalid("password_required")
	}

	token, err := h.accounts.Login(c.Request().Context(), account.LoginParams{
		Email:    email,
		Password: req.Password,
		OTPCode:  req.OTPCode,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, token)
}

// Profile returns the signed-in account.
func (h *Handlers) Profile(c echo.Context) error {
	user := appcontext.From(c).GetUser()
	if user == nil {
		return apperror.Unauthorized
	}

	acc, err := h.accounts.FindByEmail(c.Request().Context(), user.Username)
	if err != nil {
		return err
	}
	if acc == nil {
		return apperror.AccountNotFound
	}

	return c.JSON(http.StatusOK, acc)
}

// Logout ends the current session.
func (h *Handlers) Logout(c echo.Context) error {
	cc := appcontext.From(c)
	if err := h.accounts.Logout(c.Request().Context(), cc.TokenHash); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
