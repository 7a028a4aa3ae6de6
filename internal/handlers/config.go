// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/apperror"
)

// CommonConfig is the public client configuration.
type CommonConfig struct {
	PublicKey string `json:"publicKey"`
}

// CommonConfig publishes the key clients encrypt passwords with.
func (h *Handlers) CommonConfig(c echo.Context) error {
	cfg, err := h.config.Get()
	if err != nil {
		return apperror.CommonConfigNotFound
	}
	return c.JSON(http.StatusOK, CommonConfig{PublicKey: cfg.PublicKey})
}
