// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/services/assets"
)

type PresignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// PresignUpload returns a pre-signed upload URL.
func (h *Handlers) PresignUpload(c echo.Context) error {
	var req PresignRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	upload, err := h.assets.PresignUpload(c.Request().Context(), assets.UploadRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if errors.Is(err, assets.ErrFileNameRequired) {
		return invalid("file_name_required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, upload)
}
