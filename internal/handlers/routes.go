// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/middleware"
)

// Mount registers all routes on e. Bearer sessions are resolved for every
// /api route; protected routes additionally require one.
func (h *Handlers) Mount(e *echo.Echo, sessions middleware.SessionResolver) {
	e.GET("/health", h.Health)

	api := e.Group("/api", middleware.LoadSession(sessions))

	acc := api.Group("/account")
	acc.POST("/register", h.Register)
	acc.POST("/login", h.Login)
	acc.GET("/profile", h.Profile, middleware.RequireAuth)
	acc.POST("/logout", h.Logout, middleware.RequireAuth)

	otp := acc.Group("/otp", middleware.RequireAuth)
	otp.GET("/status", h.OTPStatus)
	otp.GET("/secret", h.OTPSecret)
	otp.POST("/enable", h.OTPEnable)
	otp.POST("/disable", h.OTPDisable)

	api.POST("/mail/code/send", h.SendMailCode)
	api.GET("/config/common", h.CommonConfig)

	if h.assets != nil {
		api.POST("/assets/upload/pre-sign", h.PresignUpload)
	}
}
