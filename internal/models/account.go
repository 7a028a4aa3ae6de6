// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// OTP binding states stored in accounts.otp_status.
const (
	OTPUnbound = 0
	OTPBound   = 1
)

// Account is a row of the accounts table.
// Password and OTPSecret are only populated by the credentials projection.
type Account struct { //nolint:govet // fieldalignment not critical for models
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	Username      string     `db:"username" json:"username"`
	Password      string     `db:"password" json:"-"`
	Avatar        *string    `db:"avatar" json:"avatar,omitempty"`
	OTPSecret     *string    `db:"otp_secret" json:"-"`
	OTPStatus     int        `db:"otp_status" json:"otpStatus"`
	OTPEnableTime *time.Time `db:"otp_enable_time" json:"otpEnableTime,omitempty"`
	Enable        bool       `db:"enable" json:"enable"`
	Deleted       bool       `db:"deleted" json:"-"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// OTPBound reports whether a second factor is required at login.
func (a *Account) OTPBound() bool {
	return a.OTPStatus == OTPBound
}

// Token is handed to the client after register/login.
// Token holds the session hash, never the signed token itself.
type Token struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // milliseconds
}

// OTPStatus is the response of the OTP status endpoint.
type OTPStatus struct {
	Enable     bool       `json:"enable"`
	EnableTime *time.Time `json:"enableTime,omitempty"`
}

// OTPSecret is the enrollment payload shown to the user.
type OTPSecret struct {
	Secret   string `json:"secret"`
	QRCode   string `json:"qrcode"`
	Username string `json:"username"`
}

// PresignedUpload describes a pre-signed asset upload.
type PresignedUpload struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}
