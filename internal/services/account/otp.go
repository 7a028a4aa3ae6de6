// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/models"
	"github.com/meta-1/wiki/internal/repository"
	"github.com/meta-1/wiki/internal/services/mailcode"
)

// OTPService binds and unbinds TOTP second factors on accounts.
type OTPService struct {
	accounts *Service
}

func NewOTPService(accounts *Service) *OTPService {
	return &OTPService{accounts: accounts}
}

// Status reports whether the account has a bound second factor.
func (s *OTPService) Status(ctx context.Context, accountID string) (*models.OTPStatus, error) {
	acc, err := s.accounts.Repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.OTPStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &models.OTPStatus{
		Enable:     acc.OTPBound(),
		EnableTime: acc.OTPEnableTime,
	}, nil
}

// Secret hands out the pending secret for enrollment, creating one if
// needed, together with its QR code.
func (s *OTPService) Secret(ctx context.Context, accountID string) (*models.OTPSecret, error) {
	acc, err := s.accounts.Repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.AccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	secret, err := s.accounts.OTP.GetSecret(ctx, acc.Email)
	if err != nil {
		return nil, err
	}
	qr, err := s.accounts.OTP.QRCode(acc.Email, secret)
	if err != nil {
		return nil, err
	}

	return &models.OTPSecret{
		Secret:   secret,
		QRCode:   qr,
		Username: acc.Email,
	}, nil
}

// Enable commits the pending secret. Checks run in order: pending secret,
// mail code, TOTP code. Nothing is written unless all three pass.
func (s *OTPService) Enable(ctx context.Context, email, code, otpCode string) error {
	secret, err := s.accounts.OTP.CachedSecret(ctx, email)
	if err != nil {
		return err
	}
	if secret == "" {
		return apperror.OTPSecretNotFound
	}

	ok, err := s.accounts.MailCodes.Verify(ctx, email, mailcode.ActionOTPEnable, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.MailCodeError
	}

	if !s.accounts.OTP.Check(secret, otpCode) {
		return apperror.OTPCodeInvalid
	}

	if err := s.accounts.Repo.EnableOTP(ctx, email, secret, s.accounts.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.AccountNotFound
		}
		return fmt.Errorf("failed to enable otp: %w", err)
	}

	if err := s.accounts.OTP.DeleteCachedSecret(ctx, email); err != nil {
		slog.Warn("otp_secret_evict_failed", "email", email, "error", err)
	}
	if err := s.accounts.EvictProfile(ctx, email); err != nil {
		slog.Warn("profile_evict_failed", "email", email, "error", err)
	}

	slog.Info("otp_enabled", "email", email)
	return nil
}

// Disable unbinds the second factor after the otp-disable mail code verifies.
func (s *OTPService) Disable(ctx context.Context, email, code string) error {
	ok, err := s.accounts.MailCodes.Verify(ctx, email, mailcode.ActionOTPDisable, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.MailCodeError
	}

	if err := s.accounts.Repo.DisableOTP(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.AccountNotFound
		}
		return fmt.Errorf("failed to disable otp: %w", err)
	}

	if err := s.accounts.EvictProfile(ctx, email); err != nil {
		slog.Warn("profile_evict_failed", "email", email, "error", err)
	}

	slog.Info("otp_disabled", "email", email)
	return nil
}
