// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account orchestrates registration, login and OTP enrollment on
// top of the credential, mail code, OTP and session services.
package account

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meta-1/wiki/internal/accountconfig"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/models"
	"github.com/meta-1/wiki/internal/repository"
	"github.com/meta-1/wiki/internal/services/credential"
	"github.com/meta-1/wiki/internal/services/mailcode"
	"github.com/meta-1/wiki/internal/services/otp"
	"github.com/meta-1/wiki/internal/services/session"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultProfileTTL = time.Hour
	profilePrefix     = "account:"
)

// Deps are the collaborators shared by Service and OTPService.
type Deps struct {
	Repo       *repository.Repository
	Redis      redis.UniversalClient
	MailCodes  *mailcode.Service
	OTP        *otp.Manager
	Sessions   *session.Manager
	Config     *accountconfig.Store
	ProfileTTL time.Duration
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.ProfileTTL <= 0 {
		deps.ProfileTTL = DefaultProfileTTL
	}
	return &Service{Deps: deps, now: time.Now}
}

// RegisterParams holds the parameters for account registration.
// Password is the client-side RSA ciphertext.
type RegisterParams struct {
	Email    string
	Code     string
	Password string
}

// LoginParams holds the parameters for login.
type LoginParams struct {
	Email    string
	Password string
	OTPCode  string
}

// Register creates an account after the register mail code verifies and
// returns a session token for it.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.Token, error) {
	exists, err := s.Repo.EmailExists(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if exists {
		return nil, apperror.AccountExists
	}

	ok, err := s.MailCodes.Verify(ctx, params.Email, mailcode.ActionRegister, params.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.MailCodeError
	}

	cfg, err := s.Config.Get()
	if err != nil {
		return nil, err
	}

	plain, err := credential.DecryptIncoming(params.Password, cfg.PrivateKey)
	if err != nil {
		slog.Warn("register_password_undecryptable", "email", params.Email, "error", err)
		return nil, fmt.Errorf("%w: %w", apperror.Validation, err)
	}
	stored, err := credential.EncryptForStorage(plain, cfg.AESKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	acc := &models.Account{
		Email:    params.Email,
		Username: usernameOf(params.Email),
		Password: stored,
		Enable:   true,
	}
	if err := s.Repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.AccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	token, err := s.issue(ctx, acc, cfg.ExpiresInDuration())
	if err != nil {
		return nil, err
	}

	slog.Info("register_success", "account_id", acc.ID, "email", acc.Email)
	return token, nil
}

// Login checks the password, and the TOTP code when one is bound.
// Unknown accounts and wrong passwords return the same LoginError.
func (s *Service) Login(ctx context.Context, params LoginParams) (*models.Token, error) {
	acc, err := s.Repo.GetAccountCredentials(ctx, params.Email)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("login_failed", "email", params.Email, "reason", "unknown_account")
		return nil, apperror.LoginError
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !acc.Enable {
		slog.Warn("login_failed", "email", params.Email, "reason", "disabled")
		return nil, apperror.LoginError
	}

	if acc.OTPBound() {
		if params.OTPCode == "" {
			return nil, apperror.OTPCodeRequired
		}
		secret := ""
		if acc.OTPSecret != nil {
			secret = *acc.OTPSecret
		}
		if !s.OTP.Check(secret, params.OTPCode) {
			slog.Warn("login_failed", "email", params.Email, "reason", "otp_code")
			return nil, apperror.OTPCodeInvalid
		}
	}

	cfg, err := s.Config.Get()
	if err != nil {
		return nil, err
	}

	if !passwordsMatch(params.Password, acc.Password, cfg) {
		slog.Warn("login_failed", "email", params.Email, "reason", "password")
		return nil, apperror.LoginError
	}

	if err := s.Repo.TouchLastLogin(ctx, acc.ID, s.now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	if err := s.EvictProfile(ctx, acc.Email); err != nil {
		slog.Warn("profile_evict_failed", "email", acc.Email, "error", err)
	}

	token, err := s.issue(ctx, acc, cfg.ExpiresInDuration())
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "account_id", acc.ID)
	return token, nil
}

// passwordsMatch decrypts both sides. Any crypto failure counts as a
// mismatch.
func passwordsMatch(incoming, stored string, cfg *accountconfig.Config) bool {
	given, err := credential.DecryptIncoming(incoming, cfg.PrivateKey)
	if err != nil {
		return false
	}
	want, err := credential.DecryptStored(stored, cfg.AESKey)
	if err != nil {
		slog.Error("stored_password_undecryptable", "error", err)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

func (s *Service) issue(ctx context.Context, acc *models.Account, expiresIn time.Duration) (*models.Token, error) {
	signed, err := s.Sessions.Create(acc.ID, acc.Email, expiresIn)
	if err != nil {
		return nil, err
	}

	err = s.Sessions.Login(ctx, session.Record{
		ID:        acc.ID,
		Username:  acc.Email,
		Token:     signed,
		ExpiresAt: s.now().Add(expiresIn),
	})
	if err != nil {
		return nil, err
	}

	return &models.Token{
		Token:     session.Hash(signed),
		ExpiresIn: expiresIn.Milliseconds(),
	}, nil
}

// Logout ends the session identified by tokenHash.
func (s *Service) Logout(ctx context.Context, tokenHash string) error {
	return s.Sessions.Logout(ctx, tokenHash)
}

// FindByEmail returns the active account or nil. Results are cached under
// account:<email> until ProfileTTL passes or EvictProfile is called.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	key := profilePrefix + email

	data, err := s.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var acc models.Account
		if jsonErr := json.Unmarshal(data, &acc); jsonErr == nil {
			return &acc, nil
		}
		slog.Warn("profile_cache_corrupt", "email", email)
	case !errors.Is(err, redis.Nil):
		slog.Warn("profile_cache_unavailable", "error", err)
	}

	acc, err := s.Repo.GetAccountByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if data, err := json.Marshal(acc); err == nil {
		if err := s.Redis.Set(ctx, key, data, s.ProfileTTL).Err(); err != nil {
			slog.Warn("profile_cache_unavailable", "error", err)
		}
	}
	return acc, nil
}

// EvictProfile drops the cached profile for email.
func (s *Service) EvictProfile(ctx context.Context, email string) error {
	if err := s.Redis.Del(ctx, profilePrefix+email).Err(); err != nil {
		return fmt.Errorf("failed to evict profile: %w", err)
	}
	return nil
}

func usernameOf(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
