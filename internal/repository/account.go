// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meta-1/wiki/internal/models"
)

// publicColumns leaves out password and otp_secret.
const publicColumns = `id, email, username, avatar, otp_status, otp_enable_time,
	enable, deleted, last_login_at, created_at, updated_at`

const credentialColumns = publicColumns + `, password, otp_secret`

// GetAccountByEmail returns the active account without secrets.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc,
		r.q(`SELECT `+publicColumns+` FROM accounts WHERE email = ? AND NOT deleted`), email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// GetAccountByID returns the active account without secrets.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc,
		r.q(`SELECT `+publicColumns+` FROM accounts WHERE id = ? AND NOT deleted`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// GetAccountCredentials returns the active account including the stored
// password and committed OTP secret.
func (r *Repository) GetAccountCredentials(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc,
		r.q(`SELECT `+credentialColumns+` FROM accounts WHERE email = ? AND NOT deleted`), email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// EmailExists checks for an active account with the given email.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		r.q(`SELECT count(*) FROM accounts WHERE email = ? AND NOT deleted`), email)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateAccount inserts acc, filling ID and timestamps when empty.
// A concurrent insert of the same email yields ErrDuplicate.
func (r *Repository) CreateAccount(ctx context.Context, acc *models.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO accounts (id, email, username, password, avatar, otp_status, enable, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		acc.ID, acc.Email, acc.Username, acc.Password, acc.Avatar,
		acc.OTPStatus, acc.Enable, false, acc.CreatedAt, acc.UpdatedAt)
	return wrapError(err)
}

// EnableOTP commits the secret and marks OTP as bound in one statement.
func (r *Repository) EnableOTP(ctx context.Context, email, secret string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE accounts SET otp_secret = ?, otp_status = ?, otp_enable_time = ?, updated_at = ?
		WHERE email = ? AND NOT deleted`),
		secret, models.OTPBound, at.UTC(), time.Now().UTC(), email)
	return affectedOne(res, err)
}

// DisableOTP clears the secret and marks OTP as unbound.
func (r *Repository) DisableOTP(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE accounts SET otp_secret = NULL, otp_status = ?, otp_enable_time = NULL, updated_at = ?
		WHERE email = ? AND NOT deleted`),
		models.OTPUnbound, time.Now().UTC(), email)
	return affectedOne(res, err)
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE accounts SET last_login_at = ? WHERE id = ? AND NOT deleted`),
		at.UTC(), id)
	return affectedOne(res, err)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func affectedOne(res rowsAffected, err error) error {
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
