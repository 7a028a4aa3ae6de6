// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp manages pending TOTP secrets and validates codes.
//
// A secret handed out for enrollment lives only in Redis until the account
// commits it; the account record is never touched here.
package otp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"regexp"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSecretTTL = 10 * time.Minute
	DefaultIssuer    = "Wiki"

	period    = 30
	skew      = 1
	qrSize    = 200
	keyPrefix = "otp:secret:"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      skew,
	Digits:    potp.DigitsSix,
	Algorithm: potp.AlgorithmSHA1,
}

// Manager owns the otp:secret:<identity> keys.
type Manager struct {
	rdb    redis.UniversalClient
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. Empty issuer or zero ttl use defaults.
func NewManager(rdb redis.UniversalClient, issuer string, ttl time.Duration) *Manager {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultSecretTTL
	}
	return &Manager{rdb: rdb, issuer: issuer, ttl: ttl, now: time.Now}
}

// GetSecret returns the pending secret for identity, generating and caching
// one if none is outstanding. Concurrent callers converge on one secret.
func (m *Manager) GetSecret(ctx context.Context, identity string) (string, error) {
	secret, err := m.CachedSecret(ctx, identity)
	if err != nil || secret != "" {
		return secret, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: identity,
		Period:      period,
		Digits:      potp.DigitsSix,
		Algorithm:   potp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate otp secret: %w", err)
	}

	ok, err := m.rdb.SetNX(ctx, secretKey(identity), key.Secret(), m.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to cache otp secret: %w", err)
	}
	if !ok {
		return m.CachedSecret(ctx, identity)
	}
	return key.Secret(), nil
}

// CachedSecret returns the pending secret, or "" when none is outstanding.
func (m *Manager) CachedSecret(ctx context.Context, identity string) (string, error) {
	secret, err := m.rdb.Get(ctx, secretKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read otp secret: %w", err)
	}
	return secret, nil
}

// DeleteCachedSecret drops the pending secret.
func (m *Manager) DeleteCachedSecret(ctx context.Context, identity string) error {
	if err := m.rdb.Del(ctx, secretKey(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete otp secret: %w", err)
	}
	return nil
}

// ProvisioningURI builds the otpauth:// URI understood by authenticator apps.
func (m *Manager) ProvisioningURI(identity, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", "30")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + m.issuer + ":" + identity,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// QRCode renders the provisioning URI as a PNG data URL.
func (m *Manager) QRCode(identity, secret string) (string, error) {
	key, err := potp.NewKeyFromURL(m.ProvisioningURI(identity, secret))
	if err != nil {
		return "", fmt.Errorf("failed to build otp key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Check validates a 6-digit code against secret at the current time.
func (m *Manager) Check(secret, code string) bool {
	return CheckAt(secret, code, m.now())
}

// CheckAt validates code against secret at t, accepting one adjacent step
// on either side.
func CheckAt(secret, code string, t time.Time) bool {
	if secret == "" || !codePattern.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, validateOpts)
	return err == nil && ok
}

// GenerateCode returns the code for secret at t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts)
}

func secretKey(identity string) string {
	return keyPrefix + identity
}
