// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues signed tokens and tracks the server-side sessions
// that make them revocable.
//
// Clients only ever hold Hash(token). A request is authenticated when that
// hash resolves to a live session whose embedded token still verifies.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meta-1/wiki/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "session:"
	secretSize = 32
)

// User is the authenticated principal resolved from a session.
type User struct {
	ID       string
	Username string
}

// Record is the value stored for a session.
type Record struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims embedded in the signed token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager signs tokens and stores sessions in Redis.
type Manager struct {
	rdb    redis.UniversalClient
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager creates a session manager. An empty secret is replaced by a
// random one, which invalidates all sessions on restart.
func NewManager(rdb redis.UniversalClient, cfg *config.TokenConfig) (*Manager, error) {
	var secret []byte
	if cfg.Secret == "" {
		secret = make([]byte, secretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		slog.Warn("token secret not configured, using a random one; sessions will not survive restarts")
	} else {
		var err error
		secret, err = hex.DecodeString(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("invalid token secret: %w", err)
		}
		if len(secret) < secretSize {
			return nil, fmt.Errorf("invalid token secret: must be at least %d bytes", secretSize)
		}
	}

	return &Manager{
		rdb:    rdb,
		secret: secret,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Create signs a token for the account that expires after expiresIn.
func (m *Manager) Create(id, username string, expiresIn time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Login stores rec under the hash of its token until it expires.
func (m *Manager) Login(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := m.rdb.Set(ctx, keyPrefix+Hash(rec.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get resolves a token hash. It returns nil, nil when the session is
// missing, unreadable, or its token no longer verifies.
func (m *Manager) Get(ctx context.Context, tokenHash string) (*User, error) {
	if !validHash(tokenHash) {
		return nil, nil
	}

	data, err := m.rdb.Get(ctx, keyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("session_corrupt", "error", err)
		return nil, nil
	}

	claims, err := m.parse(rec.Token)
	if err != nil {
		slog.Debug("session_token_rejected", "error", err)
		return nil, nil
	}
	if claims.Subject != rec.ID {
		slog.Warn("session_subject_mismatch", "account_id", rec.ID)
		return nil, nil
	}

	return &User{ID: rec.ID, Username: rec.Username}, nil
}

// Logout deletes the session. Unknown hashes are ignored.
func (m *Manager) Logout(ctx context.Context, tokenHash string) error {
	if !validHash(tokenHash) {
		return nil
	}
	if err := m.rdb.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Hash is the public handle of a signed token: SHA-256, hex encoded.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func validHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
