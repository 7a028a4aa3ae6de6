// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/database"
	"github.com/meta-1/wiki/internal/models"
	"github.com/meta-1/wiki/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestRedis starts a miniredis server and a client connected to it.
// Use mr.FastForward to expire keys.
func NewTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// NewTestAccount inserts an active account with the given stored password.
func NewTestAccount(t *testing.T, repo *repository.Repository, email, storedPassword string) *models.Account {
	t.Helper()
	acc := &models.Account{
		Email:    email,
		Username: email,
		Password: storedPassword,
		Enable:   true,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), acc))
	return acc
}

// SoftDeleteAccount marks an account deleted directly in the database.
func SoftDeleteAccount(t *testing.T, repo *repository.Repository, id string) {
	t.Helper()
	_, err := repo.DB().ExecContext(context.Background(),
		`UPDATE accounts SET deleted = ? WHERE id = ?`, true, id)
	require.NoError(t, err)
}

// DisableAccount clears the enable flag directly in the database.
func DisableAccount(t *testing.T, repo *repository.Repository, id string) {
	t.Helper()
	_, err := repo.DB().ExecContext(context.Background(),
		`UPDATE accounts SET enable = ? WHERE id = ?`, false, id)
	require.NoError(t, err)
}

// RSAKeys is a PEM-encoded key pair.
type RSAKeys struct {
	PublicPEM  string
	PrivatePEM string
}

// NewRSAKeys generates a fresh 2048-bit pair (PKIX public, PKCS#1 private).
func NewRSAKeys(t *testing.T) RSAKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	return RSAKeys{
		PublicPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})),
	}
}

var (
	sharedKeysOnce sync.Once
	sharedKeys     RSAKeys
)

// SharedRSAKeys returns one pair per test binary; generating RSA keys per
// test is slow.
func SharedRSAKeys(t *testing.T) RSAKeys {
	t.Helper()
	sharedKeysOnce.Do(func() { sharedKeys = NewRSAKeys(t) })
	require.NotEmpty(t, sharedKeys.PrivatePEM)
	return sharedKeys
}

// EncryptForClient encrypts like the browser client does: RSA PKCS#1 v1.5,
// base64 output.
func EncryptForClient(t *testing.T, publicPEM, plaintext string) string {
	t.Helper()
	block, _ := pem.Decode([]byte(publicPEM))
	require.NotNil(t, block)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	pub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok)

	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(plaintext))
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(out)
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// CodeRecorder is a mail code sender that keeps the last code per
// recipient and action instead of delivering it.
type CodeRecorder struct {
	mu    sync.Mutex
	codes map[string]string
}

func (r *CodeRecorder) SendCode(_ context.Context, to, action, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes == nil {
		r.codes = map[string]string{}
	}
	r.codes[action+":"+to] = code
	return nil
}

// Code returns the last code sent to recipient for action.
func (r *CodeRecorder) Code(to, action string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[action+":"+to]
}
