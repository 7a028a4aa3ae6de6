// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp_test

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/meta-1/wiki/internal/services/otp"
	"github.com/meta-1/wiki/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSecret_CachesPendingSecret(t *testing.T) {
	mr, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)
	ctx := context.Background()

	first, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, first, mustGet(t, mr.Get, "otp:secret:a@x.com"))
	assert.Equal(t, time.Minute, mr.TTL("otp:secret:a@x.com"))
}

func TestGetSecret_NewSecretAfterExpiry(t *testing.T) {
	mr, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)
	ctx := context.Background()

	first, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	cached, err := m.CachedSecret(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, cached)

	second, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGetSecret_PerIdentity(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "", 0)
	ctx := context.Background()

	a, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)
	b, err := m.GetSecret(ctx, "b@x.com")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeleteCachedSecret(t *testing.T) {
	mr, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)
	ctx := context.Background()
	_, err := m.GetSecret(ctx, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, m.DeleteCachedSecret(ctx, "a@x.com"))

	assert.False(t, mr.Exists("otp:secret:a@x.com"))
	require.NoError(t, m.DeleteCachedSecret(ctx, "a@x.com"), "deleting twice is fine")
}

func TestCheckAt(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)
	secret, err := m.GetSecret(context.Background(), "a@x.com")
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	code := func(at time.Time) string {
		c, err := otp.GenerateCode(secret, at)
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name     string
		code     string
		expected bool
	}{
		{"current window", code(now), true},
		{"previous window", code(now.Add(-30 * time.Second)), true},
		{"next window", code(now.Add(30 * time.Second)), true},
		{"two windows back", code(now.Add(-90 * time.Second)), false},
		{"malformed", "12a456", false},
		{"too short", "12345", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, otp.CheckAt(secret, tt.code, now))
		})
	}
}

func TestCheck_EmptySecret(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)

	assert.False(t, m.Check("", "123456"))
}

func TestCheck_CurrentCode(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)
	secret, err := m.GetSecret(context.Background(), "a@x.com")
	require.NoError(t, err)

	code, err := otp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.True(t, m.Check(secret, code))
}

func TestProvisioningURI(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)

	raw := m.ProvisioningURI("a@x.com", "JBSWY3DPEHPK3PXP")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, "/Wiki:a@x.com", u.Path)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", u.Query().Get("secret"))
	assert.Equal(t, "Wiki", u.Query().Get("issuer"))
	assert.Equal(t, "6", u.Query().Get("digits"))
}

func TestQRCode(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	m := otp.NewManager(rdb, "Wiki", time.Minute)

	qr, err := m.QRCode("a@x.com", "JBSWY3DPEHPK3PXP")

	require.NoError(t, err)
	require.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(qr, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	again, err := m.QRCode("a@x.com", "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Equal(t, qr, again, "rendering is deterministic")
}

func mustGet(t *testing.T, get func(string) (string, error), key string) string {
	t.Helper()
	v, err := get(key)
	require.NoError(t, err)
	return v
}
