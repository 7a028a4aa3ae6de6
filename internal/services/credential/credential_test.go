// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/meta-1/wiki/internal/services/credential"
	"github.com/meta-1/wiki/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptIncoming(t *testing.T) {
	keys := testutil.NewRSAKeys(t)
	ciphertext := testutil.EncryptForClient(t, keys.PublicPEM, "s3cret-Pass")

	plain, err := credential.DecryptIncoming(ciphertext, keys.PrivatePEM)

	require.NoError(t, err)
	assert.Equal(t, "s3cret-Pass", plain)
}

func TestDecryptIncoming_PKCS8AndBareBase64(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	ciphertext := testutil.EncryptForClient(t, pubPEM, "hello")

	t.Run("pkcs8 pem", func(t *testing.T) {
		privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
		plain, err := credential.DecryptIncoming(ciphertext, privPEM)
		require.NoError(t, err)
		assert.Equal(t, "hello", plain)
	})

	t.Run("bare base64 der", func(t *testing.T) {
		plain, err := credential.DecryptIncoming(ciphertext, base64.StdEncoding.EncodeToString(der))
		require.NoError(t, err)
		assert.Equal(t, "hello", plain)
	})
}

func TestDecryptIncoming_Failures(t *testing.T) {
	keys := testutil.NewRSAKeys(t)
	other := testutil.NewRSAKeys(t)
	ciphertext := testutil.EncryptForClient(t, keys.PublicPEM, "hello")

	tests := []struct {
		name       string
		ciphertext string
		key        string
	}{
		{"not base64", "%%%", keys.PrivatePEM},
		{"garbage bytes", base64.StdEncoding.EncodeToString([]byte("garbage")), keys.PrivatePEM},
		{"wrong key", ciphertext, other.PrivatePEM},
		{"empty key", ciphertext, ""},
		{"malformed key", ciphertext, "not a key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credential.DecryptIncoming(tt.ciphertext, tt.key)
			assert.ErrorIs(t, err, credential.ErrCrypto)
		})
	}
}

func TestStorageRoundTrip(t *testing.T) {
	tests := []struct {
		plaintext string
		key       string
	}{
		{"P1", "storage-key"},
		{"", "storage-key"},
		{"unicode 密码 ✓", "another key"},
		{string(make([]byte, 1024)), "k"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			enc, err := credential.EncryptForStorage(tt.plaintext, tt.key)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, enc)

			dec, err := credential.DecryptStored(enc, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, dec)
		})
	}
}

func TestEncryptForStorage_RandomNonce(t *testing.T) {
	a, err := credential.EncryptForStorage("same", "key")
	require.NoError(t, err)
	b, err := credential.EncryptForStorage("same", "key")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptStored_Failures(t *testing.T) {
	enc, err := credential.EncryptForStorage("P1", "right-key")
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
		key        string
	}{
		{"wrong key", enc, "wrong-key"},
		{"empty key", enc, ""},
		{"not base64", "***", "right-key"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), "right-key"},
		{"tampered", enc[:len(enc)-4] + "AAAA", "right-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credential.DecryptStored(tt.ciphertext, tt.key)
			assert.ErrorIs(t, err, credential.ErrCrypto)
		})
	}
}
