// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credential converts client-encrypted passwords into the stored form
// and back.
//
// Clients encrypt the password with the published RSA public key (PKCS#1 v1.5,
// as produced by JSEncrypt). The server decrypts it and re-encrypts it with
// AES-256-GCM under a key derived from the configured passphrase. Storage is
// reversible on purpose: login recovers both plaintexts and compares them.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrCrypto is wrapped by every failure in this package.
var ErrCrypto = errors.New("credential crypto failure")

const keyInfo = "wiki/account/password"

// DecryptIncoming decrypts a base64 RSA ciphertext with the PEM private key.
func DecryptIncoming(ciphertext, privateKeyPEM string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrCrypto, err)
	}

	plain, err := rsa.DecryptPKCS1v15(nil, key, raw)
	if err != nil {
		return "", fmt.Errorf("%w: rsa decrypt: %v", ErrCrypto, err)
	}
	return string(plain), nil
}

// EncryptForStorage encrypts plaintext with AES-256-GCM. The result is
// base64(nonce || ciphertext).
func EncryptForStorage(plaintext, secret string) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrCrypto, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptStored reverses EncryptForStorage.
func DecryptStored(ciphertext, secret string) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode stored value: %v", ErrCrypto, err)
	}

	ns := gcm.NonceSize()
	if len(raw) < ns+gcm.Overhead() {
		return "", fmt.Errorf("%w: stored value too short", ErrCrypto)
	}

	plain, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: aes open: %v", ErrCrypto, err)
	}
	return string(plain), nil
}

// ParsePrivateKey accepts PKCS#1 or PKCS#8 PEM, or the bare base64 DER body.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := decodeKeyMaterial(s)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrCrypto, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrCrypto)
	}
	return key, nil
}

func decodeKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty key", ErrCrypto)
	}
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return block.Bytes, nil
	}
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: key is neither PEM nor base64", ErrCrypto)
	}
	return der, nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty storage key", ErrCrypto)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrCrypto, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return gcm, nil
}
