// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meta-1/wiki/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

const (
	certExpiryWarning = 30 * 24 * time.Hour
	selfSignedLife    = 365 * 24 * time.Hour
)

type tlsMode string

const (
	tlsOff        tlsMode = "off"
	tlsACME       tlsMode = "acme"
	tlsSelfSigned tlsMode = "selfsigned"
	tlsManual     tlsMode = "manual"
)

// tlsSetup is the resolved HTTPS configuration. challenge is only set in
// ACME mode and serves HTTP-01 challenges plus the redirect to HTTPS.
type tlsSetup struct {
	mode      tlsMode
	config    *tls.Config
	challenge http.Handler
}

// portAvailable reports whether the port can be bound. Replaced in tests.
var portAvailable = func(port int) bool {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func setupTLS(cfg *config.Config) (*tlsSetup, error) {
	mode := resolveTLSMode(cfg)
	slog.Info("TLS mode", "mode", mode)

	switch mode {
	case tlsACME:
		if err := checkACME(cfg); err != nil {
			return nil, err
		}
		return setupACME(cfg)
	case tlsSelfSigned:
		return setupSelfSigned(cfg)
	case tlsManual:
		tlsConfig, err := setupManual(&cfg.TLS)
		if err != nil {
			return nil, err
		}
		return &tlsSetup{mode: tlsManual, config: tlsConfig}, nil
	default:
		return &tlsSetup{mode: tlsOff}, nil
	}
}

// resolveTLSMode honors an explicit mode. In auto mode localhost stays on
// plain HTTP, configured files win, then ACME when it can work, then a
// self-signed certificate.
func resolveTLSMode(cfg *config.Config) tlsMode {
	switch mode := strings.ToLower(cfg.TLS.Mode); mode {
	case "off", "acme", "selfsigned", "manual":
		return tlsMode(mode)
	case "auto", "":
	default:
		slog.Warn("unknown TLS mode, using auto", "mode", mode)
	}

	if config.IsLocalhost(cfg.Server.Host) {
		return tlsOff
	}
	if cfg.TLS.CertFile != "" || cfg.TLS.KeyFile != "" {
		return tlsManual
	}
	if acmeAvailable(cfg) {
		return tlsACME
	}
	return tlsSelfSigned
}

func checkACME(cfg *config.Config) error {
	if cfg.TLS.Email == "" {
		return fmt.Errorf("ACME mode requires TLS_EMAIL to be set")
	}
	if cfg.Server.Port != 443 {
		slog.Warn("ACME mode listens on 443, configured port is ignored", "configured_port", cfg.Server.Port)
	}
	for _, port := range []int{80, 443} {
		if !portAvailable(port) {
			return fmt.Errorf("ACME mode requires port %d (port in use)", port)
		}
	}
	return nil
}

func acmeAvailable(cfg *config.Config) bool {
	host := cfg.Server.Host
	switch {
	case config.IsLocalhost(host):
		return false
	case net.ParseIP(host) != nil:
		slog.Debug("ACME disabled: host is an IP address")
		return false
	case cfg.TLS.Email == "":
		slog.Debug("ACME disabled: no email configured")
		return false
	}
	return portAvailable(80) && portAvailable(443)
}

func setupACME(cfg *config.Config) (*tlsSetup, error) {
	dir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(dir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}
	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	slog.Info("Using Let's Encrypt", "host", cfg.Server.Host, "email", cfg.TLS.Email)
	return &tlsSetup{
		mode:      tlsACME,
		config:    tlsConfig,
		challenge: manager.HTTPHandler(nil),
	}, nil
}

// setupSelfSigned reuses the certificate under CertDir/selfsigned and
// generates a new one when it is missing, broken or close to expiry.
func setupSelfSigned(cfg *config.Config) (*tlsSetup, error) {
	dir := filepath.Join(cfg.TLS.CertDir, "selfsigned")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create self-signed cert directory: %w", err)
	}
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err == nil && !isCertExpiringSoon(&cert) {
		slog.Info("Using existing self-signed certificate", "cert", certFile)
	} else {
		switch {
		case err == nil:
			slog.Info("self-signed certificate expiring soon, generating new one")
		case !errors.Is(err, os.ErrNotExist):
			slog.Warn("self-signed certificate invalid, generating new one", "error", err)
		}
		generated, genErr := generateSelfSigned(cfg.Server.Host, certFile, keyFile)
		if genErr != nil {
			return nil, genErr
		}
		cert = *generated
		slog.Info("Generated self-signed certificate", "cert", certFile)
	}

	logCertFingerprint(&cert)
	slog.Warn("Clients must trust the self-signed certificate explicitly")
	return &tlsSetup{mode: tlsSelfSigned, config: createTLSConfig(&cert)}, nil
}

// setupManual loads the configured certificate pair.
func setupManual(cfg *config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("manual TLS requires both cert-file and key-file")
	}
	if _, err := os.Stat(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("certificate file not found: %w", err)
	}
	if _, err := os.Stat(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("key file not found: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	slog.Info("Using certificate", "cert", cfg.CertFile, "key", cfg.KeyFile)
	logCertFingerprint(&cert)
	if isCertExpiringSoon(&cert) {
		slog.Warn("Certificate expires within 30 days", "cert", cfg.CertFile)
	}
	return createTLSConfig(&cert), nil
}

// generateSelfSigned writes an ECDSA P-256 certificate for host plus the
// loopback names and returns it.
func generateSelfSigned(host, certFile, keyFile string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Wiki Self-Signed"}, CommonName: host},
		NotBefore:             now,
		NotAfter:              now.Add(selfSignedLife),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if host != "" {
		tmpl.DNSNames = append([]string{host}, tmpl.DNSNames...)
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write cert file: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load generated cert: %w", err)
	}
	return &cert, nil
}

// isCertExpiringSoon checks if certificate expires within 30 days.
func isCertExpiringSoon(cert *tls.Certificate) bool {
	if len(cert.Certificate) == 0 {
		return true
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return true
	}
	return time.Until(x509Cert.NotAfter) < certExpiryWarning
}

// certFingerprint returns the colon-separated SHA-256 of the leaf.
func certFingerprint(cert *tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	fingerprint := sha256.Sum256(cert.Certificate[0])
	hexParts := make([]string, len(fingerprint))
	for i, b := range fingerprint {
		hexParts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(hexParts, ":")
}

func logCertFingerprint(cert *tls.Certificate) {
	if fp := certFingerprint(cert); fp != "" {
		slog.Info("Certificate fingerprint", "sha256", fp)
	}
}

func createTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
}
