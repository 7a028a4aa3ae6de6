// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected string
	}{
		{
			name:     "HTTP default port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 80}},
			expected: "http://localhost",
		},
		{
			name:     "HTTP custom port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 8080}},
			expected: "http://localhost:8080",
		},
		{
			name: "HTTPS default port",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 443},
				TLS:    TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"},
			},
			expected: "https://example.com",
		},
		{
			name: "HTTPS custom port",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 8443},
				TLS:    TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"},
			},
			expected: "https://example.com:8443",
		},
		{
			name: "auto on a public host",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 8443},
			},
			expected: "https://example.com:8443",
		},
		{
			name: "off on a public host",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 8080},
				TLS:    TLSConfig{Mode: "off"},
			},
			expected: "http://example.com:8080",
		},
		{
			name: "selfsigned on localhost",
			cfg: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8443},
				TLS:    TLSConfig{Mode: "selfsigned"},
			},
			expected: "https://localhost:8443",
		},
		{
			name: "acme ignores port",
			cfg: &Config{
				Server: ServerConfig{Host: "wiki.example.com", Port: 8080},
				TLS:    TLSConfig{Mode: "ACME"},
			},
			expected: "https://wiki.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(tt.cfg))
		})
	}
}

func TestTLSConfig_UseTLS(t *testing.T) {
	tests := []struct {
		mode     string
		host     string
		expected bool
	}{
		{"", "localhost", false},
		{"auto", "localhost", false},
		{"auto", "wiki.example.com", true},
		{"off", "wiki.example.com", false},
		{"manual", "localhost", true},
		{"selfsigned", "127.0.0.1", true},
		{"acme", "wiki.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, TLSConfig{Mode: tt.mode}.UseTLS(tt.host))
		})
	}
}

func TestS3Config_Enabled(t *testing.T) {
	assert.False(t, S3Config{}.Enabled())
	assert.True(t, S3Config{Bucket: "assets"}.Enabled())
}

func TestFlags(t *testing.T) {
	flags := Flags()

	assert.NotEmpty(t, flags)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "base-url", "log-level", "database-dsn", "redis-url",
		"account-config", "token-secret", "otp-issuer", "mail-code-ttl",
		"profile-cache-ttl", "smtp-host", "s3-bucket", "tls-cert-file",
		"tls-mode", "tls-cert-dir", "tls-email",
	} {
		assert.True(t, flagNames[name], "should have %s flag", name)
	}
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.NotNil(t, cfg)
			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, "text", cfg.Log.Format)
			assert.Equal(t, 5*time.Minute, cfg.MailCode.TTL)
			assert.Equal(t, 5, cfg.MailCode.MaxAttempts)
			assert.Equal(t, 10*time.Minute, cfg.OTP.SecretTTL)
			assert.Equal(t, time.Hour, cfg.Cache.ProfileTTL)
			assert.Equal(t, 15*time.Minute, cfg.S3.PresignExpiry)
			assert.False(t, cfg.S3.Enabled())
			assert.Equal(t, "auto", cfg.TLS.Mode)
			assert.Equal(t, "./data/certs", cfg.TLS.CertDir)

			assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://example.com", cfg.Server.BaseURL)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "postgres://wiki@db/wiki", cfg.Database.DSN)
			assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
			assert.Equal(t, 2*time.Minute, cfg.MailCode.TTL)
			assert.Equal(t, "assets", cfg.S3.Bucket)

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://example.com",
		"--log-level", "debug",
		"--database-dsn", "postgres://wiki@db/wiki",
		"--redis-url", "redis://cache:6379/1",
		"--mail-code-ttl", "2m",
		"--s3-bucket", "assets",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
