// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	TLS      TLSConfig
	Account  AccountConfig
	Token    TokenConfig
	OTP      OTPConfig
	MailCode MailCodeConfig
	Cache    CacheConfig
	SMTP     SMTPConfig
	S3       S3Config
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string // file path / sqlite DSN, or postgres:// URL
}

type RedisConfig struct {
	URL string // redis://[user:pass@]host:port/db
}

// TLSConfig selects how HTTPS is served.
type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // generated and ACME certificates
	Email    string // ACME account email
	CertFile string // manual mode
	KeyFile  string // manual mode
}

// AccountConfig points to the reloadable key material file.
type AccountConfig struct {
	ConfigFile string
}

type TokenConfig struct {
	Secret string // hex-encoded HMAC key, generated per process if empty
	Issuer string
}

type OTPConfig struct {
	Issuer    string
	SecretTTL time.Duration
}

type MailCodeConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type CacheConfig struct {
	ProfileTTL time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PresignExpiry time.Duration
}

// Enabled reports whether asset pre-signing is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// UseTLS reports whether HTTPS is served for the given host.
func (c TLSConfig) UseTLS(host string) bool {
	switch strings.ToLower(c.Mode) {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default:
		return !IsLocalhost(host)
	}
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Redis: RedisConfig{
			URL: cmd.String("redis-url"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Account: AccountConfig{
			ConfigFile: cmd.String("account-config"),
		},
		Token: TokenConfig{
			Secret: cmd.String("token-secret"),
			Issuer: cmd.String("token-issuer"),
		},
		OTP: OTPConfig{
			Issuer:    cmd.String("otp-issuer"),
			SecretTTL: cmd.Duration("otp-secret-ttl"),
		},
		MailCode: MailCodeConfig{
			TTL:         cmd.Duration("mail-code-ttl"),
			MaxAttempts: int(cmd.Int("mail-code-max-attempts")),
		},
		Cache: CacheConfig{
			ProfileTTL: cmd.Duration("profile-cache-ttl"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		S3: S3Config{
			Bucket:        cmd.String("s3-bucket"),
			Region:        cmd.String("s3-region"),
			Endpoint:      cmd.String("s3-endpoint"),
			AccessKey:     cmd.String("s3-access-key"),
			SecretKey:     cmd.String("s3-secret-key"),
			PresignExpiry: cmd.Duration("s3-presign-expiry"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	if strings.EqualFold(cfg.TLS.Mode, "acme") {
		return fmt.Sprintf("https://%s", host)
	}

	scheme := "http"
	if cfg.TLS.UseTLS(host) {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Value:   "redis://localhost:6379/0",
			Usage:   "Redis URL for sessions, codes and cache",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("redis.url", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for generated and ACME certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Account flags
		&cli.StringFlag{
			Name:    "account-config",
			Value:   "./data/account.toml",
			Usage:   "Path to the account key file (reloaded on SIGHUP)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCOUNT_CONFIG"), toml.TOML("account.config_file", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Token signing key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_SECRET"), toml.TOML("token.secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "token-issuer",
			Value:   "wiki",
			Usage:   "Token issuer claim",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_ISSUER"), toml.TOML("token.issuer", configFile)),
		},
		// OTP flags
		&cli.StringFlag{
			Name:    "otp-issuer",
			Value:   "Wiki",
			Usage:   "Issuer shown in authenticator apps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_ISSUER"), toml.TOML("otp.issuer", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-secret-ttl",
			Value:   10 * time.Minute,
			Usage:   "Lifetime of a pending OTP secret",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_SECRET_TTL"), toml.TOML("otp.secret_ttl", configFile)),
		},
		// Mail code flags
		&cli.DurationFlag{
			Name:    "mail-code-ttl",
			Value:   5 * time.Minute,
			Usage:   "Lifetime of an e-mail verification code",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_CODE_TTL"), toml.TOML("mail_code.ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "mail-code-max-attempts",
			Value:   5,
			Usage:   "Wrong guesses allowed before a code is burned",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_CODE_MAX_ATTEMPTS"), toml.TOML("mail_code.max_attempts", configFile)),
		},
		// Cache flags
		&cli.DurationFlag{
			Name:    "profile-cache-ttl",
			Value:   time.Hour,
			Usage:   "Lifetime of cached profile lookups",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROFILE_CACHE_TTL"), toml.TOML("cache.profile_ttl", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (codes are logged when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// S3 flags
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "Bucket for asset uploads (pre-sign disabled when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_BUCKET"), toml.TOML("s3.bucket", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_REGION"), toml.TOML("s3.region", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "S3-compatible endpoint URL (e.g. MinIO)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_ENDPOINT"), toml.TOML("s3.endpoint", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "S3 access key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_ACCESS_KEY"), toml.TOML("s3.access_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "S3 secret key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_SECRET_KEY"), toml.TOML("s3.secret_key", configFile)),
		},
		&cli.DurationFlag{
			Name:    "s3-presign-expiry",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of pre-signed upload URLs",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_PRESIGN_EXPIRY"), toml.TOML("s3.presign_expiry", configFile)),
		},
	}
}
