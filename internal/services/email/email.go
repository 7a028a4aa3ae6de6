// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers verification codes.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meta-1/wiki/internal/config"
	"github.com/meta-1/wiki/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service sends codes over SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{cfg: cfg}, nil
}

// SendCode mails a verification code for the given action.
func (s *Service) SendCode(ctx context.Context, to, action, code string) error {
	msg, err := s.NewMessage(ctx, to, action, code)
	if err != nil {
		return err
	}
	return s.send(msg)
}

// NewMessage builds the localized code message without sending it.
func (s *Service) NewMessage(ctx context.Context, to, action, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(i18n.T(ctx, "mail_code_subject"))
	msg.SetBodyString(mail.TypeTextPlain, CodeBody(ctx, action, code))

	return msg, nil
}

// CodeBody renders the localized message text.
func CodeBody(ctx context.Context, action, code string) string {
	return i18n.TData(ctx, "mail_code_body", map[string]any{
		"Code":   code,
		"Action": i18n.T(ctx, "mail_action_"+action),
	})
}

// send sends an email via SMTP using go-mail.
func (s *Service) send(msg *mail.Msg) error {
	// Build client options
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogSender writes codes to the log instead of mailing them.
// Used when no SMTP host is configured.
type LogSender struct{}

func (LogSender) SendCode(ctx context.Context, to, action, code string) error {
	slog.InfoContext(ctx, "mail_code_logged", "to", to, "action", action, "code", code)
	return nil
}
