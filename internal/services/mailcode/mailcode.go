// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mailcode issues and verifies the six-digit codes that gate
// registration and OTP changes.
package mailcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
)

// Action scopes a code; the same identity may hold one code per action.
type Action string

const (
	ActionRegister   Action = "register"
	ActionOTPEnable  Action = "otp-enable"
	ActionOTPDisable Action = "otp-disable"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
	keyPrefix          = "mail:code:"
)

var (
	ErrUnknownAction = errors.New("unknown mail code action")

	codePattern = regexp.MustCompile(`^\d{6}$`)
)

// ParseAction validates a client-supplied action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRegister, ActionOTPEnable, ActionOTPDisable:
		return a, nil
	}
	return "", ErrUnknownAction
}

// ValidCode reports whether code has the six-digit shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Sender delivers a code to its recipient.
type Sender interface {
	SendCode(ctx context.Context, to, action, code string) error
}

// verifyLua consumes a matching code, or counts a miss.
// KEYS[1] = code key
// ARGV[1] = sha256 hex of the submitted code
// ARGV[2] = max attempts
// Returns 1 on match, 0 otherwise.
var verifyLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'hash')
if not stored then
  return 0
end
if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
end
return 0
`)

// Service stores codes in Redis under mail:code:<action>:<identity>.
type Service struct {
	rdb         redis.UniversalClient
	sender      Sender
	ttl         time.Duration
	maxAttempts int
}

// NewService creates a code service. Zero ttl or maxAttempts use defaults.
func NewService(rdb redis.UniversalClient, sender Sender, ttl time.Duration, maxAttempts int) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		rdb:         rdb,
		sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

// Send issues a fresh code for (identity, action) and delivers it.
// A previous outstanding code for the same pair is replaced.
func (s *Service) Send(ctx context.Context, identity string, action Action) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	key := codeKey(identity, action)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", hashCode(code), "attempts", 0)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store mail code: %w", err)
	}

	if err := s.sender.SendCode(ctx, identity, string(action), code); err != nil {
		_ = s.rdb.Del(ctx, key).Err()
		return fmt.Errorf("failed to deliver mail code: %w", err)
	}

	slog.Info("mail_code_sent", "identity", identity, "action", action)
	return nil
}

// Verify reports whether code is the outstanding code for (identity, action).
// A match consumes the code. Wrong, expired and missing codes yield false.
func (s *Service) Verify(ctx context.Context, identity string, action Action, code string) (bool, error) {
	if !ValidCode(code) {
		return false, nil
	}

	n, err := verifyLua.Run(ctx, s.rdb, []string{codeKey(identity, action)}, hashCode(code), s.maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("failed to verify mail code: %w", err)
	}
	if n != 1 {
		slog.Warn("mail_code_rejected", "identity", identity, "action", action)
		return false, nil
	}
	return true, nil
}

func codeKey(identity string, action Action) string {
	return keyPrefix + string(action) + ":" + identity
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
