// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package accountconfig holds the key material used by the account flows.
// The active snapshot is replaced atomically so it can be reloaded at runtime.
package accountconfig

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/meta-1/wiki/internal/apperror"
	"github.com/meta-1/wiki/internal/services/credential"
)

const defaultExpiresIn = "7d"

// Config is one snapshot of the account key material.
type Config struct {
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
	AESKey     string `toml:"aes_key"`
	ExpiresIn  string `toml:"expires_in"`
}

// Validate checks that all keys are present, the private key parses and
// ExpiresIn parses.
func (c *Config) Validate() error {
	var errs []error
	if c.PublicKey == "" {
		errs = append(errs, errors.New("public_key is required"))
	}
	if c.PrivateKey == "" {
		errs = append(errs, errors.New("private_key is required"))
	} else if _, err := credential.ParsePrivateKey(c.PrivateKey); err != nil {
		errs = append(errs, fmt.Errorf("invalid private_key: %w", err))
	}
	if c.AESKey == "" {
		errs = append(errs, errors.New("aes_key is required"))
	}
	if _, err := ParseExpiresIn(c.ExpiresIn); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ExpiresInDuration returns the token lifetime.
func (c *Config) ExpiresInDuration() time.Duration {
	d, err := ParseExpiresIn(c.ExpiresIn)
	if err != nil {
		d, _ = ParseExpiresIn(defaultExpiresIn)
	}
	return d
}

// ParseExpiresIn parses "7d", "2w", "12h", "90m" and so on. Empty means 7d.
func ParseExpiresIn(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = defaultExpiresIn
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}

	var d time.Duration
	if unit > 0 {
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid expires_in %q", s)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("expires_in %q is too large", s)
		}
		d = time.Duration(n) * unit
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid expires_in %q", s)
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("expires_in must be positive, got %q", s)
	}
	return d, nil
}

// Store holds the active snapshot.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore returns an empty store. Get fails until Set succeeds.
func NewStore() *Store {
	return &Store{}
}

// Set validates cfg and atomically replaces the active snapshot.
func (s *Store) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid account config: %w", err)
	}
	s.current.Store(&cfg)
	return nil
}

// Get returns the active snapshot or apperror.AccountConfigNotFound.
func (s *Store) Get() (*Config, error) {
	cfg := s.current.Load()
	if cfg == nil {
		return nil, apperror.AccountConfigNotFound
	}
	return cfg, nil
}

type fileLayout struct {
	Account Config `toml:"account"`
}

// LoadFile reads the [account] table of a TOML file into the store.
// On any error the previous snapshot stays active.
func (s *Store) LoadFile(path string) error {
	var f fileLayout
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("failed to read account config: %w", err)
	}
	return s.Set(f.Account)
}
