package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTLSRequired             = errors.New("transport: tls required")
	ErrTLSCertFileRequired     = errors.New("transport: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("transport: tls key file required")
	ErrTLSCAFileRequired       = errors.New("transport: tls ca file required")
	ErrInvalidTimeout          = errors.New("transport: invalid timeout")
	ErrInvalidBackoff          = errors.New("transport: invalid backoff")
	ErrConnectAttemptsExceeded = errors.New("transport: connect attempts exceeded")
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines connection timeouts. ReadTimeout bounds a single Read;
// a read that times out returns no bytes, which the client reports as a
// response timeout.
type Config struct {
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
	TLS                TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		ReadTimeout:        time.Second,
		WriteTimeout:       time.Second,
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Validate checks timeouts and the client TLS settings.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"connect":   c.ConnectTimeout,
		"handshake": c.HandshakeTimeout,
		"read":      c.ReadTimeout,
		"write":     c.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s timeout must be positive, got %v", ErrInvalidTimeout, name, d)
		}
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidBackoff)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("%w: multiplier %v below 1", ErrInvalidBackoff, c.Backoff.Multiplier)
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CAFile) == "" && !c.TLS.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.TLS.Mutual {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}
