package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Dial connects to address, retrying with backoff up to
// cfg.MaxConnectAttempts times. Zero attempts retries until ctx ends.
func Dial(ctx context.Context, address string, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		conn, err := dialOnce(ctx, address, cfg)
		if err == nil {
			log.Debug().Str("address", address).Int("attempt", attempt).Bool("tls", cfg.TLS.Enabled).Msg("transport connected")
			return NewConn(conn, cfg), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectAttemptsExceeded, address, attempt, err)
		}
		delay := cfg.Backoff.retryDelay(attempt, rng)
		log.Warn().Err(err).Str("address", address).Int("attempt", attempt).Dur("retry_in", delay).Msg("transport dial failed")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay is the pause after failed dial attempt n (1-based). The
// delay grows by Multiplier per attempt up to MaxDelay; jitter scales the
// result into [0.5, 1.5) of that, or to half without an rng.
func (b BackoffConfig) retryDelay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	delay := b.InitialDelay
	for i := 1; i < n; i++ {
		if b.Multiplier > 1 {
			delay = time.Duration(float64(delay) * b.Multiplier)
		}
		if b.MaxDelay > 0 && delay >= b.MaxDelay {
			delay = b.MaxDelay
			break
		}
	}
	if !b.Jitter {
		return delay
	}
	scale := 0.5
	if rng != nil {
		scale += rng.Float64()
	}
	return time.Duration(float64(delay) * scale)
}

func dialOnce(ctx context.Context, address string, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}
	tlsCfg, err := ClientTLSConfig(address, cfg.TLS)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

// ClientTLSConfig builds the client side TLS configuration. The server
// name defaults to the host part of address.
func ClientTLSConfig(address string, c TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(c.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(c.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("transport: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if c.Mutual {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
