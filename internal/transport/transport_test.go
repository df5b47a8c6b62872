package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/danmuck/lotusrpc/internal/client"
	"github.com/danmuck/lotusrpc/internal/protocol/frame"
	"github.com/danmuck/lotusrpc/internal/testutil/lrpctest"
	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
	"github.com/danmuck/lotusrpc/internal/testutil/tlstest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 200 * time.Millisecond
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	return cfg
}

// serveAdd5 answers srv1.add5 requests on every accepted connection.
func serveAdd5(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				f, err := frame.ReadFrame(conn, frame.DefaultLimits())
				if err != nil {
					return
				}
				reply := frame.Frame{Header: f.Header, Payload: []byte{f.Payload[0] + 5}}
				if err := frame.WriteFrame(conn, reply, frame.DefaultLimits()); err != nil {
					return
				}
			}
		}()
	}
}

func TestRetryDelayGrowsToMax(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := cfg.retryDelay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.retryDelay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.retryDelay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.retryDelay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}

	flat := BackoffConfig{InitialDelay: 100 * time.Millisecond}
	if got := flat.retryDelay(4, nil); got != 100*time.Millisecond {
		t.Fatalf("unset multiplier should keep the delay, got=%v", got)
	}
	if got := (BackoffConfig{}).retryDelay(3, nil); got != 0 {
		t.Fatalf("zero initial delay got=%v", got)
	}
}

func TestRetryDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := cfg.retryDelay(3, rng)
		if got < 200*time.Millisecond || got >= 600*time.Millisecond {
			t.Fatalf("jittered delay %v outside [200ms,600ms)", got)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, ErrInvalidTimeout},
		{"shrinking backoff", func(c *Config) { c.Backoff.Multiplier = 0.5 }, ErrInvalidBackoff},
		{"mutual without tls", func(c *Config) { c.TLS.Mutual = true }, ErrTLSRequired},
		{"tls without ca", func(c *Config) { c.TLS.Enabled = true }, ErrTLSCAFileRequired},
		{"mutual without cert", func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt", KeyFile: "c.key"}
		}, ErrTLSCertFileRequired},
		{"mutual without key", func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt", CertFile: "c.crt"}
		}, ErrTLSKeyFileRequired},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	cfg := DefaultConfig()
	cfg.TLS = TLSConfig{Enabled: true, InsecureSkipVerify: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("insecure tls without ca should validate: %v", err)
	}
}

func TestConnReadTimeoutReturnsNoBytes(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	cfg := testConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	conn := NewConn(local, cfg)

	p, err := conn.Read(4)
	if err != nil || len(p) != 0 {
		t.Fatalf("expected empty read on timeout, got % x, %v", p, err)
	}

	conn.readTimeout = 2 * time.Second
	go func() { _, _ = remote.Write([]byte{0x04, 0x01, 0x00, 0xCD}) }()
	var got []byte
	for len(got) < 4 {
		p, err := conn.Read(4 - len(got))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(p) == 0 {
			t.Fatalf("unexpected timeout after % x", got)
		}
		got = append(got, p...)
	}
	if !bytes.Equal(got, []byte{0x04, 0x01, 0x00, 0xCD}) {
		t.Fatalf("unexpected bytes % x", got)
	}
}

func TestConnReadAfterClose(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	conn := NewConn(local, testConfig())
	_ = remote.Close()
	if _, err := conn.Read(1); err == nil {
		t.Fatalf("expected error reading from closed peer")
	}
	_ = conn.Close()
}

func TestStreamEndOfInputReadsEmpty(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	s := NewStream(bytes.NewReader([]byte{0x04, 0x01}), &out)
	p, err := s.Read(4)
	if err != nil || !bytes.Equal(p, []byte{0x04, 0x01}) {
		t.Fatalf("first read: % x, %v", p, err)
	}
	p, err = s.Read(2)
	if err != nil || len(p) != 0 {
		t.Fatalf("expected empty read at end of input, got % x, %v", p, err)
	}
	if err := s.Write([]byte{0x03, 0x00, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte{0x03, 0x00, 0x00}) {
		t.Fatalf("unexpected output % x", out.Bytes())
	}
}

func TestClientOverTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go serveAdd5(ln)

	ctx := context.Background()
	conn, err := Dial(ctx, ln.Addr().String(), testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := client.New(lrpctest.Definition(t), conn)
	resp, err := c.Call(ctx, "srv1", "add5", map[string]any{"p0": 37})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Payload["r0"] != uint8(42) {
		t.Fatalf("unexpected result %v", resp.Payload["r0"])
	}
}

func TestClientOverMutualTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "lrpc-test-ca")
	server := ca.IssueServer(t, dir)
	clientPair := ca.IssueClient(t, dir, "lrpcc")

	ln, err := tls.Listen("tcp", "127.0.0.1:0", ca.ServerConfig(t, server, true))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go serveAdd5(ln)

	cfg := testConfig()
	cfg.TLS = TLSConfig{
		Enabled:  true,
		Mutual:   true,
		CAFile:   ca.CAFile(),
		CertFile: clientPair.CertFile,
		KeyFile:  clientPair.KeyFile,
	}
	ctx := context.Background()
	conn, err := Dial(ctx, ln.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := client.New(lrpctest.Definition(t), conn)
	resp, err := c.Call(ctx, "srv1", "add5", map[string]any{"p0": 1})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Payload["r0"] != uint8(6) {
		t.Fatalf("unexpected result %v", resp.Payload["r0"])
	}
}

func TestDialTLSRejectsUnknownAuthority(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "lrpc-test-ca")
	other := tlstest.NewAuthority(t, t.TempDir(), "other-ca")
	ln, err := tls.Listen("tcp", "127.0.0.1:0", ca.ServerConfig(t, ca.IssueServer(t, dir), false))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go serveAdd5(ln)

	cfg := testConfig()
	cfg.MaxConnectAttempts = 1
	cfg.TLS = TLSConfig{Enabled: true, CAFile: other.CAFile()}
	if _, err := Dial(context.Background(), ln.Addr().String(), cfg); !errors.Is(err, ErrConnectAttemptsExceeded) {
		t.Fatalf("expected handshake failure, got %v", err)
	}
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := testConfig()
	cfg.MaxConnectAttempts = 2
	if _, err := Dial(context.Background(), addr, cfg); !errors.Is(err, ErrConnectAttemptsExceeded) {
		t.Fatalf("expected ErrConnectAttemptsExceeded, got %v", err)
	}
}

func TestDialStopsWithContext(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := testConfig()
	cfg.MaxConnectAttempts = 0
	cfg.Backoff.InitialDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Dial(ctx, addr, cfg); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
