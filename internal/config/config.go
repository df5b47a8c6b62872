package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/lotusrpc/internal/logging"
	"github.com/danmuck/lotusrpc/internal/transport"
)

const (
	TransportTCP   = "tcp"
	TransportStdio = "stdio"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the lrpcc runtime configuration.
type Config struct {
	Definition         string
	LogLevel           string
	CheckServerVersion bool
	MetricsTextfile    string
	Transport          TransportConfig
}

// TransportConfig selects the server connection. Address is used by the
// tcp kind; Command is the server process started by the stdio kind.
type TransportConfig struct {
	Kind    string
	Address string
	Command []string
	transport.Config
}

// lrpcc.toml key mapping.
type fileConfig struct {
	Definition         string        `toml:"definition"`
	LogLevel           string        `toml:"log_level"`
	CheckServerVersion bool          `toml:"check_server_version"`
	MetricsTextfile    string        `toml:"metrics_textfile"`
	Transport          fileTransport `toml:"transport"`
}

type fileTransport struct {
	Kind               string      `toml:"kind"`
	Address            string      `toml:"address"`
	Command            []string    `toml:"command"`
	ConnectTimeout     string      `toml:"connect_timeout"`
	HandshakeTimeout   string      `toml:"handshake_timeout"`
	ReadTimeout        string      `toml:"read_timeout"`
	WriteTimeout       string      `toml:"write_timeout"`
	MaxConnectAttempts int         `toml:"max_connect_attempts"`
	Backoff            fileBackoff `toml:"backoff"`
	TLS                fileTLS     `toml:"tls"`
}

type fileBackoff struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type fileTLS struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func Default() Config {
	return Config{
		LogLevel:           "info",
		CheckServerVersion: true,
		Transport: TransportConfig{
			Kind:   TransportTCP,
			Config: transport.DefaultConfig(),
		},
	}
}

// Load reads path over the defaults. Relative file paths in the config
// are resolved against the config file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load lrpcc config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}

	base := filepath.Dir(path)
	if meta.IsDefined("definition") {
		cfg.Definition = resolve(base, raw.Definition)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("check_server_version") {
		cfg.CheckServerVersion = raw.CheckServerVersion
	}
	if meta.IsDefined("metrics_textfile") {
		cfg.MetricsTextfile = resolve(base, raw.MetricsTextfile)
	}

	t := &cfg.Transport
	rt := raw.Transport
	if meta.IsDefined("transport", "kind") {
		t.Kind = strings.ToLower(strings.TrimSpace(rt.Kind))
	}
	if meta.IsDefined("transport", "address") {
		t.Address = strings.TrimSpace(rt.Address)
	}
	if meta.IsDefined("transport", "command") {
		t.Command = rt.Command
	}
	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"transport", "connect_timeout"}, rt.ConnectTimeout, &t.ConnectTimeout},
		{[]string{"transport", "handshake_timeout"}, rt.HandshakeTimeout, &t.HandshakeTimeout},
		{[]string{"transport", "read_timeout"}, rt.ReadTimeout, &t.ReadTimeout},
		{[]string{"transport", "write_timeout"}, rt.WriteTimeout, &t.WriteTimeout},
		{[]string{"transport", "backoff", "initial_delay"}, rt.Backoff.InitialDelay, &t.Backoff.InitialDelay},
		{[]string{"transport", "backoff", "max_delay"}, rt.Backoff.MaxDelay, &t.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	if meta.IsDefined("transport", "max_connect_attempts") {
		t.MaxConnectAttempts = rt.MaxConnectAttempts
	}
	if meta.IsDefined("transport", "backoff", "multiplier") {
		t.Backoff.Multiplier = rt.Backoff.Multiplier
	}
	if meta.IsDefined("transport", "backoff", "jitter") {
		t.Backoff.Jitter = rt.Backoff.Jitter
	}
	if meta.IsDefined("transport", "tls") {
		t.TLS = transport.TLSConfig{
			Enabled:            rt.TLS.Enabled,
			Mutual:             rt.TLS.Mutual,
			CAFile:             resolve(base, rt.TLS.CAFile),
			CertFile:           resolve(base, rt.TLS.CertFile),
			KeyFile:            resolve(base, rt.TLS.KeyFile),
			ServerName:         strings.TrimSpace(rt.TLS.ServerName),
			InsecureSkipVerify: rt.TLS.InsecureSkipVerify,
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Definition) == "" {
		return fmt.Errorf("%w: definition is required", ErrInvalidConfig)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, cfg.LogLevel)
	}
	switch cfg.Transport.Kind {
	case TransportTCP:
		if strings.TrimSpace(cfg.Transport.Address) == "" {
			return fmt.Errorf("%w: transport.address is required for tcp", ErrInvalidConfig)
		}
		if err := cfg.Transport.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case TransportStdio:
		if len(cfg.Transport.Command) == 0 || strings.TrimSpace(cfg.Transport.Command[0]) == "" {
			return fmt.Errorf("%w: transport.command is required for stdio", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport.kind %q (expected tcp or stdio)", ErrInvalidConfig, cfg.Transport.Kind)
	}
	return nil
}

func resolve(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
