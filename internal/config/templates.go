package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", TransportTCP:
		return tcpTemplate, nil
	case TransportStdio:
		return stdioTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tcpTemplate = `definition = "example.lrpc.yaml"
log_level = "info"
check_server_version = true
# metrics_textfile = "lrpcc.prom"

[transport]
kind = "tcp"
address = "localhost:5000"
connect_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "1s"
write_timeout = "1s"
max_connect_attempts = 3

[transport.backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true

[transport.tls]
enabled = false
mutual = false
ca_file = ""
cert_file = ""
key_file = ""
server_name = ""
insecure_skip_verify = false
`

const stdioTemplate = `definition = "example.lrpc.yaml"
log_level = "warn"
check_server_version = false

[transport]
kind = "stdio"
command = ["./server", "--stdio"]
`
