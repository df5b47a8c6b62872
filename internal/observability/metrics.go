package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/lotusrpc/internal/protocol"
)

var (
	registerOnce sync.Once

	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrpc",
			Subsystem: "client",
			Name:      "messages_total",
			Help:      "Messages sent to and received from the server.",
		},
		[]string{"direction", "service", "target"},
	)
	messageBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrpc",
			Subsystem: "client",
			Name:      "message_bytes_total",
			Help:      "Bytes sent to and received from the server, headers included.",
		},
		[]string{"direction", "service", "target"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrpc",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Completed calls, client stream messages and server streams.",
		},
		[]string{"service", "target", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lrpc",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from request to last response.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "target"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messages, messageBytes, requests, requestDuration)
	})
}

// ClientMetrics records client traffic in the default registry. It
// satisfies client.Observer.
type ClientMetrics struct{}

func NewClientMetrics() ClientMetrics {
	RegisterMetrics()
	return ClientMetrics{}
}

func (ClientMetrics) MessageSent(service, target string, size int) {
	messages.WithLabelValues("sent", service, target).Inc()
	messageBytes.WithLabelValues("sent", service, target).Add(float64(size))
}

func (ClientMetrics) MessageReceived(service, target string, size int) {
	messages.WithLabelValues("received", service, target).Inc()
	messageBytes.WithLabelValues("received", service, target).Add(float64(size))
}

func (ClientMetrics) Completed(service, target string, elapsed time.Duration, err error) {
	requests.WithLabelValues(service, target, Outcome(err)).Inc()
	requestDuration.WithLabelValues(service, target).Observe(elapsed.Seconds())
}

// Outcome classifies a request error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrServerError):
		return "server_error"
	case errors.Is(err, protocol.ErrEncode):
		return "encode_error"
	case errors.Is(err, protocol.ErrDecode):
		return "decode_error"
	case errors.Is(err, protocol.ErrProtocol):
		return "protocol_error"
	default:
		return "error"
	}
}

// WriteTextfile writes the default registry in the text exposition format,
// for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	RegisterMetrics()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("observability: write metrics %s: %w", path, err)
	}
	return nil
}
