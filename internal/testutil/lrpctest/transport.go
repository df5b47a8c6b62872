package lrpctest

import (
	"bytes"
	"sync"
)

// Transport replays scripted server bytes and records client writes.
// Reads past the script return no bytes, which clients treat as a
// timeout.
type Transport struct {
	mu       sync.Mutex
	incoming []byte
	written  [][]byte
	writeErr error
}

func NewTransport(incoming ...[]byte) *Transport {
	return &Transport{incoming: bytes.Join(incoming, nil)}
}

// Feed appends bytes to the scripted server output.
func (t *Transport) Feed(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.incoming = append(t.incoming, p...)
}

// FailWrites makes every following Write return err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *Transport) Read(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.incoming) {
		n = len(t.incoming)
	}
	p := append([]byte(nil), t.incoming[:n]...)
	t.incoming = t.incoming[n:]
	return p, nil
}

func (t *Transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, append([]byte(nil), p...))
	return nil
}

// Written returns every message written so far.
func (t *Transport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

// Pending is the number of scripted bytes not read yet.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.incoming)
}
