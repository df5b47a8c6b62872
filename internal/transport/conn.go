package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Conn adapts a net.Conn to the client transport contract. Each Read and
// Write is bounded by the configured timeout.
type Conn struct {
	conn         net.Conn
	r            *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConn(conn net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:         conn,
		r:            bufio.NewReader(conn),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Read returns up to n bytes. It returns no bytes and no error when the
// read timeout expires first.
func (c *Conn) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if c.r.Buffered() == 0 && c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	}
	buf := make([]byte, n)
	got, err := c.r.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return buf[:got], nil
		}
		return buf[:got], fmt.Errorf("transport: read: %w", err)
	}
	return buf[:got], nil
}

func (c *Conn) Write(p []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("transport: set write deadline: %w", err)
		}
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *Conn) Close() error { return c.conn.Close() }

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Stream adapts a reader and writer pair, such as a serial device or a
// child process's stdio. End of input reads as a timeout.
type Stream struct {
	r *bufio.Reader
	w io.Writer
}

func NewStream(r io.Reader, w io.Writer) *Stream {
	return &Stream{r: bufio.NewReader(r), w: w}
}

func (s *Stream) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := s.r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return buf[:got], fmt.Errorf("transport: read: %w", err)
	}
	return buf[:got], nil
}

func (s *Stream) Write(p []byte) error {
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}
