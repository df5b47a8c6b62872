package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrProcessExited = errors.New("transport: server process exited")

// Process talks to a server started as a child process over its stdin and
// stdout. The child's stderr is forwarded to the log.
type Process struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	chunks      chan []byte
	pending     []byte
	readTimeout time.Duration
	closed      chan struct{}

	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

// StartProcess runs argv and connects to its stdio. The process is killed
// when ctx ends.
func StartProcess(ctx context.Context, argv []string, cfg Config) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("transport: empty server command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	cmd.Stderr = log.Logger.With().Str("component", "server").Logger()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start %s: %w", argv[0], err)
	}
	log.Debug().Strs("command", argv).Int("pid", cmd.Process.Pid).Msg("server process started")

	p := &Process{
		cmd:         cmd,
		stdin:       stdin,
		chunks:      make(chan []byte, 16),
		readTimeout: cfg.ReadTimeout,
		closed:      make(chan struct{}),
	}
	go p.pump(stdout)
	return p, nil
}

func (p *Process) pump(r io.Reader) {
	defer close(p.chunks)
	for {
		buf := make([]byte, 256)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- buf[:n]:
			case <-p.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Read returns up to n bytes. It returns no bytes and no error when the
// read timeout expires first.
func (p *Process) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(p.pending) == 0 {
		var timeout <-chan time.Time
		if p.readTimeout > 0 {
			timer := time.NewTimer(p.readTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				return nil, ErrProcessExited
			}
			p.pending = chunk
		case <-timeout:
			return nil, nil
		}
	}
	n = min(n, len(p.pending))
	out := p.pending[:n]
	p.pending = p.pending[n:]
	return out, nil
}

func (p *Process) Write(b []byte) error {
	if _, err := p.stdin.Write(b); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close closes the child's stdin and waits for it to exit, killing it
// after grace.
func (p *Process) Close(grace time.Duration) error {
	_ = p.stdin.Close()
	p.closeOnce.Do(func() { close(p.closed) })
	done := make(chan struct{})
	go func() {
		p.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-done
	}
	return p.waitErr
}

func (p *Process) wait() {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(p.waitErr, &exitErr) {
			log.Debug().Int("exit_code", exitErr.ExitCode()).Msg("server process exited")
		}
	})
}
