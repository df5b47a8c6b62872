package transport

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/danmuck/lotusrpc/internal/client"
	"github.com/danmuck/lotusrpc/internal/protocol/frame"
	"github.com/danmuck/lotusrpc/internal/testutil/lrpctest"
	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
)

const helperEnv = "LRPC_TRANSPORT_HELPER"

// TestHelperProcess is the child side of the process tests. It serves
// srv1.add5 on stdio, or exits at once in "exit" mode.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process")
	}
	if mode == "exit" {
		os.Exit(0)
	}
	for {
		f, err := frame.ReadFrame(os.Stdin, frame.DefaultLimits())
		if err != nil {
			os.Exit(0)
		}
		reply := frame.Frame{Header: f.Header, Payload: []byte{f.Payload[0] + 5}}
		if err := frame.WriteFrame(os.Stdout, reply, frame.DefaultLimits()); err != nil {
			os.Exit(1)
		}
	}
}

func startHelper(t *testing.T, mode string) *Process {
	t.Helper()
	t.Setenv(helperEnv, mode)
	p, err := StartProcess(context.Background(), []string{os.Args[0], "-test.run=^TestHelperProcess$"}, testConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return p
}

func TestClientOverProcess(t *testing.T) {
	testlog.Start(t)
	p := startHelper(t, "add5")
	defer p.Close(time.Second)

	c := client.New(lrpctest.Definition(t), p)
	for _, in := range []int{0, 37, 250} {
		resp, err := c.Call(context.Background(), "srv1", "add5", map[string]any{"p0": in})
		if err != nil {
			t.Fatalf("call %d: %v", in, err)
		}
		if resp.Payload["r0"] != uint8(in+5) {
			t.Fatalf("add5(%d) = %v", in, resp.Payload["r0"])
		}
	}
}

func TestProcessReadTimeoutReturnsNoBytes(t *testing.T) {
	testlog.Start(t)
	p := startHelper(t, "add5")
	defer p.Close(time.Second)

	got, err := p.Read(4)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty read on timeout, got % x, %v", got, err)
	}
}

func TestProcessExitIsReported(t *testing.T) {
	testlog.Start(t)
	p := startHelper(t, "exit")
	defer p.Close(time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := p.Read(1)
		if errors.Is(err, ErrProcessExited) {
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	t.Fatalf("exit was never reported")
}

func TestStartProcessRejectsEmptyCommand(t *testing.T) {
	testlog.Start(t)
	if _, err := StartProcess(context.Background(), nil, testConfig()); err == nil {
		t.Fatalf("expected error for empty command")
	}
}
