package main

import (
	"bytes"
	"math"
	"testing"

	"github.com/danmuck/lotusrpc/internal/client"
	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
	"github.com/danmuck/lotusrpc/internal/testutil/lrpctest"
	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
)

func TestFormatValue(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		in   any
		want string
	}{
		{uint8(42), "42 (0x2a)"},
		{int8(-5), "-5 (-0x5)"},
		{int64(math.MinInt64), "-9223372036854775808 (-0x8000000000000000)"},
		{uint64(math.MaxUint64), "18446744073709551615 (0xffffffffffffffff)"},
		{true, "true"},
		{float32(1.5), "1.5"},
		{"abc", "abc"},
		{[]byte{0x01, 0xab}, "[01 ab]"},
		{[]byte{}, "[]"},
		{nil, "None"},
		{[]any{uint16(1), "red"}, "[1 (0x1), red]"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.in); got != tc.want {
			t.Fatalf("formatValue(%#v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrintResponseAlignsNames(t *testing.T) {
	testlog.Start(t)
	def := lrpctest.Definition(t)
	var out bytes.Buffer
	printResponse(&out, def, client.Response{
		Service:    "srv3",
		Name:       "mixed",
		IsFunction: true,
		IsExpected: true,
		Payload: map[string]any{
			"ok":     true,
			"colors": []any{"red", "blue"},
			"points": []any{},
			"label":  nil,
		},
	}, 0)
	want := "ok    : true\ncolors: [red, blue]\npoints: []\nlabel : None\n"
	if out.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestPrintResponseMetaErrorStream(t *testing.T) {
	testlog.Start(t)
	def := lrpctest.Definition(t)
	payload := map[string]any{"type": "UnknownService", "p1": uint8(9), "p2": uint8(1), "p3": uint32(0), "message": ""}

	var out bytes.Buffer
	printResponse(&out, def, client.Response{
		Service: schema.MetaServiceName, Name: schema.MetaErrorStream,
		IsStream: true, IsError: true, Payload: payload,
	}, 0)
	if out.String() != "Server reported call to unknown service with ID 9. Function or stream ID is 1\n" {
		t.Fatalf("unexpected error output %q", out.String())
	}

	out.Reset()
	printResponse(&out, def, client.Response{
		Service: schema.MetaServiceName, Name: schema.MetaErrorStream,
		IsStream: true, IsError: true, IsExpected: true, Payload: payload,
	}, 3)
	if !bytes.HasPrefix(out.Bytes(), []byte("[#3]\ntype   : UnknownService\np1     : 9 (0x9)\n")) {
		t.Fatalf("listening on the error stream should print values, got:\n%s", out.String())
	}
}

func TestPrintServerErrorUnknownType(t *testing.T) {
	testlog.Start(t)
	def := lrpctest.Definition(t)
	var out bytes.Buffer
	printResponse(&out, def, client.Response{
		Service: schema.MetaServiceName, Name: schema.MetaErrorStream, IsStream: true, IsError: true,
		Payload: map[string]any{"type": "Overheated", "p1": uint8(1), "p2": uint8(2), "p3": uint32(3), "message": "hot"},
	}, 0)
	want := "Server reported an unknown error (type='Overheated') with the following properties:\np1=1\np2=2\np3=3\nmessage='hot'\n"
	if out.String() != want {
		t.Fatalf("got %q", out.String())
	}
}

func TestPrintServerErrorOpaque(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	printServerError(&out, &protocol.ServerError{Type: protocol.OpaqueServerError, Raw: []byte{0x07, 0xab}})
	if out.String() != "Server reported an error with an undecodable payload: [07 ab]\n" {
		t.Fatalf("got %q", out.String())
	}
}
