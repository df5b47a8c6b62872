package client

import (
	"bytes"
	"context"
	"fmt"

	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

const disabled = "[disabled]"

// Versions identifies one side of the connection.
type Versions struct {
	LotusRPC   string
	Definition string
	Hash       string
}

// VersionReport compares client and server.
type VersionReport struct {
	Client Versions
	Server Versions
}

func (r VersionReport) HashMatch() bool { return r.Client.Hash == r.Server.Hash }

func (r VersionReport) Match() bool { return r.Client == r.Server }

// CheckServerVersion calls LrpcMeta.version and compares the result with
// the local definition. Any difference is logged. A definition hash
// difference means the two sides disagree on the wire format and is
// returned as protocol.ErrDefinitionMismatch; version string differences
// are only reported.
func (c *Client) CheckServerVersion(ctx context.Context) (VersionReport, error) {
	report := VersionReport{Client: Versions{
		LotusRPC:   protocol.LibraryVersion,
		Definition: orDisabled(c.def.Version()),
		Hash:       orDisabled(c.def.Hash()),
	}}
	resp, err := c.Call(ctx, schema.MetaServiceName, schema.MetaVersionFunction, nil)
	if err != nil {
		return report, err
	}
	report.Server = Versions{
		LotusRPC:   orDisabled(stringValue(resp.Payload["lrpc"])),
		Definition: orDisabled(stringValue(resp.Payload["definition"])),
		Hash:       stringValue(resp.Payload["definition_hash"]),
	}
	if report.Match() {
		return report, nil
	}
	c.log.Warn().Msg("Server mismatch detected. Details client vs server:")
	c.log.Warn().Msgf("LotusRPC version: %s vs %s", report.Client.LotusRPC, report.Server.LotusRPC)
	c.log.Warn().Msgf("Definition version: %s vs %s", report.Client.Definition, report.Server.Definition)
	c.log.Warn().Msgf("Definition hash: %s... vs %s...", prefix(report.Client.Hash, 16), prefix(report.Server.Hash, 16))
	if !report.HashMatch() {
		return report, fmt.Errorf("%w: definition hash %s vs %s", protocol.ErrDefinitionMismatch, report.Client.Hash, report.Server.Hash)
	}
	return report, nil
}

// RetrieveDefinition reads the definition embedded in the server over the
// LrpcMeta definition stream. It returns the resolved definition and its
// YAML source.
func (c *Client) RetrieveDefinition(ctx context.Context) (*schema.Definition, []byte, error) {
	stream, err := c.Start(ctx, schema.MetaServiceName, schema.MetaDefinitionStream)
	if err != nil {
		return nil, nil, err
	}
	var compressed bytes.Buffer
	for resp, err := range stream.All(ctx) {
		if err != nil {
			return nil, nil, err
		}
		chunk, _ := resp.Payload["chunk"].([]byte)
		compressed.Write(chunk)
	}
	if compressed.Len() == 0 {
		return nil, nil, protocol.Errorf("server does not embed its definition")
	}
	source, err := schema.Decompress(compressed.Bytes())
	if err != nil {
		return nil, nil, err
	}
	def, err := schema.Parse(source)
	if err != nil {
		return nil, source, err
	}
	c.log.Info().
		Str("name", def.Name()).
		Str("hash", def.Hash()).
		Int("bytes", len(source)).
		Msg("retrieved definition")
	return def, source, nil
}

func orDisabled(s string) string {
	if s == "" {
		return disabled
	}
	return s
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
