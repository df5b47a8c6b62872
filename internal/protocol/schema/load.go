package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ParseRaw decodes a .lrpc.yaml document without resolving it.
func ParseRaw(r io.Reader) (RawDefinition, error) {
	var raw RawDefinition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return RawDefinition{}, ValidationError{Reason: "empty definition"}
		}
		return RawDefinition{}, fmt.Errorf("schema: decode yaml: %w", err)
	}
	return raw, nil
}

// Load decodes and resolves a definition.
func Load(r io.Reader) (*Definition, error) {
	raw, err := ParseRaw(r)
	if err != nil {
		return nil, err
	}
	return New(raw)
}

// Parse resolves a definition held in memory.
func Parse(b []byte) (*Definition, error) {
	return Load(bytes.NewReader(b))
}

// LoadFile resolves the definition stored at path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open definition: %w", err)
	}
	defer f.Close()
	log.Debug().Str("path", path).Msg("schema: loading definition")
	def, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
