package schema

import (
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/sha3"
	"gopkg.in/yaml.v3"
)

// Canonical returns the canonical YAML serialization of raw. Hash and
// compressed self-description are both computed over these bytes.
func Canonical(raw RawDefinition) ([]byte, error) {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: canonical yaml: %w", err)
	}
	return b, nil
}

func (d *Definition) digest(raw RawDefinition) error {
	canonical, err := Canonical(raw)
	if err != nil {
		return err
	}
	sum := sha3.Sum256(canonical)
	d.hash = hex.EncodeToString(sum[:])[:d.hashLength]
	if !d.embedDefinition {
		return nil
	}
	d.compressed, err = Compress(canonical)
	return err
}

// Compress zstd compresses a definition for embedding.
func Compress(canonical []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("schema: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(canonical, nil), nil
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("schema: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("schema: decompress definition: %w", err)
	}
	return out, nil
}
