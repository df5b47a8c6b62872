package schema

import (
	"testing"
)

const testDefinitionYAML = `
name: test
namespace: ns
version: "1.2.3"
rx_buffer_size: 100
tx_buffer_size: 64
services:
  - name: srv0
    functions:
      - name: f0
      - name: f1
        params:
          - { name: p1, type: "@Outer" }
  - name: srv1
    id: 5
    functions:
      - name: add5
        params:
          - { name: p0, type: uint8_t }
        returns:
          - { name: r0, type: uint8_t }
  - name: srv2
    streams:
      - name: client_infinite
        origin: client
        params:
          - { name: p0, type: uint8_t }
          - { name: p1, type: uint16_t }
      - name: client_finite
        origin: client
        finite: true
        params:
          - { name: p0, type: uint8_t }
          - { name: p1, type: uint16_t }
      - name: server_infinite
        origin: server
        returns:
          - { name: p0, type: uint8_t }
          - { name: p1, type: uint16_t }
      - name: server_finite
        origin: server
        finite: true
        params:
          - { name: p0, type: uint8_t }
          - { name: p1, type: uint16_t }
structs:
  - name: Outer
    fields:
      - { name: a, type: "@Inner" }
  - name: Inner
    fields:
      - { name: a, type: uint16_t }
      - { name: b, type: uint8_t }
      - { name: c, type: bool }
enums:
  - name: Color
    fields:
      - red
      - { name: green, id: 5 }
      - blue
constants:
  - { name: max_items, value: 10 }
  - { name: ratio, value: 0.5 }
  - { name: magic, value: "cafe", cppType: bytearray }
`

func mustParse(t *testing.T, src string) *Definition {
	t.Helper()
	d, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	return d
}
