// Package schema owns the resolved LotusRPC type model.
//
// Ownership boundary:
// - raw (YAML) definition shape and loading
// - id assignment and type reference resolution
// - structural rules the codec relies on
// - built-in meta service fragment
// - content hash and compressed self-description
// - read-only traversal for generators
package schema
