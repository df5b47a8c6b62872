// Package protocol owns the LotusRPC wire contract.
//
// Ownership boundary:
// - message header contract
// - little-endian value codec over the schema type model
// - error taxonomy shared by frame, client and transport layers
package protocol
