// Package client talks to a LotusRPC server over a byte transport.
//
// Ownership boundary:
// - argument checking against the resolved definition
// - request framing and response reassembly
// - function calls, client stream messages and server stream iteration
// - the LrpcMeta handshake: server errors, version check, definition retrieval
//
// A Client handles one request at a time and is not safe for concurrent
// use. Server streams are pulled one message per Next and run until the
// server marks the final message or the caller calls Stop.
package client
