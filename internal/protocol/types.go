package protocol

import (
	"fmt"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// LibraryVersion is the LotusRPC version this client reports and compares
// against the server in the version handshake.
const LibraryVersion = "1.0.0"

const (
	// HeaderSize is the size of [length][service id][function or stream id].
	HeaderSize = 3
	// MaxMessageSize is the largest message the one-byte length can describe.
	MaxMessageSize = 255
)

// Header is the fixed message header. Size counts the whole message
// including itself.
type Header struct {
	Size    uint8
	Service uint8
	ID      uint8
}

// IsMetaError reports whether h addresses the LrpcMeta error stream.
func (h Header) IsMetaError() bool {
	return h.Service == schema.MetaServiceID && h.ID == schema.MetaErrorStreamID
}

func (h Header) String() string {
	return fmt.Sprintf("size=%d service=%d id=%d", h.Size, h.Service, h.ID)
}
