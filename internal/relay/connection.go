package relay

import (
	"github.com/goevery/contentsync/internal/protocol"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultSendBufferSize = 256

// Connection is the relay's view of a client: an id for set membership and
// an outbound queue drained by the transport. The relay closes Send when the
// connection leaves, is dropped as a slow consumer, or the relay stops.
type Connection struct {
	Id   string
	Send chan protocol.SyncMessage
}

func NewConnection(bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBufferSize
	}

	return &Connection{
		Id:   gonanoid.Must(),
		Send: make(chan protocol.SyncMessage, bufferSize),
	}
}
