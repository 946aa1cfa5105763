package broadcast

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// peer is one accepted stream connection. The server never reads
// application data from a peer (spec.md §4.5); peer.conn is read only by
// the periodic sweep, solely to detect disconnection.
type peer struct {
	id          uuid.UUID
	conn        net.Conn
	connectedAt time.Time
}

func newPeer(conn net.Conn) *peer {
	return &peer{
		id:          uuid.New(),
		conn:        conn,
		connectedAt: time.Now(),
	}
}
