package hub

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is a single WebSocket client of the notification hub, with a
// write mutex serializing outbound frames.
type Connection struct {
	ID        string   // connection ID (UUID), echoed back with submissions
	Conn      net.Conn // underlying TCP connection
	CreatedAt time.Time
	lastPing  atomic.Int64 // UnixNano of last client activity
	writeMu   sync.Mutex
}

// Touch records client activity now. The read loop calls it per frame while
// the heartbeat loop reads LastActive concurrently.
func (c *Connection) Touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last observed client activity.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame on the connection.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
