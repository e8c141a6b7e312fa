package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Role is a connection's function within its Registration.
type Role string

const (
	RoleSocket Role = "socket"
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Connection is a handle to one attached socket. Its sink is exclusively
// owned by the Forwarder reading for this connection, except that it is
// briefly locked by sibling connections performing fan-out writes — writeMu
// is exactly that brief lock.
type Connection struct {
	id   string
	role Role

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// newConnection mints a fresh connection id and wraps sink.
func newConnection(sink *websocket.Conn, role Role) *Connection {
	return &Connection{
		id:   uuid.New().String(),
		role: role,
		conn: sink,
	}
}

// ID returns the connection's opaque identifier.
func (c *Connection) ID() string { return c.id }

// Role returns the connection's role.
func (c *Connection) Role() Role { return c.role }

// Send writes a single WebSocket message frame, serialized against any
// concurrent sibling fan-out write to the same sink.
func (c *Connection) Send(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Ping sends an empty-payload ping control frame.
func (c *Connection) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, deadlineNow())
}

// ReadMessage blocks for the next inbound frame. It is never called
// concurrently with itself — only the owning Forwarder reads.
func (c *Connection) ReadMessage() (messageType int, data []byte, err error) {
	return c.conn.ReadMessage()
}

// SetPongHandler installs the handler invoked on inbound pong control frames.
func (c *Connection) SetPongHandler(h func(appData string) error) {
	c.conn.SetPongHandler(h)
}

// SetReadDeadline arms the read deadline the Forwarder's pong handler keeps
// extending as long as the peer answers pings. If it ever expires, the next
// ReadMessage returns an error, which the Forwarder treats like any other
// read error: terminal.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Interrupt closes the underlying transport without a graceful close
// handshake. Used to wake a Forwarder blocked in ReadMessage immediately —
// e.g. when an explicit /remove needs its forwarders to observe the
// destroy flag now, rather than at their next idle-timeout ping — instead
// of leaving it to time out. The Forwarder's own drain step still performs
// the graceful CloseGraceful bookkeeping (detach + best-effort close frame)
// once it wakes up; calling Close twice on gorilla's Conn is harmless.
func (c *Connection) Interrupt() error {
	return c.conn.Close()
}

// CloseGraceful sends a close control frame (best-effort) and closes the
// underlying transport.
func (c *Connection) CloseGraceful() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadlineNow())
	c.writeMu.Unlock()
	return c.conn.Close()
}
