package registry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func deadlineNow() time.Time {
	return time.Now().Add(5 * time.Second)
}

// Registration is a single routing group: two credential hashes, a
// topology kind, the set of attached connections, and a destroy flag.
// kind is immutable after creation; destroy is monotonic (false -> true,
// never reversed).
type Registration struct {
	id                 string
	participantKeyHash string
	hostKeyHash        string
	kind               Kind

	connMu      sync.RWMutex
	connections []*Connection

	destroyMu sync.RWMutex
	destroy   bool
}

// ID returns the registration's 8-character identifier.
func (reg *Registration) ID() string { return reg.id }

// Kind returns the registration's topology.
func (reg *Registration) Kind() Kind { return reg.kind }

// AddConnection wraps sink in a Connection tagged with role, appends it to
// the registration's connection list under the write lock, and returns it.
// The lock is held only for the insertion.
func (reg *Registration) AddConnection(sink *websocket.Conn, role Role) *Connection {
	c := newConnection(sink, role)

	reg.connMu.Lock()
	reg.connections = append(reg.connections, c)
	reg.connMu.Unlock()

	return c
}

// IsDestroyed reports the current value of the destroy flag.
func (reg *Registration) IsDestroyed() bool {
	reg.destroyMu.RLock()
	defer reg.destroyMu.RUnlock()
	return reg.destroy
}

// setDestroy sets destroy true. Monotonic: once true, further calls are a
// no-op.
func (reg *Registration) setDestroy() {
	reg.destroyMu.Lock()
	defer reg.destroyMu.Unlock()
	reg.destroy = true
}

// Connections returns a snapshot copy of the currently attached connections.
// Used by the remove handler to wake blocked Forwarders immediately instead
// of waiting out their idle timeout.
func (reg *Registration) Connections() []*Connection {
	reg.connMu.RLock()
	defer reg.connMu.RUnlock()
	out := make([]*Connection, len(reg.connections))
	copy(out, reg.connections)
	return out
}

// ConnectionCount returns the number of currently attached connections.
func (reg *Registration) ConnectionCount() int {
	reg.connMu.RLock()
	defer reg.connMu.RUnlock()
	return len(reg.connections)
}

// RemoveConnection removes the connection with the given id, if present,
// and returns it along with the remaining connection count.
func (reg *Registration) RemoveConnection(id string) (*Connection, int) {
	reg.connMu.Lock()
	defer reg.connMu.Unlock()

	for i, c := range reg.connections {
		if c.id == id {
			reg.connections = append(reg.connections[:i], reg.connections[i+1:]...)
			return c, len(reg.connections)
		}
	}
	return nil, len(reg.connections)
}

// recipientMatches implements the role compatibility table of spec.md §3.
func recipientMatches(sender, recipient Role) bool {
	switch sender {
	case RoleSocket:
		return recipient == RoleSocket
	case RoleHost:
		return recipient == RoleClient
	case RoleClient:
		return recipient == RoleHost
	default:
		return false
	}
}

// FanOut acquires the connections write-lock and invokes deliver once per
// peer whose role matches the sender's recipient column and whose id
// differs from the sender's — deliver is responsible for the actual send
// and for logging any failure; a failure must not stop iteration over the
// remaining peers. The lock is held for the whole iteration intentionally,
// so a concurrent Drain cannot remove a peer mid-iteration.
func (reg *Registration) FanOut(senderID string, senderRole Role, deliver func(peer *Connection)) {
	reg.connMu.Lock()
	defer reg.connMu.Unlock()

	for _, peer := range reg.connections {
		if peer.id == senderID {
			continue
		}
		if recipientMatches(senderRole, peer.role) {
			deliver(peer)
		}
	}
}
