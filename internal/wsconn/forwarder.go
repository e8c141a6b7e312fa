// Package wsconn implements the Forwarder: the per-connection task that
// reads inbound frames and broadcasts them to the correct peer subset,
// drives keepalive, and performs cooperative teardown.
//
// Grounded on internal/websocket/connection.go's single-writer-goroutine
// pattern (kept as registry.Connection's write-mutex serialization) and,
// directly, internal/websocket/handler.go's handleConnection ping-ticker/
// read-loop shape: a dedicated ticker goroutine owns ping emission, a
// SetPongHandler extends the read deadline, and the read loop itself treats
// any ReadMessage error — deadline expiry included — as terminal. This is
// not optional style preference: gorilla/websocket latches the first read
// error on a connection (Conn.NextReader stores it in c.readErr) and
// returns it on every subsequent ReadMessage call, eventually panicking
// with "repeated read on failed websocket connection" past 1000 such
// reads. A loop that tries to distinguish an idle-timeout read error from
// a terminal one and then keep reading the same Conn cannot work against
// this library — any surfaced ReadMessage error means the connection is
// done.
package wsconn

import (
	"time"

	"github.com/rs/zerolog"

	"wsrouter/internal/registry"
)

// idleTimeout is the ping interval (spec.md §4.4: a ping after 30s idle).
// readDeadlineWindow is wider than a single ping interval so that a ping
// in flight has time for its pong to arrive before the read deadline
// itself would expire — grounded on the teacher's "60-second read deadline
// with 30-second ping interval" pairing.
const (
	idleTimeout        = 30 * time.Second
	readDeadlineWindow = 2 * idleTimeout
)

// Forwarder owns the read loop for a single Connection within a single
// Registration. It holds only the Registration (for sibling access and the
// destroy flag) and the Registry (for the auto-remove lookup keyed by
// registration id) — never a back-pointer baked into the Connection or
// Registration themselves, per spec.md §9's arena+index guidance.
type Forwarder struct {
	reg        *registry.Registration
	reg2       *registry.Registry
	conn       *registry.Connection
	autoRemove bool
	log        zerolog.Logger
}

// New constructs a Forwarder for conn, a member of reg, tracked by reg2.
func New(reg2 *registry.Registry, reg *registry.Registration, conn *registry.Connection, autoRemove bool, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		reg2:       reg2,
		reg:        reg,
		conn:       conn,
		autoRemove: autoRemove,
		log: log.With().
			Str("registration_id", reg.ID()).
			Str("connection_id", conn.ID()).
			Str("role", string(conn.Role())).
			Logger(),
	}
}

// Run executes the Running/Draining state machine of spec.md §4.4 until the
// connection is torn down. It is meant to be called as `go f.Run()`.
func (f *Forwarder) Run() {
	if err := f.conn.SetReadDeadline(time.Now().Add(readDeadlineWindow)); err != nil {
		f.log.Warn().Err(err).Msg("failed to arm initial read deadline")
	}

	f.conn.SetPongHandler(func(string) error {
		// A pong does not count as message activity for fan-out purposes
		// (invariant 7); it only keeps the connection's read deadline from
		// expiring while the peer is otherwise idle.
		return f.conn.SetReadDeadline(time.Now().Add(readDeadlineWindow))
	})

	done := make(chan struct{})
	go f.pingLoop(done)
	defer close(done)

	for {
		messageType, data, err := f.conn.ReadMessage()
		if err != nil {
			// Any read error — EOF, close frame, idle-deadline expiry, a
			// forced Interrupt() from /remove — means this connection is
			// finished; gorilla/websocket never recovers a Conn once a read
			// has failed, so there is nothing to distinguish and continue on.
			break
		}

		if f.reg.IsDestroyed() {
			break
		}

		f.reg.FanOut(f.conn.ID(), f.conn.Role(), func(peer *registry.Connection) {
			if sendErr := peer.Send(messageType, data); sendErr != nil {
				f.log.Warn().Err(sendErr).Str("peer_connection_id", peer.ID()).Msg("fan-out send failed")
			}
		})
	}

	f.drain()
}

// pingLoop sends an empty-payload ping every idleTimeout until done is
// closed or a ping send fails (the latter means the sink is already dead;
// the read loop will observe the same failure on its next ReadMessage).
func (f *Forwarder) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := f.conn.Ping(); err != nil {
				return
			}
		}
	}
}

// drain detaches this connection from its registration, closes it
// gracefully, and — if the registration is now empty and auto-remove is
// enabled — deletes the registration from the registry.
func (f *Forwarder) drain() {
	removed, remaining := f.reg.RemoveConnection(f.conn.ID())
	if removed != nil {
		if err := removed.CloseGraceful(); err != nil {
			f.log.Debug().Err(err).Msg("graceful close did not complete cleanly")
		}
	}

	if remaining == 0 && f.autoRemove {
		if f.reg2.RemoveEmptyIfUnused(f.reg.ID()) {
			f.log.Info().Msg("auto-removed now-empty registration")
			return
		}
	}

	f.log.Info().Int("remaining_connections", remaining).Msg("connection drained")
}
