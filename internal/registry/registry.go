// Package registry implements the Registration Registry: the in-memory
// mapping from an 8-character identifier to a Registration, and the
// Registration itself — the routing group that owns a set of connections,
// two credential hashes, a topology kind, and a destroy flag.
//
// Grounded on internal/session/manager.go's RWMutex+map CRUD shape, adapted
// from a database-backed session cache to a pure in-memory registry, and on
// internal/websocket/registry.go's connection bookkeeping, adapted from a
// single flat map to per-Registration connection lists.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"wsrouter/internal/appcred"
)

// Kind is a registration's topology.
type Kind string

const (
	KindLobby      Kind = "lobby"
	KindHostClient Kind = "hostclient"
)

// ParseKind maps the reg_type query value to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case string(KindLobby):
		return KindLobby, true
	case string(KindHostClient):
		return KindHostClient, true
	default:
		return "", false
	}
}

const idLength = 8

// Registry is the sole arbiter of registration create/lookup/remove.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Registration)}
}

// CreateParams bundles the inputs to Create.
type CreateParams struct {
	ParticipantSecret string
	HostSecret        string
	Kind              Kind
	RequestedID       string // optional; "" means none supplied
	RejectNoID        bool   // the --reject policy
	ProcessSecret     string
}

// Create hashes both secrets, allocates an identifier per spec.md §4.2's
// policy, inserts the new Registration, and returns its id.
func (r *Registry) Create(p CreateParams) (string, error) {
	participantHash, err := appcred.Hash(p.ParticipantSecret, p.ProcessSecret)
	if err != nil {
		return "", err
	}
	hostHash, err := appcred.Hash(p.HostSecret, p.ProcessSecret)
	if err != nil {
		return "", err
	}

	id, err := r.allocateID(p.RequestedID, p.RejectNoID)
	if err != nil {
		return "", err
	}

	reg := &Registration{
		id:                  id,
		participantKeyHash:  participantHash,
		hostKeyHash:         hostHash,
		kind:                p.Kind,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// TOCTOU re-verification: the id chosen under a read-lock (or freshly
	// drawn) must be re-checked for collision immediately before insertion,
	// since another Create could have taken it in between.
	if _, exists := r.entries[id]; exists {
		if p.RequestedID != "" && len(p.RequestedID) == idLength && p.RejectNoID {
			return "", ErrInUseID
		}
		id = r.redrawUnderWriteLock()
		reg.id = id
	}
	r.entries[id] = reg
	return id, nil
}

// allocateID implements the candidate-selection half of the identifier
// policy (run under the registry's read path, before the write-locked
// insertion in Create performs its TOCTOU re-check).
func (r *Registry) allocateID(requestedID string, rejectNoID bool) (string, error) {
	if requestedID != "" {
		if len(requestedID) != idLength {
			if rejectNoID {
				return "", ErrIncorrectLengthID
			}
			// Open question, resolved per spec.md §9: silently discard the
			// oversized/undersized id and fall through to a generated one.
			return r.freshID(), nil
		}

		r.mu.RLock()
		_, collides := r.entries[requestedID]
		r.mu.RUnlock()

		if collides {
			if rejectNoID {
				return "", ErrInUseID
			}
			return r.freshID(), nil
		}
		return requestedID, nil
	}

	return r.freshID(), nil
}

// freshID draws UUIDv4 8-char prefixes until one doesn't collide with a
// currently-known key. The final word is always had under the registry's
// write lock in Create's TOCTOU re-check; this loop is a best-effort filter
// to keep collisions rare in practice.
func (r *Registry) freshID() string {
	for {
		candidate := uuid.New().String()[:idLength]
		r.mu.RLock()
		_, collides := r.entries[candidate]
		r.mu.RUnlock()
		if !collides {
			return candidate
		}
	}
}

// redrawUnderWriteLock is called by Create, write-lock already held, when
// the TOCTOU re-check finds the chosen id was taken out from under it.
func (r *Registry) redrawUnderWriteLock() string {
	for {
		candidate := uuid.New().String()[:idLength]
		if _, collides := r.entries[candidate]; !collides {
			return candidate
		}
	}
}

// Lookup returns the Registration for id, if any.
func (r *Registry) Lookup(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[id]
	return reg, ok
}

// Remove marks the registration destroyed and deletes it from the map.
// Idempotent: removing a missing id returns ErrNotFound, never panics.
// Credential verification is the caller's responsibility — Remove trusts
// that it has already happened.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}

	// destroy must be set before the map entry disappears so that any
	// Forwarder still iterating sees the flag on its next check.
	reg.setDestroy()
	delete(r.entries, id)
	return nil
}

// RemoveEmptyIfUnused deletes id from the registry iff it still exists and
// currently has zero connections. Used by the Forwarder's drain step when
// --auto_remove is enabled. Returns true if it removed the entry.
func (r *Registry) RemoveEmptyIfUnused(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return false
	}
	if reg.ConnectionCount() != 0 {
		return false
	}
	delete(r.entries, id)
	return true
}

// Stats summarizes every registration for the /stats endpoint.
type Stats struct {
	ID          string
	Kind        Kind
	Connections int
	Destroyed   bool
}

// Snapshot returns a Stats entry per registration currently in the registry.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.entries))
	for id, reg := range r.entries {
		out = append(out, Stats{
			ID:          id,
			Kind:        reg.kind,
			Connections: reg.ConnectionCount(),
			Destroyed:   reg.IsDestroyed(),
		})
	}
	return out
}

// VerifyParticipant verifies key against this registration's participant hash.
func (reg *Registration) VerifyParticipant(key, processSecret string) bool {
	return appcred.Verify(reg.participantKeyHash, key, processSecret)
}

// VerifyHost verifies key against this registration's host hash.
func (reg *Registration) VerifyHost(key, processSecret string) bool {
	return appcred.Verify(reg.hostKeyHash, key, processSecret)
}
