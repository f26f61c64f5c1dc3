// Package registry implements the subscriber registry described in
// spec.md §4.5/§5: a mutex-guarded set of connections, identified by their
// own identity rather than by value, paired with a condition variable the
// producer parks on while idle.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is the subset of a live WebSocket client the producer and
// control plane need. Implementations are expected to track their own
// "closed" state internally; Enqueue returning an error after the
// connection has gone away is this package's equivalent of the source's
// weak-reference upgrade failure — the registry reacts by removing the
// connection, it never inspects liveness any other way.
type Connection interface {
	ID() uuid.UUID
	// Enqueue hands msg to the connection's outbound queue. It must not
	// block; implementations return an error when the queue is full or
	// the connection is already gone.
	Enqueue(msg []byte) error
	// QueueLen reports how many messages are currently queued for send.
	QueueLen() int
	// Close sends a close frame with the given code/reason and tears the
	// connection down. Idempotent.
	Close(code int, reason string)
}

// Registry is the set of currently-subscribed connections.
type Registry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	subs    map[uuid.UUID]Connection
	stopped bool
}

// New builds an empty registry.
func New() *Registry {
	r := &Registry{subs: make(map[uuid.UUID]Connection)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Add inserts a connection (set semantics: adding the same ID twice leaves
// the registry size unchanged) and wakes any producer parked in Wait.
func (r *Registry) Add(c Connection) {
	r.mu.Lock()
	r.subs[c.ID()] = c
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Remove drops a connection by ID. A no-op if it is not present.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Len reports the current subscriber count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Snapshot copies the current connections under the mutex so the caller
// can iterate and send outside it, per spec.md §5's ordering guarantees.
func (r *Registry) Snapshot() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Connection, 0, len(r.subs))
	for _, c := range r.subs {
		out = append(out, c)
	}
	return out
}

// Wait parks the caller until the registry becomes nonempty or Stop is
// called, returning false in the latter case. This is the condition
// variable described in spec.md §5 — producers must never busy-poll.
func (r *Registry) Wait() (nonempty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.subs) == 0 && !r.stopped {
		r.cond.Wait()
	}
	return !r.stopped
}

// Stop marks the registry stopped and wakes any waiter so shutdown can
// proceed; it does not remove existing subscribers, callers must still
// close and remove them.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Stopped reports whether Stop has been called.
func (r *Registry) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// CloseAll closes every current subscriber with the given code/reason and
// empties the registry, used by graceful shutdown (spec.md §4.6 Shutdown).
func (r *Registry) CloseAll(code int, reason string) {
	for _, c := range r.Snapshot() {
		c.Close(code, reason)
		r.Remove(c.ID())
	}
}
