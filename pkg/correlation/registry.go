// Package correlation links core replies to the conversation whose message
// triggered them.
package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

// DefaultTTL is how long a registration waits for its reply.
const DefaultTTL = 300 * time.Second

// ErrExpired is returned by Waiter.Wait when no reply arrived in time.
var ErrExpired = errors.New("correlation expired")

// Ref identifies the conversation a registered message came from.
type Ref struct {
	Channel   string
	SelfID    string
	ChatID    string
	GuildID   string
	UserID    string
	MessageID string
	Direct    bool
}

// Waiter is a one-shot handle for a registered message id.
type Waiter struct {
	ID  string
	Ref Ref

	result chan []segment.Segment
	done   chan struct{}
	once   sync.Once
}

// Wait blocks until the waiter is resolved, expires, or ctx is done.
func (w *Waiter) Wait(ctx context.Context) ([]segment.Segment, error) {
	select {
	case content := <-w.result:
		return content, nil
	case <-w.done:
		// A resolve may have raced the expiry.
		select {
		case content := <-w.result:
			return content, nil
		default:
			return nil, ErrExpired
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Waiter) expire() {
	w.once.Do(func() { close(w.done) })
}

type entry struct {
	waiter *Waiter
	timer  *time.Timer
}

// Registry maps message ids to pending waiters. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, entries: make(map[string]*entry)}
}

// Register creates a waiter for id. An existing entry for the same id is
// expired and replaced.
func (r *Registry) Register(id string, ref Ref) *Waiter {
	w := &Waiter{
		ID:     id,
		Ref:    ref,
		result: make(chan []segment.Segment, 1),
		done:   make(chan struct{}),
	}
	e := &entry{waiter: w}

	r.mu.Lock()
	if old, ok := r.entries[id]; ok {
		old.timer.Stop()
		old.waiter.expire()
	}
	r.entries[id] = e
	e.timer = time.AfterFunc(r.ttl, func() { r.drop(id, e) })
	r.mu.Unlock()

	return w
}

// drop removes e if it is still the entry registered for id.
func (r *Registry) drop(id string, e *entry) {
	r.mu.Lock()
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	e.waiter.expire()
}

// Resolve delivers content to the waiter for id. It returns false if there
// is no pending entry; only the first call for a registration succeeds.
func (r *Registry) Resolve(id string, content []segment.Segment) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		e.timer.Stop()
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.waiter.result <- content
	e.waiter.expire()
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close expires every pending entry.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.waiter.expire()
	}
}
