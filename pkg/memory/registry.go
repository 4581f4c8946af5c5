// Package memory owns per-session conversational state. Sessions are created
// lazily, bounded to the last K turns, and live for the lifetime of the
// process. There is no eviction of session IDs themselves; callers that need
// expiry should wrap the registry.
package memory

import (
	"sync"

	"github.com/m-mizutani/duet/pkg/model"
)

// Registry maps session IDs to sessions with per-session locking. Requests
// for the same ID serialize their whole load/execute/append sequence;
// requests for different IDs proceed in parallel.
type Registry struct {
	mu       sync.Mutex
	window   int
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session *model.Session
}

type Option func(*Registry)

// WithWindow overrides the number of retained turns per session.
func WithWindow(turns int) Option {
	return func(r *Registry) {
		r.window = turns
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		window:   model.DefaultSessionWindow,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// With runs fn while holding the lock for the given session ID. The session
// is created empty on first reference. fn must not call back into the
// registry for the same ID.
func (r *Registry) With(id string, fn func(session *model.Session) error) error {
	e := r.lookup(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(e.session)
}

// Render returns the transcript of the session, or the empty string for an
// unknown ID.
func (r *Registry) Render(id string) string {
	e := r.lookup(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.session.Render()
}

func (r *Registry) lookup(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: &model.Session{ID: id, Window: r.window}}
		r.sessions[id] = e
	}
	return e
}
