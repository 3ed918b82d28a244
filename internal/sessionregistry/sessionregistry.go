// Package sessionregistry implements the Session Registry (C12): a
// concurrent map from session ID to per-session ZPT state and a bounded
// recent-interaction cache, created lazily on first verb call and evicted
// after a configured idle timeout (§4.12). It is the sole owner of
// [zptstate.State]; other components only ever see snapshots.
package sessionregistry

import (
	"sync"
	"time"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

// DefaultRecentCap bounds the per-session recent-interaction cache.
const DefaultRecentCap = 50

// Session is one entry in the registry: its ZPT state, a bounded
// recent-interaction cache, and activity timestamps. All fields are
// accessed only while holding mu — exported accessors on [Registry] copy
// out from under the lock.
type Session struct {
	mu sync.Mutex

	id           string
	state        zptstate.State
	recent       []memory.Interaction
	recentCap    int
	createdAt    time.Time
	lastActivity time.Time
}

// Config configures a [Registry].
type Config struct {
	// IdleTimeout is how long a session may go without activity before
	// [Registry.EvictIdle] considers it eligible for eviction.
	IdleTimeout time.Duration

	// RecentCap bounds each session's recent-interaction cache. Defaults to
	// [DefaultRecentCap] if zero.
	RecentCap int

	// Graph is the named graph closing NavigationSession quads are emitted
	// into on eviction.
	Graph string

	// Namespace mints the closing NavigationSession quad's predicates.
	Namespace *namespace.Factory
}

// Registry is the C12 Session Registry. Safe for concurrent use.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New constructs an empty Registry.
func New(cfg Config) *Registry {
	if cfg.RecentCap <= 0 {
		cfg.RecentCap = DefaultRecentCap
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it with the default ZPT
// state (§3) if it does not yet exist.
func (r *Registry) GetOrCreate(id string, now time.Time) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = &Session{
		id:           id,
		state:        zptstate.Default(id, now),
		recentCap:    r.cfg.RecentCap,
		createdAt:    now,
		lastActivity: now,
	}
	r.sessions[id] = s
	return s
}

// Get returns the session for id, or (nil, false) if it does not exist. It
// does not create one — callers that must not lazily create a session
// (e.g. a bare `state` read) use this instead of [Registry.GetOrCreate].
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns a copy of s's current ZPT state (§4.12 "exposes only
// snapshot reads to other components").
func (s *Session) Snapshot() zptstate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Mutate applies fn to s's state under s's lock, serialising every mutation
// for this session (§5 "serialisation within a session"). fn returning an
// error leaves the state unchanged.
func (s *Session) Mutate(fn func(zptstate.State) (zptstate.State, error), now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		return err
	}
	s.state = next
	s.lastActivity = now
	return nil
}

// Touch records activity on s without mutating ZPT state (e.g. a `tell` or
// `recall` call that doesn't change zoom/pan/tilt).
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// RememberInteraction appends ia to the session's bounded recent cache,
// evicting the oldest entry once recentCap is exceeded.
func (s *Session) RememberInteraction(ia memory.Interaction, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, ia)
	if over := len(s.recent) - s.recentCap; over > 0 {
		s.recent = s.recent[over:]
	}
	s.lastActivity = now
}

// Recent returns a copy of the session's recent-interaction cache.
func (s *Session) Recent() []memory.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Interaction, len(s.recent))
	copy(out, s.recent)
	return out
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// IdleSince reports how long s has gone without activity, as of now.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// EvictIdle removes every session idle for longer than cfg.IdleTimeout as of
// now, returning a closing NavigationSession quad for each (§4.12 "a final
// NavigationSession closing quad is emitted with prov:endedAtTime").
func (r *Registry) EvictIdle(now time.Time) []triplestore.Quad {
	if r.cfg.IdleTimeout <= 0 {
		return nil
	}

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if s.IdleSince(now) >= r.cfg.IdleTimeout {
			evicted = append(evicted, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	var quads []triplestore.Quad
	for _, s := range evicted {
		quads = append(quads, closingSessionQuads(r.cfg.Namespace, r.cfg.Graph, s, now)...)
	}
	return quads
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
