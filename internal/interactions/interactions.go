// Package interactions implements the Interaction Store (C5): an
// append-only log of prompt/response exchanges split into a short-term,
// in-memory FIFO tier per session and a pluggable long-term tier.
//
// The short-term tier favours recently-touched entries for eviction
// resistance (FIFO with access-based promotion, §4.5): a touch moves its
// entry to the front of its session's list, so only genuinely idle entries
// reach the back and get promoted out.
package interactions

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

// ScanFilter narrows [Store.Scan] / [LongTermTier.Scan] results.
// All non-zero fields are applied as AND conditions.
type ScanFilter struct {
	ID         string
	SessionURI string
	Domains    []string
	After      time.Time
	Before     time.Time
}

// LongTermTier is the pluggable persisted backend for interactions promoted
// out of short-term memory (§4.5). Implementations must be safe for
// concurrent use; pkg/memory/postgres provides one backed by PostgreSQL.
type LongTermTier interface {
	Append(ctx context.Context, interaction memory.Interaction) error
	GetByID(ctx context.Context, id string) (*memory.Interaction, error)
	Scan(ctx context.Context, filter ScanFilter) ([]memory.Interaction, error)
	// Touch applies the access bookkeeping already computed by the caller;
	// the long-term tier itself does not run decayPass (§9 open question a).
	Touch(ctx context.Context, id string, accessCount int, decayFactor float64) error
	Forget(ctx context.Context, id string) error
}

// QuadWriter is the subset of the triple store adapter (C4) the interaction
// store needs to keep RDF quads in sync with appends and forgets.
type QuadWriter interface {
	InsertQuads(ctx context.Context, quads []triplestore.Quad) error
	Update(ctx context.Context, sparql string) error
}

// Config configures a [Store].
type Config struct {
	// CapacityPerSession bounds the short-term FIFO deque size per session.
	CapacityPerSession int

	// Alpha is the access-bump factor applied by Touch: decayFactor +=
	// alpha*(1-decayFactor).
	Alpha float64

	// AgeFactor multiplicatively ages short-term decayFactor on each DecayPass tick.
	AgeFactor float64

	// PromoteBelow is the decayFactor threshold below which DecayPass promotes
	// a short-term item to the long-term tier and evicts it from short-term.
	PromoteBelow float64

	// Graph is the named RDF graph quads are written into.
	Graph string
}

type entry struct {
	sessionURI  string
	interaction memory.Interaction
}

// Store is the C5 Interaction Store: short-term tiers keyed by session plus
// one shared long-term tier. Safe for concurrent use.
type Store struct {
	cfg   Config
	ns    *namespace.Factory
	long  LongTermTier
	quads QuadWriter

	mu        sync.Mutex
	bySession map[string]*list.List
	byID      map[string]*list.Element // short-term only

	now func() time.Time
}

// New constructs a Store. long and quads may be nil for tests that only
// exercise the short-term tier; in that configuration DecayPass promotion
// and RDF emission are skipped.
func New(cfg Config, ns *namespace.Factory, long LongTermTier, quads QuadWriter) *Store {
	if cfg.CapacityPerSession <= 0 {
		cfg.CapacityPerSession = 200
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.3
	}
	if cfg.AgeFactor <= 0 {
		cfg.AgeFactor = 0.98
	}
	if cfg.PromoteBelow <= 0 {
		cfg.PromoteBelow = 0.2
	}
	return &Store{
		cfg:       cfg,
		ns:        ns,
		long:      long,
		quads:     quads,
		bySession: make(map[string]*list.List),
		byID:      make(map[string]*list.Element),
		now:       time.Now,
	}
}

// Append assigns an ID and URI if absent, stamps Timestamp, initialises
// AccessCount=0 and DecayFactor=1.0, pushes the interaction onto the front of
// its session's short-term deque, and emits equivalent RDF quads (§4.5).
// Evicting over capacity promotes the oldest (back) entry to long-term.
func (s *Store) Append(ctx context.Context, ia memory.Interaction) (memory.Interaction, error) {
	if ia.ID == "" {
		ia.ID = uuid.New().String()
	}
	if ia.URI == "" {
		ia.URI = s.ns.MintURI(namespace.InteractionKind, namespace.CanonicalSeed(ia.SessionURI, ia.ID))
	}
	if ia.CreatedAt.IsZero() {
		ia.CreatedAt = s.now()
	}
	ia.LastAccess = ia.CreatedAt
	ia.AccessCount = 0
	ia.DecayFactor = 1.0

	s.mu.Lock()
	l, ok := s.bySession[ia.SessionURI]
	if !ok {
		l = list.New()
		s.bySession[ia.SessionURI] = l
	}
	el := l.PushFront(&entry{sessionURI: ia.SessionURI, interaction: ia})
	s.byID[ia.ID] = el

	var evicted *entry
	for l.Len() > s.cfg.CapacityPerSession {
		back := l.Back()
		if back == nil {
			break
		}
		evicted = back.Value.(*entry)
		delete(s.byID, evicted.interaction.ID)
		l.Remove(back)
	}
	s.mu.Unlock()

	if s.quads != nil {
		if err := s.quads.InsertQuads(ctx, InteractionQuads(s.ns, s.cfg.Graph, ia)); err != nil {
			return ia, fmt.Errorf("interactions: emit quads: %w", err)
		}
	}

	if evicted != nil && s.long != nil {
		if err := s.long.Append(ctx, evicted.interaction); err != nil {
			return ia, fmt.Errorf("interactions: evict to long-term: %w", err)
		}
	}

	return ia, nil
}

// GetByID returns the interaction with the given ID from either tier, or
// (nil, nil) if it does not exist in either.
func (s *Store) GetByID(ctx context.Context, id string) (*memory.Interaction, error) {
	s.mu.Lock()
	if el, ok := s.byID[id]; ok {
		ia := el.Value.(*entry).interaction
		s.mu.Unlock()
		return &ia, nil
	}
	s.mu.Unlock()

	if s.long == nil {
		return nil, nil
	}
	return s.long.GetByID(ctx, id)
}

// ShortTerm returns a snapshot of the short-term deque for sessionURI,
// ordered most-recently-touched first.
func (s *Store) ShortTerm(sessionURI string) []memory.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.bySession[sessionURI]
	if !ok {
		return nil
	}
	out := make([]memory.Interaction, 0, l.Len())
	for el := l.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).interaction)
	}
	return out
}

// Scan returns interactions from both tiers matching filter. Short-term
// results are always included; long-term results come from the pluggable
// backend's own filtering.
func (s *Store) Scan(ctx context.Context, filter ScanFilter) ([]memory.Interaction, error) {
	var out []memory.Interaction

	s.mu.Lock()
	for sessionURI, l := range s.bySession {
		if filter.SessionURI != "" && sessionURI != filter.SessionURI {
			continue
		}
		for el := l.Front(); el != nil; el = el.Next() {
			ia := el.Value.(*entry).interaction
			if matchesFilter(ia, filter) {
				out = append(out, ia)
			}
		}
	}
	s.mu.Unlock()

	if s.long != nil {
		longResults, err := s.long.Scan(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("interactions: scan long-term: %w", err)
		}
		out = append(out, longResults...)
	}
	return out, nil
}

func matchesFilter(ia memory.Interaction, f ScanFilter) bool {
	if f.ID != "" && ia.ID != f.ID {
		return false
	}
	if !f.After.IsZero() && ia.CreatedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && ia.CreatedAt.After(f.Before) {
		return false
	}
	if len(f.Domains) > 0 && !anyDomainMatches(ia.Domains, f.Domains) {
		return false
	}
	return true
}

func anyDomainMatches(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, d := range have {
		set[d] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// Touch increments AccessCount and bumps DecayFactor per the configured alpha
// (§4.5): decayFactor := min(1.0, decayFactor + alpha*(1-decayFactor)). It
// also promotes the touched entry to the front of its session's short-term
// deque. Interactions found only in the long-term tier are touched there
// without promotion.
func (s *Store) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	if el, ok := s.byID[id]; ok {
		e := el.Value.(*entry)
		e.interaction.AccessCount++
		e.interaction.DecayFactor = bumpDecay(e.interaction.DecayFactor, s.cfg.Alpha)
		e.interaction.LastAccess = s.now()
		l := s.bySession[e.sessionURI]
		l.MoveToFront(el)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.long == nil {
		return fmt.Errorf("interactions: touch %q: %w", id, errNotFound)
	}
	ia, err := s.long.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ia == nil {
		return fmt.Errorf("interactions: touch %q: %w", id, errNotFound)
	}
	ia.AccessCount++
	ia.DecayFactor = bumpDecay(ia.DecayFactor, s.cfg.Alpha)
	return s.long.Touch(ctx, id, ia.AccessCount, ia.DecayFactor)
}

func bumpDecay(decay, alpha float64) float64 {
	decay += alpha * (1 - decay)
	if decay > 1.0 {
		decay = 1.0
	}
	return decay
}

// DecayPass multiplicatively ages every short-term item's DecayFactor by the
// configured AgeFactor, then promotes any item whose DecayFactor falls below
// PromoteBelow to the long-term tier, removing it from short-term (§4.5).
// Long-term decay is left undefined by this spec (§9 open question a); items
// already in long-term are unaffected.
func (s *Store) DecayPass(ctx context.Context) error {
	type promotion struct {
		sessionURI string
		el         *list.Element
		ia         memory.Interaction
	}
	var toPromote []promotion

	s.mu.Lock()
	for sessionURI, l := range s.bySession {
		for el := l.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry)
			e.interaction.DecayFactor *= s.cfg.AgeFactor
			if e.interaction.DecayFactor < s.cfg.PromoteBelow {
				toPromote = append(toPromote, promotion{sessionURI: sessionURI, el: el, ia: e.interaction})
			}
		}
	}
	for _, p := range toPromote {
		l := s.bySession[p.sessionURI]
		l.Remove(p.el)
		delete(s.byID, p.ia.ID)
	}
	s.mu.Unlock()

	if s.long == nil {
		return nil
	}
	for _, p := range toPromote {
		if err := s.long.Append(ctx, p.ia); err != nil {
			return fmt.Errorf("interactions: decay-promote %q: %w", p.ia.ID, err)
		}
	}
	return nil
}

// Forget removes the interaction with the given ID from both tiers and
// deletes its RDF quads. Interactions marked System are preserved per
// §4.10's "system=instruction" carve-out: the call is a no-op for them.
func (s *Store) Forget(ctx context.Context, id string) error {
	var subjectURI string

	s.mu.Lock()
	if el, ok := s.byID[id]; ok {
		e := el.Value.(*entry)
		if e.interaction.System {
			s.mu.Unlock()
			return nil
		}
		subjectURI = e.interaction.URI
		l := s.bySession[e.sessionURI]
		l.Remove(el)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	if subjectURI == "" && s.long != nil {
		if ia, err := s.long.GetByID(ctx, id); err == nil && ia != nil {
			if ia.System {
				return nil
			}
			subjectURI = ia.URI
		}
	}

	if s.long != nil {
		if err := s.long.Forget(ctx, id); err != nil {
			return fmt.Errorf("interactions: forget long-term %q: %w", id, err)
		}
	}
	if s.quads != nil && subjectURI != "" {
		if err := s.quads.Update(ctx, DeleteInteractionSPARQL(s.cfg.Graph, subjectURI)); err != nil {
			return fmt.Errorf("interactions: delete quads %q: %w", id, err)
		}
	}
	return nil
}

// Fade multiplies the DecayFactor of every interaction matching filter by
// (1-fadeFactor), per the `forget`/`fade` verb (§4.10). Items flagged System
// are skipped. Only the short-term tier is mutated in place; matching
// long-term interactions are left as found (long-term decay is undefined,
// §9 open question a).
func (s *Store) Fade(ctx context.Context, filter ScanFilter, fadeFactor float64) (int, error) {
	faded := 0

	s.mu.Lock()
	for sessionURI, l := range s.bySession {
		if filter.SessionURI != "" && sessionURI != filter.SessionURI {
			continue
		}
		for el := l.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry)
			if e.interaction.System || !matchesFilter(e.interaction, filter) {
				continue
			}
			e.interaction.DecayFactor *= 1 - fadeFactor
			faded++
		}
	}
	s.mu.Unlock()

	return faded, nil
}

var errNotFound = fmt.Errorf("not found")
