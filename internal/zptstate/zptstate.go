// Package zptstate defines the shared ZPT navigation types ([State], [Pan])
// used by both the ZPT State Manager (C9, internal/zpt) and the Hybrid
// Retriever (C6, internal/retriever). It is a leaf package — depended on by
// both, depending on neither — so that C9 can re-run a query through C6
// without an import cycle.
package zptstate

import "time"

// Pan accumulates the five filter dimensions a navigation session can
// narrow retrieval by (§3, §6). Domains, Keywords, Entities and Corpuscle
// accumulate within a view unless explicitly reset to empty; Temporal is
// replaced by each update that sets it (§4.9 invariant b).
type Pan struct {
	// Domains restricts results to one or more of the closed pan-domain
	// tokens (topic, entity, temporal, geographic).
	Domains []string

	// Keywords is a free-form keyword filter, independent of the domain vocabulary.
	Keywords []string

	// Entities restricts results to those mentioning one or more entity URIs.
	Entities []string

	// Temporal restricts results to a time range, expressed as an opaque
	// implementation-defined string (e.g. an ISO-8601 interval) since §3
	// leaves its exact shape unspecified.
	Temporal string

	// Corpuscle restricts results to an explicit set of corpuscle URIs.
	Corpuscle []string
}

// Clone returns a deep copy of p.
func (p Pan) Clone() Pan {
	return Pan{
		Domains:   append([]string(nil), p.Domains...),
		Keywords:  append([]string(nil), p.Keywords...),
		Entities:  append([]string(nil), p.Entities...),
		Temporal:  p.Temporal,
		Corpuscle: append([]string(nil), p.Corpuscle...),
	}
}

// IsEmpty reports whether every Pan dimension is unset.
func (p Pan) IsEmpty() bool {
	return len(p.Domains) == 0 && len(p.Keywords) == 0 && len(p.Entities) == 0 &&
		p.Temporal == "" && len(p.Corpuscle) == 0
}

// State is the per-session ZPT navigation lens (§3). It is held in-memory by
// the Session Registry (C12) and mutated only by the ZPT State Manager (C9).
type State struct {
	Zoom      string
	Pan       Pan
	Tilt      string
	Threshold float64

	// LastQuery is the most recently answered query for this session, if
	// any. zoom/pan/tilt mutations re-run it through the retriever (§2).
	LastQuery string

	SessionID string
	Timestamp time.Time
}

// Default returns the initial ZPTState for a freshly created session (§3):
// zoom=entity, tilt=keywords, pan=∅, threshold=0.7.
func Default(sessionID string, now time.Time) State {
	return State{
		Zoom:      "entity",
		Tilt:      "keywords",
		Threshold: 0.7,
		SessionID: sessionID,
		Timestamp: now,
	}
}

// Clone returns a deep copy of s, suitable for [State] snapshotting (§4.9's
// "snapshot() → ZPTState — cheap, returns an immutable copy").
func (s State) Clone() State {
	c := s
	c.Pan = s.Pan.Clone()
	return c
}
