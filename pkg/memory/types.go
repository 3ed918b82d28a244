package memory

import "time"

// SemanticUnit is a ragno:SemanticUnit — a summarised, embeddable segment of
// source content, minted by the corpus decomposer (C7) or the HyDE engine (C8).
type SemanticUnit struct {
	URI       string
	SourceURI string
	Content   string
	Embedding []float32
	Maybe     bool
	CreatedAt time.Time
}

// Community is a ragno:Community — a cluster of related entities surfaced by
// offline graph analysis. The core only stores and retrieves communities; it
// does not compute clustering.
type Community struct {
	URI        string
	Label      string
	Members    []string // Entity URIs
	Summary    string
	Confidence float64
}

// Hypothesis is a single HyDE-generated hypothetical answer, always written
// with Maybe=true until explicitly promoted.
type Hypothesis struct {
	URI        string
	QueryURI   string
	Text       string
	Confidence float64
	CreatedAt  time.Time
}

// Interaction is a single tell/ask exchange recorded by the interaction store
// (C5). AccessCount and DecayFactor are the only fields mutated after insert:
// retriever touches bump both, and the decay pass and `fade` scale
// DecayFactor (§3).
type Interaction struct {
	URI         string
	SessionURI  string
	Prompt      string
	Response    string
	Embedding   []float32
	Concepts    []string
	AccessCount int
	DecayFactor float64
	CreatedAt   time.Time
	LastAccess  time.Time

	// Domains carries the domain-scoping tags attached by the `remember` verb
	// (§4.10); `recall`'s domains filter matches against this field. Empty for
	// interactions recorded via plain `tell`.
	Domains []string

	// System marks infrastructure-originated interactions (e.g. ZPT state
	// change notices) so that `fade`/`forget` can preserve them per §4.10's
	// "system=instruction" carve-out.
	System bool

	// ID is the bare identifier minted on first Append, independent of URI
	// (which embeds the full ragno namespace). Retained so tiers can key
	// lookups without re-parsing URIs.
	ID string
}

// NavigationView is a zpt:NavigationView snapshot: the zoom/pan/tilt state and
// selected corpuscles active at the moment a query was answered.
type NavigationView struct {
	URI                string
	Query              string
	ZoomURI            string
	TiltURI            string
	PanURIs            []string
	SessionURI         string
	SelectedCorpuscles []string
	Timestamp          time.Time
}
