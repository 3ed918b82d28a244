// Package namespace mints and resolves the stable URIs that every other
// component in the memory core uses to name entities, navigation state, and
// provenance records. It is the only place in the module that knows the
// concrete `ragno:`, `zpt:`, and `prov:` base URIs.
package namespace

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Default namespace prefixes. Overridable via [New] for deployments that mount
// the ontology under a different base URI.
const (
	DefaultRagno = "http://purl.org/stuff/ragno/"
	DefaultZPT   = "http://purl.org/stuff/zpt/"
	DefaultProv  = "http://www.w3.org/ns/prov#"
	DefaultSKOS  = "http://www.w3.org/2004/02/skos/core#"
	DefaultRDF   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	DefaultRDFS  = "http://www.w3.org/2000/01/rdf-schema#"
	DefaultOWL   = "http://www.w3.org/2002/07/owl#"
)

// base32Enc is an unpadded, lowercase base32 encoding used for seeded URI
// suffixes — unpadded so the resulting URI never contains a "=" character.
var base32Enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// Kind identifies the entity family a URI is minted for. Instance kinds
// (EntityKind, SemanticUnitKind, ...) live under the ragno namespace; the
// Zoom/Pan/Tilt kinds additionally participate in [Factory.Resolve] against
// the closed ZPT controlled vocabulary.
type Kind string

const (
	EntityKind         Kind = "entity"
	SemanticUnitKind   Kind = "unit"
	RelationshipKind   Kind = "relationship"
	CommunityKind      Kind = "community"
	AttributeKind      Kind = "attribute"
	ConceptKind        Kind = "concept"
	EmbeddingKind      Kind = "embedding"
	CorpuscleKind      Kind = "corpuscle"
	HypothesisKind     Kind = "hypothesis"
	InteractionKind    Kind = "interaction"
	NavigationViewKind Kind = "navigationview"
	SessionKind        Kind = "session"

	// QueryKind identifies the synthesised query URI a HyDE hypothesis's
	// SemanticUnit is linked to via zpt:answersQuery (§4.8 step 2).
	QueryKind Kind = "query"

	// ActivityKind identifies a PROV-O prov:Activity minted once per verb
	// dispatch (§4.10 "records a PROV-O activity").
	ActivityKind Kind = "activity"

	// ZoomKind, PanKind and TiltKind are the kinds accepted by [Factory.Resolve];
	// their tokens are validated against the closed vocabulary in vocabulary.go.
	ZoomKind Kind = "zoom"
	PanKind  Kind = "pan"
	TiltKind Kind = "tilt"
)

// Factory mints and resolves URIs within a configured set of namespace
// prefixes. It holds no mutable state and is safe for concurrent use.
type Factory struct {
	ragno string
	zpt   string
	prov  string
}

// Option configures a [Factory].
type Option func(*Factory)

// WithRagnoBase overrides the default ragno: namespace base URI.
func WithRagnoBase(base string) Option {
	return func(f *Factory) { f.ragno = base }
}

// WithZPTBase overrides the default zpt: namespace base URI.
func WithZPTBase(base string) Option {
	return func(f *Factory) { f.zpt = base }
}

// WithProvBase overrides the default prov: namespace base URI.
func WithProvBase(base string) Option {
	return func(f *Factory) { f.prov = base }
}

// New constructs a [Factory] using the default namespace prefixes, or the
// overrides supplied via opts.
func New(opts ...Option) *Factory {
	f := &Factory{
		ragno: DefaultRagno,
		zpt:   DefaultZPT,
		prov:  DefaultProv,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// RagnoBase returns the configured ragno: namespace base URI.
func (f *Factory) RagnoBase() string { return f.ragno }

// ZPTBase returns the configured zpt: namespace base URI.
func (f *Factory) ZPTBase() string { return f.zpt }

// ProvBase returns the configured prov: namespace base URI.
func (f *Factory) ProvBase() string { return f.prov }

// baseFor returns the namespace base URI instance URIs of kind are minted
// under. Navigation-state kinds (zoom/pan/tilt), session/interaction/
// navigation-view instances and HyDE query URIs live under zpt:; activities
// live under prov:; everything else lives under ragno:.
func (f *Factory) baseFor(kind Kind) string {
	switch kind {
	case ZoomKind, PanKind, TiltKind, SessionKind, NavigationViewKind, InteractionKind, QueryKind:
		return f.zpt
	case ActivityKind:
		return f.prov
	default:
		return f.ragno
	}
}

// MintURI produces a fresh URI under the namespace appropriate for kind.
//
// When seed is non-empty the URI is deterministic: the SHA-256 digest of the
// canonicalised seed (kind + "\x00" + seed, so that the same seed string
// never collides across kinds) is truncated to 128 bits and base32-encoded.
// Two calls with equal (kind, seed) pairs — within a process or across
// processes sharing the same namespace configuration — return byte-identical
// URIs.
//
// When seed is empty the URI is minted from a random UUIDv4 and is not
// reproducible.
func (f *Factory) MintURI(kind Kind, seed string) string {
	base := f.baseFor(kind)
	if seed == "" {
		return fmt.Sprintf("%s%s/%s", base, kind, uuid.New().String())
	}
	return fmt.Sprintf("%s%s/%s", base, kind, seededID(kind, seed))
}

// seededID computes the deterministic base32 identifier for (kind, seed).
func seededID(kind Kind, seed string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(seed))
	sum := h.Sum(nil)
	return strings.ToLower(base32Enc.EncodeToString(sum[:16]))
}

// CanonicalSeed joins seed components with a separator that cannot appear
// inside a single component once each component itself has been normalised
// by the caller (e.g. a source URI and a chunk index). Components are joined
// in order — callers must keep argument order stable across runs to
// preserve determinism.
func CanonicalSeed(parts ...string) string {
	return strings.Join(parts, "\x1f")
}
