package sessionregistry

import (
	"strconv"
	"time"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
)

const (
	predStartedAt = "startedAtTime"
	predEndedAt   = "endedAtTime"
)

// closingSessionQuads builds the closing NavigationSession quads emitted when
// s is evicted from the registry (§4.12): an rdf:type assertion plus a
// prov:endedAtTime literal dated now, alongside the session's own
// prov:startedAtTime for completeness. ns being nil (a Registry configured
// without a Namespace, e.g. tests that never exercise eviction quads) yields
// no quads.
func closingSessionQuads(ns *namespace.Factory, graph string, s *Session, now time.Time) []triplestore.Quad {
	if ns == nil {
		return nil
	}

	s.mu.Lock()
	sessionURI := ns.MintURI(namespace.SessionKind, s.id)
	createdAt := s.createdAt
	s.mu.Unlock()

	return []triplestore.Quad{
		{
			Subject:   sessionURI,
			Predicate: namespace.DefaultRDF + "type",
			Object:    triplestore.Term{Type: "uri", Value: ns.ZPTBase() + "NavigationSession"},
			Graph:     graph,
		},
		{
			Subject:   sessionURI,
			Predicate: ns.ProvBase() + predStartedAt,
			Object:    literalDateTime(createdAt.Unix()),
			Graph:     graph,
		},
		{
			Subject:   sessionURI,
			Predicate: ns.ProvBase() + predEndedAt,
			Object:    literalDateTime(now.Unix()),
			Graph:     graph,
		},
	}
}

func literalDateTime(unix int64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatInt(unix, 10), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}
