package decompose

import (
	"strconv"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

const (
	predContent    = "content"
	predSourceURI  = "hasSource"
	predMaybe      = "maybe"
	predPrefLabel  = "http://www.w3.org/2004/02/skos/core#prefLabel"
	predSubType    = "subType"
	predFrequency  = "frequency"
	predRelType    = "relType"
	predWeight     = "weight"
	predSourceEdge = "hasSourceEntity"
	predTargetEdge = "hasTargetEntity"
)

func semanticUnitQuads(ns *namespace.Factory, graph string, u memory.SemanticUnit) []triplestore.Quad {
	quads := []triplestore.Quad{
		{Subject: u.URI, Predicate: namespace.DefaultRDF + "type", Object: uriTerm(ns.RagnoBase() + "SemanticUnit"), Graph: graph},
		{Subject: u.URI, Predicate: ragnoPred(ns, predContent), Object: literal(u.Content), Graph: graph},
	}
	if u.SourceURI != "" {
		quads = append(quads, triplestore.Quad{Subject: u.URI, Predicate: ragnoPred(ns, predSourceURI), Object: uriTerm(u.SourceURI), Graph: graph})
	}
	if u.Maybe {
		quads = append(quads, triplestore.Quad{Subject: u.URI, Predicate: ragnoPred(ns, predMaybe), Object: literalBool(true), Graph: graph})
	}
	return quads
}

func entityQuads(ns *namespace.Factory, graph string, e memory.Entity) []triplestore.Quad {
	quads := []triplestore.Quad{
		{Subject: e.ID, Predicate: namespace.DefaultRDF + "type", Object: uriTerm(ns.RagnoBase() + "Entity"), Graph: graph},
		{Subject: e.ID, Predicate: predPrefLabel, Object: literal(e.Name), Graph: graph},
		{Subject: e.ID, Predicate: ragnoPred(ns, predSubType), Object: literal(e.SubType), Graph: graph},
		{Subject: e.ID, Predicate: ragnoPred(ns, predFrequency), Object: literalInt(e.Frequency), Graph: graph},
	}
	if e.Maybe {
		quads = append(quads, triplestore.Quad{Subject: e.ID, Predicate: ragnoPred(ns, predMaybe), Object: literalBool(true), Graph: graph})
	}
	return quads
}

func relationshipQuads(ns *namespace.Factory, graph string, r memory.Relationship) []triplestore.Quad {
	subject := ns.MintURI(namespace.RelationshipKind, namespace.CanonicalSeed(r.SourceID, r.RelType, r.TargetID))
	quads := []triplestore.Quad{
		{Subject: subject, Predicate: namespace.DefaultRDF + "type", Object: uriTerm(ns.RagnoBase() + "Relationship"), Graph: graph},
		{Subject: subject, Predicate: ragnoPred(ns, predSourceEdge), Object: uriTerm(r.SourceID), Graph: graph},
		{Subject: subject, Predicate: ragnoPred(ns, predTargetEdge), Object: uriTerm(r.TargetID), Graph: graph},
		{Subject: subject, Predicate: ragnoPred(ns, predRelType), Object: literal(r.RelType), Graph: graph},
		{Subject: subject, Predicate: ragnoPred(ns, predWeight), Object: literalFloat(r.Weight), Graph: graph},
	}
	if r.Maybe {
		quads = append(quads, triplestore.Quad{Subject: subject, Predicate: ragnoPred(ns, predMaybe), Object: literalBool(true), Graph: graph})
	}
	return quads
}

func ragnoPred(ns *namespace.Factory, suffix string) string {
	return ns.RagnoBase() + suffix
}

func uriTerm(v string) triplestore.Term {
	return triplestore.Term{Type: "uri", Value: v}
}

func literal(v string) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: v}
}

func literalInt(v int) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.Itoa(v), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}

func literalFloat(v float64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatFloat(v, 'f', -1, 64), Datatype: "http://www.w3.org/2001/XMLSchema#double"}
}

func literalBool(v bool) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatBool(v), Datatype: "http://www.w3.org/2001/XMLSchema#boolean"}
}
