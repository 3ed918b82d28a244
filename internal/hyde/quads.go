package hyde

import (
	"strconv"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

const (
	predContent      = "content"
	predConfidence   = "confidence"
	predMaybe        = "maybe"
	predTimestamp    = "timestamp"
	predAnswersQuery = "answersQuery"
)

// hypothesisQuads renders h as a ragno:SemanticUnit, always ragno:maybe
// true, linked to its query via zpt:answersQuery (§4.8 step 2).
func hypothesisQuads(ns *namespace.Factory, graph string, h memory.Hypothesis) []triplestore.Quad {
	return []triplestore.Quad{
		{Subject: h.URI, Predicate: namespace.DefaultRDF + "type", Object: triplestore.Term{Type: "uri", Value: ns.RagnoBase() + "SemanticUnit"}, Graph: graph},
		{Subject: h.URI, Predicate: ns.RagnoBase() + predContent, Object: literal(h.Text), Graph: graph},
		{Subject: h.URI, Predicate: ns.RagnoBase() + predConfidence, Object: literalFloat(h.Confidence), Graph: graph},
		{Subject: h.URI, Predicate: ns.RagnoBase() + predMaybe, Object: literalBool(true), Graph: graph},
		{Subject: h.URI, Predicate: ns.RagnoBase() + predTimestamp, Object: literalInt(h.CreatedAt.Unix()), Graph: graph},
		{Subject: h.URI, Predicate: ns.ZPTBase() + predAnswersQuery, Object: triplestore.Term{Type: "uri", Value: h.QueryURI}, Graph: graph},
	}
}

func literal(v string) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: v}
}

func literalFloat(v float64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatFloat(v, 'f', -1, 64), Datatype: "http://www.w3.org/2001/XMLSchema#double"}
}

func literalInt(v int64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatInt(v, 10), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}

func literalBool(v bool) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatBool(v), Datatype: "http://www.w3.org/2001/XMLSchema#boolean"}
}
