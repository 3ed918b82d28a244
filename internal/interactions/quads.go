package interactions

import (
	"fmt"
	"strconv"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

// predicate suffixes under the ragno: base, per §6's ontology list.
const (
	predContent     = "content"
	predHasConcept  = "hasConcept"
	predTimestamp   = "timestamp"
	predAccessCount = "accessCount"
	predDecayFactor = "decayFactor"
	predSessionURI  = "hasSession"
)

// InteractionQuads renders the RDF quads for ia into graph, mirroring
// [memory.Interaction] fields onto the ragno ontology (§4.5 "emits
// equivalent RDF quads to C4").
func InteractionQuads(ns *namespace.Factory, graph string, ia memory.Interaction) []triplestore.Quad {
	quads := []triplestore.Quad{
		{Subject: ia.URI, Predicate: ragnoPred(ns, "prompt"), Object: literal(ia.Prompt), Graph: graph},
		{Subject: ia.URI, Predicate: ragnoPred(ns, "response"), Object: literal(ia.Response), Graph: graph},
		{Subject: ia.URI, Predicate: ragnoPred(ns, predTimestamp), Object: literalDateTime(ia.CreatedAt.Unix()), Graph: graph},
		{Subject: ia.URI, Predicate: ragnoPred(ns, predAccessCount), Object: literalInt(ia.AccessCount), Graph: graph},
		{Subject: ia.URI, Predicate: ragnoPred(ns, predDecayFactor), Object: literalFloat(ia.DecayFactor), Graph: graph},
	}
	if ia.SessionURI != "" {
		quads = append(quads, triplestore.Quad{
			Subject: ia.URI, Predicate: ragnoPred(ns, predSessionURI),
			Object: triplestore.Term{Type: "uri", Value: ia.SessionURI}, Graph: graph,
		})
	}
	for _, c := range ia.Concepts {
		quads = append(quads, triplestore.Quad{
			Subject: ia.URI, Predicate: ragnoPred(ns, predHasConcept), Object: literal(c), Graph: graph,
		})
	}
	return quads
}

// DeleteInteractionSPARQL renders a SPARQL 1.1 DELETE WHERE statement that
// removes every triple whose subject is subjectURI from graph.
func DeleteInteractionSPARQL(graph, subjectURI string) string {
	return fmt.Sprintf(`DELETE WHERE { GRAPH <%s> { <%s> ?p ?o } }`, graph, subjectURI)
}

func ragnoPred(ns *namespace.Factory, suffix string) string {
	return ns.RagnoBase() + suffix
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

func literalDateTime(unix int64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatInt(unix, 10), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}
