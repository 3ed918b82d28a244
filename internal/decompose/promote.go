package decompose

import (
	"context"
	"fmt"
	"strings"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
)

// QuadStore is the subset of [triplestore.Store] PromoteHypothesis needs.
type QuadStore interface {
	Update(ctx context.Context, sparql string) error
	InsertQuads(ctx context.Context, quads []triplestore.Quad) error
}

// PromoteHypothesis promotes a hypothetical Entity or SemanticUnit to an
// ordinary fact by removing its ragno:maybe triple, per §3's "Hypotheses may
// be promoted... this is an explicit operation that must be recorded with
// PROV-O provenance". It is referenced but left undefined by the source
// (§9 Open Question (c)); this implementation treats it as a standalone
// operation no verb in §4.10's table invokes automatically.
func PromoteHypothesis(ctx context.Context, store QuadStore, ns *namespace.Factory, graph, subjectURI string) error {
	del := fmt.Sprintf(
		"DELETE DATA { GRAPH <%s> { <%s> <%s> %s . } }",
		graph, subjectURI, ragnoPred(ns, predMaybe), termToSPARQL(literalBool(true)),
	)
	if err := store.Update(ctx, del); err != nil {
		return fmt.Errorf("decompose: promote %s: retract maybe: %w", subjectURI, err)
	}

	activityURI := ns.MintURI(namespace.ActivityKind, "")
	quads := []triplestore.Quad{
		{Subject: activityURI, Predicate: namespace.DefaultRDF + "type", Object: uriTerm(ns.ProvBase() + "Activity"), Graph: graph},
		{Subject: activityURI, Predicate: ns.ProvBase() + "used", Object: uriTerm(subjectURI), Graph: graph},
		{Subject: activityURI, Predicate: ns.RagnoBase() + "promotedFrom", Object: literal("hypothesis"), Graph: graph},
	}
	if err := store.InsertQuads(ctx, quads); err != nil {
		return fmt.Errorf("decompose: promote %s: record provenance: %w", subjectURI, err)
	}
	return nil
}

// termToSPARQL is unexported in package triplestore; reconstruct the literal
// form locally for the DELETE DATA statement above (boolean "true"^^xsd:boolean),
// mirroring [triplestore.Store]'s own escaping.
func termToSPARQL(t triplestore.Term) string {
	escaped := strings.ReplaceAll(t.Value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	lit := fmt.Sprintf(`"%s"`, escaped)
	if t.Datatype != "" {
		return lit + "^^<" + t.Datatype + ">"
	}
	return lit
}
