package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/internal/zptstate"
)

// Embedder is the subset of [embedclient.Client] the retriever needs.
// Narrowed to an interface so tests can supply a fake without constructing
// a real provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ConceptExtractor is the subset of [llmclient.Client] the retriever needs.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string) ([]string, error)
}

// SPARQLQuerier is the subset of [triplestore.Store] an [RDFGraphSource]
// needs; satisfied by *triplestore.Store.
type SPARQLQuerier interface {
	Query(ctx context.Context, sparql string) ([]triplestore.Binding, error)
}

// RDFSource gathers candidate (§4.6 step 2c) — RDF corpuscles retrieved by a
// SPARQL query constrained by zptState.pan, shaped per zoom level.
type RDFSource interface {
	Entities(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error)
	SemanticUnits(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error)
	Communities(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error)
	CorpusSummary(ctx context.Context, pan zptstate.Pan) (Candidate, error)
}

// RDFGraphSource implements [RDFSource] over a SPARQL 1.1 endpoint using the
// ragno ontology (§6). It issues SELECT queries (rather than CONSTRUCT) since
// the retriever only needs scalar projections of each corpuscle, not full
// RDF graphs. The pan argument is not applied: queries are narrowed by the
// query concepts only, not by pan domains, keywords, entities or time range.
type RDFGraphSource struct {
	store SPARQLQuerier
	ns    *namespace.Factory
	graph string
}

// NewRDFGraphSource constructs an [RDFGraphSource] querying graph through store.
func NewRDFGraphSource(store SPARQLQuerier, ns *namespace.Factory, graph string) *RDFGraphSource {
	return &RDFGraphSource{store: store, ns: ns, graph: graph}
}

const defaultRDFLimit = 50

// Entities implements [RDFSource]. Candidates are shaped for zoom=entity:
// Prompt carries the prefLabel, Response a synthesised description.
func (r *RDFGraphSource) Entities(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error) {
	sparql := fmt.Sprintf(`
SELECT ?e ?label ?freq ?maybe WHERE {
  GRAPH <%s> {
    ?e a <%sEntity> ;
       <http://www.w3.org/2004/02/skos/core#prefLabel> ?label .
    OPTIONAL { ?e <%sfrequency> ?freq }
    OPTIONAL { ?e <%smaybe> ?maybe }
    %s
  }
}
LIMIT %d`, r.graph, r.ns.RagnoBase(), r.ns.RagnoBase(), r.ns.RagnoBase(), conceptFilter("label", concepts), defaultRDFLimit)

	bindings, err := r.store.Query(ctx, sparql)
	if err != nil {
		return nil, fmt.Errorf("retriever: query entities: %w", err)
	}

	out := make([]Candidate, 0, len(bindings))
	for _, b := range bindings {
		label := b["label"].Value
		out = append(out, Candidate{
			Source:   SourceRDF,
			Zoom:     "entity",
			URI:      b["e"].Value,
			Prompt:   label,
			Response: fmt.Sprintf("%s is an entity referenced in the corpus.", label),
			Maybe:    b["maybe"].Value == "true",
		})
	}
	return out, nil
}

// SemanticUnits implements [RDFSource]. Candidates are shaped for zoom=unit.
func (r *RDFGraphSource) SemanticUnits(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error) {
	sparql := fmt.Sprintf(`
SELECT ?u ?content ?maybe WHERE {
  GRAPH <%s> {
    ?u a <%sSemanticUnit> ;
       <%scontent> ?content .
    OPTIONAL { ?u <%smaybe> ?maybe }
    %s
  }
}
LIMIT %d`, r.graph, r.ns.RagnoBase(), r.ns.RagnoBase(), r.ns.RagnoBase(), conceptFilter("content", concepts), defaultRDFLimit)

	bindings, err := r.store.Query(ctx, sparql)
	if err != nil {
		return nil, fmt.Errorf("retriever: query semantic units: %w", err)
	}

	out := make([]Candidate, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, Candidate{
			Source:   SourceRDF,
			Zoom:     "unit",
			URI:      b["u"].Value,
			Response: b["content"].Value,
			Maybe:    b["maybe"].Value == "true",
		})
	}
	return out, nil
}

// Communities implements [RDFSource]. Candidates are shaped for
// zoom=community; member entities are expanded lazily by the caller, not here.
func (r *RDFGraphSource) Communities(ctx context.Context, concepts []string, pan zptstate.Pan) ([]Candidate, error) {
	sparql := fmt.Sprintf(`
SELECT ?c ?summary WHERE {
  GRAPH <%s> {
    ?c a <%sCommunity> ;
       <%scontent> ?summary .
    %s
  }
}
LIMIT %d`, r.graph, r.ns.RagnoBase(), r.ns.RagnoBase(), conceptFilter("summary", concepts), defaultRDFLimit)

	bindings, err := r.store.Query(ctx, sparql)
	if err != nil {
		return nil, fmt.Errorf("retriever: query communities: %w", err)
	}

	out := make([]Candidate, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, Candidate{
			Source:   SourceRDF,
			Zoom:     "community",
			URI:      b["c"].Value,
			Response: b["summary"].Value,
		})
	}
	return out, nil
}

// CorpusSummary implements [RDFSource]: a single synthesised "corpus view"
// candidate summarising entity/unit counts, used as context rather than an
// answer (§4.6 zoom=corpus).
func (r *RDFGraphSource) CorpusSummary(ctx context.Context, pan zptstate.Pan) (Candidate, error) {
	sparql := fmt.Sprintf(`
SELECT (COUNT(DISTINCT ?e) AS ?entityCount) (COUNT(DISTINCT ?u) AS ?unitCount) WHERE {
  GRAPH <%s> {
    { ?e a <%sEntity> } UNION { ?u a <%sSemanticUnit> }
  }
}`, r.graph, r.ns.RagnoBase(), r.ns.RagnoBase())

	bindings, err := r.store.Query(ctx, sparql)
	if err != nil {
		return Candidate{}, fmt.Errorf("retriever: query corpus summary: %w", err)
	}
	entityCount, unitCount := "0", "0"
	if len(bindings) > 0 {
		if v, ok := bindings[0]["entityCount"]; ok {
			entityCount = v.Value
		}
		if v, ok := bindings[0]["unitCount"]; ok {
			unitCount = v.Value
		}
	}

	return Candidate{
		Source:   SourceRDF,
		Zoom:     "corpus",
		URI:      r.ns.MintURI(namespace.CorpuscleKind, namespace.CanonicalSeed(r.graph, "corpus-summary")),
		Response: fmt.Sprintf("Corpus contains %s entities and %s semantic units.", entityCount, unitCount),
	}, nil
}

// conceptFilter renders a SPARQL regex FILTER matching any of concepts
// against variable, or an empty string (no filter) when concepts is empty.
func conceptFilter(variable string, concepts []string) string {
	if len(concepts) == 0 {
		return ""
	}
	escaped := make([]string, len(concepts))
	for i, c := range concepts {
		escaped[i] = regexEscape(c)
	}
	return fmt.Sprintf(`FILTER(REGEX(?%s, "%s", "i"))`, variable, strings.Join(escaped, "|"))
}

func regexEscape(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `"`, `\"`, `.`, `\.`, `*`, `\*`, `+`, `\+`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `|`, `\|`,
	)
	return replacer.Replace(s)
}
