// Package decompose implements the Corpus Decomposer (C7): it turns an
// ordered sequence of text chunks into SemanticUnit/Entity/Relationship
// records and the RDF quads that represent them, deterministically enough
// that decomposing the same chunks twice with the same LLM output yields a
// byte-identical quad set (§4.7).
package decompose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

// entitySubTypes is the closed set §4.7 step 1 allows; anything else is
// normalised to "other" rather than rejected outright, since the LLM's
// output is free text and the pipeline should degrade, not fail, on drift.
var entitySubTypes = map[string]bool{
	"person": true, "place": true, "organisation": true, "concept": true, "other": true,
}

// Chunk is one unit of source content to decompose, carrying the source it
// was extracted from and its position within that source (used to seed a
// deterministic SemanticUnit URI, §4.7 step 2).
type Chunk struct {
	SourceURI string
	Index     int
	Text      string
}

// Extractor is the subset of [llmclient.Client] the decomposer needs.
type Extractor interface {
	Decompose(ctx context.Context, text string) (llmclient.Extraction, error)
}

// EntityResolver looks up an existing Entity by its normalised label (§4.7
// step 3), e.g. backed by [memory.KnowledgeGraph.FindEntities].
type EntityResolver interface {
	FindByLabel(ctx context.Context, normalizedLabel string) (*memory.Entity, error)
}

// Config configures a [Decomposer].
type Config struct {
	// MinEntityConfidence is the threshold below which an extracted entity
	// is marked ragno:maybe true (§4.7 step 5).
	MinEntityConfidence float64

	// Graph is the named graph quads are emitted into.
	Graph string
}

// Decomposer is the C7 Corpus Decomposer.
type Decomposer struct {
	llm Extractor
	ns  *namespace.Factory
	cfg Config
}

// New constructs a Decomposer.
func New(llm Extractor, ns *namespace.Factory, cfg Config) *Decomposer {
	return &Decomposer{llm: llm, ns: ns, cfg: cfg}
}

// Result is the output of [Decomposer.Decompose]: the minted records plus
// the RDF quads representing them (§4.7).
type Result struct {
	Units         []memory.SemanticUnit
	Entities      []memory.Entity
	Relationships []memory.Relationship
	Quads         []triplestore.Quad
}

// Decompose runs the §4.7 algorithm over chunks, resolving entity labels
// against resolver (pass nil to dedup only within this call). maybe, when
// true, marks every resulting Entity/Relationship/SemanticUnit
// ragno:maybe true regardless of confidence — used by the Hypothesis Engine
// (C8) per §4.8 step 3.
func (d *Decomposer) Decompose(ctx context.Context, chunks []Chunk, resolver EntityResolver, maybe bool) (Result, error) {
	var result Result

	entityByLabel := make(map[string]*memory.Entity)
	var entityOrder []string
	seenRelations := make(map[string]bool)

	for _, chunk := range chunks {
		extraction, err := d.llm.Decompose(ctx, chunk.Text)
		if err != nil {
			return Result{}, fmt.Errorf("decompose: chunk %d: %w", chunk.Index, err)
		}

		unit := memory.SemanticUnit{
			URI:       d.ns.MintURI(namespace.SemanticUnitKind, namespace.CanonicalSeed(chunk.SourceURI, fmt.Sprintf("%d", chunk.Index))),
			SourceURI: chunk.SourceURI,
			Content:   extraction.Summary,
			Maybe:     maybe,
		}
		result.Units = append(result.Units, unit)
		result.Quads = append(result.Quads, semanticUnitQuads(d.ns, d.cfg.Graph, unit)...)

		for _, e := range extraction.Entities {
			label := strings.TrimSpace(e.Label)
			if label == "" {
				continue
			}
			normalized := normalizeLabel(label)

			entity, isNew, err := d.resolveEntity(ctx, resolver, entityByLabel, normalized, label, e.SubType)
			if err != nil {
				return Result{}, fmt.Errorf("decompose: resolve entity %q: %w", label, err)
			}
			if isNew {
				entityOrder = append(entityOrder, normalized)
			}
			entity.Frequency++
			if maybe || e.Confidence < d.cfg.MinEntityConfidence {
				entity.Maybe = true
			}
			entityByLabel[normalized] = entity
		}

		for _, r := range extraction.Relations {
			srcEntity, srcOK := entityByLabel[normalizeLabel(r.Source)]
			tgtEntity, tgtOK := entityByLabel[normalizeLabel(r.Target)]
			if !srcOK || !tgtOK || srcEntity.ID == tgtEntity.ID {
				continue // unresolved endpoint or self-loop (§4.7 step 4)
			}

			key := srcEntity.ID + "\x1f" + r.Type + "\x1f" + tgtEntity.ID
			if seenRelations[key] {
				continue // duplicate (same triple + type)
			}
			seenRelations[key] = true

			rel := memory.Relationship{
				SourceID: srcEntity.ID,
				TargetID: tgtEntity.ID,
				RelType:  r.Type,
				Weight:   r.Weight,
				Maybe:    maybe,
			}
			result.Relationships = append(result.Relationships, rel)
			result.Quads = append(result.Quads, relationshipQuads(d.ns, d.cfg.Graph, rel)...)
		}
	}

	result.Entities = make([]memory.Entity, 0, len(entityOrder))
	for _, label := range entityOrder {
		e := entityByLabel[label]
		result.Entities = append(result.Entities, *e)
		result.Quads = append(result.Quads, entityQuads(d.ns, d.cfg.Graph, *e)...)
	}

	return result, nil
}

// resolveEntity looks up normalized first in the in-call cache, then via
// resolver (persisted store), minting a new Entity only if neither has it.
func (d *Decomposer) resolveEntity(ctx context.Context, resolver EntityResolver, cache map[string]*memory.Entity, normalized, label, subType string) (*memory.Entity, bool, error) {
	if e, ok := cache[normalized]; ok {
		return e, false, nil
	}

	if resolver != nil {
		existing, err := resolver.FindByLabel(ctx, normalized)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && (existing.SubType == "" || existing.SubType == canonicalSubType(subType)) {
			return existing, false, nil
		}
	}

	return &memory.Entity{
		ID:      d.ns.MintURI(namespace.EntityKind, normalized),
		Type:    "entity",
		SubType: canonicalSubType(subType),
		Name:    label,
	}, true, nil
}

func canonicalSubType(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	if entitySubTypes[lower] {
		return lower
	}
	return "other"
}

var normalizePattern = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

// normalizeLabel case-folds and strips punctuation so that "Dr. Smith" and
// "dr smith" resolve to the same entity (§4.7 step 3).
func normalizeLabel(label string) string {
	folded := strings.ToLower(strings.TrimSpace(label))
	stripped := normalizePattern.ReplaceAllString(folded, "")
	return strings.Join(strings.Fields(stripped), " ")
}
