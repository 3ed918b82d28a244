// Package hyde implements the Hypothesis Engine (C8, "HyDE"): it generates
// hypothetical answers to a query, materialises each as a SemanticUnit
// linked back to the query, and runs the Corpus Decomposer (C7) over each
// hypothesis so its entities and relationships join the graph flagged
// ragno:maybe true (§4.8).
package hyde

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
)

// HypothesisGenerator is the subset of [llmclient.Client] the engine needs.
type HypothesisGenerator interface {
	GenerateHypothesis(ctx context.Context, query string, opts llmclient.GenerateOptions) (llmclient.Hypothesis, error)
}

// Decomposer is the subset of [decompose.Decomposer] the engine needs.
type Decomposer interface {
	Decompose(ctx context.Context, chunks []decompose.Chunk, resolver decompose.EntityResolver, maybe bool) (decompose.Result, error)
}

// Config configures an [Engine].
type Config struct {
	// N is the number of hypotheses to generate per call.
	N int

	Temperature float64
	MaxTokens   int

	// Graph is the named graph quads are emitted into.
	Graph string
}

// Engine is the C8 Hypothesis Engine.
type Engine struct {
	llm        HypothesisGenerator
	decomposer Decomposer
	ns         *namespace.Factory
	cfg        Config
}

// New constructs an Engine.
func New(llm HypothesisGenerator, decomposer Decomposer, ns *namespace.Factory, cfg Config) *Engine {
	if cfg.N <= 0 {
		cfg.N = 1
	}
	return &Engine{llm: llm, decomposer: decomposer, ns: ns, cfg: cfg}
}

// Result is the §4.8 step 4 output: `{hypotheses, entities, relationships,
// rdfTriples, processingTime}`.
type Result struct {
	Hypotheses     []memory.Hypothesis
	Entities       []memory.Entity
	Relationships  []memory.Relationship
	Quads          []triplestore.Quad
	ProcessingTime time.Duration
}

// Generate runs the full §4.8 pipeline for query, producing cfg.N
// hypotheses (using [decompose.EntityResolver] resolver to dedup extracted
// entities against the persisted graph; pass nil to dedup only within this
// call).
func (e *Engine) Generate(ctx context.Context, query string, resolver decompose.EntityResolver) (Result, error) {
	start := time.Now()

	queryURI := e.ns.MintURI(namespace.QueryKind, query)
	result := Result{}

	for i := 0; i < e.cfg.N; i++ {
		hyp, err := e.llm.GenerateHypothesis(ctx, query, llmclient.GenerateOptions{
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: e.cfg.Temperature,
		})
		if err != nil {
			return Result{}, fmt.Errorf("hyde: generate hypothesis %d: %w", i, err)
		}

		h := memory.Hypothesis{
			URI:        e.ns.MintURI(namespace.HypothesisKind, namespace.CanonicalSeed(queryURI, strconv.Itoa(i))),
			QueryURI:   queryURI,
			Text:       hyp.Text,
			Confidence: hyp.Confidence,
			CreatedAt:  time.Now(),
		}
		result.Hypotheses = append(result.Hypotheses, h)
		result.Quads = append(result.Quads, hypothesisQuads(e.ns, e.cfg.Graph, h)...)

		chunks := []decompose.Chunk{{SourceURI: h.URI, Index: 0, Text: h.Text}}
		dres, err := e.decomposer.Decompose(ctx, chunks, resolver, true)
		if err != nil {
			return Result{}, fmt.Errorf("hyde: decompose hypothesis %d: %w", i, err)
		}
		result.Entities = append(result.Entities, dres.Entities...)
		result.Relationships = append(result.Relationships, dres.Relationships...)
		result.Quads = append(result.Quads, dres.Quads...)
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}
