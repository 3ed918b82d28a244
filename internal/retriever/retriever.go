// Package retriever implements the Hybrid Retriever (C6): given a query, it
// returns ranked interactions and RDF corpuscles using combined embedding
// similarity, concept overlap, recency, and access-frequency scoring,
// normalised across heterogeneous sources (§4.6).
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/semem-go/semem/internal/config"
	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

// ShortTermSource is the interaction store's short-term-facing contract the
// retriever needs: enumerate a session's short-term deque and touch any
// returned interaction regardless of which tier actually holds it
// (*interactions.Store.Touch already falls through to long-term).
type ShortTermSource interface {
	ShortTerm(sessionURI string) []memory.Interaction
	Touch(ctx context.Context, id string) error
}

// LongTermPreFilter is the coarse cosine-similarity pre-filter over the
// long-term tier (§4.6 step 2b); satisfied by *postgres.InteractionStore.
type LongTermPreFilter interface {
	CosinePreFilter(ctx context.Context, queryEmbedding []float32, limit int, filter interactions.ScanFilter) ([]memory.Interaction, error)
}

// Options parameterises a single [Retriever.Retrieve] call.
type Options struct {
	SessionURI string
	Threshold  float64
	Limit      int
	Zoom       string
	Tilt       string
	Pan        zptstate.Pan

	// Hypotheses are HyDE-generated candidates (C8) to fold in, already
	// tagged SourceHypothesis; their contribution is capped by
	// cfg.HypothesisWeight (§4.8).
	Hypotheses []Candidate
}

// Retriever is the C6 Hybrid Retriever.
type Retriever struct {
	embed    Embedder
	concepts ConceptExtractor
	short    ShortTermSource
	long     LongTermPreFilter
	rdf      RDFSource
	cfg      config.RetrieverConfig
	now      func() time.Time
}

// New constructs a Retriever. short, long, and rdf may each be nil, in which
// case that source contributes no candidates.
func New(embed Embedder, concepts ConceptExtractor, short ShortTermSource, long LongTermPreFilter, rdf RDFSource, cfg config.RetrieverConfig) *Retriever {
	return &Retriever{embed: embed, concepts: concepts, short: short, long: long, rdf: rdf, cfg: cfg, now: time.Now}
}

// Retrieve executes the full §4.6 pipeline: embed + extract concepts, gather
// candidates from all configured sources, score, normalise per source,
// filter system-prefixed prompts, deduplicate, sort, and truncate to
// opts.Limit. Matching interactions are touched (C5.touch) before returning.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	weights := r.weightsFor(opts.Tilt)

	var degraded []string

	qVec, embErr := r.embedQuery(ctx, query)
	if embErr != nil {
		weights.Embedding = 0
		degraded = append(degraded, "embedding")
	}

	qConcepts, conErr := r.extractQueryConcepts(ctx, query)
	if conErr != nil {
		weights.Concept = 0
		degraded = append(degraded, "concepts")
	}

	if embErr != nil && conErr != nil && r.rdf == nil && opts.Zoom != "graph" {
		return Result{}, errs.Wrap(errs.ProviderError, "retriever: all providers unavailable", fmt.Errorf("embed: %v; concepts: %v", embErr, conErr))
	}

	candidates, err := r.gather(ctx, query, qConcepts, opts)
	if err != nil {
		return Result{}, err
	}
	candidates = append(candidates, opts.Hypotheses...)

	now := r.now()
	for i := range candidates {
		candidates[i].rawScore = score(candidates[i], qVec, qConcepts, weights, now)
	}

	normalizeBySource(candidates)
	capHypothesisContribution(candidates, r.cfg.HypothesisWeight)

	candidates = filterSystemPrefixes(candidates, r.cfg.SystemPrefixes)
	candidates = dedupe(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].normalizedScore > candidates[j].normalizedScore
	})

	if opts.Threshold > 0 {
		candidates = aboveThreshold(candidates, opts.Threshold)
	}

	limit := opts.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	candidates = candidates[:limit]

	if r.short != nil {
		for _, c := range candidates {
			if c.InteractionID == "" {
				continue
			}
			if err := r.short.Touch(ctx, c.InteractionID); err != nil {
				return Result{}, fmt.Errorf("retriever: touch %q: %w", c.InteractionID, err)
			}
		}
	}

	return Result{Candidates: candidates, Degraded: degraded}, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.embed == nil {
		return nil, fmt.Errorf("retriever: no embedder configured")
	}
	return r.embed.Embed(ctx, query)
}

func (r *Retriever) extractQueryConcepts(ctx context.Context, query string) ([]string, error) {
	if r.concepts == nil {
		return nil, fmt.Errorf("retriever: no concept extractor configured")
	}
	return r.concepts.ExtractConcepts(ctx, query)
}

// weightsFor returns the configured (w_e, w_c, w_r, w_a) vector for tilt,
// falling back to the keywords tilt's weights (or a plausible hard default)
// when tilt is unconfigured (§9 open question b — weights are configuration).
func (r *Retriever) weightsFor(tilt string) config.Weights {
	if w, ok := r.cfg.TiltWeights[tilt]; ok {
		return w
	}
	if w, ok := r.cfg.TiltWeights["keywords"]; ok {
		return w
	}
	return config.Weights{Embedding: 0.4, Concept: 0.4, Recency: 0.1, Access: 0.1}
}

// gather collects candidates from the three sources named in §4.6 step 2,
// shaped per opts.Zoom.
func (r *Retriever) gather(ctx context.Context, query string, qConcepts []string, opts Options) ([]Candidate, error) {
	var out []Candidate

	if r.short != nil {
		for _, ia := range r.short.ShortTerm(opts.SessionURI) {
			if !domainsMatch(ia.Domains, opts.Pan.Domains) {
				continue
			}
			out = append(out, interactionCandidate(SourceShortTerm, ia))
		}
	}

	if r.long != nil {
		qVec, err := r.embedQuery(ctx, query)
		if err == nil && len(qVec) > 0 {
			results, err := r.long.CosinePreFilter(ctx, qVec, r.coarsePreFilterLimit(), interactions.ScanFilter{Domains: opts.Pan.Domains})
			if err != nil {
				return nil, fmt.Errorf("retriever: long-term pre-filter: %w", err)
			}
			for _, ia := range results {
				out = append(out, interactionCandidate(SourceLongTerm, ia))
			}
		}
	}

	if r.rdf != nil {
		rdfCandidates, err := r.gatherRDF(ctx, opts.Zoom, qConcepts, opts.Pan)
		if err != nil {
			return nil, err
		}
		out = append(out, rdfCandidates...)
	}

	return out, nil
}

func (r *Retriever) coarsePreFilterLimit() int {
	if r.cfg.CoarsePreFilterLimit > 0 {
		return r.cfg.CoarsePreFilterLimit
	}
	return 200
}

func (r *Retriever) gatherRDF(ctx context.Context, zoom string, concepts []string, pan zptstate.Pan) ([]Candidate, error) {
	switch zoom {
	case "entity":
		return r.rdf.Entities(ctx, concepts, pan)
	case "unit":
		return r.rdf.SemanticUnits(ctx, concepts, pan)
	case "community":
		return r.rdf.Communities(ctx, concepts, pan)
	case "corpus":
		summary, err := r.rdf.CorpusSummary(ctx, pan)
		if err != nil {
			return nil, err
		}
		return []Candidate{summary}, nil
	default:
		// zoom=text (or unset): candidates are raw Interactions, already
		// gathered from the short/long-term tiers above.
		return nil, nil
	}
}

// domainsMatch applies the pan domain filter to an interaction's domain
// tags: an empty filter matches everything, otherwise at least one tag must
// intersect (§4.6 step 2's pan-constrained gathering, the `recall` verb's
// domain scoping).
func domainsMatch(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func interactionCandidate(source SourceTag, ia memory.Interaction) Candidate {
	return Candidate{
		Source:        source,
		Zoom:          "text",
		URI:           ia.URI,
		Prompt:        ia.Prompt,
		Response:      ia.Response,
		Embedding:     ia.Embedding,
		Concepts:      ia.Concepts,
		Timestamp:     ia.CreatedAt,
		AccessCount:   ia.AccessCount,
		InteractionID: ia.ID,
	}
}

func filterSystemPrefixes(candidates []Candidate, prefixes []string) []Candidate {
	if len(prefixes) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		skip := false
		for _, p := range prefixes {
			if strings.HasPrefix(c.Prompt, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}

func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		key := normalize(c.Prompt) + "\x1f" + normalize(c.Response)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// capHypothesisContribution clamps HyDE-derived candidates' normalised score
// to at most weight, so speculative hypotheses can never outrank grounded
// evidence regardless of how they normalise within their own partition (§4.8).
func capHypothesisContribution(candidates []Candidate, weight float64) {
	for i := range candidates {
		if candidates[i].Source == SourceHypothesis && candidates[i].normalizedScore > weight {
			candidates[i].normalizedScore = weight
		}
	}
}

func aboveThreshold(candidates []Candidate, threshold float64) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.normalizedScore >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// score computes the weighted combination described in §4.6 step 3.
// graph-tilt substitutes GraphProximity for cosine similarity.
func score(c Candidate, qVec []float32, qConcepts []string, w config.Weights, now time.Time) float64 {
	embTerm := cosine(qVec, c.Embedding)
	if c.GraphProximity > 0 {
		embTerm = c.GraphProximity
	}

	concepts := c.Concepts
	if len(concepts) == 0 {
		concepts = tokenize(c.Prompt + " " + c.Response)
	}
	conTerm := jaccard(qConcepts, concepts)

	return w.Embedding*embTerm + w.Concept*conTerm + w.Recency*recencyDecay(c.Timestamp, now) + w.Access*accessScore(c.AccessCount)
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
