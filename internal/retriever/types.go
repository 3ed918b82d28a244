package retriever

import "time"

// SourceTag identifies which of the three candidate-gathering sources
// (§4.6 step 2) produced a [Candidate]. Score normalisation partitions by
// this tag explicitly, rather than inferring source from score magnitude
// (§9 design note: "make the partition explicit by source tag, not by
// score magnitude").
type SourceTag string

const (
	SourceShortTerm  SourceTag = "short_term"
	SourceLongTerm   SourceTag = "long_term"
	SourceRDF        SourceTag = "rdf"
	SourceHypothesis SourceTag = "hypothesis"
)

// Candidate is the tagged-union projection of whatever kind of corpuscle a
// source produced, generalised to a common ranked view only at the final
// sort step (§9 design note: "Dynamic typing → tagged variants").
type Candidate struct {
	Source SourceTag

	// Zoom is the ZPT zoom token this candidate was shaped for
	// (entity/unit/text/community/corpus, §4.6).
	Zoom string

	URI string

	// Prompt/Response hold the raw interaction text for zoom=text, or the
	// synthesised prefLabel/description pair for RDF-shaped zooms.
	Prompt   string
	Response string

	Embedding []float32
	Concepts  []string

	Timestamp   time.Time
	AccessCount int

	// GraphProximity substitutes for embedding similarity under graph-tilt
	// (§4.6 step 3); zero for non-RDF candidates.
	GraphProximity float64

	// InteractionID is set only for SourceShortTerm/SourceLongTerm
	// candidates, so the retriever can call Touch on returned results.
	InteractionID string

	// Maybe marks a candidate derived from a HyDE hypothesis or an RDF
	// entity/relationship below the confidence threshold (§3, §4.8).
	Maybe bool

	rawScore        float64
	normalizedScore float64
}

// Score returns the candidate's final, normalised score (populated only
// after [Retriever.Retrieve] has run).
func (c Candidate) Score() float64 { return c.normalizedScore }

// Result is the outcome of a [Retriever.Retrieve] call.
type Result struct {
	Candidates []Candidate

	// Degraded lists the fallbacks that were triggered (§4.6 "Failure"):
	// "embedding" when the embedding provider was unavailable (w_e=0
	// fallback), "concepts" when concept extraction failed (w_c=0 fallback).
	Degraded []string
}
