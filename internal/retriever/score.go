package retriever

import (
	"math"
	"strings"
	"time"
)

// cosine returns the cosine similarity of a and b in [-1,1], or 0 when
// either vector is empty or they differ in length (embedding unavailable or
// dimension mismatch — treated as no signal, not an error, at this layer).
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccard returns |a∩b| / |a∪b| over case-folded sets, 0 when both are empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for k := range setA {
		union[k] = struct{}{}
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	for k := range setB {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimSpace(it))] = struct{}{}
	}
	return set
}

// recencyDecayHalfLife is the time constant for [recencyDecay]'s exponential
// falloff: a candidate exactly this old scores 0.5.
const recencyDecayHalfLife = 7 * 24 * time.Hour

// recencyDecay maps a candidate's age (now - ts) to (0,1] via exponential
// decay with a 7-day half-life. A zero timestamp (unknown age) scores 0.
func recencyDecay(ts, now time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(recencyDecayHalfLife))
}

// accessScore maps an access count to a monotonically increasing (unbounded)
// signal via log(1+n), matching §4.6 step 3's w_a * log(1 + accessCount) term.
func accessScore(accessCount int) float64 {
	return math.Log1p(float64(accessCount))
}

// normalizeBySource partitions candidates by Source and divides each
// partition's raw scores by that partition's maximum, so no single source
// can dominate purely through scale (§4.6 step 4, §8 property 3). A
// partition whose max is 0 is left at 0 rather than dividing by zero.
func normalizeBySource(candidates []Candidate) {
	maxBySource := make(map[SourceTag]float64)
	for _, c := range candidates {
		if c.rawScore > maxBySource[c.Source] {
			maxBySource[c.Source] = c.rawScore
		}
	}
	for i := range candidates {
		max := maxBySource[candidates[i].Source]
		if max > 0 {
			candidates[i].normalizedScore = candidates[i].rawScore / max
		} else {
			candidates[i].normalizedScore = 0
		}
	}
}
