package hyde

import "github.com/semem-go/semem/internal/retriever"

// ToCandidates projects hypotheses into [retriever.Candidate]s tagged
// SourceHypothesis, for the `ask` verb to fold into C6 as additional
// candidates (§4.8 step 4, §4.11).
func ToCandidates(result Result) []retriever.Candidate {
	out := make([]retriever.Candidate, 0, len(result.Hypotheses))
	for _, h := range result.Hypotheses {
		out = append(out, retriever.Candidate{
			Source:    retriever.SourceHypothesis,
			Zoom:      "text",
			URI:       h.URI,
			Response:  h.Text,
			Timestamp: h.CreatedAt,
			Maybe:     true,
		})
	}
	return out
}
