package decompose

import (
	"context"
	"testing"

	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
)

type fakeExtractor struct {
	byText map[string]llmclient.Extraction
}

func (f fakeExtractor) Decompose(ctx context.Context, text string) (llmclient.Extraction, error) {
	return f.byText[text], nil
}

func TestDecomposeEmitsEntitiesAndRelations(t *testing.T) {
	extractor := fakeExtractor{byText: map[string]llmclient.Extraction{
		"Alice met Bob in Paris.": {
			Summary: "Alice met Bob in Paris.",
			Entities: []llmclient.ExtractedEntity{
				{Label: "Alice", SubType: "person", Confidence: 0.9},
				{Label: "Bob", SubType: "person", Confidence: 0.9},
				{Label: "Paris", SubType: "place", Confidence: 0.9},
			},
			Relations: []llmclient.ExtractedRelation{
				{Source: "Alice", Type: "met", Target: "Bob", Weight: 0.8},
			},
		},
	}}

	d := New(extractor, namespace.New(), Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	chunks := []Chunk{{SourceURI: "http://example.org/doc1", Index: 0, Text: "Alice met Bob in Paris."}}

	result, err := d.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Units) != 1 {
		t.Fatalf("expected 1 semantic unit, got %d", len(result.Units))
	}
	if len(result.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(result.Entities))
	}
	if len(result.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(result.Relationships))
	}
	if len(result.Quads) == 0 {
		t.Fatal("expected non-empty quad set")
	}
}

func TestDecomposeDedupsEntitiesByNormalizedLabel(t *testing.T) {
	extractor := fakeExtractor{byText: map[string]llmclient.Extraction{
		"chunk one": {
			Entities: []llmclient.ExtractedEntity{{Label: "Dr. Smith", SubType: "person", Confidence: 0.9}},
		},
		"chunk two": {
			Entities: []llmclient.ExtractedEntity{{Label: "dr smith", SubType: "person", Confidence: 0.9}},
		},
	}}

	d := New(extractor, namespace.New(), Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	chunks := []Chunk{
		{SourceURI: "http://example.org/doc1", Index: 0, Text: "chunk one"},
		{SourceURI: "http://example.org/doc1", Index: 1, Text: "chunk two"},
	}

	result, err := d.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("expected 1 deduped entity, got %d", len(result.Entities))
	}
	if result.Entities[0].Frequency != 2 {
		t.Fatalf("expected frequency 2, got %d", result.Entities[0].Frequency)
	}
}

func TestDecomposeDropsSelfLoopsAndDuplicateRelations(t *testing.T) {
	extractor := fakeExtractor{byText: map[string]llmclient.Extraction{
		"chunk": {
			Entities: []llmclient.ExtractedEntity{
				{Label: "Alice", SubType: "person", Confidence: 0.9},
			},
			Relations: []llmclient.ExtractedRelation{
				{Source: "Alice", Type: "knows", Target: "Alice", Weight: 0.5},
			},
		},
	}}

	d := New(extractor, namespace.New(), Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	chunks := []Chunk{{SourceURI: "http://example.org/doc1", Index: 0, Text: "chunk"}}

	result, err := d.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(result.Relationships) != 0 {
		t.Fatalf("expected self-loop dropped, got %d relationships", len(result.Relationships))
	}
}

func TestDecomposeMarksLowConfidenceEntitiesMaybe(t *testing.T) {
	extractor := fakeExtractor{byText: map[string]llmclient.Extraction{
		"chunk": {
			Entities: []llmclient.ExtractedEntity{{Label: "Shadowy Figure", SubType: "person", Confidence: 0.1}},
		},
	}}

	d := New(extractor, namespace.New(), Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	chunks := []Chunk{{SourceURI: "http://example.org/doc1", Index: 0, Text: "chunk"}}

	result, err := d.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if !result.Entities[0].Maybe {
		t.Fatal("expected low-confidence entity marked Maybe")
	}
}

func TestDecomposeIsDeterministicAcrossRuns(t *testing.T) {
	extractor := fakeExtractor{byText: map[string]llmclient.Extraction{
		"chunk": {
			Summary: "summary",
			Entities: []llmclient.ExtractedEntity{
				{Label: "Alice", SubType: "person", Confidence: 0.9},
				{Label: "Bob", SubType: "person", Confidence: 0.9},
			},
			Relations: []llmclient.ExtractedRelation{{Source: "Alice", Type: "met", Target: "Bob", Weight: 0.7}},
		},
	}}

	ns := namespace.New()
	chunks := []Chunk{{SourceURI: "http://example.org/doc1", Index: 0, Text: "chunk"}}

	d1 := New(extractor, ns, Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	r1, err := d1.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose (1): %v", err)
	}

	d2 := New(extractor, ns, Config{MinEntityConfidence: 0.5, Graph: "http://example.org/g"})
	r2, err := d2.Decompose(context.Background(), chunks, nil, false)
	if err != nil {
		t.Fatalf("Decompose (2): %v", err)
	}

	if len(r1.Quads) != len(r2.Quads) {
		t.Fatalf("quad count differs across runs: %d vs %d", len(r1.Quads), len(r2.Quads))
	}
	for i := range r1.Quads {
		if r1.Quads[i] != r2.Quads[i] {
			t.Fatalf("quad %d differs across runs: %+v vs %+v", i, r1.Quads[i], r2.Quads[i])
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"Dr. Smith":  "dr smith",
		"dr smith":   "dr smith",
		"  Paris  ":  "paris",
		"O'Brien's!": "obriens",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
