package compose

import (
	"context"
	"strings"
	"testing"

	"github.com/semem-go/semem/internal/config"
	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/pkg/memory"
)

func weightConfig() config.RetrieverConfig {
	return config.RetrieverConfig{
		TiltWeights: map[string]config.Weights{
			"keywords": {Embedding: 0.4, Concept: 0.4, Recency: 0.1, Access: 0.1},
		},
		HypothesisWeight:     0.3,
		CoarsePreFilterLimit: 50,
	}
}

func TestAssemble_UnknownTemplateIsTemplateNotFound(t *testing.T) {
	c := New(nil, nil, Config{})
	_, err := c.Assemble(context.Background(), "q", Options{Template: "does-not-exist"})
	if errs.KindOf(err) != errs.TemplateNotFound {
		t.Fatalf("expected TemplateNotFound, got %v", err)
	}
}

func TestAssemble_DefaultTemplateWithNoSources(t *testing.T) {
	c := New(nil, nil, Config{})
	ctx, err := c.Assemble(context.Background(), "what is a cat", Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(ctx.Rendered, "Question: what is a cat") {
		t.Fatalf("expected question echoed in default template, got %q", ctx.Rendered)
	}
}

func TestAssemble_SessionItemsDedupedAgainstMemory(t *testing.T) {
	ns := namespace.New()
	store := interactions.New(interactions.Config{CapacityPerSession: 10}, ns, nil, nil)
	ctx := context.Background()

	ia, err := store.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "hello", Response: "hi there"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	short := &fakeShortTerm{interactions: []memory.Interaction{ia}}
	ret := retriever.New(fakeEmbedder{vec: []float32{1, 0}}, fakeConcepts{concepts: []string{"greeting"}}, short, nil, nil, weightConfig())

	c := New(store, ret, Config{})
	result, err := c.Assemble(ctx, "hello", Options{SessionURI: "sess1", Tilt: "keywords"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(result.SessionItems) != 1 {
		t.Fatalf("expected 1 session item, got %d", len(result.SessionItems))
	}
	for _, m := range result.MemoryItems {
		if m.Prompt == ia.Prompt && m.Response == ia.Response {
			t.Fatalf("expected memory item deduped against session item, found duplicate %+v", m)
		}
	}
}

func TestAskTemplate_OmitsQuestionEcho(t *testing.T) {
	c := New(nil, nil, Config{})
	result, err := c.Assemble(context.Background(), "secret question", Options{Template: AskTemplateName})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if strings.Contains(result.Rendered, "secret question") {
		t.Fatalf("ask-context template should not echo the question, got %q", result.Rendered)
	}
}

func TestAssemble_ExtraContextPrecedesItems(t *testing.T) {
	c := New(nil, nil, Config{})
	result, err := c.Assemble(context.Background(), "q", Options{Extra: "caller-supplied background"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.HasPrefix(result.Rendered, "caller-supplied background") {
		t.Fatalf("expected extra context rendered first, got %q", result.Rendered)
	}
}

func TestAssemble_SkipMemoryDisablesRetrieval(t *testing.T) {
	ns := namespace.New()
	store := interactions.New(interactions.Config{CapacityPerSession: 10}, ns, nil, nil)
	ctx := context.Background()

	ia, err := store.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "hello", Response: "hi"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	short := &fakeShortTerm{interactions: []memory.Interaction{ia}}
	ret := retriever.New(fakeEmbedder{vec: []float32{1, 0}}, fakeConcepts{concepts: []string{"greeting"}}, short, nil, nil, weightConfig())

	c := New(store, ret, Config{})
	result, err := c.Assemble(ctx, "hello", Options{SessionURI: "sess1", Tilt: "keywords", SkipMemory: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(result.MemoryItems) != 0 {
		t.Fatalf("expected no memory items with SkipMemory, got %d", len(result.MemoryItems))
	}
	if len(result.SessionItems) != 1 {
		t.Fatalf("expected session items unaffected, got %d", len(result.SessionItems))
	}
}

func TestRenderItems_Format(t *testing.T) {
	items := []Item{
		{Prompt: "p1", Response: "r1", Similarity: 0.856},
		{Prompt: "p2", Response: "r2", Similarity: 0.1},
	}
	got := renderItems(items)
	want := "[1] p1 (similarity: 0.86)\nr1\n[2] p2 (similarity: 0.10)\nr2"
	if got != want {
		t.Fatalf("renderItems() =\n%q\nwant\n%q", got, want)
	}
}

func TestDedupeAgainst_DropsExactMatches(t *testing.T) {
	session := []Item{{Prompt: "a", Response: "b"}}
	memoryItems := []Item{{Prompt: "a", Response: "b"}, {Prompt: "c", Response: "d"}}
	got := dedupeAgainst(memoryItems, session)
	if len(got) != 1 || got[0].Prompt != "c" {
		t.Fatalf("expected only the non-duplicate item to survive, got %+v", got)
	}
}

type fakeShortTerm struct {
	interactions []memory.Interaction
}

func (f *fakeShortTerm) ShortTerm(sessionURI string) []memory.Interaction { return f.interactions }

func (f *fakeShortTerm) Touch(ctx context.Context, id string) error { return nil }

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }

type fakeConcepts struct{ concepts []string }

func (f fakeConcepts) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	return f.concepts, nil
}
