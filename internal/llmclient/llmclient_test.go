package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/semem-go/semem/pkg/provider/llm"
	"github.com/semem-go/semem/pkg/provider/llm/mock"
)

func TestGenerate_SendsPromptAndReturnsContent(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hello there"}}
	c := New(backend, "mock", "mock-model")

	got, err := c.Generate(context.Background(), "say hi", "", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Generate() = %q, want %q", got, "hello there")
	}
	if len(backend.CompleteCalls) != 1 {
		t.Fatalf("CompleteCalls = %d, want 1", len(backend.CompleteCalls))
	}
	if backend.CompleteCalls[0].Req.Messages[0].Content != "say hi" {
		t.Errorf("sent content = %q, want %q", backend.CompleteCalls[0].Req.Messages[0].Content, "say hi")
	}
}

func TestGenerate_PropagatesError(t *testing.T) {
	backend := &mock.Provider{CompleteErr: errors.New("backend down")}
	c := New(backend, "mock", "mock-model")

	_, err := c.Generate(context.Background(), "x", "", GenerateOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGenerate_RecordsLastCall(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	c := New(backend, "mock", "mock-model")

	c.Generate(context.Background(), "x", "", GenerateOptions{})

	info := c.LastCall()
	if info.Provider != "mock" || info.Model != "mock-model" || info.Status != "ok" {
		t.Errorf("LastCall() = %+v, want provider=mock model=mock-model status=ok", info)
	}
}

func TestExtractConcepts_EmptyInput(t *testing.T) {
	backend := &mock.Provider{}
	c := New(backend, "mock", "mock-model")

	got, err := c.ExtractConcepts(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ExtractConcepts(\"\") = %v, want empty", got)
	}
	if len(backend.CompleteCalls) != 0 {
		t.Error("ExtractConcepts should not call the backend on empty input")
	}
}

func TestExtractConcepts_ParsesArrayWithSurroundingProse(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `Sure, here are the concepts: ["go", "concurrency", "channels"] — hope that helps!`,
	}}
	c := New(backend, "mock", "mock-model")

	got, err := c.ExtractConcepts(context.Background(), "a text about go channels")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"go", "concurrency", "channels"}
	if len(got) != len(want) {
		t.Fatalf("ExtractConcepts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExtractConcepts()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractConcepts_FlattensOneLevelOfNesting(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `[["go", "concurrency"], "channels"]`,
	}}
	c := New(backend, "mock", "mock-model")

	got, err := c.ExtractConcepts(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"go", "concurrency", "channels"}
	if len(got) != len(want) {
		t.Fatalf("ExtractConcepts() = %v, want %v", got, want)
	}
}

func TestExtractConcepts_SkipsUnparsableBracketSpan(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `[JSON] [["a","b"],["c"]]`,
	}}
	c := New(backend, "mock", "mock-model")

	got, err := c.ExtractConcepts(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ExtractConcepts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExtractConcepts()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractConcepts_NoArrayFound(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "no array here at all"}}
	c := New(backend, "mock", "mock-model")

	_, err := c.ExtractConcepts(context.Background(), "x")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("error = %v, want ErrParse", err)
	}
}

func TestExtractConcepts_BracketInsideQuotedStringIgnored(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `prefix "[not an array]" then the real one: ["real", "concepts"]`,
	}}
	c := New(backend, "mock", "mock-model")

	got, err := c.ExtractConcepts(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"real", "concepts"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ExtractConcepts() = %v, want %v", got, want)
	}
}

func TestGenerateHypothesis_LowConfidenceOnHedging(t *testing.T) {
	confident := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "Atlantis's capital was Poseidonis, a city of concentric canals described at length in Plato's dialogues and later retellings.",
	}}
	hedging := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "I'm not sure, but it might be called Poseidonis.",
	}}

	confidentHyp, err := New(confident, "mock", "m").GenerateHypothesis(context.Background(), "q", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hedgingHyp, err := New(hedging, "mock", "m").GenerateHypothesis(context.Background(), "q", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hedgingHyp.Confidence >= confidentHyp.Confidence {
		t.Errorf("hedging confidence %v should be lower than confident confidence %v", hedgingHyp.Confidence, confidentHyp.Confidence)
	}
}

func TestGenerateHypothesis_EmptyResponseIsZeroConfidence(t *testing.T) {
	backend := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: ""}}
	hyp, err := New(backend, "mock", "m").GenerateHypothesis(context.Background(), "q", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hyp.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for empty response", hyp.Confidence)
	}
}

func TestParseConceptArray_EmptyArray(t *testing.T) {
	got, err := ParseConceptArray("[]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
