package triplestore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/semem-go/semem/internal/resilience"
)

func testBackoff() resilience.BackoffConfig {
	return resilience.BackoffConfig{Base: time.Millisecond, MaxAttempts: 3}
}

func TestQuery_ParsesBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"results":{"bindings":[{"s":{"type":"uri","value":"http://example.org/x"}}]}}`))
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, Backoff: testBackoff()})
	bindings, err := s.Query(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("len(bindings) = %d, want 1", len(bindings))
	}
	if bindings[0]["s"].Value != "http://example.org/x" {
		t.Errorf("bindings[0][\"s\"].Value = %q, want %q", bindings[0]["s"].Value, "http://example.org/x")
	}
}

func TestQuery_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, Backoff: testBackoff()})
	_, err := s.Query(context.Background(), "SELECT * WHERE {}")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestDoForm_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, Backoff: testBackoff()})
	if err := s.Update(context.Background(), "INSERT DATA {}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDoForm_4xxIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, Backoff: testBackoff()})
	err := s.Update(context.Background(), "malformed")
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("error = %v, want ErrConstraintViolation", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestDoForm_ExhaustsRetriesOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, Backoff: testBackoff()})
	err := s.Update(context.Background(), "INSERT DATA {}")
	if !errors.Is(err, ErrEndpointUnavailable) {
		t.Fatalf("error = %v, want ErrEndpointUnavailable", err)
	}
}

func TestInsertQuads_ChunksIntoConfiguredBatchSize(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{QueryURL: srv.URL, UpdateURL: srv.URL, BatchSize: 2, Backoff: testBackoff()})
	quads := make([]Quad, 5)
	for i := range quads {
		quads[i] = Quad{Subject: "http://s", Predicate: "http://p", Object: Term{Type: "literal", Value: "v"}, Graph: "http://g"}
	}

	if err := s.InsertQuads(context.Background(), quads); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 5 quads / batch size 2 => 3 requests (2, 2, 1)
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestBeginTx_RejectsConcurrentTransaction(t *testing.T) {
	s := New(Config{QueryURL: "http://unused", UpdateURL: "http://unused"})
	ctx := context.Background()

	if err := s.BeginTx(ctx, "http://example.org/g"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.BeginTx(ctx, "http://example.org/g"); !errors.Is(err, ErrTxInProgress) {
		t.Fatalf("error = %v, want ErrTxInProgress", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Commit(ctx); !errors.Is(err, ErrNoTx) {
		t.Fatalf("error = %v, want ErrNoTx", err)
	}
}

func TestBuildInsertData_GroupsByGraph(t *testing.T) {
	quads := []Quad{
		{Subject: "http://s1", Predicate: "http://p", Object: Term{Type: "uri", Value: "http://o1"}, Graph: "http://g1"},
		{Subject: "http://s2", Predicate: "http://p", Object: Term{Type: "literal", Value: "hello \"world\""}, Graph: "http://g2"},
	}
	sparql := buildInsertData(quads)

	for _, want := range []string{"GRAPH <http://g1>", "GRAPH <http://g2>", `"hello \"world\""`} {
		if !strings.Contains(sparql, want) {
			t.Errorf("buildInsertData output missing %q:\n%s", want, sparql)
		}
	}
}
