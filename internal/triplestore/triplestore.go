// Package triplestore implements a SPARQL 1.1 HTTP client over a configured
// query/update endpoint pair. It is the sole component that speaks SPARQL;
// every other component deals only in URIs and Go values.
package triplestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/semem-go/semem/internal/resilience"
)

// Failure kinds surfaced by Store operations, per §4.4.
var (
	// ErrEndpointUnavailable wraps network failures and HTTP 5xx responses.
	ErrEndpointUnavailable = errors.New("triplestore: endpoint unavailable")

	// ErrMalformedResponse wraps a response that could not be parsed.
	ErrMalformedResponse = errors.New("triplestore: malformed response")

	// ErrConstraintViolation wraps a non-retryable HTTP 4xx response.
	ErrConstraintViolation = errors.New("triplestore: constraint violation")

	// ErrTxInProgress is returned by BeginTx when a transaction is already open.
	ErrTxInProgress = errors.New("triplestore: transaction already in progress")

	// ErrNoTx is returned by Commit/Rollback when no transaction is open.
	ErrNoTx = errors.New("triplestore: no transaction in progress")
)

// DefaultBatchSize is the default number of quads inserted per HTTP request.
const DefaultBatchSize = 500

// Binding is a single SPARQL SELECT result row, mapping variable name to its
// bound term (already stripped of its SPARQL JSON results wrapper).
type Binding map[string]Term

// Term is one bound RDF term in a SPARQL JSON result.
type Term struct {
	Type     string `json:"type"` // "uri", "literal", "bnode"
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Quad is a single RDF statement with an explicit named graph.
type Quad struct {
	Subject   string
	Predicate string
	Object    Term
	Graph     string
}

// Config configures a Store.
type Config struct {
	QueryURL  string
	UpdateURL string
	Username  string
	Password  string

	// BatchSize bounds how many quads insertQuads sends per HTTP request.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int

	// Backoff configures the retry policy for HTTP 5xx responses.
	Backoff resilience.BackoffConfig

	// HTTPClient is used for all requests; defaults to http.DefaultClient's
	// transport with a 30s timeout if nil.
	HTTPClient *http.Client
}

// Store is a SPARQL 1.1 query/update client with optimistic transaction
// support and chunked, retried quad insertion.
type Store struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	txActive bool
	txGraph  string
}

// New constructs a Store from cfg.
func New(cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{cfg: cfg, client: client}
}

// Query executes a SPARQL SELECT query and returns its bindings.
func (s *Store) Query(ctx context.Context, sparql string) ([]Binding, error) {
	body, err := s.doForm(ctx, s.cfg.QueryURL, url.Values{"query": {sparql}}, "application/sparql-results+json")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results struct {
			Bindings []map[string]Term `json:"bindings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	out := make([]Binding, len(parsed.Results.Bindings))
	for i, b := range parsed.Results.Bindings {
		out[i] = Binding(b)
	}
	return out, nil
}

// Update executes a SPARQL UPDATE statement.
func (s *Store) Update(ctx context.Context, sparql string) error {
	_, err := s.doForm(ctx, s.cfg.UpdateURL, url.Values{"update": {sparql}}, "")
	return err
}

// BeginTx starts an optimistic transaction scoped to graph. Only one
// transaction may be open at a time per Store instance. It records graph as
// the open transaction's graph and takes no lock: Update and InsertQuads do
// not consult the transaction state, and concurrent writers to the same
// graph, through this or other Store instances, are not coordinated
// (optimistic semantics, per §4.4).
func (s *Store) BeginTx(ctx context.Context, graph string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txActive {
		return ErrTxInProgress
	}
	s.txActive = true
	s.txGraph = graph
	return nil
}

// Commit ends the current transaction. Since writes are applied immediately
// (the endpoint speaks plain SPARQL Update, not a two-phase protocol),
// Commit is a no-op beyond clearing the open-transaction mark.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.txActive {
		return ErrNoTx
	}
	s.txActive = false
	s.txGraph = ""
	return nil
}

// Rollback ends the current transaction without attempting to undo any
// writes already sent to the endpoint — optimistic transactions provide no
// undo; callers that need atomicity must stage quads and call InsertQuads
// only after all validation has passed.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.txActive {
		return ErrNoTx
	}
	s.txActive = false
	s.txGraph = ""
	return nil
}

// InsertQuads inserts quads in chunks of cfg.BatchSize, each chunk its own
// SPARQL INSERT DATA statement retried per the configured backoff policy.
func (s *Store) InsertQuads(ctx context.Context, quads []Quad) error {
	batchSize := s.cfg.BatchSize
	for start := 0; start < len(quads); start += batchSize {
		end := start + batchSize
		if end > len(quads) {
			end = len(quads)
		}
		if err := s.insertBatch(ctx, quads[start:end]); err != nil {
			return fmt.Errorf("triplestore: insert batch [%d:%d): %w", start, end, err)
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, quads []Quad) error {
	sparql := buildInsertData(quads)
	return s.Update(ctx, sparql)
}

// buildInsertData renders a SPARQL 1.1 `INSERT DATA { GRAPH <g> { ... } }`
// statement, grouping quads by graph.
func buildInsertData(quads []Quad) string {
	byGraph := make(map[string][]Quad)
	order := make([]string, 0, 4)
	for _, q := range quads {
		if _, ok := byGraph[q.Graph]; !ok {
			order = append(order, q.Graph)
		}
		byGraph[q.Graph] = append(byGraph[q.Graph], q)
	}

	var sb strings.Builder
	sb.WriteString("INSERT DATA {\n")
	for _, g := range order {
		fmt.Fprintf(&sb, "  GRAPH <%s> {\n", g)
		for _, q := range byGraph[g] {
			fmt.Fprintf(&sb, "    <%s> <%s> %s .\n", q.Subject, q.Predicate, termToSPARQL(q.Object))
		}
		sb.WriteString("  }\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func termToSPARQL(t Term) string {
	switch t.Type {
	case "uri":
		return fmt.Sprintf("<%s>", t.Value)
	case "literal":
		escaped := strings.ReplaceAll(t.Value, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		lit := fmt.Sprintf(`"%s"`, escaped)
		switch {
		case t.Datatype != "":
			return lit + "^^<" + t.Datatype + ">"
		case t.Lang != "":
			return lit + "@" + t.Lang
		default:
			return lit
		}
	default:
		return fmt.Sprintf("_:%s", t.Value)
	}
}

// doForm posts form-encoded body to target and returns the raw response body,
// retrying HTTP 5xx/network errors per the configured backoff policy. HTTP
// 4xx responses are non-retryable and returned as ErrConstraintViolation.
func (s *Store) doForm(ctx context.Context, target string, form url.Values, accept string) ([]byte, error) {
	var respBody []byte

	err := resilience.Retry(ctx, s.cfg.Backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBufferString(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		if s.cfg.Username != "" {
			req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return resilience.MarkRetryable(fmt.Errorf("%w: %w", ErrEndpointUnavailable, err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resilience.MarkRetryable(fmt.Errorf("%w: read body: %w", ErrEndpointUnavailable, err))
		}

		switch {
		case resp.StatusCode >= 500:
			return resilience.MarkRetryable(fmt.Errorf("%w: status %d: %s", ErrEndpointUnavailable, resp.StatusCode, truncate(body)))
		case resp.StatusCode >= 400:
			return fmt.Errorf("%w: status %d: %s", ErrConstraintViolation, resp.StatusCode, truncate(body))
		}

		respBody = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func truncate(b []byte) string {
	const max = 500
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
