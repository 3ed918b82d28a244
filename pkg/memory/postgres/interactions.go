package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/pkg/memory"
)

// Compile-time interface check: InteractionStore satisfies the long-term
// tier contract the C5 interaction store delegates to.
var _ interactions.LongTermTier = (*InteractionStore)(nil)

// InteractionStore is the C5 long-term tier and the embedding pre-filter
// source for the hybrid retriever's source (b) candidates (§4.6 step 2b).
//
// Obtain one via [Store.Interactions] rather than constructing directly.
type InteractionStore struct {
	pool *pgxpool.Pool
}

// Append implements [interactions.LongTermTier]. It upserts ia by ID.
func (s *InteractionStore) Append(ctx context.Context, ia memory.Interaction) error {
	const q = `
		INSERT INTO interactions
		    (id, uri, session_uri, prompt, response, embedding, concepts, domains,
		     access_count, decay_factor, system_flag, created_at, last_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
		    access_count = EXCLUDED.access_count,
		    decay_factor = EXCLUDED.decay_factor,
		    last_access  = EXCLUDED.last_access`

	var vec *pgvector.Vector
	if len(ia.Embedding) > 0 {
		v := pgvector.NewVector(ia.Embedding)
		vec = &v
	}

	_, err := s.pool.Exec(ctx, q,
		ia.ID, ia.URI, ia.SessionURI, ia.Prompt, ia.Response, vec,
		ia.Concepts, ia.Domains, ia.AccessCount, ia.DecayFactor, ia.System,
		ia.CreatedAt, ia.LastAccess,
	)
	if err != nil {
		return fmt.Errorf("postgres interactions: append: %w", err)
	}
	return nil
}

// GetByID implements [interactions.LongTermTier]. Returns (nil, nil) when
// the interaction does not exist.
func (s *InteractionStore) GetByID(ctx context.Context, id string) (*memory.Interaction, error) {
	const q = `
		SELECT id, uri, session_uri, prompt, response, embedding, concepts, domains,
		       access_count, decay_factor, system_flag, created_at, last_access
		FROM   interactions
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres interactions: get by id: %w", err)
	}
	ias, err := collectInteractions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres interactions: get by id: %w", err)
	}
	if len(ias) == 0 {
		return nil, nil
	}
	return &ias[0], nil
}

// Scan implements [interactions.LongTermTier].
func (s *InteractionStore) Scan(ctx context.Context, filter interactions.ScanFilter) ([]memory.Interaction, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.ID != "" {
		conditions = append(conditions, "id = "+next(filter.ID))
	}
	if filter.SessionURI != "" {
		conditions = append(conditions, "session_uri = "+next(filter.SessionURI))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(filter.After))
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(filter.Before))
	}
	if len(filter.Domains) > 0 {
		conditions = append(conditions, "domains && "+next(filter.Domains))
	}

	q := `SELECT id, uri, session_uri, prompt, response, embedding, concepts, domains,
	             access_count, decay_factor, system_flag, created_at, last_access
	      FROM   interactions`
	if len(conditions) > 0 {
		q += "\nWHERE " + strings.Join(conditions, "\n  AND  ")
	}
	q += "\nORDER BY created_at"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres interactions: scan: %w", err)
	}
	return collectInteractions(rows)
}

// Touch implements [interactions.LongTermTier].
func (s *InteractionStore) Touch(ctx context.Context, id string, accessCount int, decayFactor float64) error {
	const q = `
		UPDATE interactions
		SET    access_count = $2, decay_factor = $3, last_access = now()
		WHERE  id = $1`
	_, err := s.pool.Exec(ctx, q, id, accessCount, decayFactor)
	if err != nil {
		return fmt.Errorf("postgres interactions: touch: %w", err)
	}
	return nil
}

// Forget implements [interactions.LongTermTier]. Deleting a non-existent
// interaction is not an error.
func (s *InteractionStore) Forget(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM interactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres interactions: forget: %w", err)
	}
	return nil
}

// CosinePreFilter implements the hybrid retriever's source (b) candidate
// gathering (§4.6 step 2b): the limit nearest long-term interactions to
// queryEmbedding by cosine distance, optionally scoped by filter.
func (s *InteractionStore) CosinePreFilter(ctx context.Context, queryEmbedding []float32, limit int, filter interactions.ScanFilter) ([]memory.Interaction, error) {
	args := []any{pgvector.NewVector(queryEmbedding)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.SessionURI != "" {
		conditions = append(conditions, "session_uri = "+next(filter.SessionURI))
	}
	if len(filter.Domains) > 0 {
		conditions = append(conditions, "domains && "+next(filter.Domains))
	}

	q := `SELECT id, uri, session_uri, prompt, response, embedding, concepts, domains,
	             access_count, decay_factor, system_flag, created_at, last_access
	      FROM   interactions
	      WHERE  embedding IS NOT NULL`
	if len(conditions) > 0 {
		q += "\n  AND  " + strings.Join(conditions, "\n  AND  ")
	}
	q += fmt.Sprintf("\nORDER BY embedding <=> $1\nLIMIT %s", next(limit))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres interactions: cosine pre-filter: %w", err)
	}
	return collectInteractions(rows)
}

func collectInteractions(rows pgx.Rows) ([]memory.Interaction, error) {
	ias, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Interaction, error) {
		var (
			ia  memory.Interaction
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&ia.ID, &ia.URI, &ia.SessionURI, &ia.Prompt, &ia.Response, &vec,
			&ia.Concepts, &ia.Domains, &ia.AccessCount, &ia.DecayFactor, &ia.System,
			&ia.CreatedAt, &ia.LastAccess,
		); err != nil {
			return memory.Interaction{}, err
		}
		if vec != nil {
			ia.Embedding = vec.Slice()
		}
		return ia, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres interactions: scan rows: %w", err)
	}
	if ias == nil {
		ias = []memory.Interaction{}
	}
	return ias, nil
}
