package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/semem-go/semem/pkg/memory"
)

// Compile-time interface check.
var _ memory.KnowledgeGraph = (*Store)(nil)

// Store is the PostgreSQL-backed long-term memory store for the semantic
// memory core. It holds a single [pgxpool.Pool] and exposes:
//
//   - [Store.Interactions] returns the C5 long-term interaction tier
//   - Store itself implements [memory.KnowledgeGraph], used by the corpus
//     decomposer (C7) to resolve and persist entity labels across
//     decompositions independent of the RDF store (§4.7 step 3)
//
// All operations are safe for concurrent use.
type Store struct {
	pool         *pgxpool.Pool
	interactions *InteractionStore
}

// NewStore creates a new Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Interaction.Embedding] values (e.g., 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:         pool,
		interactions: &InteractionStore{pool: pool},
	}, nil
}

// Interactions returns the C5 long-term interaction tier, satisfying
// [interactions.LongTermTier] and providing the embedding pre-filter used by
// the hybrid retriever's source (b) (§4.6 step 2b).
func (s *Store) Interactions() *InteractionStore { return s.interactions }

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
