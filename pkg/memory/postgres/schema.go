// Package postgres provides a PostgreSQL-backed implementation of the C5
// long-term interaction tier plus a [memory.KnowledgeGraph] used by the
// corpus decomposer (C7) to resolve and persist entity labels across
// decompositions (§4.7 step 3).
//
// Both share a single [pgxpool.Pool] connection pool. The pgvector extension
// must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	_ = store.AddEntity(ctx, entity)
//	_ = store.Interactions().Append(ctx, interaction)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlVectorExtension = `CREATE EXTENSION IF NOT EXISTS vector;`

// ─────────────────────────────────────────────────────────────────────────────
// Knowledge graph DDL — entities + relationships
// ─────────────────────────────────────────────────────────────────────────────

const ddlKnowledgeGraph = `
CREATE TABLE IF NOT EXISTS entities (
    id          TEXT         PRIMARY KEY,
    type        TEXT         NOT NULL,
    sub_type    TEXT         NOT NULL DEFAULT '',
    name        TEXT         NOT NULL,
    attributes  JSONB        NOT NULL DEFAULT '{}',
    maybe       BOOLEAN      NOT NULL DEFAULT false,
    frequency   INTEGER      NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities (name);

CREATE TABLE IF NOT EXISTS relationships (
    source_id   TEXT         NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    target_id   TEXT         NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    rel_type    TEXT         NOT NULL,
    weight      DOUBLE PRECISION NOT NULL DEFAULT 1,
    maybe       BOOLEAN      NOT NULL DEFAULT false,
    attributes  JSONB        NOT NULL DEFAULT '{}',
    provenance  JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (source_id, target_id, rel_type)
);

CREATE INDEX IF NOT EXISTS idx_rel_source
    ON relationships (source_id);

CREATE INDEX IF NOT EXISTS idx_rel_target
    ON relationships (target_id);

CREATE INDEX IF NOT EXISTS idx_rel_type
    ON relationships (rel_type);

CREATE INDEX IF NOT EXISTS idx_rel_provenance_confidence
    ON relationships ((provenance->>'confidence'));
`

// ddlInteractions returns the C5 long-term interaction tier DDL with the
// embedding dimension substituted; interactions hold whole tell/ask
// exchanges with decay bookkeeping (§4.5).
func ddlInteractions(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS interactions (
    id            TEXT         PRIMARY KEY,
    uri           TEXT         NOT NULL,
    session_uri   TEXT         NOT NULL DEFAULT '',
    prompt        TEXT         NOT NULL,
    response      TEXT         NOT NULL DEFAULT '',
    embedding     vector(%d),
    concepts      TEXT[]       NOT NULL DEFAULT '{}',
    domains       TEXT[]       NOT NULL DEFAULT '{}',
    access_count  INTEGER      NOT NULL DEFAULT 0,
    decay_factor  DOUBLE PRECISION NOT NULL DEFAULT 1,
    system_flag   BOOLEAN      NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_access   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interactions_session
    ON interactions (session_uri);

CREATE INDEX IF NOT EXISTS idx_interactions_created_at
    ON interactions (created_at);

CREATE INDEX IF NOT EXISTS idx_interactions_domains
    ON interactions USING GIN (domains);

CREATE INDEX IF NOT EXISTS idx_interactions_embedding
    ON interactions USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your deployment
// (e.g., 1536 for OpenAI text-embedding-3-small, 768 for nomic-embed-text).
// Changing this value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlVectorExtension,
		ddlKnowledgeGraph,
		ddlInteractions(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
