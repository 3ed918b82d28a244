// Package memory defines the knowledge-graph layer of the semantic memory
// core: named [Entity] nodes connected by typed [Relationship] edges,
// mirroring the ragno ontology's Entity/Relationship vocabulary (§3, §6).
//
// [KnowledgeGraph] is deliberately narrow: the hybrid retriever (C6) and the
// corpus decomposer (C7) read and write RDF directly through
// internal/triplestore, so this interface exists only to let the corpus
// decomposer resolve and persist entity labels across decompositions
// (§4.7 step 3) against a backend other than the triple store (e.g.
// Postgres, for a faster label index than a SPARQL round-trip).
//
// All interfaces are public so that external packages can supply alternative
// storage backends without depending on this module's internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Knowledge graph supporting types
// ─────────────────────────────────────────────────────────────────────────────

// Entity represents a named object in the knowledge graph, corresponding
// to a ragno:Entity node.
type Entity struct {
	// ID is the unique, stable URI for this entity, minted by the namespace factory (C1).
	ID string

	// Type classifies the entity (e.g. "entity", "concept").
	Type string

	// SubType is a free-form, domain-specific refinement of Type (e.g. "person",
	// "place", "organisation") inferred by the corpus decomposer (C7).
	SubType string

	// Name is the canonical display name.
	Name string

	// Attributes holds arbitrary key/value metadata specific to this entity.
	Attributes map[string]any

	// Maybe marks an entity whose extraction confidence fell below the
	// configured threshold (ragno:maybe), or that originates from a HyDE
	// hypothesis rather than observed content.
	Maybe bool

	// Frequency is the number of times this entity's normalised label was
	// observed across all decompositions that resolved to it.
	Frequency int

	// EntryPoint flags an entity as a good starting node for graph traversal,
	// either explicitly marked or inferred from centrality offline.
	EntryPoint bool

	// CreatedAt is when the entity was first added to the graph.
	CreatedAt time.Time

	// UpdatedAt is when the entity was last modified.
	UpdatedAt time.Time
}

// Provenance records the origin of a fact asserted in the knowledge graph.
// It is embedded in [Relationship] to allow downstream reasoning about reliability.
type Provenance struct {
	// SessionID is the session during which this fact was established.
	SessionID string

	// Timestamp is when the fact was established.
	Timestamp time.Time

	// Confidence is the model's confidence in this fact (0.0–1.0).
	Confidence float64

	// Source describes how the fact was derived.
	// Well-known values: "stated" (directly extracted), "inferred" (model reasoning).
	Source string
}

// Relationship is a directed, typed edge between two entities in the knowledge
// graph, corresponding to a ragno:Relationship.
type Relationship struct {
	// SourceID is the ID (URI) of the originating entity.
	SourceID string

	// TargetID is the ID (URI) of the destination entity.
	TargetID string

	// RelType is the semantic label of the relationship.
	RelType string

	// Weight is the relation's strength or salience as assessed by the
	// corpus decomposer, in [0,1].
	Weight float64

	// Maybe marks a relationship inferred with low confidence, or derived
	// from a HyDE hypothesis.
	Maybe bool

	// Attributes holds additional edge metadata.
	Attributes map[string]any

	// Provenance records the evidence trail for this relationship.
	Provenance Provenance

	// CreatedAt is when this relationship was first added.
	CreatedAt time.Time
}

// EntityFilter specifies predicates for entity lookup queries.
// All non-zero fields are applied as AND conditions.
type EntityFilter struct {
	// Type restricts results to entities of this type. Empty matches all types.
	Type string

	// Name restricts results to entities whose name contains this substring
	// (case-insensitive). Empty matches all names.
	Name string

	// AttributeQuery is a map of attribute keys to required values.
	// An entity matches if every key/value pair in AttributeQuery is present
	// in its Attributes map.
	AttributeQuery map[string]any
}

// ─────────────────────────────────────────────────────────────────────────────
// Knowledge graph interface
// ─────────────────────────────────────────────────────────────────────────────

// KnowledgeGraph is a graph of named [Entity] nodes connected by typed
// [Relationship] edges.
//
// AddEntity and AddRelationship are upserts rather than erroring on
// duplicates, matching the corpus decomposer's reuse-or-mint resolution
// (§4.7 step 3).
//
// Implementations must be safe for concurrent use.
type KnowledgeGraph interface {
	// AddEntity upserts an entity into the graph.
	// If an entity with the same ID already exists it is completely replaced.
	AddEntity(ctx context.Context, entity Entity) error

	// GetEntity retrieves an entity by its unique ID.
	// Returns (nil, nil) when the entity does not exist.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// FindEntities returns all entities matching filter.
	// Returns an empty (non-nil) slice when no entities match.
	FindEntities(ctx context.Context, filter EntityFilter) ([]Entity, error)

	// AddRelationship upserts a directed edge between two entities.
	// If a relationship with the same (SourceID, TargetID, RelType) already
	// exists it is completely replaced.
	AddRelationship(ctx context.Context, rel Relationship) error
}
