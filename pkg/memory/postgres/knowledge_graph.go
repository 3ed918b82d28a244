package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/semem-go/semem/pkg/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// KnowledgeGraph
// ─────────────────────────────────────────────────────────────────────────────

// AddEntity implements [memory.KnowledgeGraph]. It upserts an entity into the
// entities table. If an entity with the same ID already exists it is completely
// replaced and its updated_at timestamp is refreshed.
func (s *Store) AddEntity(ctx context.Context, entity memory.Entity) error {
	attrsJSON, err := json.Marshal(entity.Attributes)
	if err != nil {
		return fmt.Errorf("knowledge graph: marshal attributes: %w", err)
	}

	const q = `
		INSERT INTO entities (id, type, sub_type, name, attributes, maybe, frequency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (id) DO UPDATE SET
		    type        = EXCLUDED.type,
		    sub_type    = EXCLUDED.sub_type,
		    name        = EXCLUDED.name,
		    attributes  = EXCLUDED.attributes,
		    maybe       = EXCLUDED.maybe,
		    frequency   = EXCLUDED.frequency,
		    updated_at  = now()`

	_, err = s.pool.Exec(ctx, q,
		entity.ID,
		entity.Type,
		entity.SubType,
		entity.Name,
		attrsJSON,
		entity.Maybe,
		entity.Frequency,
	)
	if err != nil {
		return fmt.Errorf("knowledge graph: add entity: %w", err)
	}
	return nil
}

// GetEntity implements [memory.KnowledgeGraph]. It retrieves an entity by ID.
// Returns (nil, nil) when the entity does not exist.
func (s *Store) GetEntity(ctx context.Context, id string) (*memory.Entity, error) {
	const q = `
		SELECT id, type, sub_type, name, attributes, maybe, frequency, created_at, updated_at
		FROM   entities
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: get entity: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: get entity: %w", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return &entities[0], nil
}

// FindEntities implements [memory.KnowledgeGraph]. It returns all entities
// matching filter. All non-zero filter fields are applied as AND conditions.
func (s *Store) FindEntities(ctx context.Context, filter memory.EntityFilter) ([]memory.Entity, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Type != "" {
		conditions = append(conditions, "type = "+next(filter.Type))
	}
	if filter.Name != "" {
		conditions = append(conditions, "name ILIKE "+next("%"+filter.Name+"%"))
	}
	if len(filter.AttributeQuery) > 0 {
		attrJSON, err := json.Marshal(filter.AttributeQuery)
		if err != nil {
			return nil, fmt.Errorf("knowledge graph: marshal attribute query: %w", err)
		}
		conditions = append(conditions, "attributes @> "+next(string(attrJSON))+"::jsonb")
	}

	q := "SELECT id, type, sub_type, name, attributes, maybe, frequency, created_at, updated_at\nFROM   entities"
	if len(conditions) > 0 {
		q += "\nWHERE " + strings.Join(conditions, "\n  AND ")
	}
	q += "\nORDER BY name"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: find entities: %w", err)
	}
	result, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: find entities: %w", err)
	}
	return result, nil
}

// AddRelationship implements [memory.KnowledgeGraph]. It upserts a directed
// edge between two entities. If the edge (SourceID, TargetID, RelType) already
// exists it is completely replaced.
func (s *Store) AddRelationship(ctx context.Context, rel memory.Relationship) error {
	attrsJSON, err := json.Marshal(rel.Attributes)
	if err != nil {
		return fmt.Errorf("knowledge graph: marshal relationship attributes: %w", err)
	}
	provJSON, err := json.Marshal(rel.Provenance)
	if err != nil {
		return fmt.Errorf("knowledge graph: marshal relationship provenance: %w", err)
	}

	const q = `
		INSERT INTO relationships
		    (source_id, target_id, rel_type, weight, maybe, attributes, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (source_id, target_id, rel_type) DO UPDATE SET
		    weight     = EXCLUDED.weight,
		    maybe      = EXCLUDED.maybe,
		    attributes = EXCLUDED.attributes,
		    provenance = EXCLUDED.provenance`

	_, err = s.pool.Exec(ctx, q,
		rel.SourceID,
		rel.TargetID,
		rel.RelType,
		rel.Weight,
		rel.Maybe,
		attrsJSON,
		provJSON,
	)
	if err != nil {
		return fmt.Errorf("knowledge graph: add relationship: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Private scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// collectEntities scans pgx rows into a slice of Entity values.
func collectEntities(rows pgx.Rows) ([]memory.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Entity, error) {
		var (
			e         memory.Entity
			attrsJSON []byte
		)
		if err := row.Scan(
			&e.ID,
			&e.Type,
			&e.SubType,
			&e.Name,
			&attrsJSON,
			&e.Maybe,
			&e.Frequency,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return memory.Entity{}, err
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &e.Attributes); err != nil {
				return memory.Entity{}, fmt.Errorf("unmarshal entity attributes: %w", err)
			}
		}
		if e.Attributes == nil {
			e.Attributes = map[string]any{}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []memory.Entity{}
	}
	return entities, nil
}
