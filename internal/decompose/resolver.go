package decompose

import (
	"context"

	"github.com/semem-go/semem/pkg/memory"
)

// GraphResolver adapts a [memory.KnowledgeGraph] into an [EntityResolver] by
// scanning FindEntities results for a normalised-label match (§4.7 step 3).
// KnowledgeGraph has no label-indexed lookup of its own, so this trades an
// exact match for a broader substring query plus a narrowing pass here.
type GraphResolver struct {
	Graph memory.KnowledgeGraph
}

// FindByLabel implements [EntityResolver].
func (r GraphResolver) FindByLabel(ctx context.Context, normalizedLabel string) (*memory.Entity, error) {
	candidates, err := r.Graph.FindEntities(ctx, memory.EntityFilter{Name: normalizedLabel})
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if normalizeLabel(c.Name) == normalizedLabel {
			return &c, nil
		}
	}
	return nil, nil
}
