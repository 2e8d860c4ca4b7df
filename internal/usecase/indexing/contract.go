package indexing

import (
	"context"

	"github.com/kailas-cloud/shopsearch/internal/domain"
)

// VectorStore persists product points keyed by product id (full replace).
type VectorStore interface {
	Upsert(ctx context.Context, product domain.Product, vector []float32) error
	UpsertBatch(ctx context.Context, products []domain.Product, vectors [][]float32) error
}
