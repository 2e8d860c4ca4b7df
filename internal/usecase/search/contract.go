package search

import (
	"context"

	"github.com/kailas-cloud/shopsearch/internal/domain"
)

// Analyzer turns a free-text query into structured intent. It must always
// produce a usable intent, degrading internally on model failure.
type Analyzer interface {
	Analyze(ctx context.Context, query string) domain.Intent
}

// VectorStore runs filtered similarity search over indexed products.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, filter domain.Filter, limit int, scoreThreshold float64) ([]domain.Hit, error)
}
