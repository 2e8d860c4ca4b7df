// Package search runs the query pipeline: intent analysis, query embedding,
// filtered vector search.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
)

// Service answers natural-language product searches.
type Service struct {
	analyzer       Analyzer
	embed          domain.Embedder // query chain
	store          VectorStore
	limit          int
	scoreThreshold float64
	logger         *zap.Logger
}

// New creates a search service with the given result cap and minimum
// similarity score.
func New(analyzer Analyzer, embed domain.Embedder, store VectorStore, limit int, scoreThreshold float64, logger *zap.Logger) *Service {
	if limit <= 0 {
		limit = 10
	}
	return &Service{
		analyzer:       analyzer,
		embed:          embed,
		store:          store,
		limit:          limit,
		scoreThreshold: scoreThreshold,
		logger:         logger,
	}
}

// Response carries the outcome of one search: the original query, the intent
// it resolved to and the ranked hits.
type Response struct {
	query   string
	intent  domain.Intent
	results []domain.Hit
}

// Query returns the original free-text query.
func (r Response) Query() string { return r.query }

// Intent returns the structured intent the query resolved to.
func (r Response) Intent() domain.Intent { return r.intent }

// Results returns hits ordered by descending similarity score.
func (r Response) Results() []domain.Hit { return r.results }

// Search analyzes the query, embeds the expanded form and runs a filtered
// similarity search. The raw query is never embedded; only the expanded
// query reaches the embedding provider.
func (s *Service) Search(ctx context.Context, query string) (Response, error) {
	intent := s.analyzer.Analyze(ctx, query)

	embResult, err := s.embed.Embed(ctx, intent.ExpandedQuery())
	if err != nil {
		return Response{}, fmt.Errorf("vectorize query: %w", err)
	}

	filter := domain.NewFilter(intent.Gender(), intent.ProductTypes())
	hits, err := s.store.Search(ctx, embResult.Embedding, filter, s.limit, s.scoreThreshold)
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}

	s.logger.Debug("Search complete",
		zap.String("query", query),
		zap.String("analysis_source", string(intent.Source())),
		zap.Int("results", len(hits)),
	)
	return Response{query: query, intent: intent, results: hits}, nil
}

// Analyze exposes intent analysis without running a search.
func (s *Service) Analyze(ctx context.Context, query string) domain.Intent {
	return s.analyzer.Analyze(ctx, query)
}
