// Package indexing orchestrates the product ingestion pipeline:
// text build -> document embedding -> vector store upsert.
package indexing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/batch"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// Service indexes products one-at-a-time or in batches with per-item error
// reporting.
type Service struct {
	store   VectorStore
	embed   domain.Embedder // document chain
	workers int
	logger  *zap.Logger
}

// New creates an indexing service.
func New(store VectorStore, embed domain.Embedder, logger *zap.Logger) *Service {
	return &Service{store: store, embed: embed, workers: 4, logger: logger}
}

// WithWorkers configures the bounded parallelism of batch embedding.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// IndexOne embeds and upserts a single validated product. Re-indexing the
// same product id overwrites the prior point.
func (s *Service) IndexOne(ctx context.Context, product domain.Product) error {
	result, err := s.embed.Embed(ctx, product.EmbeddingText())
	if err != nil {
		metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusFailed)).Inc()
		return fmt.Errorf("embed product %s: %w", product.ID(), err)
	}

	if err := s.store.Upsert(ctx, product, result.Embedding); err != nil {
		metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusFailed)).Inc()
		return fmt.Errorf("upsert product %s: %w", product.ID(), err)
	}

	metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusIndexed)).Inc()
	s.logger.Info("Product indexed", zap.String("product_id", product.ID()))
	return nil
}

// IndexBatch indexes items independently: validation and embedding run under
// a bounded worker pool with one result slot per item (written exactly once
// by its own worker), then all valid points go to the store in one batch
// upsert. One item's failure never blocks the rest; exactly one outcome is
// returned per input item.
func (s *Service) IndexBatch(ctx context.Context, items []domain.ProductInput) []batch.Result {
	results := make([]batch.Result, len(items))
	products := make([]domain.Product, len(items))
	vectors := make([][]float32, len(items))
	valid := make([]bool, len(items))

	var succeeded, failed atomic.Int64

	workers := s.workers
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s.prepareItem(ctx, items[i], i, results, products, vectors, valid, &failed)
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	s.upsertValid(ctx, results, products, vectors, valid, &succeeded, &failed)

	s.logger.Info("Batch indexing complete",
		zap.Int("total", len(items)),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

// prepareItem validates and embeds one batch item. It writes only its own
// slot in the shared slices.
func (s *Service) prepareItem(
	ctx context.Context,
	item domain.ProductInput,
	i int,
	results []batch.Result,
	products []domain.Product,
	vectors [][]float32,
	valid []bool,
	failed *atomic.Int64,
) {
	product, err := domain.NewProduct(item)
	if err != nil {
		results[i] = batch.NewFailed(item.ProductID, err)
		failed.Add(1)
		metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusFailed)).Inc()
		return
	}

	embResult, err := s.embed.Embed(ctx, product.EmbeddingText())
	if err != nil {
		results[i] = batch.NewFailed(item.ProductID, fmt.Errorf("embed: %w", err))
		failed.Add(1)
		metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusFailed)).Inc()
		return
	}

	products[i] = product
	vectors[i] = embResult.Embedding
	valid[i] = true
}

// upsertValid batch-upserts every successfully embedded item and fills in the
// remaining outcomes.
func (s *Service) upsertValid(
	ctx context.Context,
	results []batch.Result,
	products []domain.Product,
	vectors [][]float32,
	valid []bool,
	succeeded, failed *atomic.Int64,
) {
	var validProducts []domain.Product
	var validVectors [][]float32
	var validIdx []int
	for i, ok := range valid {
		if ok {
			validProducts = append(validProducts, products[i])
			validVectors = append(validVectors, vectors[i])
			validIdx = append(validIdx, i)
		}
	}
	if len(validIdx) == 0 {
		return
	}

	if err := s.store.UpsertBatch(ctx, validProducts, validVectors); err != nil {
		for _, i := range validIdx {
			results[i] = batch.NewFailed(products[i].ID(), fmt.Errorf("batch upsert: %w", err))
			failed.Add(1)
			metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusFailed)).Inc()
		}
		return
	}

	for _, i := range validIdx {
		results[i] = batch.NewIndexed(products[i].ID())
		succeeded.Add(1)
		metrics.ProductsIndexedTotal.WithLabelValues(string(batch.StatusIndexed)).Inc()
	}
}
