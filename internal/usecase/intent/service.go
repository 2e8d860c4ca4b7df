// Package intent analyzes free-text queries into structured search intent.
// The language model is the least reliable dependency in the pipeline, so
// Analyze never fails outward: any model fault degrades to the deterministic
// fallback analyzer instead of propagating an error.
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// Service analyzes search queries via the language model with a keyword-based
// fallback.
type Service struct {
	extractor domain.IntentExtractor
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates an intent analysis service. extractor may be nil, in which case
// every query takes the fallback path.
func New(extractor domain.IntentExtractor, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{extractor: extractor, timeout: timeout, logger: logger}
}

// Analyze turns a query into an Intent. It never returns an error: model
// transport failures, timeouts, unparseable output and invariant violations
// all resolve to the fallback analyzer, logged as a warning and counted.
func (s *Service) Analyze(ctx context.Context, query string) domain.Intent {
	result, err := s.analyzeWithModel(ctx, query)
	if err != nil {
		s.logger.Warn("Query analysis degraded to fallback",
			zap.String("query", query),
			zap.Error(err),
		)
		metrics.AnalysisRequestsTotal.WithLabelValues(string(domain.AnalysisFallback)).Inc()
		return fallbackAnalyze(query)
	}

	metrics.AnalysisRequestsTotal.WithLabelValues(string(domain.AnalysisModel)).Inc()
	s.logger.Debug("Query analysis complete",
		zap.String("query", query),
		zap.String("gender", string(result.Gender())),
		zap.Strings("product_types", result.ProductTypes()),
	)
	return result
}

func (s *Service) analyzeWithModel(ctx context.Context, query string) (domain.Intent, error) {
	if s.extractor == nil {
		return domain.Intent{}, errors.New("no intent extractor configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	extraction, err := s.extractor.ExtractIntent(ctx, renderPrompt(query))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("extract intent: %w", err)
	}

	// A shape mismatch here counts exactly like a transport failure.
	result, err := domain.NewIntent(
		extraction.Gender, extraction.ProductTypes, extraction.ExpandedQuery, domain.AnalysisModel,
	)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("invalid extraction: %w", err)
	}
	return result, nil
}
