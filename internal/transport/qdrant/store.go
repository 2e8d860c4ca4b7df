// Package qdrant is a REST adapter to the Qdrant vector store. The core only
// knows the store as "upsert a point" and "search by vector + filter"; all
// ranking math stays on the Qdrant side.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// Store is a Qdrant REST client scoped to a single collection.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	distance   string
	client     *http.Client
	logger     *zap.Logger
}

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewStore creates a Qdrant store client.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = "Cosine"
	}
	return &Store{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   distance,
		client:     &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}
}

// EnsureCollection creates the collection if it does not exist. An existing
// collection is left untouched regardless of its configuration; fixing a
// mismatched collection is an operator task, not a startup side effect.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d: %w", dimension, domain.ErrVectorStore)
	}

	status, err := s.request(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		s.logger.Info("Collection already exists", zap.String("collection", s.collection))
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("get collection: unexpected status %d: %w", status, domain.ErrVectorStore)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	status, err = s.request(ctx, http.MethodPut, s.collectionURL(), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create collection: unexpected status %d: %w", status, domain.ErrVectorStore)
	}

	s.logger.Info("Collection created",
		zap.String("collection", s.collection),
		zap.Int("dimension", dimension),
		zap.String("distance", s.distance),
	)
	return nil
}

// Upsert stores one product point, replacing any prior point with the same id.
func (s *Store) Upsert(ctx context.Context, product domain.Product, vector []float32) error {
	return s.upsertPoints(ctx, "upsert", []pointDTO{newPoint(product, vector)})
}

// UpsertBatch stores products and their vectors in a single call. Inputs are
// parallel slices; both are full-replace keyed by product id.
func (s *Store) UpsertBatch(ctx context.Context, products []domain.Product, vectors [][]float32) error {
	if len(products) != len(vectors) {
		return fmt.Errorf("products and vectors length mismatch: %d != %d: %w",
			len(products), len(vectors), domain.ErrVectorStore)
	}
	points := make([]pointDTO, len(products))
	for i := range products {
		points[i] = newPoint(products[i], vectors[i])
	}
	return s.upsertPoints(ctx, "batch_upsert", points)
}

func (s *Store) upsertPoints(ctx context.Context, op string, points []pointDTO) error {
	start := time.Now()
	status, err := s.request(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true",
		map[string]any{"points": points}, nil)
	s.observe(op, start, err == nil && status < 300)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("upsert points: unexpected status %d: %w", status, domain.ErrVectorStore)
	}
	return nil
}

// Search runs a filtered similarity search. The filter is a conjunction:
// gender equality only when set, tags-match-any of the product types only
// when non-empty. Results below scoreThreshold are excluded by the store and
// returned in descending score order; no re-ranking happens here.
func (s *Store) Search(
	ctx context.Context,
	vector []float32,
	filter domain.Filter,
	limit int,
	scoreThreshold float64,
) ([]domain.Hit, error) {
	body := searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	}
	if scoreThreshold > 0 {
		body.ScoreThreshold = &scoreThreshold
	}
	if f := buildFilter(filter); f != nil {
		body.Filter = f
	}

	var resp searchResponse

	start := time.Now()
	status, err := s.request(ctx, http.MethodPost, s.collectionURL()+"/points/search", body, &resp)
	s.observe("search", start, err == nil && status < 300)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("search points: unexpected status %d: %w", status, domain.ErrVectorStore)
	}

	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, r.toHit())
	}
	return hits, nil
}

// Info returns collection name, point count and status.
func (s *Store) Info(ctx context.Context) (CollectionInfo, error) {
	var resp struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int64  `json:"points_count"`
		} `json:"result"`
	}

	status, err := s.request(ctx, http.MethodGet, s.collectionURL(), nil, &resp)
	if err != nil {
		return CollectionInfo{}, err
	}
	if status >= 300 {
		return CollectionInfo{}, fmt.Errorf("get collection: unexpected status %d: %w", status, domain.ErrVectorStore)
	}

	return CollectionInfo{
		Name:        s.collection,
		PointsCount: resp.Result.PointsCount,
		Status:      resp.Result.Status,
	}, nil
}

// CollectionInfo describes the backing collection.
type CollectionInfo struct {
	Name        string
	PointsCount int64
	Status      string
}

// Ping checks store availability via the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	status, err := s.request(ctx, http.MethodGet, s.baseURL+"/readyz", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("readiness check: unexpected status %d: %w", status, domain.ErrVectorStore)
	}
	return nil
}

func (s *Store) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
}

func (s *Store) observe(op string, start time.Time, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	metrics.VectorStoreRequestsTotal.WithLabelValues(op, result).Inc()
	metrics.VectorStoreRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// request performs one JSON round-trip. It returns the HTTP status so callers
// can branch on 404 vs other failures; transport errors wrap ErrVectorStore.
func (s *Store) request(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w: %w", method, url, err, domain.ErrVectorStore)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w: %w", err, domain.ErrVectorStore)
		}
	}
	return resp.StatusCode, nil
}

// buildFilter converts the domain filter to Qdrant's must-conjunction shape.
// Returns nil when no conditions apply so the request omits the filter.
func buildFilter(f domain.Filter) *filterDTO {
	var must []fieldCondition
	if f.Gender().IsSet() {
		must = append(must, fieldCondition{
			Key:   "gender",
			Match: matchValue{Value: string(f.Gender())},
		})
	}
	if len(f.ProductTypes()) > 0 {
		must = append(must, fieldCondition{
			Key:   "tags",
			Match: matchAny{Any: f.ProductTypes()},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return &filterDTO{Must: must}
}

type filterDTO struct {
	Must []fieldCondition `json:"must"`
}

type fieldCondition struct {
	Key   string `json:"key"`
	Match any    `json:"match"`
}

type matchValue struct {
	Value string `json:"value"`
}

type matchAny struct {
	Any []string `json:"any"`
}

type searchRequest struct {
	Vector         []float32  `json:"vector"`
	Filter         *filterDTO `json:"filter,omitempty"`
	Limit          int        `json:"limit"`
	ScoreThreshold *float64   `json:"score_threshold,omitempty"`
	WithPayload    bool       `json:"with_payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (p *scoredPoint) toHit() domain.Hit {
	var title, imageURL string
	var price float64
	if v, ok := p.Payload["title"].(string); ok {
		title = v
	}
	if v, ok := p.Payload["price"].(float64); ok {
		price = v
	}
	if v, ok := p.Payload["image_url"].(string); ok {
		imageURL = v
	}
	return domain.NewHit(idToString(p.ID), title, price, imageURL, p.Score)
}

// idToString renders a point id; Qdrant returns numeric or UUID ids.
func idToString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type pointDTO struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func newPoint(p domain.Product, vector []float32) pointDTO {
	return pointDTO{
		ID:     p.ID(),
		Vector: vector,
		Payload: map[string]any{
			"title":       p.Title(),
			"description": p.Description(),
			"category":    p.Category(),
			"gender":      string(p.Gender()),
			"tags":        p.Tags(),
			"price":       p.Price(),
			"image_url":   p.ImageURL(),
		},
	}
}
