// Package chi exposes the product search pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	dombatch "github.com/kailas-cloud/shopsearch/internal/domain/batch"
	"github.com/kailas-cloud/shopsearch/internal/transport/qdrant"
	healthuc "github.com/kailas-cloud/shopsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/shopsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/shopsearch/internal/usecase/search"
)

const maxQueryLength = 500

// errorCode identifies the failure class in error responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeValidationFailed  errorCode = "validation_failed"
	codeEmbeddingProvider errorCode = "embedding_provider_error"
	codeVectorStore       errorCode = "vector_store_error"
	codeInternal          errorCode = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// InfoProvider reports collection statistics from the vector store.
type InfoProvider interface {
	Info(ctx context.Context) (qdrant.CollectionInfo, error)
}

// Server wires the usecase services to HTTP routes.
type Server struct {
	indexing      *indexinguc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	info          InfoProvider
	maxBatchSize  int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	indexing *indexinguc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	info InfoProvider,
	maxBatchSize int,
	logger *zap.Logger,
) *Server {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	s := &Server{
		indexing:     indexing,
		search:       search,
		health:       health,
		info:         info,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrVectorStore, http.StatusBadGateway, codeVectorStore),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chirouter.Router) {
	r.Post("/products/index", s.handleIndexProduct)
	r.Post("/products/batch_index", s.handleBatchIndex)
	r.Post("/search", s.handleSearch)
	r.Post("/search/analyze", s.handleAnalyze)
	r.Get("/collection/info", s.handleCollectionInfo)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
}

type indexResponse struct {
	Status    string `json:"status"`
	ProductID string `json:"product_id"`
}

// handleIndexProduct handles POST /products/index.
func (s *Server) handleIndexProduct(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	product, err := domain.NewProduct(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, safeDomainMessage(err))
		return
	}

	if err := s.indexing.IndexOne(r.Context(), product); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{
		Status:    string(dombatch.StatusIndexed),
		ProductID: product.ID(),
	})
}

type batchIndexRequest struct {
	Products []domain.ProductInput `json:"products"`
}

type batchItemResponse struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type batchIndexResponse struct {
	TotalProducts int                 `json:"total_products"`
	Successful    int                 `json:"successful"`
	Failed        int                 `json:"failed"`
	Results       []batchItemResponse `json:"results"`
}

// handleBatchIndex handles POST /products/batch_index.
func (s *Server) handleBatchIndex(w http.ResponseWriter, r *http.Request) {
	var req batchIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Products) == 0 || len(req.Products) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("products count must be between 1 and %d", s.maxBatchSize))
		return
	}

	results := s.indexing.IndexBatch(r.Context(), req.Products)

	succeeded, failed := 0, 0
	items := make([]batchItemResponse, len(results))
	for i, res := range results {
		items[i] = batchResultToResponse(res)
		if res.Status() == dombatch.StatusIndexed {
			succeeded++
		} else {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, batchIndexResponse{
		TotalProducts: len(results),
		Successful:    succeeded,
		Failed:        failed,
		Results:       items,
	})
}

type searchRequest struct {
	Query string `json:"query"`
}

type hitResponse struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	ImageURL  string  `json:"image_url,omitempty"`
	Score     float64 `json:"score"`
}

type searchResponse struct {
	Query          string        `json:"query"`
	Gender         string        `json:"gender,omitempty"`
	ProductTypes   []string      `json:"product_types"`
	ExpandedQuery  string        `json:"expanded_query"`
	AnalysisSource string        `json:"analysis_source"`
	Results        []hitResponse `json:"results"`
}

// handleSearch handles POST /search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	resp, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits := make([]hitResponse, len(resp.Results()))
	for i, h := range resp.Results() {
		hits[i] = hitResponse{
			ProductID: h.ID(),
			Title:     h.Title(),
			Price:     h.Price(),
			ImageURL:  h.ImageURL(),
			Score:     h.Score(),
		}
	}

	intent := resp.Intent()
	writeJSON(w, http.StatusOK, searchResponse{
		Query:          resp.Query(),
		Gender:         string(intent.Gender()),
		ProductTypes:   intent.ProductTypes(),
		ExpandedQuery:  intent.ExpandedQuery(),
		AnalysisSource: string(intent.Source()),
		Results:        hits,
	})
}

type analyzeResponse struct {
	Query          string   `json:"query"`
	Gender         string   `json:"gender,omitempty"`
	ProductTypes   []string `json:"product_types"`
	ExpandedQuery  string   `json:"expanded_query"`
	AnalysisSource string   `json:"analysis_source"`
}

// handleAnalyze handles POST /search/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	intent := s.search.Analyze(r.Context(), query)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Query:          query,
		Gender:         string(intent.Gender()),
		ProductTypes:   intent.ProductTypes(),
		ExpandedQuery:  intent.ExpandedQuery(),
		AnalysisSource: string(intent.Source()),
	})
}

type collectionInfoResponse struct {
	Name        string `json:"name"`
	PointsCount int64  `json:"points_count"`
	Status      string `json:"status"`
}

// handleCollectionInfo handles GET /collection/info.
func (s *Server) handleCollectionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.info.Info(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collectionInfoResponse{
		Name:        info.Name,
		PointsCount: info.PointsCount,
		Status:      info.Status,
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return "", false
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return "", false
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("query must be at most %d characters", maxQueryLength))
		return "", false
	}
	return query, true
}

func batchResultToResponse(r dombatch.Result) batchItemResponse {
	item := batchItemResponse{
		ProductID: r.ID(),
		Status:    string(r.Status()),
	}
	if r.Err() != nil {
		item.Error = safeDomainMessage(r.Err())
	}
	return item
}

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the client-facing message for an error. Validation
// failures carry their full text; everything else collapses to the sentinel
// message so provider internals never leak.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProvider,
		domain.ErrVectorStore,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// handleDomainError logs each error exactly once: Warn for expected mapped
// failures, Error for anything that falls through to 500.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
