package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/transport/qdrant"
	healthuc "github.com/kailas-cloud/shopsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/shopsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/shopsearch/internal/usecase/search"
)

// --- Mocks ---

type mockVectorStore struct {
	upserts    []string
	batchCalls int
	hits       []domain.Hit
	searchErr  error
	upsertErr  error
}

func (m *mockVectorStore) Upsert(_ context.Context, p domain.Product, _ []float32) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, p.ID())
	return nil
}

func (m *mockVectorStore) UpsertBatch(_ context.Context, ps []domain.Product, _ [][]float32) error {
	m.batchCalls++
	for _, p := range ps {
		m.upserts = append(m.upserts, p.ID())
	}
	return nil
}

func (m *mockVectorStore) Search(
	_ context.Context, _ []float32, _ domain.Filter, _ int, _ float64,
) ([]domain.Hit, error) {
	return m.hits, m.searchErr
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1}}, nil
}

type mockAnalyzer struct {
	intent domain.Intent
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ string) domain.Intent { return m.intent }

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockInfo struct {
	info qdrant.CollectionInfo
	err  error
}

func (m *mockInfo) Info(_ context.Context) (qdrant.CollectionInfo, error) { return m.info, m.err }

type serverDeps struct {
	store    *mockVectorStore
	embedErr error
	intent   domain.Intent
	infoErr  error
}

func newTestServer(t *testing.T, deps serverDeps) (*httptest.Server, *mockVectorStore) {
	t.Helper()
	if deps.store == nil {
		deps.store = &mockVectorStore{}
	}
	if deps.intent.ExpandedQuery() == "" {
		i, err := domain.NewIntent("male", []string{"suit"}, "black formal suit", domain.AnalysisModel)
		if err != nil {
			t.Fatalf("build intent: %v", err)
		}
		deps.intent = i
	}

	logger := zap.NewNop()
	embed := &mockEmbedder{err: deps.embedErr}
	indexingSvc := indexinguc.New(deps.store, embed, logger)
	searchSvc := searchuc.New(&mockAnalyzer{intent: deps.intent}, embed, deps.store, 10, 0.7, logger)
	healthSvc := healthuc.New(&mockPinger{}, nil, nil)
	info := &mockInfo{
		info: qdrant.CollectionInfo{Name: "products", PointsCount: 3, Status: "green"},
		err:  deps.infoErr,
	}

	server := NewServer(indexingSvc, searchSvc, healthSvc, info, 100, logger)
	r := chirouter.NewRouter()
	server.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, deps.store
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

const validProductJSON = `{
	"product_id": "p1",
	"title": "Black Suit",
	"description": "Wool suit",
	"category": "suits",
	"gender": "male",
	"tags": ["suit", "formal"],
	"price": 299.99
}`

// --- Tests ---

func TestIndexProduct(t *testing.T) {
	srv, store := newTestServer(t, serverDeps{})

	resp, body := postJSON(t, srv.URL+"/products/index", validProductJSON)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "indexed" || body["product_id"] != "p1" {
		t.Errorf("body = %v", body)
	}
	if len(store.upserts) != 1 {
		t.Errorf("upserts = %v", store.upserts)
	}
}

func TestIndexProduct_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, body := postJSON(t, srv.URL+"/products/index",
		`{"product_id": "p1", "title": "", "description": "d", "category": "c", "gender": "male", "tags": ["t"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["code"] != "validation_failed" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestIndexProduct_EmbedderDown(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{
		embedErr: fmt.Errorf("boom: %w", domain.ErrEmbeddingProvider),
	})

	resp, body := postJSON(t, srv.URL+"/products/index", validProductJSON)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["code"] != "embedding_provider_error" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestBatchIndex(t *testing.T) {
	srv, store := newTestServer(t, serverDeps{})

	// Second item is invalid (no surviving tags) and must fail alone.
	body := `{"products": [` + validProductJSON + `,
		{"product_id": "p2", "title": "T", "description": "D", "category": "c", "gender": "male", "tags": [""], "price": 1},
		{"product_id": "p3", "title": "T", "description": "D", "category": "c", "gender": "female", "tags": ["x"], "price": 2}
	]}`

	resp, decoded := postJSON(t, srv.URL+"/products/batch_index", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, decoded)
	}
	if decoded["total_products"] != float64(3) {
		t.Errorf("total_products = %v", decoded["total_products"])
	}
	if decoded["successful"] != float64(2) || decoded["failed"] != float64(1) {
		t.Errorf("successful/failed = %v/%v", decoded["successful"], decoded["failed"])
	}

	results, _ := decoded["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("results = %v", results)
	}
	second, _ := results[1].(map[string]any)
	if second["product_id"] != "p2" || second["status"] != "failed" {
		t.Errorf("second result = %v", second)
	}
	if second["error"] == "" {
		t.Error("failed item must carry an error message")
	}
	if store.batchCalls != 1 {
		t.Errorf("batchCalls = %d", store.batchCalls)
	}
}

func TestBatchIndex_EmptyRejected(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, _ := postJSON(t, srv.URL+"/products/batch_index", `{"products": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSearch(t *testing.T) {
	store := &mockVectorStore{hits: []domain.Hit{
		domain.NewHit("p1", "Black Suit", 299.99, "https://example.com/p1.jpg", 0.92),
	}}
	srv, _ := newTestServer(t, serverDeps{store: store})

	resp, body := postJSON(t, srv.URL+"/search", `{"query": "black suit for the office"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["gender"] != "male" || body["expanded_query"] != "black formal suit" {
		t.Errorf("intent fields = %v", body)
	}
	if body["analysis_source"] != "model" {
		t.Errorf("analysis_source = %v", body["analysis_source"])
	}
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	hit, _ := results[0].(map[string]any)
	if hit["product_id"] != "p1" || hit["score"] != 0.92 {
		t.Errorf("hit = %v", hit)
	}
}

func TestSearch_AbsentGenderOmitted(t *testing.T) {
	intent, err := domain.NewIntent("null", []string{"jacket"}, "hiking jacket", domain.AnalysisFallback)
	if err != nil {
		t.Fatalf("build intent: %v", err)
	}
	srv, _ := newTestServer(t, serverDeps{intent: intent})

	resp, err2 := http.Post(srv.URL+"/search", "application/json", strings.NewReader(`{"query": "jacket"}`))
	if err2 != nil {
		t.Fatalf("request failed: %v", err2)
	}
	defer func() { _ = resp.Body.Close() }()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["gender"]; ok {
		t.Error("absent gender must be omitted from the response")
	}
}

func TestSearch_QueryValidation(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, _ := postJSON(t, srv.URL+"/search", `{"query": "   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank query status = %d", resp.StatusCode)
	}

	long := strings.Repeat("a", maxQueryLength+1)
	resp, _ = postJSON(t, srv.URL+"/search", `{"query": "`+long+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("overlong query status = %d", resp.StatusCode)
	}
}

func TestSearch_QueryLengthCountsRunes(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	// 300 characters but 600 bytes; must pass the 500-character limit.
	multibyte := strings.Repeat("п", 300)
	resp, _ := postJSON(t, srv.URL+"/search", `{"query": "`+multibyte+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("300-character multibyte query status = %d, want 200", resp.StatusCode)
	}

	tooLong := strings.Repeat("п", maxQueryLength+1)
	resp, _ = postJSON(t, srv.URL+"/search", `{"query": "`+tooLong+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("overlong multibyte query status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleDomainError_LogsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	server := NewServer(nil, nil, nil, nil, 0, zap.New(core))

	// Mapped failure: exactly one Warn entry.
	rr := httptest.NewRecorder()
	server.handleDomainError(rr, fmt.Errorf("down: %w", domain.ErrVectorStore))
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rr.Code)
	}
	if got := logs.Len(); got != 1 {
		t.Fatalf("log entries = %d, want 1", got)
	}
	if entry := logs.All()[0]; entry.Level != zap.WarnLevel {
		t.Errorf("level = %v, want warn", entry.Level)
	}

	// Unmapped failure: exactly one Error entry.
	logs.TakeAll()
	rr = httptest.NewRecorder()
	server.handleDomainError(rr, errors.New("surprise"))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rr.Code)
	}
	if got := logs.Len(); got != 1 {
		t.Fatalf("log entries = %d, want 1", got)
	}
	if entry := logs.All()[0]; entry.Level != zap.ErrorLevel {
		t.Errorf("level = %v, want error", entry.Level)
	}
}

func TestSearch_StoreDown(t *testing.T) {
	store := &mockVectorStore{searchErr: fmt.Errorf("down: %w", domain.ErrVectorStore)}
	srv, _ := newTestServer(t, serverDeps{store: store})

	resp, body := postJSON(t, srv.URL+"/search", `{"query": "suit"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["code"] != "vector_store_error" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestAnalyze(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, body := postJSON(t, srv.URL+"/search/analyze", `{"query": "black suit"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["gender"] != "male" {
		t.Errorf("gender = %v", body["gender"])
	}
	if _, ok := body["results"]; ok {
		t.Error("analyze must not run a search")
	}
}

func TestCollectionInfo(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, err := http.Get(srv.URL + "/collection/info")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["name"] != "products" || body["points_count"] != float64(3) {
		t.Errorf("body = %v", body)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, serverDeps{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSafeDomainMessage(t *testing.T) {
	validationErr := fmt.Errorf("title is required: %w", domain.ErrValidation)
	if got := safeDomainMessage(validationErr); !strings.Contains(got, "title is required") {
		t.Errorf("validation message = %q, should keep detail", got)
	}

	providerErr := fmt.Errorf("api key leaked-secret rejected: %w", domain.ErrEmbeddingProvider)
	if got := safeDomainMessage(providerErr); strings.Contains(got, "leaked-secret") {
		t.Errorf("provider message leaks internals: %q", got)
	}

	if got := safeDomainMessage(errors.New("anything")); got != "internal error" {
		t.Errorf("unknown error message = %q", got)
	}
}
