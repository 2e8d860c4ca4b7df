package indexing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/batch"
)

// --- Mocks ---

type mockEmbedder struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error // matched by substring of the embedded text
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	for sub, err := range m.failFor {
		if strings.Contains(text, sub) {
			return domain.EmbeddingResult{}, err
		}
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 3}, nil
}

type mockStore struct {
	mu           sync.Mutex
	upserts      []string
	batchSizes   []int
	upsertErr    error
	batchErr     error
	gotVectorLen int
}

func (m *mockStore) Upsert(_ context.Context, product domain.Product, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, product.ID())
	m.gotVectorLen = len(vector)
	return nil
}

func (m *mockStore) UpsertBatch(_ context.Context, products []domain.Product, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batchSizes = append(m.batchSizes, len(products))
	for _, p := range products {
		m.upserts = append(m.upserts, p.ID())
	}
	return nil
}

func input(id string) domain.ProductInput {
	return domain.ProductInput{
		ProductID:   id,
		Title:       "Item " + id,
		Description: "A fine item",
		Category:    "clothing",
		Gender:      "unisex",
		Tags:        []string{"casual"},
		Price:       10,
	}
}

// --- Tests ---

func TestIndexOne(t *testing.T) {
	store := &mockStore{}
	svc := New(store, &mockEmbedder{}, zap.NewNop())

	product, _ := domain.NewProduct(input("p1"))
	if err := svc.IndexOne(context.Background(), product); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 1 || store.upserts[0] != "p1" {
		t.Errorf("upserts = %v", store.upserts)
	}
	if store.gotVectorLen != 2 {
		t.Errorf("vector len = %d", store.gotVectorLen)
	}
}

func TestIndexOne_EmbedError(t *testing.T) {
	embedErr := errors.New("provider down")
	embed := &mockEmbedder{failFor: map[string]error{"Item p1": embedErr}}
	svc := New(&mockStore{}, embed, zap.NewNop())

	product, _ := domain.NewProduct(input("p1"))
	err := svc.IndexOne(context.Background(), product)
	if !errors.Is(err, embedErr) {
		t.Errorf("error = %v, want wrapped provider error", err)
	}
}

func TestIndexOne_UpsertError(t *testing.T) {
	store := &mockStore{upsertErr: errors.New("store down")}
	svc := New(store, &mockEmbedder{}, zap.NewNop())

	product, _ := domain.NewProduct(input("p1"))
	if err := svc.IndexOne(context.Background(), product); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexBatch_IsolatesInvalidItem(t *testing.T) {
	store := &mockStore{}
	svc := New(store, &mockEmbedder{}, zap.NewNop()).WithWorkers(2)

	bad := input("p2")
	bad.Tags = []string{""} // fails validation
	items := []domain.ProductInput{input("p1"), bad, input("p3")}

	results := svc.IndexBatch(context.Background(), items)

	if len(results) != 3 {
		t.Fatalf("got %d results, want one per item", len(results))
	}
	byID := map[string]batch.Result{}
	for _, r := range results {
		byID[r.ID()] = r
	}
	if byID["p1"].Status() != batch.StatusIndexed {
		t.Errorf("p1 status = %q", byID["p1"].Status())
	}
	if byID["p2"].Status() != batch.StatusFailed {
		t.Errorf("p2 status = %q", byID["p2"].Status())
	}
	if !errors.Is(byID["p2"].Err(), domain.ErrValidation) {
		t.Errorf("p2 error = %v, want validation", byID["p2"].Err())
	}
	if byID["p3"].Status() != batch.StatusIndexed {
		t.Errorf("p3 status = %q", byID["p3"].Status())
	}
	if len(store.batchSizes) != 1 || store.batchSizes[0] != 2 {
		t.Errorf("batch upsert sizes = %v, want one call with 2 points", store.batchSizes)
	}
}

func TestIndexBatch_ResultsKeepInputOrder(t *testing.T) {
	svc := New(&mockStore{}, &mockEmbedder{}, zap.NewNop()).WithWorkers(4)

	items := []domain.ProductInput{input("a"), input("b"), input("c"), input("d")}
	results := svc.IndexBatch(context.Background(), items)

	for i, want := range []string{"a", "b", "c", "d"} {
		if results[i].ID() != want {
			t.Errorf("results[%d].ID() = %q, want %q", i, results[i].ID(), want)
		}
	}
}

func TestIndexBatch_EmbedFailureIsPerItem(t *testing.T) {
	embedErr := errors.New("provider down")
	embed := &mockEmbedder{failFor: map[string]error{"Item p2": embedErr}}
	store := &mockStore{}
	svc := New(store, embed, zap.NewNop())

	results := svc.IndexBatch(context.Background(),
		[]domain.ProductInput{input("p1"), input("p2"), input("p3")})

	failed := 0
	for _, r := range results {
		if r.Status() == batch.StatusFailed {
			failed++
			if r.ID() != "p2" {
				t.Errorf("unexpected failed item %q", r.ID())
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(store.upserts) != 2 {
		t.Errorf("upserts = %v, want p1 and p3", store.upserts)
	}
}

func TestIndexBatch_BatchUpsertFailureMarksAllValid(t *testing.T) {
	store := &mockStore{batchErr: errors.New("store down")}
	svc := New(store, &mockEmbedder{}, zap.NewNop())

	results := svc.IndexBatch(context.Background(),
		[]domain.ProductInput{input("p1"), input("p2")})

	for _, r := range results {
		if r.Status() != batch.StatusFailed {
			t.Errorf("%s status = %q, want failed", r.ID(), r.Status())
		}
		if r.Err() == nil {
			t.Errorf("%s should carry the upsert error", r.ID())
		}
	}
}

func TestIndexBatch_Empty(t *testing.T) {
	svc := New(&mockStore{}, &mockEmbedder{}, zap.NewNop())
	if results := svc.IndexBatch(context.Background(), nil); len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}
