package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
}

func TestCosineSymmetric(t *testing.T) {
	a := []float32{0.3, -0.7, 0.2, 0.9}
	b := []float32{-0.1, 0.4, 0.8, 0.5}
	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
}

func TestCosineDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestSearchOrdersDescending(t *testing.T) {
	corpus := []Entry{
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "close", Vector: []float32{0.9, 0.1}},
		{ID: "exact", Vector: []float32{1, 0}},
	}
	hits := Search([]float32{1, 0}, corpus, 0)
	assert.Equal(t, "exact", hits[0].ID)
	assert.Equal(t, "close", hits[1].ID)
	assert.Equal(t, "orthogonal", hits[2].ID)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	corpus := []Entry{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{2, 0}},
	}
	hits := Search([]float32{1, 0}, corpus, 0)
	assert.Equal(t, "first", hits[0].ID)
	assert.Equal(t, "second", hits[1].ID)
}

func TestSearchTopK(t *testing.T) {
	corpus := []Entry{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0.5, 0.5}},
		{ID: "c", Vector: []float32{0, 1}},
	}
	hits := Search([]float32{1, 0}, corpus, 2)
	assert.Len(t, hits, 2)
}

func TestCanonicalText(t *testing.T) {
	start := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	e := &model.EventNode{
		Name:        "Dinner at Luigi's",
		Type:        "meal",
		Description: "birthday dinner",
		Location:    "Luigi's",
		StartTime:   &start,
	}
	text := CanonicalText(e, []string{"Alice", "Bob"})
	assert.Equal(t, "Dinner at Luigi's | meal | birthday dinner | Luigi's | Alice | Bob", text)
}

func seedEvents(t *testing.T, store *graph.MemStore, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ev, err := store.UpsertEvent(context.Background(), &model.EventNode{Name: "event", Type: "activity"})
		assert.NoError(t, err)
		ids = append(ids, ev.ID)
	}
	return ids
}

func TestGenerateForAllIsIdempotent(t *testing.T) {
	store := graph.NewMemStore()
	seedEvents(t, store, 3)
	mock := &MockEmbedderClient{Response: []float32{0.1, 0.2}}
	ix := NewIndex(mock, store, Options{}, nil, zap.NewNop())

	result, err := ix.GenerateForAll(context.Background(), false, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Generated)

	// Second pass finds every event embedded and calls the embedder for
	// none of them.
	calls := mock.Calls
	result, err = ix.GenerateForAll(context.Background(), false, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, calls, mock.Calls)
}

func TestGenerateForAllForceRegenerates(t *testing.T) {
	store := graph.NewMemStore()
	seedEvents(t, store, 2)
	mock := &MockEmbedderClient{Response: []float32{0.1, 0.2}}
	ix := NewIndex(mock, store, Options{}, nil, zap.NewNop())

	_, err := ix.GenerateForAll(context.Background(), false, nil)
	assert.NoError(t, err)
	result, err := ix.GenerateForAll(context.Background(), true, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Generated)
}

// A per-event embedding failure is recorded; the batch keeps going and the
// event stays searchable-excluded.
func TestGenerateForAllRecordsFailures(t *testing.T) {
	store := graph.NewMemStore()
	seedEvents(t, store, 2)
	mock := &MockEmbedderClient{Err: errors.New("quota exceeded")}
	ix := NewIndex(mock, store, Options{}, nil, zap.NewNop())

	result, err := ix.GenerateForAll(context.Background(), false, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
	assert.Len(t, result.Problems, 2)
	assert.Contains(t, result.Problems[0].Reason, "quota exceeded")
}

func TestEmptyVectorIsFailure(t *testing.T) {
	store := graph.NewMemStore()
	seedEvents(t, store, 1)
	mock := &MockEmbedderClient{Response: []float32{}}
	ix := NewIndex(mock, store, Options{}, nil, zap.NewNop())

	result, err := ix.GenerateForAll(context.Background(), false, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
	assert.Len(t, result.Problems, 1)
}

func TestSearchTextSkipsUnembeddedEvents(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()

	hiking, err := store.UpsertEvent(ctx, &model.EventNode{Name: "hiking trip", Type: "activity"})
	assert.NoError(t, err)
	assert.NoError(t, store.SetEventEmbedding(ctx, hiking.ID, []float32{1, 0}))

	// Never embedded; must not appear in results.
	_, err = store.UpsertEvent(ctx, &model.EventNode{Name: "mystery", Type: "activity"})
	assert.NoError(t, err)

	mock := &MockEmbedderClient{Response: []float32{1, 0}}
	ix := NewIndex(mock, store, Options{}, nil, zap.NewNop())

	matches, err := ix.SearchText(ctx, "outdoor walks", 10)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, hiking.ID, matches[0].Event.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestSearchTextWithoutEmbedder(t *testing.T) {
	store := graph.NewMemStore()
	ix := NewIndex(nil, store, Options{}, nil, zap.NewNop())

	_, err := ix.SearchText(context.Background(), "anything", 5)
	assert.Error(t, err)
}
