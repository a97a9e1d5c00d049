// Package embed wraps the external embedding collaborator with cosine
// similarity search and bulk joint-embedding generation for events.
package embed

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
	"github.com/agenthands/recall/internal/metrics"
	"github.com/agenthands/recall/internal/progress"
)

type Options struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Index delegates embedding to the configured collaborator and searches
// over event vectors with cosine similarity.
type Index struct {
	embedder llm.EmbedderClient
	store    graph.Store

	opts Options
	met  *metrics.Metrics
	log  *zap.Logger
}

func NewIndex(embedder llm.EmbedderClient, store graph.Store, opts Options, met *metrics.Metrics, log *zap.Logger) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if met == nil {
		met = metrics.NewNop()
	}
	return &Index{embedder: embedder, store: store, opts: opts, met: met, log: log}
}

// Embed delegates to the external embedder. An empty vector is treated as
// a failure so callers never index a zero-length embedding.
func (ix *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	if ix.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors in [-1, 1]. Negative
// scores are valid dissimilarity, not errors. Mismatched or empty vectors
// score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Entry is one (id, vector) pair in a search corpus.
type Entry struct {
	ID     string
	Vector []float32
}

// Scored is one ranked search hit.
type Scored struct {
	ID    string
	Score float64
}

// Search ranks the corpus against the query vector, descending by score.
// The sort is stable: ties keep insertion order.
func Search(query []float32, corpus []Entry, k int) []Scored {
	scored := make([]Scored, 0, len(corpus))
	for _, entry := range corpus {
		scored = append(scored, Scored{ID: entry.ID, Score: Cosine(query, entry.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// SearchText embeds the query and ranks it against every embedded event.
func (ix *Index) SearchText(ctx context.Context, query string, k int) ([]model.EventMatch, error) {
	queryVec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	events, err := ix.store.Events(ctx, graph.EventFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.EventNode, len(events))
	corpus := make([]Entry, 0, len(events))
	for _, e := range events {
		if !e.HasEmbedding() {
			// Events without embeddings are excluded from search.
			continue
		}
		byID[e.ID] = e
		corpus = append(corpus, Entry{ID: e.ID, Vector: e.Embedding})
	}

	var out []model.EventMatch
	for _, hit := range Search(queryVec, corpus, k) {
		out = append(out, model.EventMatch{Event: byID[hit.ID], Similarity: hit.Score})
	}
	return out, nil
}

// CanonicalText builds the joint text representation an event is embedded
// from: name, type, description, location, purpose, result and participant
// names.
func CanonicalText(e *model.EventNode, participants []string) string {
	parts := []string{e.Name, e.Type, e.Description, e.Location, e.Purpose, e.Result}
	parts = append(parts, participants...)
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(p))
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// GenerateForAll computes joint embeddings for every event lacking one, or
// for all events when force is set. Idempotent when force=false. Per-event
// failures are recorded and the batch continues; the inter-batch delay
// throttles the external collaborator. Cancellation is cooperative between
// items; embeddings already stored stay committed.
func (ix *Index) GenerateForAll(ctx context.Context, force bool, sink progress.Sink) (*model.EmbeddingRunResult, error) {
	events, err := ix.store.Events(ctx, graph.EventFilter{})
	if err != nil {
		return nil, err
	}

	result := &model.EmbeddingRunResult{}
	total := len(events)
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !force && e.HasEmbedding() {
			result.Skipped++
			continue
		}

		participants, perr := ix.participantNames(ctx, e.ID)
		if perr != nil {
			ix.log.Warn("failed to load participants", zap.String("event", e.ID), zap.Error(perr))
		}

		vec, err := ix.Embed(ctx, CanonicalText(&e, participants))
		if err != nil {
			// The event stays without an embedding; recorded, not fatal.
			result.Problems = append(result.Problems, model.EmbeddingProblem{EventID: e.ID, Reason: err.Error()})
			ix.met.EmbeddingFailures.Inc()
			continue
		}
		if err := ix.store.SetEventEmbedding(ctx, e.ID, vec); err != nil {
			result.Problems = append(result.Problems, model.EmbeddingProblem{EventID: e.ID, Reason: err.Error()})
			continue
		}
		result.Generated++
		ix.met.EmbeddingsGenerated.Inc()

		progress.Publish(sink, "embedding", fmt.Sprintf("embedded event %s", e.ID), i+1, total)

		if ix.opts.BatchDelay > 0 && (i+1)%ix.opts.BatchSize == 0 {
			select {
			case <-time.After(ix.opts.BatchDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	ix.log.Info("embedding generation finished",
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failures", len(result.Problems)))
	return result, nil
}

func (ix *Index) participantNames(ctx context.Context, eventID string) ([]string, error) {
	relations, err := ix.store.RelationsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range relations {
		node, err := ix.store.NodeByID(ctx, r.EntityID)
		if err != nil {
			// Dangling reference; integrity validation reports it.
			continue
		}
		names = append(names, node.Name)
	}
	return names, nil
}
