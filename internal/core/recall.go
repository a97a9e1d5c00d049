// Package core wires the personal knowledge subsystems into one facade:
// conversation tracking, focus tracking, the categorized cache, the event
// graph, embeddings and clustering.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/core/cache"
	"github.com/agenthands/recall/internal/core/cluster"
	"github.com/agenthands/recall/internal/core/common"
	"github.com/agenthands/recall/internal/core/convo"
	"github.com/agenthands/recall/internal/core/embed"
	"github.com/agenthands/recall/internal/core/focus"
	"github.com/agenthands/recall/internal/core/ingest"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
	"github.com/agenthands/recall/internal/metrics"
)

// Recall is the engine facade. All subsystems are exported so callers can
// reach a specific one directly; ProcessUtterance drives the standard
// pipeline across all of them.
type Recall struct {
	Store    graph.Store
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient
	Reranker llm.RerankerClient

	Cache     *cache.CategorizedCache
	Focus     *focus.Tracker
	Convo     *convo.Tracker
	Index     *embed.Index
	Clusters  *cluster.Engine
	Extractor *ingest.Extractor
	Importer  *ingest.Importer
	Deduper   *ingest.Deduplicator

	log *zap.Logger
	now func() time.Time
}

// UtteranceResult summarizes one ProcessUtterance pipeline run.
type UtteranceResult struct {
	Context         model.ConversationContext `json:"context"`
	ActiveFocuses   []model.FocusPoint        `json:"active_focuses"`
	EventsExtracted int                       `json:"events_extracted"`
}

func NewRecall(cfg *config.Config, store graph.Store, llmClient llm.LLMClient, embedder llm.EmbedderClient, met *metrics.Metrics, log *zap.Logger) *Recall {
	if met == nil {
		met = metrics.NewNop()
	}
	index := embed.NewIndex(embedder, store, embed.Options{
		BatchSize:  cfg.Clustering.BatchSize,
		BatchDelay: time.Duration(cfg.Clustering.BatchDelayMS) * time.Millisecond,
	}, met, log)

	r := &Recall{
		Store:    store,
		LLM:      llmClient,
		Embedder: embedder,
		Cache: cache.New(cache.Options{
			CategoryCapacity:  cfg.Cache.CategoryCapacity,
			UtilizationTarget: cfg.Cache.UtilizationTarget,
		}, met, log),
		Focus: focus.NewTracker(focus.Options{
			ReinforcementStep: cfg.Focus.ReinforcementStep,
			SeedIntensity:     cfg.Focus.SeedIntensity,
			DecayFactor:       cfg.Focus.DecayFactor,
			MinIntensity:      cfg.Focus.MinIntensity,
			MaxFocuses:        cfg.Focus.MaxFocuses,
		}, log),
		Convo: convo.NewTracker(convo.Options{
			SessionGap: time.Duration(cfg.Conversation.SessionGapMinutes) * time.Minute,
		}, log),
		Index: index,
		Clusters: cluster.NewEngine(store, index, cluster.Options{
			Stage1Threshold:  cfg.Clustering.Stage1Threshold,
			Stage2Threshold:  cfg.Clustering.Stage2Threshold,
			OutlierThreshold: cfg.Clustering.OutlierThreshold,
			JoinThreshold:    cfg.Clustering.JoinThreshold,
		}, met, log),
		Importer: ingest.NewImporter(store, log),
		log:      log,
		now:      time.Now,
	}
	if llmClient != nil {
		r.Extractor = ingest.NewExtractor(llmClient, store, cfg.Extraction)
		r.Deduper = ingest.NewDeduplicator(llmClient, store, log)
		r.Reranker = llm.NewSimpleLLMReranker(llmClient)
		r.Clusters.SetSummarizer(cluster.NewSummarizer(llmClient))
	}
	return r
}

// SetClock overrides the time source. Tests only.
func (r *Recall) SetClock(now func() time.Time) {
	r.now = now
	r.Cache.SetClock(now)
	r.Focus.SetClock(now)
	r.Convo.SetClock(now)
}

// ProcessUtterance runs the write-side pipeline for one user message:
// dialogue state, focus reinforcement, cache refresh, event extraction and
// embedding of whatever the extraction produced. LLM stages degrade
// gracefully when no client is configured.
func (r *Recall) ProcessUtterance(ctx context.Context, text string) (*UtteranceResult, error) {
	now := r.now().UTC()

	convoCtx := r.Convo.ProcessUtterance(text, now)
	focuses := r.Focus.Observe(text, &convoCtx)
	r.refreshCache(convoCtx, text, now)

	result := &UtteranceResult{Context: convoCtx, ActiveFocuses: focuses}

	if r.Extractor != nil {
		extracted, err := r.Extractor.ExtractEvents(ctx, text, now)
		if err != nil {
			// Extraction is best effort; the conversational state above
			// already committed.
			r.log.Warn("event extraction failed", zap.Error(err))
			return result, nil
		}
		saved, err := r.Extractor.Persist(ctx, extracted, now)
		if err != nil {
			r.log.Warn("event persistence incomplete", zap.Error(err))
		}
		result.EventsExtracted = len(saved)

		for _, ex := range extracted {
			for _, p := range ex.Participants {
				if p.Type == "person" {
					r.Convo.AddParticipant(p.Name)
				}
			}
		}
		if len(saved) > 0 && r.Embedder != nil {
			if _, err := r.Index.GenerateForAll(ctx, false, nil); err != nil {
				r.log.Warn("embedding pass failed", zap.Error(err))
			}
		}
	}
	return result, nil
}

// refreshCache folds the latest dialogue state into the categorized cache.
func (r *Recall) refreshCache(convoCtx model.ConversationContext, text string, now time.Time) {
	put := func(item model.CacheItem) {
		item.CreatedAt = now
		item.LastAccessedAt = now
		if err := r.Cache.Put(item); err != nil {
			r.log.Warn("cache insert rejected", zap.String("key", item.Key), zap.Error(err))
		}
	}

	for _, topic := range convoCtx.CurrentTopics {
		put(model.CacheItem{
			Key:            "topic:" + topic,
			Category:       model.CategoryConversationGrasp,
			Priority:       model.PriorityMedium,
			Weight:         convoCtx.TopicIntensity[topic],
			Data:           model.TopicPayload(topic),
			RelevanceScore: convoCtx.TopicIntensity[topic],
		})
	}
	if convoCtx.PrimaryIntent != "" {
		put(model.CacheItem{
			Key:            "intent:current",
			Category:       model.CategoryIntentUnderstanding,
			Priority:       model.PriorityHigh,
			Weight:         0.8,
			Data:           model.IntentPayload(convoCtx.PrimaryIntent),
			RelevanceScore: 0.8,
		})
	}
	if convoCtx.UserEmotion != "" {
		put(model.CacheItem{
			Key:            "emotion:current",
			Category:       model.CategoryIntentUnderstanding,
			Priority:       model.PriorityMedium,
			Weight:         0.6,
			Data:           model.EmotionPayload(convoCtx.UserEmotion),
			RelevanceScore: 0.6,
		})
	}
	for _, task := range convoCtx.UnfinishedTasks {
		put(model.CacheItem{
			Key:            "task:" + task,
			Category:       model.CategoryProactiveData,
			Priority:       model.PriorityHigh,
			Weight:         0.7,
			Data:           model.TextPayload(task),
			RelevanceScore: 0.7,
		})
	}
	if personal := personalStatement(text); personal != "" {
		put(model.CacheItem{
			Key:            "personal:" + personal,
			Category:       model.CategoryPersonalInfo,
			Priority:       model.PriorityUserProfile,
			Weight:         1.0,
			Data:           model.TextPayload(personal),
			RelevanceScore: 1.0,
		})
	}
}

// personalStatement picks out first-person self-descriptions worth pinning.
func personalStatement(text string) string {
	for _, marker := range []string{"my name is ", "i live in ", "i work as ", "i work at ", "my birthday is ", "i am allergic to "} {
		idx := common.IndexFold(text, marker)
		if idx < 0 {
			continue
		}
		rest := text[idx:]
		if cut := strings.IndexAny(rest, ".!?,;\n"); cut > 0 {
			rest = rest[:cut]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}

// GetCachePerformance reports cache health.
func (r *Recall) GetCachePerformance() model.CacheStats {
	return r.Cache.Stats()
}

// GetAllCacheItems lists every cached item across categories.
func (r *Recall) GetAllCacheItems() []model.CacheItem {
	return r.Cache.All()
}

// GetCacheItemsByCategory lists one category, newest first.
func (r *Recall) GetCacheItemsByCategory(category model.CacheCategory) ([]model.CacheItem, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownCategory, category)
	}
	return r.Cache.GetByCategory(category), nil
}

// GetCurrentConversationContext returns a copy of the live dialogue state.
func (r *Recall) GetCurrentConversationContext() model.ConversationContext {
	return r.Convo.Current()
}

// GetCurrentPersonalFocusSummary renders the active focus set, strongest
// first.
func (r *Recall) GetCurrentPersonalFocusSummary() []string {
	return r.Focus.Summary()
}

// SearchEventsByText is semantic event search over joint embeddings.
func (r *Recall) SearchEventsByText(ctx context.Context, query string, k int) ([]model.EventMatch, error) {
	return r.Index.SearchText(ctx, query, k)
}

// ValidateGraphIntegrity scans for orphans, duplicate edges and dangling
// references. Read only.
func (r *Recall) ValidateGraphIntegrity(ctx context.Context) (*model.IntegrityReport, error) {
	return r.Store.ValidateIntegrity(ctx)
}

// DeleteOrphanedNodes removes entities no relation references. Destructive;
// the HTTP layer requires explicit confirmation before calling this.
func (r *Recall) DeleteOrphanedNodes(ctx context.Context) (int, error) {
	return r.Store.DeleteOrphanedNodes(ctx)
}

// DedupeEntities merges entity nodes the LLM judges to be the same
// real-world thing under different names.
func (r *Recall) DedupeEntities(ctx context.Context) (*ingest.DedupeResult, error) {
	if r.Deduper == nil {
		return nil, errors.New("no llm configured for entity deduplication")
	}
	return r.Deduper.ResolveDuplicateEntities(ctx)
}

// ImportSnapshot bulk-loads an exported JSON document.
func (r *Recall) ImportSnapshot(ctx context.Context, data []byte) (*model.ImportResult, error) {
	return r.Importer.Import(ctx, data)
}

// GetRelevantPersonalInfoForGeneration gathers everything the prompt
// builder needs before the next generation call: focus contexts, reranked
// retrieval snippets, pinned personal items, matching events and their
// entity relations.
func (r *Recall) GetRelevantPersonalInfoForGeneration(ctx context.Context, query string, k int) (*model.PersonalInfoBundle, error) {
	if k <= 0 {
		k = 5
	}
	bundle := &model.PersonalInfoBundle{
		FocusContexts: r.Focus.Summary(),
	}
	bundle.ActiveFocusesCount = len(bundle.FocusContexts)

	for _, item := range r.Cache.GetByCategory(model.CategoryPersonalInfo) {
		if s := payloadText(item.Data); s != "" {
			bundle.RetrievalContexts = append(bundle.RetrievalContexts, s)
		}
	}

	if r.Embedder != nil && query != "" {
		matches, err := r.Index.SearchText(ctx, query, k)
		if err != nil {
			r.log.Warn("semantic retrieval failed", zap.Error(err))
		} else {
			snippets := make([]string, 0, len(matches))
			for _, m := range matches {
				bundle.UserEvents = append(bundle.UserEvents, m.Event)
				snippets = append(snippets, eventSnippet(&m.Event))

				rels, err := r.Store.RelationsForEvent(ctx, m.Event.ID)
				if err == nil {
					bundle.UserRelationships = append(bundle.UserRelationships, rels...)
				}
			}
			bundle.RetrievalContexts = append(bundle.RetrievalContexts, r.rerank(ctx, query, snippets)...)
		}
	}

	nodes, err := r.Store.Nodes(ctx, graph.NodeFilter{Type: "person"})
	if err == nil {
		bundle.PersonalNodes = nodes
	}

	bundle.TotalPersonalInfoItems = len(bundle.RetrievalContexts) + len(bundle.PersonalNodes) + len(bundle.UserEvents)
	return bundle, nil
}

// rerank orders snippets by LLM-judged relevance, falling back to the
// similarity order when no reranker is configured or it fails.
func (r *Recall) rerank(ctx context.Context, query string, snippets []string) []string {
	if r.Reranker == nil || len(snippets) < 2 {
		return snippets
	}
	order, err := r.Reranker.Rank(ctx, query, snippets)
	if err != nil {
		r.log.Warn("rerank failed", zap.Error(err))
		return snippets
	}
	out := make([]string, 0, len(snippets))
	for _, idx := range order {
		if idx >= 0 && idx < len(snippets) {
			out = append(out, snippets[idx])
		}
	}
	return out
}

func payloadText(p model.Payload) string {
	switch p.Kind {
	case model.PayloadText:
		return p.Text
	case model.PayloadTopic:
		return p.Topic
	case model.PayloadIntent:
		return p.Intent
	case model.PayloadEmotion:
		return p.Emotion
	case model.PayloadStructured:
		return string(p.JSON)
	}
	return ""
}

func eventSnippet(e *model.EventNode) string {
	parts := []string{e.Name}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Location != "" {
		parts = append(parts, "at "+e.Location)
	}
	if e.StartTime != nil {
		parts = append(parts, e.StartTime.Format("2006-01-02"))
	}
	return strings.Join(parts, " | ")
}

// Close releases the underlying graph connection.
func (r *Recall) Close(ctx context.Context) error {
	return r.Store.Close(ctx)
}
