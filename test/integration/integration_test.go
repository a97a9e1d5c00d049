//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/core"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/driver"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
	"github.com/agenthands/recall/internal/metrics"
)

// TestFullFlow runs the whole pipeline against a live Memgraph: ingest
// utterances, embed, cluster and retrieve generation context. Requires
// MEMGRAPH_URI; an LLM provider is optional and enables extraction.
func TestFullFlow(t *testing.T) {
	_ = godotenv.Load("../../.env")

	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}
	log := zap.NewNop()

	d, err := driver.NewMemgraphDriver(uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), log)
	require.NoError(t, err)
	ctx := context.Background()
	defer d.Close(ctx)
	require.NoError(t, d.BuildIndices(ctx))

	store := graph.NewMemgraphStore(d, log)

	cfg, err := config.Load("../../config/config.toml")
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnvOverrides()

	var llmClient llm.LLMClient
	var embedder llm.EmbedderClient
	if cfg.LLM.Provider != "" {
		llmClient, embedder, err = llm.NewClient(ctx, llm.ProviderConfig{
			Provider:       cfg.LLM.Provider,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
		})
		require.NoError(t, err)
	}

	r := core.NewRecall(cfg, store, llmClient, embedder, metrics.NewNop(), log)
	defer r.Close(ctx)

	// Conversational state builds up regardless of extraction.
	utterances := []string{
		"Hi there!",
		"My name is Alice and I work as a software engineer.",
		"Can you remind me to book the dentist?",
	}
	for _, u := range utterances {
		_, err := r.ProcessUtterance(ctx, u)
		require.NoError(t, err)
	}

	convo := r.GetCurrentConversationContext()
	assert.NotEqual(t, model.DialogueIdle, convo.State)
	assert.NotEmpty(t, convo.ActiveTasks)

	items, err := r.GetCacheItemsByCategory(model.CategoryPersonalInfo)
	require.NoError(t, err)
	assert.NotEmpty(t, items)

	report, err := r.ValidateGraphIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	// The semantic layer needs an embedder; skip the rest without one.
	if embedder == nil {
		t.Log("no LLM provider configured, skipping clustering and retrieval")
		return
	}

	// Seed a couple of events directly so clustering has material even
	// when extraction returns nothing for the chat above.
	start := time.Now().UTC()
	for _, name := range []string{"morning run", "evening jog", "tax filing"} {
		_, err := store.UpsertEvent(ctx, &model.EventNode{Name: name, Type: "activity", StartTime: &start})
		require.NoError(t, err)
	}

	initResult, err := r.Clusters.ClusterInitAll(ctx, nil)
	require.NoError(t, err)
	assert.Greater(t, initResult.Stage2Clusters, 0)

	matches, err := r.SearchEventsByText(ctx, "running", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	bundle, err := r.GetRelevantPersonalInfoForGeneration(ctx, "what do I do in the mornings?", 5)
	require.NoError(t, err)
	assert.NotNil(t, bundle)

	quality, err := r.Clusters.GetClusteringQualityMetrics(ctx)
	require.NoError(t, err)
	t.Logf("clusters=%d quality=%.2f", quality.TotalClusters, quality.QualityScore)
}
