package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory", cfg.Graph.Backend)
	assert.Equal(t, 100, cfg.Cache.CategoryCapacity)
	assert.Equal(t, 500, cfg.Cache.UtilizationTarget)
	assert.InDelta(t, 0.2, cfg.Focus.ReinforcementStep, 1e-9)
	assert.InDelta(t, 0.95, cfg.Focus.DecayFactor, 1e-9)
	assert.InDelta(t, 0.85, cfg.Clustering.Stage1Threshold, 1e-9)
	assert.InDelta(t, 0.70, cfg.Clustering.Stage2Threshold, 1e-9)
	assert.InDelta(t, 0.55, cfg.Clustering.OutlierThreshold, 1e-9)
	assert.InDelta(t, 0.60, cfg.Clustering.JoinThreshold, 1e-9)
	assert.Equal(t, 30, cfg.Conversation.SessionGapMinutes)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[llm]
provider = "openai"
model = "gpt-4o-mini"

[graph]
backend = "memgraph"
uri = "bolt://db:7687"

[clustering]
stage1_threshold = 0.9
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "memgraph", cfg.Graph.Backend)
	assert.InDelta(t, 0.9, cfg.Clustering.Stage1Threshold, 1e-9)
	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Cache.CategoryCapacity)
	assert.InDelta(t, 0.70, cfg.Clustering.Stage2Threshold, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("GRAPH_BACKEND", "memgraph")
	t.Setenv("MEMGRAPH_URI", "bolt://remote:7687")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "memgraph", cfg.Graph.Backend)
	assert.Equal(t, "bolt://remote:7687", cfg.Graph.URI)
}
