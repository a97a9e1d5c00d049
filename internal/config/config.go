package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type GraphConfig struct {
	// Backend is "memgraph" or "memory". Memory keeps everything
	// in-process for single-device use.
	Backend  string `toml:"backend"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type CacheConfig struct {
	// CategoryCapacity bounds each cache category. Five categories at the
	// default of 100 give the 500-item utilization denominator.
	CategoryCapacity  int `toml:"category_capacity"`
	UtilizationTarget int `toml:"utilization_target"`
}

type FocusConfig struct {
	ReinforcementStep float64 `toml:"reinforcement_step"`
	SeedIntensity     float64 `toml:"seed_intensity"`
	// DecayFactor is applied per elapsed hour without reinforcement.
	DecayFactor  float64 `toml:"decay_factor"`
	MinIntensity float64 `toml:"min_intensity"`
	MaxFocuses   int     `toml:"max_focuses"`
}

type ClusteringConfig struct {
	// Stage1Threshold (T1) gates greedy agglomeration; Stage2Threshold
	// (T2) gates centroid consolidation and is typically lower.
	Stage1Threshold  float64 `toml:"stage1_threshold"`
	Stage2Threshold  float64 `toml:"stage2_threshold"`
	OutlierThreshold float64 `toml:"outlier_threshold"`
	JoinThreshold    float64 `toml:"join_threshold"`
	BatchSize        int     `toml:"batch_size"`
	// BatchDelayMS throttles calls to the external embedder between
	// batches. A quota courtesy, not a correctness requirement.
	BatchDelayMS int `toml:"batch_delay_ms"`
}

type ConversationConfig struct {
	SessionGapMinutes int `toml:"session_gap_minutes"`
}

type ExtractionPrompts struct {
	Events string `toml:"events"`
}

type Config struct {
	LLM          LLMConfig          `toml:"llm"`
	Graph        GraphConfig        `toml:"graph"`
	Cache        CacheConfig        `toml:"cache"`
	Focus        FocusConfig        `toml:"focus"`
	Clustering   ClusteringConfig   `toml:"clustering"`
	Conversation ConversationConfig `toml:"conversation"`
	Extraction   ExtractionPrompts  `toml:"extraction"`
}

// Default returns the documented defaults for every tunable.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			Backend: "memory",
			URI:     "bolt://localhost:7687",
		},
		Cache: CacheConfig{
			CategoryCapacity:  100,
			UtilizationTarget: 500,
		},
		Focus: FocusConfig{
			ReinforcementStep: 0.2,
			SeedIntensity:     0.4,
			DecayFactor:       0.95,
			MinIntensity:      0.1,
			MaxFocuses:        50,
		},
		Clustering: ClusteringConfig{
			Stage1Threshold:  0.85,
			Stage2Threshold:  0.70,
			OutlierThreshold: 0.55,
			JoinThreshold:    0.60,
			BatchSize:        20,
			BatchDelayMS:     100,
		},
		Conversation: ConversationConfig{
			SessionGapMinutes: 30,
		},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides lets deployment environments override file values
// without editing the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("GRAPH_BACKEND"); v != "" {
		c.Graph.Backend = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Graph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Graph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Graph.Password = v
	}
}
