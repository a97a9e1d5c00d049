package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/recall/internal/core/common"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/llm"
)

// Summarizer asks the LLM for a human-readable name and description of a
// cluster from its member events. Optional; without one the engine falls
// back to mechanical naming.
type Summarizer struct {
	LLM llm.LLMClient
}

func NewSummarizer(llmClient llm.LLMClient) *Summarizer {
	return &Summarizer{LLM: llmClient}
}

type clusterSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Summarizer) SummarizeCluster(ctx context.Context, events []model.EventNode) (name, description string, err error) {
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s", ev.Name)
		if ev.Description != "" {
			fmt.Fprintf(&b, ": %s", ev.Description)
		}
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(`These events from a personal timeline were grouped by semantic similarity:
%s
Return ONLY a JSON object with a short theme name (max 6 words) and a one-sentence description:
{"name": "...", "description": "..."}`, b.String())

	response, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate cluster summary: %w", err)
	}
	result, err := common.ParseJSON[clusterSummary](response)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse cluster summary: %w", err)
	}
	return strings.TrimSpace(result.Name), strings.TrimSpace(result.Description), nil
}
