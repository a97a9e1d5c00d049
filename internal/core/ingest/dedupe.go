package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/common"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
)

// DuplicatePair is one LLM-identified duplicate: the entity to keep and
// the one to fold into it.
type DuplicatePair struct {
	OriginalID  string  `json:"original_id"`
	DuplicateID string  `json:"duplicate_id"`
	Confidence  float64 `json:"confidence"`
}

type duplicateResult struct {
	Duplicates []DuplicatePair `json:"duplicates"`
}

// DedupeResult summarizes one entity deduplication pass.
type DedupeResult struct {
	PairsFound int `json:"pairs_found"`
	Merged     int `json:"merged"`
}

// minDedupeConfidence gates merges; below it a pair is reported but left
// alone.
const minDedupeConfidence = 0.8

// Deduplicator finds entity nodes that refer to the same real-world thing
// under different names ("Bob" vs "Robert") and merges them: the duplicate's
// name becomes an alias of the original, its relations are rewritten, and
// the duplicate node is removed.
type Deduplicator struct {
	LLM   llm.LLMClient
	Store graph.Store
	Log   *zap.Logger
}

func NewDeduplicator(llmClient llm.LLMClient, store graph.Store, log *zap.Logger) *Deduplicator {
	return &Deduplicator{LLM: llmClient, Store: store, Log: log}
}

// ResolveDuplicateEntities asks the LLM to judge the full entity list for
// duplicates and merges the confident pairs. Merges commit per pair; a
// failing pair is logged and skipped.
func (d *Deduplicator) ResolveDuplicateEntities(ctx context.Context) (*DedupeResult, error) {
	nodes, err := d.Store.Nodes(ctx, graph.NodeFilter{})
	if err != nil {
		return nil, err
	}
	result := &DedupeResult{}
	if len(nodes) < 2 {
		return result, nil
	}

	prompt := fmt.Sprintf(`These entities come from one person's knowledge graph:
%s
Identify entries that refer to the same real-world person, place or thing
under different names. Return ONLY a JSON object:
{"duplicates": [{"original_id": "keep this id", "duplicate_id": "fold this id", "confidence": 0.9}]}
Return {"duplicates": []} when there are none.`, serializeNodes(nodes))

	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate deduplication result: %w", err)
	}
	parsed, err := common.ParseJSON[duplicateResult](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deduplication result: %w", err)
	}
	result.PairsFound = len(parsed.Duplicates)

	for _, pair := range parsed.Duplicates {
		if pair.Confidence < minDedupeConfidence || pair.OriginalID == pair.DuplicateID {
			continue
		}
		if err := d.merge(ctx, pair.OriginalID, pair.DuplicateID); err != nil {
			d.Log.Warn("failed to merge duplicate entities",
				zap.String("original", pair.OriginalID),
				zap.String("duplicate", pair.DuplicateID),
				zap.Error(err))
			continue
		}
		result.Merged++
	}
	return result, nil
}

func (d *Deduplicator) merge(ctx context.Context, originalID, duplicateID string) error {
	original, err := d.Store.NodeByID(ctx, originalID)
	if err != nil {
		return err
	}
	duplicate, err := d.Store.NodeByID(ctx, duplicateID)
	if err != nil {
		return err
	}

	original.Aliases = appendAlias(original.Aliases, duplicate.Name, original.Name)
	for _, a := range duplicate.Aliases {
		original.Aliases = appendAlias(original.Aliases, a, original.Name)
	}
	for k, v := range duplicate.Attributes {
		if original.Attributes == nil {
			original.Attributes = map[string]string{}
		}
		if _, exists := original.Attributes[k]; !exists {
			original.Attributes[k] = v
		}
	}
	if _, err := d.Store.UpsertNode(ctx, original); err != nil {
		return err
	}

	// Relations move to the surviving entity; the upsert dedupes edges
	// that already exist with the same event and role.
	relations, err := d.Store.RelationsForEntity(ctx, duplicateID)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		rel.EntityID = originalID
		rel.ID = ""
		if _, err := d.Store.UpsertRelation(ctx, &rel); err != nil {
			return err
		}
	}

	return d.Store.DeleteNode(ctx, duplicateID)
}

func appendAlias(aliases []string, candidate, canonical string) []string {
	if candidate == "" || candidate == canonical {
		return aliases
	}
	for _, a := range aliases {
		if a == candidate {
			return aliases
		}
	}
	return append(aliases, candidate)
}

func serializeNodes(nodes []model.Node) string {
	var s string
	for _, n := range nodes {
		s += fmt.Sprintf("- ID: %s, Name: %s, Type: %s\n", n.ID, n.Name, n.Type)
	}
	return s
}
