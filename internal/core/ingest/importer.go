package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
)

// snapshot is the exported JSON shape accepted by bulk import: named
// top-level arrays, each record kept raw so a malformed one can be
// reported verbatim without aborting the run.
type snapshot struct {
	Nodes     []json.RawMessage `json:"nodes"`
	Events    []json.RawMessage `json:"events"`
	Relations []json.RawMessage `json:"relations"`
}

// Importer loads an exported graph snapshot. Bad records are skipped and
// reported; colliding or invalid ids are re-minted and references to them
// remapped.
type Importer struct {
	Store graph.Store
	Log   *zap.Logger
}

func NewImporter(store graph.Store, log *zap.Logger) *Importer {
	return &Importer{Store: store, Log: log}
}

// Import reads a snapshot document and writes its records into the store.
// The run always completes; per-record failures land in Problems.
func (im *Importer) Import(ctx context.Context, data []byte) (*model.ImportResult, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse import document: %w", err)
	}

	result := &model.ImportResult{}
	// Original id -> stored id, for remapping relation endpoints when a
	// node or event had to be re-minted.
	nodeIDs := make(map[string]string)
	eventIDs := make(map[string]string)

	for _, raw := range snap.Nodes {
		var n model.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			result.Problems = append(result.Problems, problem("malformed node record", "", raw))
			continue
		}
		original := n.ID
		if !graph.ValidID(n.ID) || im.nodeIDTaken(ctx, n.ID, n.Name) {
			n.ID = uuid.New().String()
		}
		stored, err := im.Store.UpsertNode(ctx, &n)
		if err != nil {
			result.Problems = append(result.Problems, problem(err.Error(), original, raw))
			continue
		}
		if original != "" {
			nodeIDs[original] = stored.ID
		}
		result.NodesImported++
	}

	for _, raw := range snap.Events {
		var e model.EventNode
		if err := json.Unmarshal(raw, &e); err != nil {
			result.Problems = append(result.Problems, problem("malformed event record", "", raw))
			continue
		}
		original := e.ID
		if !graph.ValidID(e.ID) || im.eventIDTaken(ctx, e.ID, e.Name) {
			e.ID = uuid.New().String()
		}
		stored, err := im.Store.UpsertEvent(ctx, &e)
		if err != nil {
			result.Problems = append(result.Problems, problem(err.Error(), original, raw))
			continue
		}
		if original != "" {
			eventIDs[original] = stored.ID
		}
		result.EventsImported++
	}

	for _, raw := range snap.Relations {
		var r model.EventEntityRelation
		if err := json.Unmarshal(raw, &r); err != nil {
			result.Problems = append(result.Problems, problem("malformed relation record", "", raw))
			continue
		}
		original := r.ID
		if mapped, ok := eventIDs[r.EventID]; ok {
			r.EventID = mapped
		}
		if mapped, ok := nodeIDs[r.EntityID]; ok {
			r.EntityID = mapped
		}
		if strings.TrimSpace(r.EventID) == "" || strings.TrimSpace(r.EntityID) == "" {
			result.Problems = append(result.Problems, problem("relation missing endpoint id", original, raw))
			continue
		}
		if !graph.ValidID(r.ID) {
			r.ID = uuid.New().String()
		}
		if _, err := im.Store.UpsertRelation(ctx, &r); err != nil {
			result.Problems = append(result.Problems, problem(err.Error(), original, raw))
			continue
		}
		result.RelationsImported++
	}

	im.Log.Info("import finished",
		zap.Int("nodes", result.NodesImported),
		zap.Int("events", result.EventsImported),
		zap.Int("relations", result.RelationsImported),
		zap.Int("problems", len(result.Problems)))
	return result, nil
}

// nodeIDTaken reports whether the id already belongs to a different node.
// Same id plus same name reads as the same record and upserts in place.
func (im *Importer) nodeIDTaken(ctx context.Context, id, name string) bool {
	existing, err := im.Store.NodeByID(ctx, id)
	if err != nil {
		return false
	}
	return !strings.EqualFold(existing.Name, name)
}

func (im *Importer) eventIDTaken(ctx context.Context, id, name string) bool {
	existing, err := im.Store.EventByID(ctx, id)
	if err != nil {
		return false
	}
	return !strings.EqualFold(existing.Name, name)
}

func problem(reason, originalID string, raw json.RawMessage) model.ImportProblem {
	return model.ImportProblem{Reason: reason, OriginalID: originalID, RawRecord: raw}
}
