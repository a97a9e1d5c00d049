package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
)

func TestImportSnapshot(t *testing.T) {
	store := graph.NewMemStore()
	im := NewImporter(store, zap.NewNop())
	ctx := context.Background()

	doc := `{
		"nodes": [
			{"id": "n1", "name": "Alice", "type": "person"}
		],
		"events": [
			{"id": "e1", "name": "lunch", "type": "meal"}
		],
		"relations": [
			{"id": "r1", "event_id": "e1", "entity_id": "n1", "role": "participant"}
		]
	}`

	result, err := im.Import(ctx, []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NodesImported)
	assert.Equal(t, 1, result.EventsImported)
	assert.Equal(t, 1, result.RelationsImported)
	assert.Empty(t, result.Problems)

	report, err := store.ValidateIntegrity(ctx)
	assert.NoError(t, err)
	assert.True(t, report.Clean())
}

// A malformed record is skipped with a problem entry; the rest of the run
// continues.
func TestImportSkipsMalformedRecords(t *testing.T) {
	store := graph.NewMemStore()
	im := NewImporter(store, zap.NewNop())

	doc := `{
		"nodes": [
			{"id": "n1", "name": "Alice", "type": "person"},
			"not an object",
			{"id": "n2", "name": "Bob", "type": "person"}
		]
	}`

	result, err := im.Import(context.Background(), []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 2, result.NodesImported)
	assert.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0].Reason, "malformed")
}

// An invalid or colliding id gets a fresh one, and relations referencing
// the original id are remapped.
func TestImportRemintsInvalidIDs(t *testing.T) {
	store := graph.NewMemStore()
	im := NewImporter(store, zap.NewNop())
	ctx := context.Background()

	doc := `{
		"nodes": [
			{"id": "0", "name": "Alice", "type": "person"}
		],
		"events": [
			{"name": "lunch", "type": "meal", "id": "e1"}
		],
		"relations": [
			{"event_id": "e1", "entity_id": "0", "role": "participant"}
		]
	}`

	result, err := im.Import(ctx, []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NodesImported)
	assert.Equal(t, 1, result.RelationsImported)

	nodes, err := store.Nodes(ctx, graph.NodeFilter{})
	assert.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.NotEqual(t, "0", nodes[0].ID)

	rels, err := store.Relations(ctx)
	assert.NoError(t, err)
	assert.Len(t, rels, 1)
	assert.Equal(t, nodes[0].ID, rels[0].EntityID)

	report, err := store.ValidateIntegrity(ctx)
	assert.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestImportRemintsCollidingIDs(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()

	existing, err := store.UpsertNode(ctx, &model.Node{ID: "n1", Name: "Carol", Type: "person"})
	assert.NoError(t, err)

	im := NewImporter(store, zap.NewNop())
	doc := `{
		"nodes": [
			{"id": "n1", "name": "Alice", "type": "person"}
		]
	}`
	result, err := im.Import(ctx, []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NodesImported)

	// Carol is untouched; Alice got a fresh id.
	got, err := store.NodeByID(ctx, existing.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Carol", got.Name)

	nodes, err := store.Nodes(ctx, graph.NodeFilter{})
	assert.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestImportRelationMissingEndpoint(t *testing.T) {
	store := graph.NewMemStore()
	im := NewImporter(store, zap.NewNop())

	doc := `{
		"relations": [
			{"event_id": "", "entity_id": "n1", "role": "participant"}
		]
	}`
	result, err := im.Import(context.Background(), []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 0, result.RelationsImported)
	assert.Len(t, result.Problems, 1)
}

func TestImportRejectsUnparseableDocument(t *testing.T) {
	im := NewImporter(graph.NewMemStore(), zap.NewNop())
	_, err := im.Import(context.Background(), []byte("not json"))
	assert.Error(t, err)
}
