package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
)

const extractionJSON = `{
	"extracted_events": [
		{
			"name": "Flight to Tokyo",
			"type": "travel",
			"description": "booking flights for the Tokyo trip",
			"start_time": "2025-07-01T09:00:00Z",
			"participants": [
				{"name": "Dana", "type": "person", "role": "participant"}
			]
		}
	]
}`

func newTestRecall(llmResponse string) *Recall {
	r := NewRecall(config.Default(), graph.NewMemStore(),
		&MockLLMClient{Response: llmResponse},
		&MockEmbedderClient{Response: []float32{1, 0}},
		nil, zap.NewNop())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return clock })
	return r
}

func TestProcessUtterancePipeline(t *testing.T) {
	r := newTestRecall(extractionJSON)
	ctx := context.Background()

	result, err := r.ProcessUtterance(ctx, "i need to book flights to tokyo for the july trip")
	assert.NoError(t, err)
	assert.Equal(t, "task_request", result.Context.PrimaryIntent)
	assert.Equal(t, model.DialogueTaskDriven, result.Context.State)
	assert.Equal(t, 1, result.EventsExtracted)
	assert.NotEmpty(t, result.ActiveFocuses)

	// The extracted event landed in the graph with its participant.
	events, err := r.Store.Events(ctx, graph.EventFilter{})
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "Flight to Tokyo", events[0].Name)
	assert.True(t, events[0].HasEmbedding())

	nodes, err := r.Store.Nodes(ctx, graph.NodeFilter{Type: "person"})
	assert.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.Equal(t, "Dana", nodes[0].Name)

	assert.Contains(t, r.GetCurrentConversationContext().Participants, "Dana")
}

func TestProcessUtteranceSurvivesExtractionFailure(t *testing.T) {
	r := newTestRecall("this is not json at all")
	ctx := context.Background()

	result, err := r.ProcessUtterance(ctx, "i need to book flights to tokyo")
	assert.NoError(t, err)
	assert.Equal(t, 0, result.EventsExtracted)

	// Conversational state still committed.
	assert.Equal(t, "task_request", r.GetCurrentConversationContext().PrimaryIntent)
	assert.NotEmpty(t, r.GetAllCacheItems())
}

func TestCacheRefreshFromUtterance(t *testing.T) {
	r := newTestRecall(extractionJSON)

	_, err := r.ProcessUtterance(context.Background(), "i need to book flights to tokyo")
	assert.NoError(t, err)

	intent, ok := r.Cache.Get(model.CategoryIntentUnderstanding, "intent:current")
	assert.True(t, ok)
	assert.Equal(t, "task_request", intent.Data.Intent)

	tasks, err := r.GetCacheItemsByCategory(model.CategoryProactiveData)
	assert.NoError(t, err)
	assert.NotEmpty(t, tasks)
}

func TestPersonalStatementsArePinned(t *testing.T) {
	r := newTestRecall(extractionJSON)

	_, err := r.ProcessUtterance(context.Background(), "my name is Dana, nice to meet you")
	assert.NoError(t, err)

	items, err := r.GetCacheItemsByCategory(model.CategoryPersonalInfo)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, model.PriorityUserProfile, items[0].Priority)
	assert.Equal(t, "my name is Dana", items[0].Data.Text)
}

// Lowercasing can change byte lengths (Ⱥ is two bytes, ⱥ three), so marker
// offsets must be found in the original text, not a lowered copy.
func TestPersonalStatementsSurviveMultibyteText(t *testing.T) {
	r := newTestRecall(extractionJSON)

	text := strings.Repeat("Ⱥ", 15) + " my name is Dana."
	_, err := r.ProcessUtterance(context.Background(), text)
	assert.NoError(t, err)

	items, err := r.GetCacheItemsByCategory(model.CategoryPersonalInfo)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "my name is Dana", items[0].Data.Text)
}

func TestGetCacheItemsByCategoryRejectsUnknown(t *testing.T) {
	r := newTestRecall(extractionJSON)
	_, err := r.GetCacheItemsByCategory(model.CacheCategory("bogus"))
	assert.Error(t, err)
}

func TestSearchEventsByText(t *testing.T) {
	r := newTestRecall(extractionJSON)
	ctx := context.Background()

	_, err := r.ProcessUtterance(ctx, "i need to book flights to tokyo")
	assert.NoError(t, err)

	matches, err := r.SearchEventsByText(ctx, "tokyo travel", 5)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "Flight to Tokyo", matches[0].Event.Name)
}

func TestGenerationBundle(t *testing.T) {
	r := newTestRecall(extractionJSON)
	ctx := context.Background()

	_, err := r.ProcessUtterance(ctx, "my name is Dana and i need to book flights to tokyo")
	assert.NoError(t, err)

	bundle, err := r.GetRelevantPersonalInfoForGeneration(ctx, "upcoming travel", 5)
	assert.NoError(t, err)
	assert.NotEmpty(t, bundle.FocusContexts)
	assert.NotEmpty(t, bundle.RetrievalContexts)
	assert.Len(t, bundle.UserEvents, 1)
	assert.Len(t, bundle.PersonalNodes, 1)
	assert.NotEmpty(t, bundle.UserRelationships)
	assert.Equal(t, len(bundle.FocusContexts), bundle.ActiveFocusesCount)
	assert.Greater(t, bundle.TotalPersonalInfoItems, 0)
}

func TestValidateGraphIntegrity(t *testing.T) {
	r := newTestRecall(extractionJSON)
	ctx := context.Background()

	_, err := r.ProcessUtterance(ctx, "i need to book flights to tokyo")
	assert.NoError(t, err)

	report, err := r.ValidateGraphIntegrity(ctx)
	assert.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestImportSnapshotThroughFacade(t *testing.T) {
	r := newTestRecall(extractionJSON)

	doc := `{"events": [{"name": "imported", "type": "other"}]}`
	result, err := r.ImportSnapshot(context.Background(), []byte(doc))
	assert.NoError(t, err)
	assert.Equal(t, 1, result.EventsImported)
}
