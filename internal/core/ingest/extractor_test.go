package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/graph"
)

var extractionTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestExtractEvents(t *testing.T) {
	mockJSON := `{
		"extracted_events": [
			{
				"name": "Dinner at Luigi's",
				"type": "meal",
				"description": "birthday dinner with Alice",
				"location": "Luigi's",
				"start_time": "2025-05-30T19:00:00Z",
				"participants": [
					{"name": "Alice", "type": "person", "role": "participant"}
				]
			}
		]
	}`
	ex := NewExtractor(&MockLLMClient{Response: mockJSON}, graph.NewMemStore(), config.ExtractionPrompts{})

	events, err := ex.ExtractEvents(context.Background(), "we had dinner at Luigi's for Alice's birthday", extractionTime)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "Dinner at Luigi's", events[0].Name)
	assert.Equal(t, "meal", events[0].Type)
	assert.Len(t, events[0].Participants, 1)
	assert.Equal(t, "Alice", events[0].Participants[0].Name)
}

// Prose around the JSON object is tolerated; everything before the first
// brace and after the last is stripped.
func TestExtractEventsToleratesChatter(t *testing.T) {
	response := "Here are the events:\n```json\n" +
		`{"extracted_events": [{"name": "Standup", "type": "meeting"}]}` +
		"\n```"
	ex := NewExtractor(&MockLLMClient{Response: response}, graph.NewMemStore(), config.ExtractionPrompts{})

	events, err := ex.ExtractEvents(context.Background(), "daily standup happened", extractionTime)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Name)
}

func TestExtractEventsLLMFailure(t *testing.T) {
	ex := NewExtractor(&MockLLMClient{Err: errors.New("provider down")}, graph.NewMemStore(), config.ExtractionPrompts{})
	_, err := ex.ExtractEvents(context.Background(), "anything", extractionTime)
	assert.Error(t, err)
}

func TestPersistWritesGraphRecords(t *testing.T) {
	store := graph.NewMemStore()
	ex := NewExtractor(&MockLLMClient{}, store, config.ExtractionPrompts{})
	ctx := context.Background()

	events := []ExtractedEvent{{
		Name:      "Dinner at Luigi's",
		Type:      "meal",
		StartTime: "2025-05-30T19:00:00Z",
		Participants: []ExtractedParticipant{
			{Name: "Alice", Type: "person", Role: "participant"},
			{Name: "Luigi's", Type: "place", Role: "location"},
		},
	}}

	saved, err := ex.Persist(ctx, events, extractionTime)
	assert.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.NotNil(t, saved[0].StartTime)

	nodes, err := store.Nodes(ctx, graph.NodeFilter{})
	assert.NoError(t, err)
	assert.Len(t, nodes, 2)

	rels, err := store.RelationsForEvent(ctx, saved[0].ID)
	assert.NoError(t, err)
	assert.Len(t, rels, 2)
}

// A recurring participant matches the existing entity by name instead of
// minting a duplicate.
func TestPersistReusesKnownEntities(t *testing.T) {
	store := graph.NewMemStore()
	ex := NewExtractor(&MockLLMClient{}, store, config.ExtractionPrompts{})
	ctx := context.Background()

	first := []ExtractedEvent{{Name: "Lunch", Type: "meal", Participants: []ExtractedParticipant{{Name: "Alice", Type: "person"}}}}
	second := []ExtractedEvent{{Name: "Coffee", Type: "meal", Participants: []ExtractedParticipant{{Name: "alice", Type: "person"}}}}

	_, err := ex.Persist(ctx, first, extractionTime)
	assert.NoError(t, err)
	_, err = ex.Persist(ctx, second, extractionTime.Add(time.Hour))
	assert.NoError(t, err)

	nodes, err := store.Nodes(ctx, graph.NodeFilter{})
	assert.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestPersistSkipsNamelessEvents(t *testing.T) {
	store := graph.NewMemStore()
	ex := NewExtractor(&MockLLMClient{}, store, config.ExtractionPrompts{})

	saved, err := ex.Persist(context.Background(), []ExtractedEvent{{Name: "  "}}, extractionTime)
	assert.NoError(t, err)
	assert.Empty(t, saved)
}
