// Package ingest turns raw input into graph records: LLM extraction of
// events and participants from utterances, and bulk import of exported
// JSON snapshots.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/core/common"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
)

const defaultEventsPrompt = `You extract life events from a user's chat message.

Return ONLY a JSON object of this shape:
{
  "extracted_events": [
    {
      "name": "short event name",
      "type": "activity|meeting|travel|meal|health|work|social|other",
      "description": "one sentence",
      "location": "where, or empty",
      "purpose": "why, or empty",
      "result": "outcome, or empty",
      "start_time": "RFC3339 timestamp, or empty when unknown",
      "participants": [
        {"name": "person or org", "type": "person|organization|place|other", "role": "participant|organizer|location|subject"}
      ]
    }
  ]
}

Current time: %s
Message: %s`

// ExtractedParticipant is an entity the LLM tied to an event, with the
// role it played.
type ExtractedParticipant struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Role string `json:"role"`
}

type ExtractedEvent struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Description  string                 `json:"description"`
	Location     string                 `json:"location"`
	Purpose      string                 `json:"purpose"`
	Result       string                 `json:"result"`
	StartTime    string                 `json:"start_time"`
	Participants []ExtractedParticipant `json:"participants"`
}

type extractedEvents struct {
	ExtractedEvents []ExtractedEvent `json:"extracted_events"`
}

// Extractor asks the LLM for structured events hidden in free text and
// writes them into the graph.
type Extractor struct {
	LLM     llm.LLMClient
	Store   graph.Store
	Prompts config.ExtractionPrompts
}

func NewExtractor(llmClient llm.LLMClient, store graph.Store, prompts config.ExtractionPrompts) *Extractor {
	return &Extractor{LLM: llmClient, Store: store, Prompts: prompts}
}

// ExtractEvents extracts event records from one utterance. Extraction
// failures are returned as errors; the caller decides whether the
// surrounding pipeline keeps going.
func (e *Extractor) ExtractEvents(ctx context.Context, content string, now time.Time) ([]ExtractedEvent, error) {
	tmpl := e.Prompts.Events
	if tmpl == "" {
		tmpl = defaultEventsPrompt
	}
	prompt := fmt.Sprintf(tmpl, now.Format(time.RFC3339), content)

	response, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate events: %w", err)
	}

	result, err := common.ParseJSON[extractedEvents](response)
	if err != nil {
		return nil, fmt.Errorf("failed to extract events: %w", err)
	}
	return result.ExtractedEvents, nil
}

// Persist writes extracted events, their participants and the connecting
// relations into the store. Participants are matched by exact name and
// type to avoid minting duplicate entities for recurring people.
func (e *Extractor) Persist(ctx context.Context, events []ExtractedEvent, now time.Time) ([]model.EventNode, error) {
	var saved []model.EventNode
	for _, ex := range events {
		if strings.TrimSpace(ex.Name) == "" {
			continue
		}
		ev := &model.EventNode{
			Name:        ex.Name,
			Type:        ex.Type,
			Description: ex.Description,
			Location:    ex.Location,
			Purpose:     ex.Purpose,
			Result:      ex.Result,
			LastUpdated: now,
		}
		if ex.StartTime != "" {
			if t, err := time.Parse(time.RFC3339, ex.StartTime); err == nil {
				ev.StartTime = &t
			}
		}
		storedEvent, err := e.Store.UpsertEvent(ctx, ev)
		if err != nil {
			return saved, fmt.Errorf("save event: %w", err)
		}
		saved = append(saved, *storedEvent)

		for _, p := range ex.Participants {
			if strings.TrimSpace(p.Name) == "" {
				continue
			}
			entity, err := e.findOrCreateEntity(ctx, p, now)
			if err != nil {
				return saved, err
			}
			role := p.Role
			if role == "" {
				role = "participant"
			}
			rel := &model.EventEntityRelation{
				EventID:   storedEvent.ID,
				EntityID:  entity.ID,
				Role:      role,
				CreatedAt: now,
			}
			if _, err := e.Store.UpsertRelation(ctx, rel); err != nil {
				return saved, fmt.Errorf("save relation: %w", err)
			}
		}
	}
	return saved, nil
}

func (e *Extractor) findOrCreateEntity(ctx context.Context, p ExtractedParticipant, now time.Time) (*model.Node, error) {
	existing, err := e.Store.Nodes(ctx, graph.NodeFilter{NameContains: p.Name})
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if strings.EqualFold(existing[i].Name, p.Name) {
			return &existing[i], nil
		}
	}
	return e.Store.UpsertNode(ctx, &model.Node{
		Name:        p.Name,
		Type:        p.Type,
		LastUpdated: now,
	})
}
