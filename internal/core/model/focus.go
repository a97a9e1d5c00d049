package model

import "time"

// FocusType classifies what kind of personal relevance a focus point tracks.
type FocusType string

const (
	FocusPersonalHistory  FocusType = "personal_history"
	FocusRelationship     FocusType = "relationship"
	FocusPreference       FocusType = "preference"
	FocusGoalTracking     FocusType = "goal_tracking"
	FocusBehaviorPattern  FocusType = "behavior_pattern"
	FocusEmotionalContext FocusType = "emotional_context"
	FocusTemporalContext  FocusType = "temporal_context"
)

// AllFocusTypes lists the seven focus types in a stable order.
var AllFocusTypes = []FocusType{
	FocusPersonalHistory,
	FocusRelationship,
	FocusPreference,
	FocusGoalTracking,
	FocusBehaviorPattern,
	FocusEmotionalContext,
	FocusTemporalContext,
}

// FocusPoint is a topic of sustained personal relevance. Intensity stays in
// [0,1], decays over time absent reinforcement, and the point is pruned once
// it falls below the tracker's minimum threshold.
type FocusPoint struct {
	Description    string              `json:"description"`
	Type           FocusType           `json:"type"`
	Intensity      float64             `json:"intensity"`
	Keywords       map[string]struct{} `json:"-"`
	LastReinforced time.Time           `json:"last_reinforced"`
}

// KeywordList returns the keyword set as a slice for serialization.
func (f *FocusPoint) KeywordList() []string {
	out := make([]string, 0, len(f.Keywords))
	for k := range f.Keywords {
		out = append(out, k)
	}
	return out
}
