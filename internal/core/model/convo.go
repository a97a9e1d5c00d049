package model

import "time"

// DialogueState is the coarse phase of the current conversation.
type DialogueState string

const (
	DialogueIdle       DialogueState = "idle"
	DialogueGreeting   DialogueState = "greeting"
	DialogueEngaged    DialogueState = "engaged"
	DialogueTaskDriven DialogueState = "task_driven"
	DialogueClosing    DialogueState = "closing"
)

// ConversationContext is the live dialogue state consumed by the cache and
// focus tracker. It is mutated on every processed utterance and reset when a
// session boundary (configurable idle gap) is detected.
type ConversationContext struct {
	State          DialogueState      `json:"state"`
	PrimaryIntent  string             `json:"primary_intent,omitempty"`
	UserEmotion    string             `json:"user_emotion,omitempty"`
	StartTime      time.Time          `json:"start_time"`
	CurrentTopics  []string           `json:"current_topics,omitempty"`
	Participants   []string           `json:"participants,omitempty"`
	TopicIntensity map[string]float64 `json:"topic_intensity,omitempty"`
	UnfinishedTasks []string          `json:"unfinished_tasks,omitempty"`
}
