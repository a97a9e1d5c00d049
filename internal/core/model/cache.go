package model

import (
	"encoding/json"
	"time"
)

// CacheCategory partitions the knowledge cache. Capacity is enforced per
// category, not globally.
type CacheCategory string

const (
	CategoryConversationGrasp   CacheCategory = "conversation_grasp"
	CategoryIntentUnderstanding CacheCategory = "intent_understanding"
	CategoryKnowledgeReserve    CacheCategory = "knowledge_reserve"
	CategoryPersonalInfo        CacheCategory = "personal_info"
	CategoryProactiveData       CacheCategory = "proactive_data"
)

// AllCategories lists every cache category in a stable order.
var AllCategories = []CacheCategory{
	CategoryConversationGrasp,
	CategoryIntentUnderstanding,
	CategoryKnowledgeReserve,
	CategoryPersonalInfo,
	CategoryProactiveData,
}

// Valid reports whether c is a known category.
func (c CacheCategory) Valid() bool {
	switch c {
	case CategoryConversationGrasp, CategoryIntentUnderstanding,
		CategoryKnowledgeReserve, CategoryPersonalInfo, CategoryProactiveData:
		return true
	}
	return false
}

// CachePriority orders eviction. UserProfile items are pinned: capacity
// pressure never evicts them.
type CachePriority int

const (
	PriorityLow CachePriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
	PriorityUserProfile
)

func (p CachePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	case PriorityUserProfile:
		return "user_profile"
	default:
		return "unknown"
	}
}

// PayloadKind tags the variant stored in a cache item.
type PayloadKind string

const (
	PayloadText       PayloadKind = "text"
	PayloadTopic      PayloadKind = "topic"
	PayloadIntent     PayloadKind = "intent"
	PayloadEmotion    PayloadKind = "emotion"
	PayloadStructured PayloadKind = "structured_json"
)

// Payload is the tagged union carried by a CacheItem. Exactly one field
// matching Kind is populated; consumers switch on Kind instead of runtime
// type inspection.
type Payload struct {
	Kind    PayloadKind     `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Intent  string          `json:"intent,omitempty"`
	Emotion string          `json:"emotion,omitempty"`
	JSON    json.RawMessage `json:"json,omitempty"`
}

// TextPayload wraps a free-text payload.
func TextPayload(s string) Payload { return Payload{Kind: PayloadText, Text: s} }

// TopicPayload wraps a topic payload.
func TopicPayload(s string) Payload { return Payload{Kind: PayloadTopic, Topic: s} }

// IntentPayload wraps an intent payload.
func IntentPayload(s string) Payload { return Payload{Kind: PayloadIntent, Intent: s} }

// EmotionPayload wraps an emotion payload.
func EmotionPayload(s string) Payload { return Payload{Kind: PayloadEmotion, Emotion: s} }

// StructuredPayload wraps raw structured JSON.
func StructuredPayload(raw json.RawMessage) Payload {
	return Payload{Kind: PayloadStructured, JSON: raw}
}

// CacheItem is one unit of inferred personal knowledge. Key is unique
// within its category.
type CacheItem struct {
	Key            string        `json:"key"`
	Category       CacheCategory `json:"category"`
	Priority       CachePriority `json:"priority"`
	Weight         float64       `json:"weight"`
	Data           Payload       `json:"data"`
	RelatedTopics  []string      `json:"related_topics,omitempty"`
	RelevanceScore float64       `json:"relevance_score"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	AccessCount    int           `json:"access_count"`
}

// CacheStats is the health snapshot surfaced to the UI layer.
type CacheStats struct {
	TotalItems       int                   `json:"total_items"`
	PerCategoryCount map[CacheCategory]int `json:"per_category_counts"`
	AverageWeight    float64               `json:"average_weight"`
	Utilization      float64               `json:"utilization"`
}
