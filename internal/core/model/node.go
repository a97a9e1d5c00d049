package model

import "time"

// Node is an entity in the personal knowledge graph: a person, location,
// tool, concept or any other free-form typed thing mentioned in conversation.
type Node struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Aliases     []string          `json:"aliases,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
}

// EventNode is a structured event extracted from conversation text.
// Embedding is the joint semantic vector over name+description+context,
// generated lazily or in bulk. ClusterID is a weak back-reference owned by
// the clustering engine; nobody else assigns or clears it.
type EventNode struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Purpose     string     `json:"purpose,omitempty"`
	Result      string     `json:"result,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	Embedding   []float32  `json:"embedding,omitempty"`
	ClusterID   string     `json:"cluster_id,omitempty"`
}

// HasEmbedding reports whether the event carries a usable joint embedding.
func (e *EventNode) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// ClusterNode groups semantically related events. It owns the one-to-many
// relation to EventNode via EventNode.ClusterID and is destroyed/recreated
// wholesale by full reclustering or clear-all.
type ClusterNode struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	MemberCount       int        `json:"member_count"`
	EarliestEventTime *time.Time `json:"earliest_event_time,omitempty"`
	LatestEventTime   *time.Time `json:"latest_event_time,omitempty"`
	Centroid          []float32  `json:"centroid,omitempty"`
}
