package model

import (
	"encoding/json"
	"time"
)

// IntegrityReport is the outcome of a graph integrity scan. Violations are
// reported, never auto-fixed; repair is a separate explicit operation.
type IntegrityReport struct {
	OrphanedNodes     []string `json:"orphaned_nodes"`
	DuplicateEdges    []string `json:"duplicate_edges"`
	InvalidReferences []string `json:"invalid_references"`
}

// Clean reports whether the scan found no violations.
func (r *IntegrityReport) Clean() bool {
	return len(r.OrphanedNodes) == 0 && len(r.DuplicateEdges) == 0 && len(r.InvalidReferences) == 0
}

// ImportProblem records a single skipped record during bulk import.
type ImportProblem struct {
	Reason     string          `json:"reason"`
	OriginalID string          `json:"original_id"`
	RawRecord  json.RawMessage `json:"raw_record"`
}

// ImportResult summarizes a bulk import run. Problems accumulate per record;
// the run itself keeps going.
type ImportResult struct {
	EventsImported    int             `json:"events_imported"`
	NodesImported     int             `json:"nodes_imported"`
	RelationsImported int             `json:"relations_imported"`
	Problems          []ImportProblem `json:"problems,omitempty"`
}

// EmbeddingProblem records a per-event embedding failure. The event stays
// without an embedding and is excluded from search and clustering.
type EmbeddingProblem struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// EmbeddingRunResult summarizes a bulk embedding generation pass.
type EmbeddingRunResult struct {
	Generated int                `json:"generated"`
	Skipped   int                `json:"skipped"`
	Problems  []EmbeddingProblem `json:"problems,omitempty"`
}

// ClusterInitResult is returned by a full two-stage recluster from scratch.
type ClusterInitResult struct {
	Stage1Clusters  int     `json:"stage1_clusters"`
	Stage2Clusters  int     `json:"stage2_clusters"`
	EventsProcessed int     `json:"events_processed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// OrganizeResult is returned by incremental clustering of unclustered events.
type OrganizeResult struct {
	ClustersCreated int     `json:"clusters_created"`
	EventsProcessed int     `json:"events_processed"`
	EventsClustered int     `json:"events_clustered"`
	AvgClusterSize  float64 `json:"avg_cluster_size,omitempty"`
	AvgSimilarity   float64 `json:"avg_similarity,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// DateRangeResult is returned by date-range restricted clustering.
type DateRangeResult struct {
	EventsProcessed int     `json:"events_processed"`
	MergedEvents    int     `json:"merged_events"`
	NewClusters     int     `json:"new_clusters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// OutlierResult is returned by outlier detection and reassignment.
type OutlierResult struct {
	OutliersDetected int `json:"outliers_detected"`
	Reassigned       int `json:"reassigned"`
	NewSingletons    int `json:"new_singletons"`
}

// ClearResult is returned by the irreversible clear-all-clusters operation.
type ClearResult struct {
	ClustersRemoved int `json:"clusters_removed"`
	EventsCleared   int `json:"events_cleared"`
	MetaRemoved     int `json:"meta_removed"`
}

// QualityMetrics describes clustering quality. QualityScore is a composite
// in [0,1]; >=0.8 reads as good, >=0.6 acceptable, below as poor.
type QualityMetrics struct {
	TotalClusters      int     `json:"total_clusters"`
	AvgIntraSimilarity float64 `json:"avg_intra_similarity"`
	AvgClusterSize     float64 `json:"avg_cluster_size"`
	OutlierRatio       float64 `json:"outlier_ratio"`
	AvgInterDistance   float64 `json:"avg_inter_distance"`
	QualityScore       float64 `json:"quality_score"`
}

// EventMatch pairs an event with its similarity to a search query.
type EventMatch struct {
	Event      EventNode `json:"event"`
	Similarity float64   `json:"similarity"`
}

// PersonalInfoBundle is the aggregate handed to the prompt-building layer
// before the next generation call.
type PersonalInfoBundle struct {
	FocusContexts          []string              `json:"focus_contexts"`
	RetrievalContexts      []string              `json:"retrieval_contexts"`
	PersonalNodes          []Node                `json:"personal_nodes"`
	UserEvents             []EventNode           `json:"user_events"`
	UserRelationships      []EventEntityRelation `json:"user_relationships"`
	TotalPersonalInfoItems int                   `json:"total_personal_info_items"`
	ActiveFocusesCount     int                   `json:"active_focuses_count"`
}

// TimeRange bounds a date-range operation. Zero values are open ends.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}
