// Package cluster implements two-stage semantic clustering of event nodes:
// greedy similarity-threshold agglomeration followed by centroid
// consolidation, plus quality metrics and outlier reassignment.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/embed"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/metrics"
	"github.com/agenthands/recall/internal/progress"
)

// ErrNoEvents is the engine-level failure when a clustering run finds
// nothing to work on.
var ErrNoEvents = errors.New("cluster: no embedded events to cluster")

type Options struct {
	// Stage1Threshold (T1) gates the greedy agglomeration of events;
	// Stage2Threshold (T2) gates centroid consolidation of stage-1
	// clusters and is typically lower.
	Stage1Threshold float64
	Stage2Threshold float64
	// OutlierThreshold marks members whose centroid similarity falls
	// below it; JoinThreshold is the bar for joining another cluster.
	OutlierThreshold float64
	JoinThreshold    float64
}

// Engine runs clustering over the event graph. One run at a time; reads of
// committed state stay available while a run is in flight.
type Engine struct {
	store graph.Store
	index *embed.Index

	opts       Options
	summarizer *Summarizer
	met        *metrics.Metrics
	log        *zap.Logger

	runMu sync.Mutex
}

func NewEngine(store graph.Store, index *embed.Index, opts Options, met *metrics.Metrics, log *zap.Logger) *Engine {
	if opts.Stage1Threshold <= 0 {
		opts.Stage1Threshold = 0.85
	}
	if opts.Stage2Threshold <= 0 {
		opts.Stage2Threshold = 0.70
	}
	if opts.OutlierThreshold <= 0 {
		opts.OutlierThreshold = 0.55
	}
	if opts.JoinThreshold <= 0 {
		opts.JoinThreshold = 0.60
	}
	if met == nil {
		met = metrics.NewNop()
	}
	return &Engine{store: store, index: index, opts: opts, met: met, log: log}
}

// SetSummarizer enables LLM naming of new clusters. Without it names come
// from member event names.
func (e *Engine) SetSummarizer(s *Summarizer) { e.summarizer = s }

// ClusterInitAll rebuilds everything from scratch: discards prior cluster
// assignments, regenerates joint embeddings, then clusters in two stages.
// Every event embedded at run start ends with a cluster assignment
// (singletons included); events whose embedding fails are left unclustered
// and reported by the embedding run.
func (e *Engine) ClusterInitAll(ctx context.Context, sink progress.Sink) (*model.ClusterInitResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	e.met.ClusteringRuns.WithLabelValues("init_all").Inc()

	progress.Publish(sink, "init", "clearing existing clusters", 0, 0)
	if _, _, err := e.store.DeleteAllClusters(ctx); err != nil {
		return nil, fmt.Errorf("clear clusters: %w", err)
	}

	progress.Publish(sink, "init", "regenerating joint embeddings", 0, 0)
	if _, err := e.index.GenerateForAll(ctx, true, sink); err != nil {
		return nil, fmt.Errorf("regenerate embeddings: %w", err)
	}

	members, err := e.loadMembers(ctx, graph.EventFilter{})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNoEvents
	}

	progress.Publish(sink, "stage1", fmt.Sprintf("agglomerating %d events", len(members)), 0, len(members))
	stage1 := agglomerate(members, e.opts.Stage1Threshold)
	progress.Publish(sink, "stage1", fmt.Sprintf("%d provisional clusters", len(stage1)), len(members), len(members))

	progress.Publish(sink, "stage2", "consolidating stage-1 clusters", 0, len(stage1))
	stage2 := consolidate(stage1, e.opts.Stage2Threshold)
	progress.Publish(sink, "stage2", fmt.Sprintf("%d final clusters", len(stage2)), len(stage1), len(stage1))

	if err := e.commitGroups(ctx, stage2); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.met.ClusteringDuration.Observe(elapsed.Seconds())
	e.log.Info("full recluster finished",
		zap.Int("events", len(members)),
		zap.Int("stage1", len(stage1)),
		zap.Int("stage2", len(stage2)),
		zap.Duration("took", elapsed))

	return &model.ClusterInitResult{
		Stage1Clusters:  len(stage1),
		Stage2Clusters:  len(stage2),
		EventsProcessed: len(members),
		DurationSeconds: elapsed.Seconds(),
	}, nil
}

// OrganizeGraph opportunistically clusters events that have no assignment
// yet. Each unclustered event first tries to join an existing cluster
// above the join threshold; the leftovers are agglomerated among
// themselves (two-stage when requested). With forceRecluster it behaves
// like ClusterInitAll but without regenerating existing embeddings.
func (e *Engine) OrganizeGraph(ctx context.Context, forceRecluster, useTwoStage bool, sink progress.Sink) (*model.OrganizeResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	e.met.ClusteringRuns.WithLabelValues("organize").Inc()

	if _, err := e.index.GenerateForAll(ctx, false, sink); err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}

	filter := graph.EventFilter{Unclustered: true}
	if forceRecluster {
		if _, _, err := e.store.DeleteAllClusters(ctx); err != nil {
			return nil, fmt.Errorf("clear clusters: %w", err)
		}
		filter = graph.EventFilter{}
	}

	members, err := e.loadMembers(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &model.OrganizeResult{EventsProcessed: len(members)}
	if len(members) == 0 {
		result.DurationSeconds = time.Since(start).Seconds()
		return result, nil
	}

	clusters, err := e.store.Clusters(ctx)
	if err != nil {
		return nil, err
	}

	var leftovers []member
	joined := make(map[string][]member)
	for _, m := range members {
		if id, ok := e.nearestCluster(clusters, m.vec, e.opts.JoinThreshold, ""); ok {
			joined[id] = append(joined[id], m)
			result.EventsClustered++
			continue
		}
		leftovers = append(leftovers, m)
	}

	for clusterID, newMembers := range joined {
		for _, m := range newMembers {
			if err := e.store.SetEventCluster(ctx, m.id, clusterID); err != nil {
				e.log.Warn("failed to assign event", zap.String("event", m.id), zap.Error(err))
			}
		}
		if err := e.refreshCluster(ctx, clusterID); err != nil {
			e.log.Warn("failed to refresh cluster", zap.String("cluster", clusterID), zap.Error(err))
		}
	}

	if len(leftovers) > 0 {
		progress.Publish(sink, "stage1", fmt.Sprintf("agglomerating %d unclustered events", len(leftovers)), 0, len(leftovers))
		groups := agglomerate(leftovers, e.opts.Stage1Threshold)
		if useTwoStage {
			progress.Publish(sink, "stage2", "consolidating", 0, len(groups))
			groups = consolidate(groups, e.opts.Stage2Threshold)
		}
		if err := e.commitGroups(ctx, groups); err != nil {
			return nil, err
		}
		result.ClustersCreated = len(groups)
		for _, g := range groups {
			result.EventsClustered += len(g.members)
		}

		var sizeSum, simSum float64
		var simCount int
		for _, g := range groups {
			sizeSum += float64(len(g.members))
			for _, m := range g.members {
				simSum += embed.Cosine(m.vec, g.centroid)
				simCount++
			}
		}
		result.AvgClusterSize = sizeSum / float64(len(groups))
		if simCount > 0 {
			result.AvgSimilarity = simSum / float64(simCount)
		}
	}

	elapsed := time.Since(start)
	e.met.ClusteringDuration.Observe(elapsed.Seconds())
	result.DurationSeconds = elapsed.Seconds()
	return result, nil
}

// ClusterByDateRange restricts clustering input to events whose start time
// falls in the range. Events may merge into existing clusters or form new
// ones; a previously clustered event is re-evaluated but never dropped —
// after the run it belongs to exactly one cluster, possibly the one it
// already had.
func (e *Engine) ClusterByDateRange(ctx context.Context, rng model.TimeRange, sink progress.Sink) (*model.DateRangeResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	e.met.ClusteringRuns.WithLabelValues("date_range").Inc()

	if _, err := e.index.GenerateForAll(ctx, false, sink); err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}

	events, err := e.store.Events(ctx, graph.EventFilter{Range: rng})
	if err != nil {
		return nil, err
	}

	result := &model.DateRangeResult{}
	previous := make(map[string]string)
	var members []member
	for _, ev := range events {
		if !ev.HasEmbedding() {
			continue
		}
		previous[ev.ID] = ev.ClusterID
		members = append(members, member{id: ev.ID, vec: ev.Embedding})
	}
	result.EventsProcessed = len(members)
	if len(members) == 0 {
		result.DurationSeconds = time.Since(start).Seconds()
		return result, nil
	}

	clusters, err := e.store.Clusters(ctx)
	if err != nil {
		return nil, err
	}

	var leftovers []member
	touched := make(map[string]struct{})
	for i, m := range members {
		progress.Publish(sink, "date_range", fmt.Sprintf("evaluating event %s", m.id), i+1, len(members))

		if id, ok := e.nearestCluster(clusters, m.vec, e.opts.JoinThreshold, ""); ok {
			if previous[m.id] != id {
				if err := e.store.SetEventCluster(ctx, m.id, id); err != nil {
					e.log.Warn("failed to reassign event", zap.String("event", m.id), zap.Error(err))
					continue
				}
				result.MergedEvents++
				touched[id] = struct{}{}
				if prev := previous[m.id]; prev != "" {
					touched[prev] = struct{}{}
				}
			}
			continue
		}
		if previous[m.id] != "" {
			// No better home; the event keeps its cluster.
			continue
		}
		leftovers = append(leftovers, m)
	}

	if len(leftovers) > 0 {
		groups := consolidate(agglomerate(leftovers, e.opts.Stage1Threshold), e.opts.Stage2Threshold)
		if err := e.commitGroups(ctx, groups); err != nil {
			return nil, err
		}
		result.NewClusters = len(groups)
	}

	for clusterID := range touched {
		if err := e.refreshCluster(ctx, clusterID); err != nil {
			e.log.Warn("failed to refresh cluster", zap.String("cluster", clusterID), zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	e.met.ClusteringDuration.Observe(elapsed.Seconds())
	result.DurationSeconds = elapsed.Seconds()
	return result, nil
}

// DetectAndReassignOutliers scans every cluster for members whose
// similarity to the centroid falls below the outlier threshold. Each
// outlier moves to the nearest other cluster above the join threshold, or
// becomes unclustered when none qualifies.
func (e *Engine) DetectAndReassignOutliers(ctx context.Context, sink progress.Sink) (*model.OutlierResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.met.ClusteringRuns.WithLabelValues("outliers").Inc()

	clusters, err := e.store.Clusters(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.OutlierResult{}
	touched := make(map[string]struct{})

	for i, c := range clusters {
		progress.Publish(sink, "outliers", fmt.Sprintf("scanning cluster %s", c.ID), i+1, len(clusters))

		members, err := e.store.Events(ctx, graph.EventFilter{ClusterID: c.ID})
		if err != nil {
			return nil, err
		}
		centroid := c.Centroid
		if len(centroid) == 0 {
			centroid = centroidFromEvents(members)
		}

		for _, ev := range members {
			if !ev.HasEmbedding() {
				continue
			}
			if embed.Cosine(ev.Embedding, centroid) >= e.opts.OutlierThreshold {
				continue
			}
			result.OutliersDetected++

			if target, ok := e.nearestCluster(clusters, ev.Embedding, e.opts.JoinThreshold, c.ID); ok {
				if err := e.store.SetEventCluster(ctx, ev.ID, target); err != nil {
					e.log.Warn("failed to reassign outlier", zap.String("event", ev.ID), zap.Error(err))
					continue
				}
				result.Reassigned++
				touched[target] = struct{}{}
				touched[c.ID] = struct{}{}
				continue
			}

			if err := e.store.SetEventCluster(ctx, ev.ID, ""); err != nil {
				e.log.Warn("failed to unassign outlier", zap.String("event", ev.ID), zap.Error(err))
				continue
			}
			result.NewSingletons++
			touched[c.ID] = struct{}{}
		}
	}

	for clusterID := range touched {
		if err := e.refreshCluster(ctx, clusterID); err != nil {
			e.log.Warn("failed to refresh cluster", zap.String("cluster", clusterID), zap.Error(err))
		}
	}

	return result, nil
}

// ClearAllClusters irreversibly removes every cluster node and clears all
// event back-references.
func (e *Engine) ClearAllClusters(ctx context.Context, sink progress.Sink) (*model.ClearResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	progress.Publish(sink, "clear", "removing all clusters", 0, 0)
	removed, cleared, err := e.store.DeleteAllClusters(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info("cleared all clusters", zap.Int("removed", removed), zap.Int("events_cleared", cleared))
	return &model.ClearResult{
		ClustersRemoved: removed,
		EventsCleared:   cleared,
		MetaRemoved:     removed,
	}, nil
}

// GetAllClusters lists every cluster node.
func (e *Engine) GetAllClusters(ctx context.Context) ([]model.ClusterNode, error) {
	return e.store.Clusters(ctx)
}

// GetClusterMembers lists the events assigned to one cluster.
func (e *Engine) GetClusterMembers(ctx context.Context, clusterID string) ([]model.EventNode, error) {
	return e.store.Events(ctx, graph.EventFilter{ClusterID: clusterID})
}

func (e *Engine) loadMembers(ctx context.Context, filter graph.EventFilter) ([]member, error) {
	events, err := e.store.Events(ctx, filter)
	if err != nil {
		return nil, err
	}
	var members []member
	for _, ev := range events {
		if !ev.HasEmbedding() {
			continue
		}
		members = append(members, member{id: ev.ID, vec: ev.Embedding})
	}
	return members, nil
}

// nearestCluster finds the cluster whose centroid is most similar to vec,
// excluding one id, requiring at least the given threshold.
func (e *Engine) nearestCluster(clusters []model.ClusterNode, vec []float32, threshold float64, exclude string) (string, bool) {
	bestID := ""
	bestSim := threshold
	for _, c := range clusters {
		if c.ID == exclude || len(c.Centroid) == 0 {
			continue
		}
		sim := embed.Cosine(vec, c.Centroid)
		if sim > bestSim || (bestID == "" && sim == threshold) {
			bestSim = sim
			bestID = c.ID
		}
	}
	return bestID, bestID != ""
}

// commitGroups persists computed groups as cluster nodes and assigns
// members. Assignments commit per event; an event whose assignment fails
// keeps its last-known-good cluster id.
func (e *Engine) commitGroups(ctx context.Context, groups []*group) error {
	for _, g := range groups {
		node, err := e.buildClusterNode(ctx, g)
		if err != nil {
			return err
		}
		saved, err := e.store.UpsertCluster(ctx, node)
		if err != nil {
			return fmt.Errorf("save cluster: %w", err)
		}
		for _, m := range g.members {
			if err := e.store.SetEventCluster(ctx, m.id, saved.ID); err != nil {
				e.log.Warn("failed to assign event to cluster",
					zap.String("event", m.id), zap.String("cluster", saved.ID), zap.Error(err))
			}
		}
	}
	return nil
}

func (e *Engine) buildClusterNode(ctx context.Context, g *group) (*model.ClusterNode, error) {
	node := &model.ClusterNode{
		ID:          uuid.New().String(),
		MemberCount: len(g.members),
		Centroid:    g.centroid,
	}

	var names []string
	var events []model.EventNode
	for _, m := range g.members {
		ev, err := e.store.EventByID(ctx, m.id)
		if err != nil {
			continue
		}
		names = append(names, ev.Name)
		events = append(events, *ev)
		if ev.StartTime != nil {
			if node.EarliestEventTime == nil || ev.StartTime.Before(*node.EarliestEventTime) {
				t := *ev.StartTime
				node.EarliestEventTime = &t
			}
			if node.LatestEventTime == nil || ev.StartTime.After(*node.LatestEventTime) {
				t := *ev.StartTime
				node.LatestEventTime = &t
			}
		}
	}

	sort.Strings(names)
	node.Name = clusterName(names)
	node.Description = clusterDescription(names)

	if e.summarizer != nil && len(events) > 1 {
		name, description, err := e.summarizer.SummarizeCluster(ctx, events)
		if err != nil {
			e.log.Warn("cluster summary failed, keeping mechanical name", zap.Error(err))
		} else if name != "" {
			node.Name = name
			node.Description = description
		}
	}
	return node, nil
}

// refreshCluster recomputes member count, centroid and time bounds from
// current membership, deleting the cluster when it has emptied.
func (e *Engine) refreshCluster(ctx context.Context, clusterID string) error {
	members, err := e.store.Events(ctx, graph.EventFilter{ClusterID: clusterID})
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return e.store.DeleteCluster(ctx, clusterID)
	}

	clusters, err := e.store.Clusters(ctx)
	if err != nil {
		return err
	}
	var node *model.ClusterNode
	for i := range clusters {
		if clusters[i].ID == clusterID {
			node = &clusters[i]
			break
		}
	}
	if node == nil {
		return graph.ErrNotFound
	}

	node.MemberCount = len(members)
	node.Centroid = centroidFromEvents(members)
	node.EarliestEventTime, node.LatestEventTime = nil, nil
	for _, ev := range members {
		if ev.StartTime == nil {
			continue
		}
		if node.EarliestEventTime == nil || ev.StartTime.Before(*node.EarliestEventTime) {
			t := *ev.StartTime
			node.EarliestEventTime = &t
		}
		if node.LatestEventTime == nil || ev.StartTime.After(*node.LatestEventTime) {
			t := *ev.StartTime
			node.LatestEventTime = &t
		}
	}

	_, err = e.store.UpsertCluster(ctx, node)
	return err
}

func centroidFromEvents(events []model.EventNode) []float32 {
	var vectors [][]float32
	for _, ev := range events {
		if ev.HasEmbedding() {
			vectors = append(vectors, ev.Embedding)
		}
	}
	return centroidOfVectors(vectors)
}

func clusterName(names []string) string {
	if len(names) == 0 {
		return "cluster"
	}
	if len(names) == 1 {
		return names[0]
	}
	return fmt.Sprintf("%s (+%d related)", names[0], len(names)-1)
}

func clusterDescription(names []string) string {
	show := names
	if len(show) > 5 {
		show = show[:5]
	}
	desc := ""
	for i, n := range show {
		if i > 0 {
			desc += ", "
		}
		desc += n
	}
	if len(names) > len(show) {
		desc += fmt.Sprintf(" and %d more", len(names)-len(show))
	}
	return desc
}
