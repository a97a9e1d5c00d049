package cluster

import (
	"context"

	"github.com/agenthands/recall/internal/core/embed"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/graph"
)

// Quality score bands for interpreting the composite metric.
const (
	QualityGood       = 0.8
	QualityAcceptable = 0.6
)

// GetClusteringQualityMetrics computes cohesion and separation metrics over
// the current cluster assignments. The composite score weights intra-cluster
// cohesion highest, then inter-cluster separation, then outlier prevalence.
func (e *Engine) GetClusteringQualityMetrics(ctx context.Context) (*model.QualityMetrics, error) {
	clusters, err := e.store.Clusters(ctx)
	if err != nil {
		return nil, err
	}

	m := &model.QualityMetrics{TotalClusters: len(clusters)}
	if len(clusters) == 0 {
		return m, nil
	}

	var intraSum float64
	var intraCount int
	var sizeSum int
	var outliers int

	centroids := make([][]float32, 0, len(clusters))
	for _, c := range clusters {
		members, err := e.store.Events(ctx, graph.EventFilter{ClusterID: c.ID})
		if err != nil {
			return nil, err
		}
		centroid := c.Centroid
		if len(centroid) == 0 {
			centroid = centroidFromEvents(members)
		}
		if len(centroid) > 0 {
			centroids = append(centroids, centroid)
		}

		sizeSum += len(members)
		for _, ev := range members {
			if !ev.HasEmbedding() {
				continue
			}
			sim := embed.Cosine(ev.Embedding, centroid)
			intraSum += sim
			intraCount++
			if sim < e.opts.OutlierThreshold {
				outliers++
			}
		}
	}

	if intraCount > 0 {
		m.AvgIntraSimilarity = intraSum / float64(intraCount)
		m.OutlierRatio = float64(outliers) / float64(intraCount)
	}
	m.AvgClusterSize = float64(sizeSum) / float64(len(clusters))

	// Separation: mean pairwise centroid distance, as 1 - cosine.
	var interSum float64
	var interCount int
	for i := 0; i < len(centroids); i++ {
		for j := i + 1; j < len(centroids); j++ {
			interSum += 1 - embed.Cosine(centroids[i], centroids[j])
			interCount++
		}
	}
	if interCount > 0 {
		m.AvgInterDistance = interSum / float64(interCount)
	}

	m.QualityScore = clamp01(0.5*m.AvgIntraSimilarity + 0.3*m.AvgInterDistance + 0.2*(1-m.OutlierRatio))
	return m, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
