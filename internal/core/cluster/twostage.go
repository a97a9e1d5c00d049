package cluster

import (
	"github.com/agenthands/recall/internal/core/embed"
)

// member is one event entering clustering, reduced to its id and joint
// embedding.
type member struct {
	id  string
	vec []float32
}

// group is a provisional cluster with a running centroid.
type group struct {
	members  []member
	centroid []float32
}

func newGroup(m member) *group {
	centroid := make([]float32, len(m.vec))
	copy(centroid, m.vec)
	return &group{members: []member{m}, centroid: centroid}
}

// agglomerate is stage 1: greedy similarity-threshold agglomeration.
// Every event starts as its own group, then the most-similar pair of
// groups merges while their centroid similarity stays at or above the
// threshold. Biased toward tight small clusters; singletons with no
// partner above the threshold survive as one-member groups.
func agglomerate(members []member, threshold float64) []*group {
	groups := make([]*group, 0, len(members))
	for _, m := range members {
		groups = append(groups, newGroup(m))
	}
	return mergeWhileAbove(groups, threshold)
}

// consolidate is stage 2: merge stage-1 clusters whose centroids exceed a
// second, typically lower, threshold. Reduces fragmentation while the
// threshold bounds intra-cluster dispersion.
func consolidate(groups []*group, threshold float64) []*group {
	return mergeWhileAbove(groups, threshold)
}

// mergeWhileAbove repeatedly merges the most-similar pair of groups until
// no pair reaches the threshold. Deterministic: on ties the earliest pair
// in iteration order wins.
func mergeWhileAbove(groups []*group, threshold float64) []*group {
	for len(groups) > 1 {
		bestI, bestJ := -1, -1
		bestSim := -2.0
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				sim := embed.Cosine(groups[i].centroid, groups[j].centroid)
				if sim > bestSim {
					bestSim = sim
					bestI, bestJ = i, j
				}
			}
		}
		if bestI == -1 || bestSim < threshold {
			break
		}
		groups[bestI] = merge(groups[bestI], groups[bestJ])
		groups = append(groups[:bestJ], groups[bestJ+1:]...)
	}
	return groups
}

func merge(a, b *group) *group {
	merged := &group{members: append(append([]member(nil), a.members...), b.members...)}
	merged.centroid = centroidOf(merged.members)
	return merged
}

// centroidOf averages member vectors component-wise. Vectors of unequal
// length are skipped against the first member's dimensionality.
func centroidOf(members []member) []float32 {
	if len(members) == 0 {
		return nil
	}
	dim := len(members[0].vec)
	sum := make([]float64, dim)
	count := 0
	for _, m := range members {
		if len(m.vec) != dim {
			continue
		}
		for i, v := range m.vec {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(count))
	}
	return out
}

// centroidOfVectors averages raw vectors; used when refreshing a stored
// cluster from its members.
func centroidOfVectors(vectors [][]float32) []float32 {
	members := make([]member, 0, len(vectors))
	for _, v := range vectors {
		members = append(members, member{vec: v})
	}
	return centroidOf(members)
}
