package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// vec returns the 2D unit vector at the given angle, so the cosine
// similarity of two vectors is the cosine of the angle between them.
func vec(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func TestAgglomerateMergesAboveThreshold(t *testing.T) {
	members := []member{
		{id: "a", vec: vec(0)},
		{id: "b", vec: vec(10)},
		{id: "far", vec: vec(90)},
	}

	groups := agglomerate(members, 0.85)
	assert.Len(t, groups, 2)

	sizes := map[int]int{}
	for _, g := range groups {
		sizes[len(g.members)]++
	}
	assert.Equal(t, 1, sizes[2])
	assert.Equal(t, 1, sizes[1])
}

func TestAgglomerateAllSingletonsBelowThreshold(t *testing.T) {
	members := []member{
		{id: "a", vec: vec(0)},
		{id: "b", vec: vec(60)},
		{id: "c", vec: vec(120)},
	}
	groups := agglomerate(members, 0.85)
	assert.Len(t, groups, 3)
}

// Every input member survives into exactly one output group.
func TestAgglomerateIsComplete(t *testing.T) {
	members := []member{
		{id: "a", vec: vec(0)},
		{id: "b", vec: vec(5)},
		{id: "c", vec: vec(12)},
		{id: "d", vec: vec(88)},
		{id: "e", vec: vec(92)},
		{id: "f", vec: vec(180)},
	}

	groups := agglomerate(members, 0.85)

	seen := map[string]int{}
	for _, g := range groups {
		for _, m := range g.members {
			seen[m.id]++
		}
	}
	assert.Len(t, seen, len(members))
	for id, count := range seen {
		assert.Equal(t, 1, count, "member %s", id)
	}
}

func TestConsolidateMergesFragments(t *testing.T) {
	// Two stage-1 fragments 35 degrees apart: below the stage-1 bar, above
	// the stage-2 bar.
	fragments := []*group{
		newGroup(member{id: "a", vec: vec(0)}),
		newGroup(member{id: "b", vec: vec(35)}),
	}
	assert.Len(t, consolidate(fragments, 0.85), 2)

	fragments = []*group{
		newGroup(member{id: "a", vec: vec(0)}),
		newGroup(member{id: "b", vec: vec(35)}),
	}
	assert.Len(t, consolidate(fragments, 0.70), 1)
}

func TestMergeRecomputesCentroid(t *testing.T) {
	merged := merge(newGroup(member{id: "a", vec: []float32{1, 0}}), newGroup(member{id: "b", vec: []float32{0, 1}}))
	assert.Len(t, merged.members, 2)
	assert.InDelta(t, 0.5, float64(merged.centroid[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(merged.centroid[1]), 1e-6)
}

func TestCentroidOfSkipsMismatchedDimensions(t *testing.T) {
	centroid := centroidOf([]member{
		{id: "a", vec: []float32{1, 0}},
		{id: "bad", vec: []float32{1}},
		{id: "b", vec: []float32{0, 2}},
	})
	assert.Equal(t, []float32{0.5, 1}, centroid)
}

func TestCentroidOfEmpty(t *testing.T) {
	assert.Nil(t, centroidOf(nil))
	assert.Nil(t, centroidOfVectors(nil))
}
