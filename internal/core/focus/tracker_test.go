package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
)

func newTestTracker() (*Tracker, *time.Time) {
	t := NewTracker(Options{
		ReinforcementStep: 0.2,
		SeedIntensity:     0.4,
		DecayFactor:       0.95,
		MinIntensity:      0.1,
		MaxFocuses:        50,
	}, zap.NewNop())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t.SetClock(func() time.Time { return clock })
	return t, &clock
}

func TestObserveSeedsFocusPoint(t *testing.T) {
	tr, _ := newTestTracker()

	points := tr.Observe("my favorite restaurant is the ramen place downtown", nil)
	assert.Len(t, points, 1)
	assert.Equal(t, model.FocusPreference, points[0].Type)
	assert.InDelta(t, 0.4, points[0].Intensity, 1e-9)
}

func TestObserveReinforcesOverlappingKeywords(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Observe("my favorite restaurant is the ramen place", nil)
	points := tr.Observe("i love that ramen restaurant so much", nil)

	assert.Len(t, points, 1)
	assert.InDelta(t, 0.6, points[0].Intensity, 1e-9)
}

func TestReinforcementCapsAtOne(t *testing.T) {
	tr, _ := newTestTracker()

	for i := 0; i < 10; i++ {
		tr.Observe("i love hiking in the mountains", nil)
	}
	points := tr.Active()
	assert.Len(t, points, 1)
	assert.InDelta(t, 1.0, points[0].Intensity, 1e-9)
}

func TestDistinctTopicsSeedSeparatePoints(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Observe("my favorite food is sushi", nil)
	points := tr.Observe("i love playing chess", nil)
	assert.Len(t, points, 2)
}

// Intensity only shrinks while a focus goes unreinforced.
func TestDecayMonotonic(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Observe("i love hiking in the mountains", nil)
	tr.Observe("i love hiking in the mountains", nil)
	start := tr.Active()[0].Intensity

	prev := start
	for h := 1; h <= 5; h++ {
		*clock = clock.Add(time.Hour)
		points := tr.Active()
		assert.Len(t, points, 1)
		assert.Less(t, points[0].Intensity, prev)
		prev = points[0].Intensity
	}
}

func TestDecayPrunesBelowMinIntensity(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Observe("my favorite season is autumn", nil)
	// 0.4 * 0.95^h < 0.1 after roughly 28 hours.
	*clock = clock.Add(48 * time.Hour)
	assert.Empty(t, tr.Active())
}

func TestReinforcementResetsDecayClock(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Observe("i love hiking in the mountains", nil)
	*clock = clock.Add(10 * time.Hour)
	tr.Observe("i love hiking in the mountains", nil)

	points := tr.Active()
	assert.Len(t, points, 1)
	// Decayed then reinforced: above the bare seed, below seed+step.
	assert.Greater(t, points[0].Intensity, 0.4)
	assert.Less(t, points[0].Intensity, 0.6)
}

func TestContextSignalsDriveClassification(t *testing.T) {
	tr, _ := newTestTracker()

	ctx := &model.ConversationContext{
		UserEmotion:     "frustrated",
		UnfinishedTasks: []string{"book flight tickets"},
	}
	points := tr.Observe("the project deliverable keeps slipping", ctx)

	types := make(map[model.FocusType]bool)
	for _, p := range points {
		types[p.Type] = true
	}
	assert.True(t, types[model.FocusEmotionalContext])
	assert.True(t, types[model.FocusGoalTracking])
}

func TestMaxFocusesBound(t *testing.T) {
	tr := NewTracker(Options{
		ReinforcementStep: 0.2,
		SeedIntensity:     0.4,
		DecayFactor:       0.95,
		MinIntensity:      0.1,
		MaxFocuses:        3,
	}, zap.NewNop())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return clock })

	utterances := []string{
		"my favorite color is blue",
		"i love jogging outside",
		"i prefer quiet cafes",
		"i enjoy baking bread",
		"i hate traffic jams",
	}
	for _, u := range utterances {
		tr.Observe(u, nil)
	}
	assert.LessOrEqual(t, len(tr.Active()), 3)
}

func TestSummaryFormat(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Observe("my favorite drink is oat milk latte", nil)
	lines := tr.Summary()
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[preference]")
	assert.Contains(t, lines[0], "intensity 0.40")
}

func TestSnapshotSortedByIntensity(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Observe("my favorite game is go", nil)
	tr.Observe("i always wake up at six every day", nil)
	tr.Observe("i always wake up at six every day", nil)

	points := tr.Active()
	assert.Len(t, points, 2)
	assert.Equal(t, model.FocusBehaviorPattern, points[0].Type)
	assert.GreaterOrEqual(t, points[0].Intensity, points[1].Intensity)
}
