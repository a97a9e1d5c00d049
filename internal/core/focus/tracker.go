// Package focus maintains the rolling set of personal focus points: topics
// of sustained relevance with exponentially decaying intensity. The set is
// bounded and self-pruning, so relevance stays recency-weighted without
// unbounded growth.
package focus

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
)

type Options struct {
	ReinforcementStep float64
	SeedIntensity     float64
	// DecayFactor applies per elapsed hour since the last reinforcement.
	DecayFactor  float64
	MinIntensity float64
	MaxFocuses   int
}

// Tracker classifies utterances into the seven focus types and maintains
// the decaying active set.
type Tracker struct {
	mu     sync.Mutex
	points []*model.FocusPoint

	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewTracker(opts Options, log *zap.Logger) *Tracker {
	if opts.ReinforcementStep <= 0 {
		opts.ReinforcementStep = 0.2
	}
	if opts.SeedIntensity <= 0 {
		opts.SeedIntensity = 0.4
	}
	if opts.DecayFactor <= 0 || opts.DecayFactor >= 1 {
		opts.DecayFactor = 0.95
	}
	if opts.MinIntensity <= 0 {
		opts.MinIntensity = 0.1
	}
	if opts.MaxFocuses <= 0 {
		opts.MaxFocuses = 50
	}
	return &Tracker{opts: opts, log: log, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// typeSignals maps each focus type to trigger keywords looked for in the
// utterance.
var typeSignals = map[model.FocusType][]string{
	model.FocusPersonalHistory:  {"remember", "used to", "back then", "childhood", "when i was", "years ago", "last year"},
	model.FocusRelationship:     {"friend", "mother", "father", "wife", "husband", "partner", "colleague", "sister", "brother", "family"},
	model.FocusPreference:       {"favorite", "prefer", "love", "like", "hate", "dislike", "enjoy", "can't stand"},
	model.FocusGoalTracking:     {"goal", "plan", "want to", "going to", "aim", "target", "finish", "deadline", "working on"},
	model.FocusBehaviorPattern:  {"always", "usually", "every day", "every week", "habit", "routine", "tend to", "never"},
	model.FocusEmotionalContext: {"feel", "feeling", "stressed", "anxious", "happy", "sad", "excited", "worried", "frustrated"},
	model.FocusTemporalContext:  {"today", "tomorrow", "tonight", "this week", "next week", "weekend", "morning", "evening"},
}

// Observe classifies the utterance, reinforces or creates matching focus
// points, applies lazy decay, and returns the active set sorted by
// intensity descending.
func (t *Tracker) Observe(text string, ctx *model.ConversationContext) []model.FocusPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.decayLocked(now)

	lower := strings.ToLower(text)
	keywords := extractKeywords(lower)

	for _, ftype := range model.AllFocusTypes {
		if !matchesType(lower, ctx, ftype) {
			continue
		}
		t.reinforceOrCreateLocked(ftype, lower, keywords, now)
	}

	// Intent-driven topics also feed goal tracking even without trigger
	// words in the raw text.
	if ctx != nil && ctx.PrimaryIntent != "" && strings.Contains(ctx.PrimaryIntent, "task") {
		t.reinforceOrCreateLocked(model.FocusGoalTracking, lower, keywords, now)
	}

	t.enforceBoundLocked()
	return t.snapshotLocked()
}

// Summary returns one human-readable line per active focus point, applying
// lazy decay first.
func (t *Tracker) Summary() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.decayLocked(t.now().UTC())

	points := t.snapshotLocked()
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, fmt.Sprintf("[%s] %s (intensity %.2f)", p.Type, p.Description, p.Intensity))
	}
	return out
}

// Active returns the current set after lazy decay.
func (t *Tracker) Active() []model.FocusPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayLocked(t.now().UTC())
	return t.snapshotLocked()
}

// Decay applies decay as if the given wall-clock time had been reached.
func (t *Tracker) Decay(asOf time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayLocked(asOf.UTC())
}

func (t *Tracker) reinforceOrCreateLocked(ftype model.FocusType, text string, keywords map[string]struct{}, now time.Time) {
	// Same type with overlapping keywords reinforces; otherwise a new
	// point is seeded.
	for _, p := range t.points {
		if p.Type != ftype || !overlaps(p.Keywords, keywords) {
			continue
		}
		p.Intensity = math.Min(1.0, p.Intensity+t.opts.ReinforcementStep)
		p.LastReinforced = now
		for k := range keywords {
			p.Keywords[k] = struct{}{}
		}
		return
	}

	kw := make(map[string]struct{}, len(keywords))
	for k := range keywords {
		kw[k] = struct{}{}
	}
	t.points = append(t.points, &model.FocusPoint{
		Description:    describe(ftype, text),
		Type:           ftype,
		Intensity:      t.opts.SeedIntensity,
		Keywords:       kw,
		LastReinforced: now,
	})
	t.log.Debug("new focus point", zap.String("type", string(ftype)))
}

func (t *Tracker) decayLocked(now time.Time) {
	kept := t.points[:0]
	for _, p := range t.points {
		elapsed := now.Sub(p.LastReinforced)
		if elapsed > 0 {
			hours := elapsed.Hours()
			p.Intensity *= math.Pow(t.opts.DecayFactor, hours)
		}
		if p.Intensity >= t.opts.MinIntensity {
			kept = append(kept, p)
		}
	}
	t.points = kept
}

func (t *Tracker) enforceBoundLocked() {
	if len(t.points) <= t.opts.MaxFocuses {
		return
	}
	sort.Slice(t.points, func(i, j int) bool {
		return t.points[i].Intensity > t.points[j].Intensity
	})
	t.points = t.points[:t.opts.MaxFocuses]
}

func (t *Tracker) snapshotLocked() []model.FocusPoint {
	out := make([]model.FocusPoint, 0, len(t.points))
	for _, p := range t.points {
		cp := *p
		cp.Keywords = make(map[string]struct{}, len(p.Keywords))
		for k := range p.Keywords {
			cp.Keywords[k] = struct{}{}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Intensity != out[j].Intensity {
			return out[i].Intensity > out[j].Intensity
		}
		return out[i].Description < out[j].Description
	})
	return out
}

func matchesType(lower string, ctx *model.ConversationContext, ftype model.FocusType) bool {
	for _, signal := range typeSignals[ftype] {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	// Dialogue state supplies signals the raw text may lack.
	if ctx != nil {
		switch ftype {
		case model.FocusEmotionalContext:
			if ctx.UserEmotion != "" && ctx.UserEmotion != "neutral" {
				return true
			}
		case model.FocusGoalTracking:
			if len(ctx.UnfinishedTasks) > 0 {
				return true
			}
		}
	}
	return false
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {}, "have": {},
	"from": {}, "they": {}, "will": {}, "what": {}, "when": {}, "your": {},
	"about": {}, "would": {}, "there": {}, "their": {}, "been": {}, "were": {},
	"just": {}, "like": {}, "some": {}, "then": {}, "than": {}, "them": {},
	"really": {}, "want": {}, "going": {},
}

func extractKeywords(lower string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 4 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	for k := range b {
		if _, ok := a[k]; ok {
			return true
		}
	}
	return false
}

func describe(ftype model.FocusType, text string) string {
	excerpt := text
	if len(excerpt) > 80 {
		excerpt = excerpt[:80] + "..."
	}
	return fmt.Sprintf("%s: %s", strings.ReplaceAll(string(ftype), "_", " "), excerpt)
}
