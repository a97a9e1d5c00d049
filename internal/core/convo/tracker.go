// Package convo tracks live dialogue state: intent, emotion, topics and
// unfinished tasks, with session-boundary resets on idle gaps.
package convo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/common"
	"github.com/agenthands/recall/internal/core/model"
)

type Options struct {
	SessionGap time.Duration
	// TopicFade scales the intensity of topics not mentioned in the
	// current utterance.
	TopicFade float64
	MaxTopics int
}

// Tracker mutates one ConversationContext per utterance. Single writer;
// Current returns a copy safe for concurrent readers.
type Tracker struct {
	mu            sync.Mutex
	ctx           model.ConversationContext
	lastUtterance time.Time

	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewTracker(opts Options, log *zap.Logger) *Tracker {
	if opts.SessionGap <= 0 {
		opts.SessionGap = 30 * time.Minute
	}
	if opts.TopicFade <= 0 || opts.TopicFade >= 1 {
		opts.TopicFade = 0.8
	}
	if opts.MaxTopics <= 0 {
		opts.MaxTopics = 10
	}
	return &Tracker{
		ctx:  model.ConversationContext{State: model.DialogueIdle, TopicIntensity: map[string]float64{}},
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// ProcessUtterance folds one utterance into the dialogue state and returns
// the updated context. A gap longer than the session threshold starts a
// fresh session first.
func (t *Tracker) ProcessUtterance(text string, at time.Time) model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	if at.IsZero() {
		at = t.now().UTC()
	}

	if !t.lastUtterance.IsZero() && at.Sub(t.lastUtterance) > t.opts.SessionGap {
		t.log.Info("session boundary detected, resetting conversation context",
			zap.Duration("gap", at.Sub(t.lastUtterance)))
		t.resetLocked(at)
	}
	if t.ctx.StartTime.IsZero() {
		t.ctx.StartTime = at
	}
	t.lastUtterance = at

	lower := strings.ToLower(text)

	t.ctx.PrimaryIntent = classifyIntent(lower)
	if emotion := classifyEmotion(lower); emotion != "" {
		t.ctx.UserEmotion = emotion
	}
	t.ctx.State = nextState(t.ctx.State, t.ctx.PrimaryIntent, lower)

	t.updateTopicsLocked(lower)
	t.updateTasksLocked(text)

	return t.copyLocked()
}

// Current returns a snapshot of the live context.
func (t *Tracker) Current() model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// AddParticipant records a conversation participant, deduplicated.
func (t *Tracker) AddParticipant(name string) {
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.ctx.Participants {
		if strings.EqualFold(p, name) {
			return
		}
	}
	t.ctx.Participants = append(t.ctx.Participants, name)
}

// CompleteTask drops a task from the unfinished list.
func (t *Tracker) CompleteTask(task string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.ctx.UnfinishedTasks[:0]
	for _, existing := range t.ctx.UnfinishedTasks {
		if !strings.EqualFold(existing, task) {
			kept = append(kept, existing)
		}
	}
	t.ctx.UnfinishedTasks = kept
}

// Reset starts a fresh session immediately.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(t.now().UTC())
}

func (t *Tracker) resetLocked(at time.Time) {
	t.ctx = model.ConversationContext{
		State:          model.DialogueIdle,
		StartTime:      at,
		TopicIntensity: map[string]float64{},
	}
	t.lastUtterance = time.Time{}
}

func (t *Tracker) updateTopicsLocked(lower string) {
	mentioned := topicTokens(lower)

	// Fade everything, then bump what was mentioned.
	for topic := range t.ctx.TopicIntensity {
		t.ctx.TopicIntensity[topic] *= t.opts.TopicFade
		if t.ctx.TopicIntensity[topic] < 0.05 {
			delete(t.ctx.TopicIntensity, topic)
		}
	}
	for topic := range mentioned {
		t.ctx.TopicIntensity[topic] = minFloat(1.0, t.ctx.TopicIntensity[topic]+0.5)
	}

	type kv struct {
		topic string
		score float64
	}
	ranked := make([]kv, 0, len(t.ctx.TopicIntensity))
	for topic, score := range t.ctx.TopicIntensity {
		ranked = append(ranked, kv{topic, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].topic < ranked[j].topic
	})
	if len(ranked) > t.opts.MaxTopics {
		for _, dropped := range ranked[t.opts.MaxTopics:] {
			delete(t.ctx.TopicIntensity, dropped.topic)
		}
		ranked = ranked[:t.opts.MaxTopics]
	}

	t.ctx.CurrentTopics = t.ctx.CurrentTopics[:0]
	for _, r := range ranked {
		t.ctx.CurrentTopics = append(t.ctx.CurrentTopics, r.topic)
	}
}

func (t *Tracker) updateTasksLocked(text string) {
	for _, marker := range []string{"need to ", "have to ", "don't forget to ", "remind me to ", "i should "} {
		idx := common.IndexFold(text, marker)
		if idx < 0 {
			continue
		}
		task := strings.TrimSpace(text[idx+len(marker):])
		if cut := strings.IndexAny(task, ".!?,;"); cut > 0 {
			task = task[:cut]
		}
		if task == "" {
			continue
		}
		exists := false
		for _, existing := range t.ctx.UnfinishedTasks {
			if strings.EqualFold(existing, task) {
				exists = true
				break
			}
		}
		if !exists {
			t.ctx.UnfinishedTasks = append(t.ctx.UnfinishedTasks, task)
		}
	}
}

func (t *Tracker) copyLocked() model.ConversationContext {
	cp := t.ctx
	cp.CurrentTopics = append([]string(nil), t.ctx.CurrentTopics...)
	cp.Participants = append([]string(nil), t.ctx.Participants...)
	cp.UnfinishedTasks = append([]string(nil), t.ctx.UnfinishedTasks...)
	cp.TopicIntensity = make(map[string]float64, len(t.ctx.TopicIntensity))
	for k, v := range t.ctx.TopicIntensity {
		cp.TopicIntensity[k] = v
	}
	return cp
}

func classifyIntent(lower string) string {
	switch {
	case strings.HasPrefix(lower, "what") || strings.HasPrefix(lower, "how") ||
		strings.HasPrefix(lower, "why") || strings.HasPrefix(lower, "when") ||
		strings.HasPrefix(lower, "where") || strings.HasPrefix(lower, "who") ||
		strings.HasSuffix(strings.TrimSpace(lower), "?"):
		return "question"
	case strings.Contains(lower, "remind") || strings.Contains(lower, "schedule") ||
		strings.Contains(lower, "need to") || strings.Contains(lower, "have to") ||
		strings.Contains(lower, "todo") || strings.Contains(lower, "task"):
		return "task_request"
	case strings.Contains(lower, "thanks") || strings.Contains(lower, "thank you"):
		return "gratitude"
	default:
		return "chat"
	}
}

func classifyEmotion(lower string) string {
	switch {
	case containsAny(lower, "happy", "great", "awesome", "excited", "wonderful"):
		return "positive"
	case containsAny(lower, "sad", "upset", "depressed", "unhappy", "miserable"):
		return "sad"
	case containsAny(lower, "stressed", "anxious", "worried", "nervous", "overwhelmed"):
		return "anxious"
	case containsAny(lower, "angry", "furious", "annoyed", "frustrated"):
		return "frustrated"
	default:
		return ""
	}
}

func nextState(current model.DialogueState, intent, lower string) model.DialogueState {
	switch {
	case containsAny(lower, "goodbye", "good night", "see you", "talk later"):
		return model.DialogueClosing
	case current == model.DialogueIdle && containsAny(lower, "hello", "hi ", "hey", "good morning", "good evening"):
		return model.DialogueGreeting
	case intent == "task_request":
		return model.DialogueTaskDriven
	default:
		return model.DialogueEngaged
	}
}

func topicTokens(lower string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) >= 5 {
			out[tok] = struct{}{}
		}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
