// Package cache implements the fixed-budget, category-partitioned,
// priority-aware store of inferred personal knowledge.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/metrics"
)

// ErrCapacityExhausted is returned when a category is full of pinned
// userProfile items and nothing can be evicted. The insert is rejected;
// nothing is silently dropped.
var ErrCapacityExhausted = errors.New("cache: category capacity exhausted by user_profile items")

// ErrUnknownCategory is returned for items outside the five categories.
var ErrUnknownCategory = errors.New("cache: unknown category")

type Options struct {
	// CategoryCapacity bounds each category independently.
	CategoryCapacity int
	// UtilizationTarget is the denominator of the reported utilization
	// metric. Health signal only; enforcement is per category.
	UtilizationTarget int
}

// CategorizedCache holds CacheItems per category with priority-ordered
// eviction. One writer at a time; reads may run concurrently.
type CategorizedCache struct {
	mu    sync.RWMutex
	items map[model.CacheCategory]map[string]*model.CacheItem

	opts Options
	met  *metrics.Metrics
	log  *zap.Logger
	now  func() time.Time
}

func New(opts Options, met *metrics.Metrics, log *zap.Logger) *CategorizedCache {
	if opts.CategoryCapacity <= 0 {
		opts.CategoryCapacity = 100
	}
	if opts.UtilizationTarget <= 0 {
		opts.UtilizationTarget = 500
	}
	if met == nil {
		met = metrics.NewNop()
	}
	c := &CategorizedCache{
		items: make(map[model.CacheCategory]map[string]*model.CacheItem),
		opts:  opts,
		met:   met,
		log:   log,
		now:   time.Now,
	}
	for _, cat := range model.AllCategories {
		c.items[cat] = make(map[string]*model.CacheItem)
	}
	return c
}

// SetClock overrides the time source. Tests only.
func (c *CategorizedCache) SetClock(now func() time.Time) { c.now = now }

// Put inserts or replaces an item in its category. On a full category the
// lowest-ranked evictable item goes first: priority ascending, then weight
// ascending, then least recently accessed. If every resident item is pinned
// at userProfile priority the insert is rejected with ErrCapacityExhausted.
func (c *CategorizedCache) Put(item model.CacheItem) error {
	if !item.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, item.Category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.LastAccessedAt.IsZero() {
		item.LastAccessedAt = now
	}

	bucket := c.items[item.Category]

	// Replacing an existing key never needs an eviction.
	if _, exists := bucket[item.Key]; !exists && len(bucket) >= c.opts.CategoryCapacity {
		victim := c.lowestRanked(bucket)
		if victim == nil {
			c.met.CacheRejections.WithLabelValues(string(item.Category)).Inc()
			return ErrCapacityExhausted
		}
		delete(bucket, victim.Key)
		c.met.CacheEvictions.WithLabelValues(string(item.Category)).Inc()
		c.log.Debug("evicted cache item",
			zap.String("category", string(item.Category)),
			zap.String("key", victim.Key),
			zap.String("priority", victim.Priority.String()))
	}

	stored := item
	bucket[item.Key] = &stored
	c.updateUtilization()
	return nil
}

// Get returns the item and bumps its access bookkeeping, which is
// observable through Stats.
func (c *CategorizedCache) Get(category model.CacheCategory, key string) (*model.CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.items[category]
	if !ok {
		c.met.CacheMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}
	item, ok := bucket[key]
	if !ok {
		c.met.CacheMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}

	item.LastAccessedAt = c.now().UTC()
	item.AccessCount++
	c.met.CacheHits.WithLabelValues(string(category)).Inc()

	out := *item
	return &out, true
}

// GetByCategory returns all items in a category, newest created first.
// Unlike Get it does not touch access bookkeeping.
func (c *CategorizedCache) GetByCategory(category model.CacheCategory) []model.CacheItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket := c.items[category]
	out := make([]model.CacheItem, 0, len(bucket))
	for _, item := range bucket {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// All returns every cached item across categories.
func (c *CategorizedCache) All() []model.CacheItem {
	var out []model.CacheItem
	for _, cat := range model.AllCategories {
		out = append(out, c.GetByCategory(cat)...)
	}
	return out
}

// Remove deletes the key from whichever category holds it.
func (c *CategorizedCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, bucket := range c.items {
		if _, ok := bucket[key]; ok {
			delete(bucket, key)
			c.updateUtilization()
			return true
		}
	}
	return false
}

// Clear empties every category.
func (c *CategorizedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cat := range model.AllCategories {
		c.items[cat] = make(map[string]*model.CacheItem)
	}
	c.updateUtilization()
}

// Stats reports totals, per-category counts, average weight and the
// clamped utilization health metric.
func (c *CategorizedCache) Stats() model.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := model.CacheStats{
		PerCategoryCount: make(map[model.CacheCategory]int, len(c.items)),
	}
	var weightSum float64
	for cat, bucket := range c.items {
		stats.PerCategoryCount[cat] = len(bucket)
		stats.TotalItems += len(bucket)
		for _, item := range bucket {
			weightSum += item.Weight
		}
	}
	if stats.TotalItems > 0 {
		stats.AverageWeight = weightSum / float64(stats.TotalItems)
	}
	stats.Utilization = clamp01(float64(stats.TotalItems) / float64(c.opts.UtilizationTarget))
	return stats
}

// lowestRanked picks the eviction victim among non-pinned items, or nil
// when the bucket holds only userProfile items.
func (c *CategorizedCache) lowestRanked(bucket map[string]*model.CacheItem) *model.CacheItem {
	var victim *model.CacheItem
	for _, item := range bucket {
		if item.Priority == model.PriorityUserProfile {
			continue
		}
		if victim == nil || ranksBelow(item, victim) {
			victim = item
		}
	}
	return victim
}

// ranksBelow orders a before b for eviction: lower priority first, then
// lower weight, then older last access.
func ranksBelow(a, b *model.CacheItem) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

func (c *CategorizedCache) updateUtilization() {
	total := 0
	for _, bucket := range c.items {
		total += len(bucket)
	}
	c.met.CacheUtilization.Set(clamp01(float64(total) / float64(c.opts.UtilizationTarget)))
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
