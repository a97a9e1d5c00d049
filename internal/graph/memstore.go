package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/recall/internal/core/model"
)

// MemStore is the in-memory Store used by tests and the embedded
// single-device mode. A single RWMutex gives single-writer semantics with
// concurrent reads.
type MemStore struct {
	mu        sync.RWMutex
	nodes     map[string]model.Node
	events    map[string]model.EventNode
	relations []model.EventEntityRelation
	clusters  map[string]model.ClusterNode

	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes:    make(map[string]model.Node),
		events:   make(map[string]model.EventNode),
		clusters: make(map[string]model.ClusterNode),
		now:      time.Now,
	}
}

func (s *MemStore) UpsertNode(ctx context.Context, n *model.Node) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *n
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = s.now().UTC()
	}
	// LastUpdated never moves backwards for a node.
	if prev, ok := s.nodes[stored.ID]; ok && stored.LastUpdated.Before(prev.LastUpdated) {
		stored.LastUpdated = prev.LastUpdated
	}
	s.nodes[stored.ID] = stored
	out := stored
	return &out, nil
}

func (s *MemStore) UpsertEvent(ctx context.Context, e *model.EventNode) (*model.EventNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *e
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = s.now().UTC()
	}
	if prev, ok := s.events[stored.ID]; ok {
		if stored.LastUpdated.Before(prev.LastUpdated) {
			stored.LastUpdated = prev.LastUpdated
		}
		// Cluster assignment is owned by the clustering engine; a plain
		// event upsert never overwrites it.
		if stored.ClusterID == "" {
			stored.ClusterID = prev.ClusterID
		}
		if len(stored.Embedding) == 0 {
			stored.Embedding = prev.Embedding
		}
	}
	s.events[stored.ID] = stored
	out := stored
	return &out, nil
}

// UpsertRelation does not verify that the referenced ids exist; a dangling
// reference is surfaced by ValidateIntegrity, not rejected here.
func (s *MemStore) UpsertRelation(ctx context.Context, r *model.EventEntityRelation) (*model.EventEntityRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *r
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	for i := range s.relations {
		if s.relations[i].Key() == stored.Key() {
			stored.ID = s.relations[i].ID
			s.relations[i] = stored
			out := stored
			return &out, nil
		}
	}
	s.relations = append(s.relations, stored)
	out := stored
	return &out, nil
}

func (s *MemStore) NodeByID(ctx context.Context, id string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := n
	return &out, nil
}

func (s *MemStore) EventByID(ctx context.Context, id string) (*model.EventNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := e
	return &out, nil
}

func (s *MemStore) Nodes(ctx context.Context, f NodeFilter) ([]model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Node
	for _, n := range s.nodes {
		if !matchNode(n, f) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Events(ctx context.Context, f EventFilter) ([]model.EventNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EventNode
	for _, e := range s.events {
		if !matchEvent(e, f) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) RelationsForEvent(ctx context.Context, eventID string) ([]model.EventEntityRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EventEntityRelation
	for _, r := range s.relations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemStore) RelationsForEntity(ctx context.Context, entityID string) ([]model.EventEntityRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EventEntityRelation
	for _, r := range s.relations {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemStore) Relations(ctx context.Context) ([]model.EventEntityRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EventEntityRelation, len(s.relations))
	copy(out, s.relations)
	return out, nil
}

func (s *MemStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(s.nodes, id)
	kept := s.relations[:0]
	for _, r := range s.relations {
		if r.EntityID != id {
			kept = append(kept, r)
		}
	}
	s.relations = kept
	return nil
}

func (s *MemStore) SetEventEmbedding(ctx context.Context, eventID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Embedding = embedding
	e.LastUpdated = s.now().UTC()
	s.events[eventID] = e
	return nil
}

func (s *MemStore) SetEventCluster(ctx context.Context, eventID, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.ClusterID = clusterID
	s.events[eventID] = e
	return nil
}

func (s *MemStore) UpsertCluster(ctx context.Context, c *model.ClusterNode) (*model.ClusterNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	s.clusters[stored.ID] = stored
	out := stored
	return &out, nil
}

func (s *MemStore) Clusters(ctx context.Context) ([]model.ClusterNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ClusterNode
	for _, c := range s.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) DeleteCluster(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[id]; !ok {
		return ErrNotFound
	}
	delete(s.clusters, id)
	return nil
}

func (s *MemStore) DeleteAllClusters(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.clusters)
	s.clusters = make(map[string]model.ClusterNode)

	cleared := 0
	for id, e := range s.events {
		if e.ClusterID != "" {
			e.ClusterID = ""
			s.events[id] = e
			cleared++
		}
	}
	return removed, cleared, nil
}

func (s *MemStore) DeleteOrphanedNodes(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referenced := make(map[string]struct{}, len(s.relations))
	for _, r := range s.relations {
		referenced[r.EntityID] = struct{}{}
	}

	removed := 0
	for id := range s.nodes {
		if _, ok := referenced[id]; !ok {
			delete(s.nodes, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) ValidateIntegrity(ctx context.Context) (*model.IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	events := make([]model.EventNode, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	return computeIntegrity(nodes, events, s.relations), nil
}

func (s *MemStore) Close(ctx context.Context) error { return nil }

func matchNode(n model.Node, f NodeFilter) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, n.ID) {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.NameContains != "" {
		needle := strings.ToLower(f.NameContains)
		if !strings.Contains(strings.ToLower(n.Name), needle) && !aliasMatch(n.Aliases, needle) {
			return false
		}
	}
	return true
}

func matchEvent(e model.EventNode, f EventFilter) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.Unclustered && e.ClusterID != "" {
		return false
	}
	if f.ClusterID != "" && e.ClusterID != f.ClusterID {
		return false
	}
	if !f.Range.Start.IsZero() || !f.Range.End.IsZero() {
		if e.StartTime == nil {
			return false
		}
		if !f.Range.Contains(*e.StartTime) {
			return false
		}
	}
	return true
}

func aliasMatch(aliases []string, needle string) bool {
	for _, a := range aliases {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
