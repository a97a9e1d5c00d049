package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/driver"
)

// MemgraphStore is the Store backed by a cypher driver. Writes are
// serialized through a mutex on top of whatever the database provides;
// reads go straight through.
type MemgraphStore struct {
	drv driver.GraphDriver
	log *zap.Logger

	writeMu sync.Mutex
}

func NewMemgraphStore(drv driver.GraphDriver, log *zap.Logger) *MemgraphStore {
	return &MemgraphStore{drv: drv, log: log}
}

func (s *MemgraphStore) UpsertNode(ctx context.Context, n *model.Node) (*model.Node, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored := *n
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = time.Now().UTC()
	}

	attrs := make(map[string]interface{}, len(stored.Attributes))
	for k, v := range stored.Attributes {
		attrs[k] = v
	}

	params := map[string]interface{}{
		"id":           stored.ID,
		"name":         stored.Name,
		"type":         stored.Type,
		"aliases":      stored.Aliases,
		"attributes":   attrs,
		"last_updated": stored.LastUpdated.Format(time.RFC3339Nano),
	}
	if _, err := s.drv.ExecuteQuery(ctx, driver.SaveEntityNodeQuery, params); err != nil {
		return nil, fmt.Errorf("upsert node: %w", err)
	}
	out := stored
	return &out, nil
}

func (s *MemgraphStore) UpsertEvent(ctx context.Context, e *model.EventNode) (*model.EventNode, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored := *e
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.LastUpdated.IsZero() {
		stored.LastUpdated = time.Now().UTC()
	}

	params := map[string]interface{}{
		"id":           stored.ID,
		"name":         stored.Name,
		"type":         stored.Type,
		"description":  stored.Description,
		"location":     stored.Location,
		"purpose":      stored.Purpose,
		"result":       stored.Result,
		"start_time":   formatTimePtr(stored.StartTime),
		"last_updated": stored.LastUpdated.Format(time.RFC3339Nano),
		"embedding":    stored.Embedding,
		"cluster_id":   stored.ClusterID,
	}
	if _, err := s.drv.ExecuteQuery(ctx, driver.SaveEventNodeQuery, params); err != nil {
		return nil, fmt.Errorf("upsert event: %w", err)
	}
	out := stored
	return &out, nil
}

func (s *MemgraphStore) UpsertRelation(ctx context.Context, r *model.EventEntityRelation) (*model.EventEntityRelation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored := *r
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	params := map[string]interface{}{
		"id":         stored.ID,
		"event_id":   stored.EventID,
		"entity_id":  stored.EntityID,
		"role":       stored.Role,
		"created_at": stored.CreatedAt.Format(time.RFC3339Nano),
	}
	if _, err := s.drv.ExecuteQuery(ctx, driver.SaveRelationQuery, params); err != nil {
		return nil, fmt.Errorf("upsert relation: %w", err)
	}
	out := stored
	return &out, nil
}

func (s *MemgraphStore) NodeByID(ctx context.Context, id string) (*model.Node, error) {
	res, err := s.drv.ExecuteQuery(ctx, driver.GetNodeByIDQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, ErrNotFound
	}
	n := decodeNode(res.Records[0])
	return &n, nil
}

func (s *MemgraphStore) EventByID(ctx context.Context, id string) (*model.EventNode, error) {
	res, err := s.drv.ExecuteQuery(ctx, driver.GetEventByIDQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, ErrNotFound
	}
	e := decodeEvent(res.Records[0])
	return &e, nil
}

// Nodes fetches all entity nodes and filters client-side. Single-user data
// volumes make this cheaper than bespoke cypher per predicate.
func (s *MemgraphStore) Nodes(ctx context.Context, f NodeFilter) ([]model.Node, error) {
	res, err := s.drv.ExecuteQuery(ctx, driver.GetNodesQuery, nil)
	if err != nil {
		return nil, err
	}
	var out []model.Node
	for _, rec := range res.Records {
		n := decodeNode(rec)
		if matchNode(n, f) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemgraphStore) Events(ctx context.Context, f EventFilter) ([]model.EventNode, error) {
	res, err := s.drv.ExecuteQuery(ctx, driver.GetEventsQuery, nil)
	if err != nil {
		return nil, err
	}
	var out []model.EventNode
	for _, rec := range res.Records {
		e := decodeEvent(rec)
		if matchEvent(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemgraphStore) RelationsForEvent(ctx context.Context, eventID string) ([]model.EventEntityRelation, error) {
	return s.relationQuery(ctx, driver.GetRelationsForEventQuery, map[string]interface{}{"event_id": eventID})
}

func (s *MemgraphStore) RelationsForEntity(ctx context.Context, entityID string) ([]model.EventEntityRelation, error) {
	return s.relationQuery(ctx, driver.GetRelationsForEntityQuery, map[string]interface{}{"entity_id": entityID})
}

func (s *MemgraphStore) Relations(ctx context.Context) ([]model.EventEntityRelation, error) {
	return s.relationQuery(ctx, driver.GetAllRelationsQuery, nil)
}

func (s *MemgraphStore) relationQuery(ctx context.Context, query string, params map[string]interface{}) ([]model.EventEntityRelation, error) {
	res, err := s.drv.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}
	var out []model.EventEntityRelation
	for _, rec := range res.Records {
		out = append(out, decodeRelation(rec))
	}
	return out, nil
}

func (s *MemgraphStore) DeleteNode(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.drv.ExecuteQuery(ctx, driver.DeleteNodeQuery, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemgraphStore) SetEventEmbedding(ctx context.Context, eventID string, embedding []float32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	params := map[string]interface{}{
		"id":           eventID,
		"embedding":    embedding,
		"last_updated": time.Now().UTC().Format(time.RFC3339Nano),
	}
	res, err := s.drv.ExecuteQuery(ctx, driver.SetEventEmbeddingQuery, params)
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemgraphStore) SetEventCluster(ctx context.Context, eventID, clusterID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	params := map[string]interface{}{"id": eventID, "cluster_id": clusterID}
	res, err := s.drv.ExecuteQuery(ctx, driver.SetEventClusterQuery, params)
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemgraphStore) UpsertCluster(ctx context.Context, c *model.ClusterNode) (*model.ClusterNode, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored := *c
	if !ValidID(stored.ID) {
		stored.ID = uuid.New().String()
	}
	params := map[string]interface{}{
		"id":                  stored.ID,
		"name":                stored.Name,
		"description":         stored.Description,
		"member_count":        stored.MemberCount,
		"earliest_event_time": formatTimePtr(stored.EarliestEventTime),
		"latest_event_time":   formatTimePtr(stored.LatestEventTime),
		"centroid":            stored.Centroid,
	}
	if _, err := s.drv.ExecuteQuery(ctx, driver.SaveClusterNodeQuery, params); err != nil {
		return nil, fmt.Errorf("upsert cluster: %w", err)
	}
	out := stored
	return &out, nil
}

func (s *MemgraphStore) Clusters(ctx context.Context) ([]model.ClusterNode, error) {
	res, err := s.drv.ExecuteQuery(ctx, driver.GetClustersQuery, nil)
	if err != nil {
		return nil, err
	}
	var out []model.ClusterNode
	for _, rec := range res.Records {
		out = append(out, decodeCluster(rec))
	}
	return out, nil
}

func (s *MemgraphStore) DeleteCluster(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.drv.ExecuteQuery(ctx, driver.DeleteClusterQuery, map[string]interface{}{"id": id})
	return err
}

func (s *MemgraphStore) DeleteAllClusters(ctx context.Context) (int, int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	clusters, err := s.Clusters(ctx)
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.drv.ExecuteQuery(ctx, driver.DeleteAllClustersQuery, nil); err != nil {
		return 0, 0, err
	}
	res, err := s.drv.ExecuteQuery(ctx, driver.ClearClusterAssignmentsQuery, nil)
	if err != nil {
		return 0, 0, err
	}
	cleared := 0
	if len(res.Records) > 0 {
		if v, ok := res.Records[0].Get("cleared"); ok {
			cleared = int(asInt64(v))
		}
	}
	return len(clusters), cleared, nil
}

func (s *MemgraphStore) DeleteOrphanedNodes(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.drv.ExecuteQuery(ctx, driver.DeleteOrphanedNodesQuery, nil)
	if err != nil {
		return 0, err
	}
	if len(res.Records) > 0 {
		if v, ok := res.Records[0].Get("removed"); ok {
			return int(asInt64(v)), nil
		}
	}
	return 0, nil
}

// ValidateIntegrity pulls the full graph and runs the same scan the
// in-memory store uses. Duplicate logical edges and dangling references can
// exist in a database populated outside this process.
func (s *MemgraphStore) ValidateIntegrity(ctx context.Context) (*model.IntegrityReport, error) {
	nodes, err := s.Nodes(ctx, NodeFilter{})
	if err != nil {
		return nil, err
	}
	events, err := s.Events(ctx, EventFilter{})
	if err != nil {
		return nil, err
	}
	relations, err := s.Relations(ctx)
	if err != nil {
		return nil, err
	}
	return computeIntegrity(nodes, events, relations), nil
}

func (s *MemgraphStore) Close(ctx context.Context) error {
	return s.drv.Close(ctx)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func parseTime(v interface{}) time.Time {
	s := asString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(v interface{}) *time.Time {
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func asFloat32Slice(v interface{}) []float32 {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		switch f := item.(type) {
		case float64:
			out = append(out, float32(f))
		case float32:
			out = append(out, f)
		}
	}
	return out
}

func asStringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asStringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}

func decodeNode(rec *neo4j.Record) model.Node {
	get := func(key string) interface{} { v, _ := rec.Get(key); return v }
	return model.Node{
		ID:          asString(get("id")),
		Name:        asString(get("name")),
		Type:        asString(get("type")),
		Aliases:     asStringSlice(get("aliases")),
		Attributes:  asStringMap(get("attributes")),
		LastUpdated: parseTime(get("last_updated")),
	}
}

func decodeEvent(rec *neo4j.Record) model.EventNode {
	get := func(key string) interface{} { v, _ := rec.Get(key); return v }
	return model.EventNode{
		ID:          asString(get("id")),
		Name:        asString(get("name")),
		Type:        asString(get("type")),
		Description: asString(get("description")),
		Location:    asString(get("location")),
		Purpose:     asString(get("purpose")),
		Result:      asString(get("result")),
		StartTime:   parseTimePtr(get("start_time")),
		LastUpdated: parseTime(get("last_updated")),
		Embedding:   asFloat32Slice(get("embedding")),
		ClusterID:   asString(get("cluster_id")),
	}
}

func decodeRelation(rec *neo4j.Record) model.EventEntityRelation {
	get := func(key string) interface{} { v, _ := rec.Get(key); return v }
	return model.EventEntityRelation{
		ID:        asString(get("id")),
		EventID:   asString(get("event_id")),
		EntityID:  asString(get("entity_id")),
		Role:      asString(get("role")),
		CreatedAt: parseTime(get("created_at")),
	}
}

func decodeCluster(rec *neo4j.Record) model.ClusterNode {
	get := func(key string) interface{} { v, _ := rec.Get(key); return v }
	return model.ClusterNode{
		ID:                asString(get("id")),
		Name:              asString(get("name")),
		Description:       asString(get("description")),
		MemberCount:       int(asInt64(get("member_count"))),
		EarliestEventTime: parseTimePtr(get("earliest_event_time")),
		LatestEventTime:   parseTimePtr(get("latest_event_time")),
		Centroid:          asFloat32Slice(get("centroid")),
	}
}
