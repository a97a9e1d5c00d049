package graph

import (
	"sort"

	"github.com/agenthands/recall/internal/core/model"
)

// computeIntegrity scans a full graph snapshot for orphaned nodes, duplicate
// logical edges and relations referencing missing endpoints. Shared by both
// store backends so the report semantics cannot drift.
func computeIntegrity(nodes []model.Node, events []model.EventNode, relations []model.EventEntityRelation) *model.IntegrityReport {
	report := &model.IntegrityReport{
		OrphanedNodes:     []string{},
		DuplicateEdges:    []string{},
		InvalidReferences: []string{},
	}

	nodeIDs := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	eventIDs := make(map[string]struct{}, len(events))
	for _, e := range events {
		eventIDs[e.ID] = struct{}{}
	}

	referenced := make(map[string]struct{}, len(relations))
	seen := make(map[string]int, len(relations))
	for _, r := range relations {
		referenced[r.EntityID] = struct{}{}
		seen[r.Key()]++

		_, eventOK := eventIDs[r.EventID]
		_, entityOK := nodeIDs[r.EntityID]
		if !eventOK || !entityOK {
			report.InvalidReferences = append(report.InvalidReferences, r.Key())
		}
	}
	for key, count := range seen {
		if count > 1 {
			report.DuplicateEdges = append(report.DuplicateEdges, key)
		}
	}
	for _, n := range nodes {
		if _, ok := referenced[n.ID]; !ok {
			report.OrphanedNodes = append(report.OrphanedNodes, n.ID)
		}
	}

	sort.Strings(report.OrphanedNodes)
	sort.Strings(report.DuplicateEdges)
	sort.Strings(report.InvalidReferences)
	return report
}
