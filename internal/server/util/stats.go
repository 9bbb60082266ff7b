package util

import (
	"slices"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
)

// RiskBuckets counts beneficiaries by how many others they share a phone
// number with: more than 3 is high, 2 or 3 is medium, everything else low.
type RiskBuckets struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// DashboardStats is the reviewer dashboard summary. MalformedRecords counts
// records in the snapshot that had no identity field to link on.
type DashboardStats struct {
	TotalCases       int                      `json:"total_cases"`
	CasesByState     map[common.CaseState]int `json:"cases_by_state"`
	RingCount        int                      `json:"ring_count"`
	RingMembers      int                      `json:"ring_members"`
	MalformedRecords int                      `json:"malformed_records"`
	RiskBuckets      RiskBuckets              `json:"risk_buckets"`
	Fingerprint      common.Fingerprint       `json:"fingerprint,omitempty"`
}

// ComputeDashboardStats summarizes the case load and, when a graph snapshot
// is available, the fraud-network picture.
func ComputeDashboardStats(cases []common.Case, snapshot *graph.Snapshot) DashboardStats {
	stats := DashboardStats{
		TotalCases:   len(cases),
		CasesByState: make(map[common.CaseState]int),
	}
	for _, c := range cases {
		stats.CasesByState[c.State]++
	}

	if snapshot == nil {
		return stats
	}
	stats.Fingerprint = snapshot.Fingerprint
	stats.RingCount = len(snapshot.Rings)
	stats.MalformedRecords = len(snapshot.Malformed)
	for _, ring := range snapshot.Rings {
		stats.RingMembers += len(ring.Members)
	}

	degrees := phoneSharedDegrees(snapshot.Graph)
	for _, node := range snapshot.Graph.Nodes {
		switch degree := degrees[node.ID]; {
		case degree > 3:
			stats.RiskBuckets.High++
		case degree >= 2:
			stats.RiskBuckets.Medium++
		default:
			stats.RiskBuckets.Low++
		}
	}

	return stats
}

// phoneSharedDegrees counts, per node, the edges that involve a shared
// phone number.
func phoneSharedDegrees(g *common.Graph) map[string]int {
	degrees := make(map[string]int, len(g.Nodes))
	for _, edge := range g.Edges {
		if !slices.Contains(edge.SharedFields, "phone_number") {
			continue
		}
		degrees[edge.A]++
		degrees[edge.B]++
	}
	return degrees
}
