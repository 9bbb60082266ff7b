package graph

import (
	"sort"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

// Assessment is the fraud-network contribution for a single beneficiary,
// derived from one graph snapshot.
type Assessment struct {
	BeneficiaryID string  `json:"beneficiary_id"`
	Centrality    float64 `json:"centrality"`
	InRing        bool    `json:"in_ring"`
	RingSize      int     `json:"ring_size"`
	RingRisk      float64 `json:"ring_risk"`
	MasterAgent   bool    `json:"master_agent"`
}

// detectRings computes weighted degree centrality for every node, writes it
// back onto the graph, and groups connected components of at least
// minRingSize nodes into fraud rings.
//
// Centrality is the sum of incident edge weights normalized by n-1, so an
// isolated node always scores zero. The master agent of a ring is the member
// with the highest centrality; ties go to the lowest node id.
func detectRings(g *common.Graph, minRingSize int) []common.FraudRing {
	n := len(g.Nodes)
	if n == 0 {
		return nil
	}

	index := make(map[string]int, n)
	for i, node := range g.Nodes {
		index[node.ID] = i
	}

	weightSum := make([]int, n)
	adjacency := make([][]int, n)
	for _, e := range g.Edges {
		a, b := index[e.A], index[e.B]
		weightSum[a] += e.Weight
		weightSum[b] += e.Weight
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}

	norm := float64(n - 1)
	for i := range g.Nodes {
		if norm > 0 {
			g.Nodes[i].Centrality = float64(weightSum[i]) / norm
		}
	}

	// Connected components via BFS in node-id order, so ring ordering is
	// deterministic.
	visited := make([]bool, n)
	var rings []common.FraudRing
	for start := range g.Nodes {
		if visited[start] {
			continue
		}
		component := []int{start}
		visited[start] = true
		for cursor := 0; cursor < len(component); cursor++ {
			for _, next := range adjacency[component[cursor]] {
				if !visited[next] {
					visited[next] = true
					component = append(component, next)
				}
			}
		}
		if len(component) < minRingSize {
			continue
		}

		ring := common.FraudRing{Members: make([]string, 0, len(component))}
		var sum float64
		master := -1
		for _, i := range component {
			node := g.Nodes[i]
			ring.Members = append(ring.Members, node.ID)
			sum += node.Centrality
			if node.Centrality > ring.MaxCentrality {
				ring.MaxCentrality = node.Centrality
			}
			if master == -1 ||
				node.Centrality > g.Nodes[master].Centrality ||
				(node.Centrality == g.Nodes[master].Centrality && node.ID < g.Nodes[master].ID) {
				master = i
			}
		}
		sort.Strings(ring.Members)
		ring.MasterAgent = g.Nodes[master].ID
		ring.RiskScore = sum / float64(len(component))
		rings = append(rings, ring)
	}

	return rings
}

// Assess looks up one beneficiary's risk contribution in a snapshot. A node
// outside every ring keeps its individual centrality; an unknown id scores
// zero everywhere.
func (s *Snapshot) Assess(beneficiaryID string) Assessment {
	assessment := Assessment{BeneficiaryID: beneficiaryID}

	for _, node := range s.Graph.Nodes {
		if node.ID == beneficiaryID {
			assessment.Centrality = node.Centrality
			break
		}
	}

	for _, ring := range s.Rings {
		for _, member := range ring.Members {
			if member != beneficiaryID {
				continue
			}
			assessment.InRing = true
			assessment.RingSize = len(ring.Members)
			assessment.RingRisk = ring.RiskScore
			assessment.MasterAgent = ring.MasterAgent == beneficiaryID
			return assessment
		}
	}

	return assessment
}
