package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

// MalformedRecordError marks a record whose identity fields are all empty.
// The record cannot be linked to anyone, so it enters the graph as an
// isolated node instead of being rejected.
type MalformedRecordError struct {
	BeneficiaryID string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %s: no identity fields to link on", e.BeneficiaryID)
}

// Snapshot is one immutable build of the fraud-network graph: the graph
// itself, the detected rings, per-node centralities, and the fingerprint of
// the record set that produced it. Snapshots are never mutated after
// BuildSnapshot returns.
type Snapshot struct {
	Fingerprint common.Fingerprint
	Graph       *common.Graph
	Rings       []common.FraudRing
	Malformed   []*MalformedRecordError
	BuiltAt     time.Time
}

// identity attributes that create edges, in the order their shared fields
// are recorded on an edge.
var linkFields = []struct {
	name  string
	value func(r *common.BeneficiaryRecord) string
}{
	{"phone_number", func(r *common.BeneficiaryRecord) string { return r.PhoneNumber }},
	{"bank_account", func(r *common.BeneficiaryRecord) string { return r.BankAccount }},
	{"household_id", func(r *common.BeneficiaryRecord) string { return r.HouseholdID }},
}

// FingerprintRecords computes the deterministic digest of a record set.
// The digest is order-insensitive: records are canonicalized and sorted by
// beneficiary id before hashing, and the record count is mixed in.
func FingerprintRecords(records []common.BeneficiaryRecord) common.Fingerprint {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf(
			"%s|%s|%s|%s|%s|%s|%s|%g|%d|%d|%d",
			r.BeneficiaryID, r.AadhaarID, r.Name, r.PhoneNumber, r.BankAccount,
			r.HouseholdID, r.District, r.AnnualIncome, r.RegistrationsPerID,
			r.BankSharedCount, r.PhoneSharedCount,
		))
	}
	sort.Strings(lines)

	h := sha256.New()
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(lines)))
	h.Write(count[:])
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return common.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// BuildSnapshot constructs the relationship graph for the given records and
// runs ring detection over it.
//
// The build is deterministic for a fixed record set regardless of input
// order: nodes are keyed by beneficiary id (first occurrence wins for
// duplicate ids after sorting), edge endpoints are ordered, and the final
// node and edge slices are sorted. Records with no usable identity field
// are collected in Snapshot.Malformed and kept as isolated nodes.
func BuildSnapshot(records []common.BeneficiaryRecord, minRingSize int) (*Snapshot, error) {
	if minRingSize < 2 {
		return nil, fmt.Errorf("minimum ring size must be at least 2, got %d", minRingSize)
	}

	sorted := make([]common.BeneficiaryRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BeneficiaryID < sorted[j].BeneficiaryID
	})

	nodes := make(map[string]common.BeneficiaryRecord, len(sorted))
	var malformed []*MalformedRecordError
	for _, r := range sorted {
		if _, seen := nodes[r.BeneficiaryID]; seen {
			continue
		}
		nodes[r.BeneficiaryID] = r
		if r.PhoneNumber == "" && r.BankAccount == "" && r.HouseholdID == "" {
			malformed = append(malformed, &MalformedRecordError{BeneficiaryID: r.BeneficiaryID})
		}
	}

	type edgeKey struct{ a, b string }
	edges := make(map[edgeKey]*common.GraphEdge)

	for _, field := range linkFields {
		groups := make(map[string][]string)
		for id, r := range nodes {
			v := field.value(&r)
			if v == "" {
				continue
			}
			groups[v] = append(groups[v], id)
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			sort.Strings(group)
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					key := edgeKey{group[i], group[j]}
					e, ok := edges[key]
					if !ok {
						e = &common.GraphEdge{A: key.a, B: key.b}
						edges[key] = e
					}
					e.SharedFields = append(e.SharedFields, field.name)
					e.Weight++
				}
			}
		}
	}

	g := &common.Graph{
		Nodes: make([]common.GraphNode, 0, len(nodes)),
		Edges: make([]common.GraphEdge, 0, len(edges)),
	}
	for id, r := range nodes {
		g.Nodes = append(g.Nodes, common.GraphNode{ID: id, Record: r})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for _, e := range edges {
		g.Edges = append(g.Edges, *e)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].A != g.Edges[j].A {
			return g.Edges[i].A < g.Edges[j].A
		}
		return g.Edges[i].B < g.Edges[j].B
	})

	rings := detectRings(g, minRingSize)

	return &Snapshot{
		Fingerprint: FingerprintRecords(records),
		Graph:       g,
		Rings:       rings,
		Malformed:   malformed,
		BuiltAt:     time.Now(),
	}, nil
}
