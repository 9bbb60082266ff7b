package graph

import (
	"reflect"
	"testing"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

func TestDetectRings_SharedBankRing(t *testing.T) {
	snap, err := BuildSnapshot(testRecords(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snap.Rings) != 1 {
		t.Fatalf("expected exactly one ring, got %d", len(snap.Rings))
	}
	ring := snap.Rings[0]
	if !reflect.DeepEqual(ring.Members, []string{"BEN_A", "BEN_B", "BEN_C"}) {
		t.Fatalf("unexpected ring members: %v", ring.Members)
	}
	for _, outsider := range []string{"BEN_D", "BEN_E"} {
		if snap.Assess(outsider).InRing {
			t.Fatalf("%s must not be in a ring", outsider)
		}
	}
}

func TestDetectRings_MasterAgentTieBreak(t *testing.T) {
	// A, B, C form a triangle over one shared bank account, so all three
	// have identical centrality. The lowest id must win.
	snap, err := BuildSnapshot(testRecords(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ring := snap.Rings[0]
	if ring.MasterAgent != "BEN_A" {
		t.Fatalf("expected BEN_A as master agent on tie, got %s", ring.MasterAgent)
	}

	assessment := snap.Assess("BEN_A")
	if !assessment.MasterAgent {
		t.Fatal("BEN_A assessment should flag master agent")
	}
	if snap.Assess("BEN_B").MasterAgent {
		t.Fatal("BEN_B must not be master agent")
	}
}

func TestDetectRings_HighestCentralityWins(t *testing.T) {
	// Hub shares a phone with three spokes, spokes are otherwise unrelated.
	records := []common.BeneficiaryRecord{
		{BeneficiaryID: "BEN_HUB", PhoneNumber: "9000000000", BankAccount: "ACC_H", HouseholdID: "HH_H"},
		{BeneficiaryID: "BEN_S1", PhoneNumber: "9000000000", BankAccount: "ACC_1", HouseholdID: "HH_1"},
		{BeneficiaryID: "BEN_S2", PhoneNumber: "9000000000", BankAccount: "ACC_2", HouseholdID: "HH_2"},
		{BeneficiaryID: "BEN_S3", PhoneNumber: "9000000000", BankAccount: "ACC_3", HouseholdID: "HH_3"},
	}
	// All four share the phone, so they form a clique and tie; give the hub
	// extra weight through a shared household with S1 and a shared bank
	// account with S2.
	records[0].HouseholdID = "HH_SHARED"
	records[1].HouseholdID = "HH_SHARED"
	records[0].BankAccount = "ACC_SHARED"
	records[2].BankAccount = "ACC_SHARED"

	snap, err := BuildSnapshot(records, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Rings) != 1 {
		t.Fatalf("expected one ring, got %d", len(snap.Rings))
	}
	if snap.Rings[0].MasterAgent != "BEN_HUB" {
		t.Fatalf("expected BEN_HUB as master agent, got %s", snap.Rings[0].MasterAgent)
	}
}

func TestDetectRings_MinimumSizeConfigurable(t *testing.T) {
	records := []common.BeneficiaryRecord{
		{BeneficiaryID: "BEN_A", PhoneNumber: "9000000001", BankAccount: "ACC_SHARED", HouseholdID: "HH_1"},
		{BeneficiaryID: "BEN_B", PhoneNumber: "9000000002", BankAccount: "ACC_SHARED", HouseholdID: "HH_2"},
	}

	snap, err := BuildSnapshot(records, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Rings) != 0 {
		t.Fatalf("pair below ring size must not form a ring, got %d rings", len(snap.Rings))
	}

	snap, err = BuildSnapshot(records, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Rings) != 1 {
		t.Fatalf("expected one ring with min size 2, got %d", len(snap.Rings))
	}
}

func TestDetectRings_RingRiskIsMeanCentrality(t *testing.T) {
	snap, err := BuildSnapshot(testRecords(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ring := snap.Rings[0]
	var sum float64
	for _, member := range ring.Members {
		sum += snap.Assess(member).Centrality
	}
	mean := sum / float64(len(ring.Members))
	if ring.RiskScore != mean {
		t.Fatalf("expected risk score %v, got %v", mean, ring.RiskScore)
	}
	if ring.MaxCentrality < ring.RiskScore {
		t.Fatal("max centrality cannot be below the mean")
	}
}

func TestAssess_UnknownBeneficiary(t *testing.T) {
	snap, err := BuildSnapshot(testRecords(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assessment := snap.Assess("BEN_UNKNOWN")
	if assessment.Centrality != 0 || assessment.InRing || assessment.MasterAgent {
		t.Fatalf("unknown beneficiary must score zero, got %+v", assessment)
	}
}
