package common

import "time"

// BeneficiaryRecord is one ingested welfare-beneficiary registration.
// Records are immutable once ingested for a given screening run.
//
// Identity fields (phone number, bank account, household id) drive the
// fraud-network graph; the numeric features feed the anomaly-scoring stage.
type BeneficiaryRecord struct {
	BeneficiaryID string `json:"beneficiary_id"`
	AadhaarID     string `json:"aadhaar_like_id"`
	Name          string `json:"name"`
	PhoneNumber   string `json:"phone_number"`
	BankAccount   string `json:"bank_account"`
	HouseholdID   string `json:"household_id"`
	District      string `json:"district"`

	AnnualIncome       float64 `json:"annual_income"`
	RegistrationsPerID int     `json:"registrations_per_aadhaar"`
	BankSharedCount    int     `json:"bank_shared_count"`
	PhoneSharedCount   int     `json:"phone_shared_count"`
}

// GraphNode is one node in the fraud-network graph, one per distinct
// beneficiary id. Centrality is recomputed on every rebuild and never
// partially mutated.
type GraphNode struct {
	ID         string            `json:"id"`
	Record     BeneficiaryRecord `json:"record"`
	Centrality float64           `json:"centrality"`
}

// GraphEdge is an undirected edge between two beneficiaries that share at
// least one identity attribute. A and B are ordered so that A < B, which
// keeps the edge set stable across input orderings.
//
// Weight counts the shared attributes; SharedFields records which ones.
type GraphEdge struct {
	A            string   `json:"a"`
	B            string   `json:"b"`
	SharedFields []string `json:"shared_fields"`
	Weight       int      `json:"weight"`
}

// Graph is a rebuilt fraud-network snapshot. Nodes are sorted by id and
// edges by (A, B) so serialization is reproducible.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// FraudRing is a connected component of the graph whose size reached the
// configured minimum ring size. The master agent is the member with the
// highest centrality (ties broken by lowest node id).
type FraudRing struct {
	Members       []string `json:"members"`
	MasterAgent   string   `json:"master_agent"`
	RiskScore     float64  `json:"risk_score"`
	MaxCentrality float64  `json:"max_centrality"`
}

// Fingerprint is a deterministic digest of a record set. Identical
// fingerprints guarantee identical graph output.
type Fingerprint string

// StageStatus is the per-stage outcome reported in every combined pipeline
// result. There are no silent partial results: each stage is exactly one of
// these.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// CaseState is the lifecycle state of a screening case.
//
// Valid transitions: pending → reviewed → {approved, rejected, escalated};
// escalated → reviewed; approved/rejected → reviewed (re-appeal). History is
// never rewritten: every transition appends an AuditEntry.
type CaseState string

const (
	CasePending   CaseState = "pending"
	CaseReviewed  CaseState = "reviewed"
	CaseApproved  CaseState = "approved"
	CaseRejected  CaseState = "rejected"
	CaseEscalated CaseState = "escalated"
)

// Case is the persisted, decision-trackable unit for one screened document.
// It carries the per-stage scores collected by the pipeline and the current
// lifecycle state, which is always derivable by folding the case's audit
// trail in order.
type Case struct {
	ID            string                     `json:"id"`
	DocumentID    string                     `json:"document_id"`
	BeneficiaryID string                     `json:"beneficiary_id"`
	AnomalyScore  *float64                   `json:"anomaly_score,omitempty"`
	DuplicateRisk *float64                   `json:"duplicate_risk,omitempty"`
	NetworkRisk   *float64                   `json:"network_risk,omitempty"`
	RingSize      int                        `json:"ring_size"`
	MasterAgent   bool                       `json:"master_agent"`
	Stages        map[string]StageStatus     `json:"stages"`
	State         CaseState                  `json:"state"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// AuditEntry is one immutable record of a state-changing admin action on a
// case. Entries form an append-only ledger: PreviousState always equals the
// case state immediately before the entry was written.
type AuditEntry struct {
	ID            string    `json:"id"`
	CaseID        string    `json:"case_id"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	PreviousState CaseState `json:"previous_state"`
	NewState      CaseState `json:"new_state"`
	Rationale     string    `json:"rationale"`
	Timestamp     time.Time `json:"timestamp"`
}
