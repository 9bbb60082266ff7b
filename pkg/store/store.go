package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

// ErrCaseNotFound is returned when a case id or document id is unknown.
var ErrCaseNotFound = errors.New("case not found")

// ErrInvalidTransition is returned when a decision targets a state the case
// lifecycle does not allow from the expected previous state.
var ErrInvalidTransition = errors.New("invalid case state transition")

// ConflictError is returned when the case state observed by the caller no
// longer matches the stored state. The caller must re-read and decide again;
// no audit entry is written.
type ConflictError struct {
	CaseID   string
	Expected common.CaseState
	Actual   common.CaseState
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("case %s is %s, not %s", e.CaseID, e.Actual, e.Expected)
}

// ValidTransition reports whether the case lifecycle allows moving from one
// state to another. Approved and rejected cases may be reopened for review
// on appeal.
func ValidTransition(from, to common.CaseState) bool {
	switch from {
	case common.CasePending:
		return to == common.CaseReviewed
	case common.CaseReviewed:
		return to == common.CaseApproved || to == common.CaseRejected || to == common.CaseEscalated
	case common.CaseEscalated, common.CaseApproved, common.CaseRejected:
		return to == common.CaseReviewed
	}
	return false
}

// CaseSeed carries the pipeline output a new case is created from.
type CaseSeed struct {
	DocumentID    string
	BeneficiaryID string
	AnomalyScore  *float64
	DuplicateRisk *float64
	NetworkRisk   *float64
	RingSize      int
	MasterAgent   bool
	Stages        map[string]common.StageStatus
}

// DecideParams is one admin decision on a case. PreviousState is the state
// the actor observed; the decision only applies if it still matches.
type DecideParams struct {
	CaseID        string
	Actor         string
	Action        string
	PreviousState common.CaseState
	NewState      common.CaseState
	Rationale     string
}

// ListCasesParams filters and bounds a case listing. A zero value lists the
// most recent cases across all states.
type ListCasesParams struct {
	State common.CaseState
	Limit int
}

// CaseStore persists screening cases and their append-only audit trails.
//
// InitCase is idempotent per document id: re-initializing an existing case
// returns the stored case unchanged and reports created=false. Decide
// appends exactly one audit entry per applied transition; a state conflict
// appends nothing.
type CaseStore interface {
	InitCase(ctx context.Context, seed CaseSeed) (c *common.Case, created bool, err error)
	GetCase(ctx context.Context, id string) (*common.Case, error)
	GetCaseByDocument(ctx context.Context, documentID string) (*common.Case, error)
	ListCases(ctx context.Context, params ListCasesParams) ([]common.Case, error)
	Decide(ctx context.Context, params DecideParams) (*common.Case, *common.AuditEntry, error)
	ListAuditEntries(ctx context.Context, caseID string) ([]common.AuditEntry, error)
}

// RecordStore is the registry of ingested beneficiary records. Records are
// upserted by beneficiary id; the listing feeds the fraud-network graph.
type RecordStore interface {
	SaveRecord(ctx context.Context, record common.BeneficiaryRecord) error
	ListRecords(ctx context.Context) ([]common.BeneficiaryRecord, error)
}
