// Package memory implements the case and record stores as in-process
// structures. It backs tests and single-node deployments that do not need
// Postgres; the audit ledger is the source of truth for case state either
// way.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CaseStore is an in-process store.CaseStore. Cases and audit entries are
// kept in insertion order; the ledger is append-only.
type CaseStore struct {
	mu         sync.Mutex
	cases      map[string]*common.Case
	byDocument map[string]string
	audit      map[string][]common.AuditEntry

	now func() time.Time
}

func NewCaseStore() *CaseStore {
	return &CaseStore{
		cases:      make(map[string]*common.Case),
		byDocument: make(map[string]string),
		audit:      make(map[string][]common.AuditEntry),
		now:        time.Now,
	}
}

// InitCase creates a pending case for the seed's document, or returns the
// existing case untouched when the document was already initialized.
func (s *CaseStore) InitCase(ctx context.Context, seed store.CaseSeed) (*common.Case, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byDocument[seed.DocumentID]; ok {
		return copyCase(s.cases[id]), false, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	c := &common.Case{
		ID:            id,
		DocumentID:    seed.DocumentID,
		BeneficiaryID: seed.BeneficiaryID,
		AnomalyScore:  seed.AnomalyScore,
		DuplicateRisk: seed.DuplicateRisk,
		NetworkRisk:   seed.NetworkRisk,
		RingSize:      seed.RingSize,
		MasterAgent:   seed.MasterAgent,
		Stages:        copyStages(seed.Stages),
		State:         common.CasePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.cases[id] = c
	s.byDocument[seed.DocumentID] = id
	return copyCase(c), true, nil
}

func (s *CaseStore) GetCase(ctx context.Context, id string) (*common.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, store.ErrCaseNotFound
	}
	return copyCase(c), nil
}

func (s *CaseStore) GetCaseByDocument(ctx context.Context, documentID string) (*common.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byDocument[documentID]
	if !ok {
		return nil, store.ErrCaseNotFound
	}
	return copyCase(s.cases[id]), nil
}

// ListCases returns cases most recently updated first.
func (s *CaseStore) ListCases(ctx context.Context, params store.ListCasesParams) ([]common.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cases := make([]common.Case, 0, len(s.cases))
	for _, c := range s.cases {
		if params.State != "" && c.State != params.State {
			continue
		}
		cases = append(cases, *copyCase(c))
	}

	sort.Slice(cases, func(i, j int) bool {
		if !cases[i].UpdatedAt.Equal(cases[j].UpdatedAt) {
			return cases[i].UpdatedAt.After(cases[j].UpdatedAt)
		}
		return cases[i].ID < cases[j].ID
	})

	if params.Limit > 0 && len(cases) > params.Limit {
		cases = cases[:params.Limit]
	}
	return cases, nil
}

// Decide applies one admin decision. The stored state must still match the
// state the actor observed, otherwise a ConflictError is returned and no
// audit entry is written.
func (s *CaseStore) Decide(ctx context.Context, params store.DecideParams) (*common.Case, *common.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[params.CaseID]
	if !ok {
		return nil, nil, store.ErrCaseNotFound
	}

	if !store.ValidTransition(params.PreviousState, params.NewState) {
		return nil, nil, store.ErrInvalidTransition
	}
	if c.State != params.PreviousState {
		return nil, nil, &store.ConflictError{
			CaseID:   c.ID,
			Expected: params.PreviousState,
			Actual:   c.State,
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	entry := common.AuditEntry{
		ID:            id,
		CaseID:        c.ID,
		Actor:         params.Actor,
		Action:        params.Action,
		PreviousState: params.PreviousState,
		NewState:      params.NewState,
		Rationale:     params.Rationale,
		Timestamp:     now,
	}

	c.State = params.NewState
	c.UpdatedAt = now
	s.audit[c.ID] = append(s.audit[c.ID], entry)

	return copyCase(c), &entry, nil
}

// ListAuditEntries returns the case's ledger oldest first.
func (s *CaseStore) ListAuditEntries(ctx context.Context, caseID string) ([]common.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[caseID]; !ok {
		return nil, store.ErrCaseNotFound
	}

	entries := make([]common.AuditEntry, len(s.audit[caseID]))
	copy(entries, s.audit[caseID])
	return entries, nil
}

func copyCase(c *common.Case) *common.Case {
	dup := *c
	dup.Stages = copyStages(c.Stages)
	return &dup
}

func copyStages(stages map[string]common.StageStatus) map[string]common.StageStatus {
	if stages == nil {
		return nil
	}
	dup := make(map[string]common.StageStatus, len(stages))
	for k, v := range stages {
		dup[k] = v
	}
	return dup
}

// RecordStore is an in-process store.RecordStore keyed by beneficiary id.
type RecordStore struct {
	mu      sync.Mutex
	records map[string]common.BeneficiaryRecord
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]common.BeneficiaryRecord),
	}
}

func (s *RecordStore) SaveRecord(ctx context.Context, record common.BeneficiaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.BeneficiaryID] = record
	return nil
}

// ListRecords returns all known records sorted by beneficiary id.
func (s *RecordStore) ListRecords(ctx context.Context) ([]common.BeneficiaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]common.BeneficiaryRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].BeneficiaryID < records[j].BeneficiaryID
	})
	return records, nil
}
