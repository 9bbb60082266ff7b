// Package pgx implements the case and record stores on PostgreSQL. Case
// state lives on the cases row for cheap listing, but every transition is
// also appended to audit_entries, which remains the authoritative history.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const caseColumns = `id, document_id, beneficiary_id, anomaly_score, duplicate_risk,
	network_risk, ring_size, master_agent, stages, state, created_at, updated_at`

const sqlInsertCase = `
INSERT INTO cases (` + caseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
ON CONFLICT (document_id) DO NOTHING
RETURNING ` + caseColumns

const sqlSelectCaseByID = `
SELECT ` + caseColumns + ` FROM cases WHERE id = $1`

const sqlSelectCaseByDocument = `
SELECT ` + caseColumns + ` FROM cases WHERE document_id = $1`

const sqlSelectCases = `
SELECT ` + caseColumns + ` FROM cases
WHERE $1 = '' OR state = $1
ORDER BY updated_at DESC, id ASC
LIMIT $2`

const sqlUpdateCaseState = `
UPDATE cases SET state = $3, updated_at = now()
WHERE id = $1 AND state = $2
RETURNING ` + caseColumns

const sqlSelectCaseState = `
SELECT state FROM cases WHERE id = $1`

const sqlInsertAuditEntry = `
INSERT INTO audit_entries (id, case_id, actor, action, previous_state, new_state, rationale, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
RETURNING created_at`

const sqlSelectAuditEntries = `
SELECT id, case_id, actor, action, previous_state, new_state, rationale, created_at
FROM audit_entries
WHERE case_id = $1
ORDER BY created_at ASC, id ASC`

const sqlUpsertRecord = `
INSERT INTO beneficiary_records (beneficiary_id, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (beneficiary_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`

const sqlSelectRecords = `
SELECT payload FROM beneficiary_records ORDER BY beneficiary_id ASC`

// CaseStore implements store.CaseStore on a pgx connection pool.
type CaseStore struct {
	conn pgxIConn
}

func NewCaseStore(conn pgxIConn) *CaseStore {
	return &CaseStore{conn: conn}
}

func (s *CaseStore) InitCase(ctx context.Context, seed store.CaseSeed) (*common.Case, bool, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, false, err
	}

	stages, err := json.Marshal(seed.Stages)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode stages: %w", err)
	}

	row := s.conn.QueryRow(ctx, sqlInsertCase,
		id,
		seed.DocumentID,
		seed.BeneficiaryID,
		seed.AnomalyScore,
		seed.DuplicateRisk,
		seed.NetworkRisk,
		seed.RingSize,
		seed.MasterAgent,
		stages,
		common.CasePending,
	)

	c, err := scanCase(row)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return nil, false, err
	}

	// Conflict on document_id: another writer initialized this document.
	existing, err := s.GetCaseByDocument(ctx, seed.DocumentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *CaseStore) GetCase(ctx context.Context, id string) (*common.Case, error) {
	c, err := scanCase(s.conn.QueryRow(ctx, sqlSelectCaseByID, id))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrCaseNotFound
	}
	return c, err
}

func (s *CaseStore) GetCaseByDocument(ctx context.Context, documentID string) (*common.Case, error) {
	c, err := scanCase(s.conn.QueryRow(ctx, sqlSelectCaseByDocument, documentID))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrCaseNotFound
	}
	return c, err
}

func (s *CaseStore) ListCases(ctx context.Context, params store.ListCasesParams) ([]common.Case, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.Query(ctx, sqlSelectCases, string(params.State), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []common.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

func (s *CaseStore) Decide(ctx context.Context, params store.DecideParams) (*common.Case, *common.AuditEntry, error) {
	if !store.ValidTransition(params.PreviousState, params.NewState) {
		return nil, nil, store.ErrInvalidTransition
	}

	entryID, err := gonanoid.New()
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	c, err := scanCase(tx.QueryRow(ctx, sqlUpdateCaseState,
		params.CaseID, params.PreviousState, params.NewState))
	if err != nil {
		if !errors.Is(err, pgxv5.ErrNoRows) {
			return nil, nil, err
		}
		// No row updated: the case is gone or its state moved on.
		var actual common.CaseState
		err := tx.QueryRow(ctx, sqlSelectCaseState, params.CaseID).Scan(&actual)
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, nil, store.ErrCaseNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, &store.ConflictError{
			CaseID:   params.CaseID,
			Expected: params.PreviousState,
			Actual:   actual,
		}
	}

	entry := common.AuditEntry{
		ID:            entryID,
		CaseID:        params.CaseID,
		Actor:         params.Actor,
		Action:        params.Action,
		PreviousState: params.PreviousState,
		NewState:      params.NewState,
		Rationale:     params.Rationale,
	}
	if err := tx.QueryRow(ctx, sqlInsertAuditEntry,
		entry.ID, entry.CaseID, entry.Actor, entry.Action,
		entry.PreviousState, entry.NewState, entry.Rationale,
	).Scan(&entry.Timestamp); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return c, &entry, nil
}

func (s *CaseStore) ListAuditEntries(ctx context.Context, caseID string) ([]common.AuditEntry, error) {
	if _, err := s.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, sqlSelectAuditEntries, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []common.AuditEntry
	for rows.Next() {
		var entry common.AuditEntry
		if err := rows.Scan(
			&entry.ID, &entry.CaseID, &entry.Actor, &entry.Action,
			&entry.PreviousState, &entry.NewState, &entry.Rationale, &entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanCase(row pgxv5.Row) (*common.Case, error) {
	var (
		c      common.Case
		stages []byte
	)
	if err := row.Scan(
		&c.ID, &c.DocumentID, &c.BeneficiaryID,
		&c.AnomalyScore, &c.DuplicateRisk, &c.NetworkRisk,
		&c.RingSize, &c.MasterAgent, &stages, &c.State,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &c.Stages); err != nil {
			return nil, fmt.Errorf("failed to decode stages: %w", err)
		}
	}
	return &c, nil
}

// RecordStore implements store.RecordStore on a pgx connection pool. The
// record payload is stored as jsonb so feature additions do not need
// migrations.
type RecordStore struct {
	conn pgxIConn
}

func NewRecordStore(conn pgxIConn) *RecordStore {
	return &RecordStore{conn: conn}
}

func (s *RecordStore) SaveRecord(ctx context.Context, record common.BeneficiaryRecord) error {
	if record.BeneficiaryID == "" {
		return errors.New("record has no beneficiary id")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.conn.Exec(ctx, sqlUpsertRecord, record.BeneficiaryID, payload)
	return err
}

func (s *RecordStore) ListRecords(ctx context.Context) ([]common.BeneficiaryRecord, error) {
	rows, err := s.conn.Query(ctx, sqlSelectRecords)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []common.BeneficiaryRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record common.BeneficiaryRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
