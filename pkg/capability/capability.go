package capability

import (
	"context"
	"errors"
	"fmt"
)

// Capability is the uniform contract every analytic stage satisfies. The
// orchestrator only ever talks to stages through this interface, so external
// model services and the in-process graph engine are interchangeable.
type Capability[I, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// StageErrorKind classifies why a stage failed.
type StageErrorKind string

const (
	KindTimeout       StageErrorKind = "timeout"
	KindUnavailable   StageErrorKind = "unavailable"
	KindInvalidOutput StageErrorKind = "invalid_output"
)

// ErrInvalidOutput marks stage responses that parsed but violate the
// contract, e.g. a probability outside [0,1]. Wrap it with fmt.Errorf("%w").
var ErrInvalidOutput = errors.New("invalid stage output")

// StageError is the contained failure of a single analytic stage. Stage
// failures never crash the pipeline; they are recorded on the combined
// result and downstream dependents are skipped.
type StageError struct {
	Stage string
	Kind  StageErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Classify wraps a raw stage failure into a StageError, mapping context
// deadline errors to timeouts and contract violations to invalid output.
func Classify(stage string, err error) *StageError {
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, ErrInvalidOutput):
		kind = KindInvalidOutput
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Features is the numeric feature vector consumed by the anomaly-scoring
// stage.
type Features struct {
	AnnualIncome       float64 `json:"annual_income"`
	RegistrationsPerID int     `json:"registrations_per_aadhaar"`
	BankSharedCount    int     `json:"bank_shared_count"`
	PhoneSharedCount   int     `json:"phone_shared_count"`
}

// Validate checks the vector against the ranges the anomaly model was
// trained on. Out-of-range features mean the extraction stage produced a
// record the model cannot score.
func (f Features) Validate() error {
	if f.AnnualIncome < 0 {
		return fmt.Errorf("annual income %f is negative", f.AnnualIncome)
	}
	if f.RegistrationsPerID < 1 || f.RegistrationsPerID > 10 {
		return fmt.Errorf("registrations per id %d outside [1,10]", f.RegistrationsPerID)
	}
	if f.BankSharedCount < 1 || f.BankSharedCount > 15 {
		return fmt.Errorf("bank shared count %d outside [1,15]", f.BankSharedCount)
	}
	if f.PhoneSharedCount < 1 || f.PhoneSharedCount > 15 {
		return fmt.Errorf("phone shared count %d outside [1,15]", f.PhoneSharedCount)
	}
	return nil
}

// Identity is the identity field mapping consumed by duplicate detection.
type Identity struct {
	BeneficiaryID string `json:"beneficiary_id"`
	AadhaarID     string `json:"aadhaar_like_id"`
	Name          string `json:"name"`
	PhoneNumber   string `json:"phone_number"`
	BankAccount   string `json:"bank_account"`
	HouseholdID   string `json:"household_id"`
}

// DuplicateMatch is the duplicate-detection stage output: a likelihood in
// [0,1] and, when a match was found, the id of the matched prior record.
type DuplicateMatch struct {
	Likelihood      float64 `json:"likelihood"`
	MatchedRecordID string  `json:"matched_record_id,omitempty"`
}
