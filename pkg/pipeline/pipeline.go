package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prayatna/fraudscreen/backend/pkg/capability"
	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Stage names as they appear in combined results and persisted cases.
const (
	StageExtraction  = "nlp_extraction"
	StageAnomaly     = "anomaly"
	StageDuplicate   = "duplicate"
	StageNetwork     = "fraud_network"
	StageExplanation = "explanation"
)

// DefaultStageTimeout bounds each stage when no explicit timeout is set.
const DefaultStageTimeout = 5 * time.Second

// RecordSource provides the previously ingested beneficiary records that
// the fraud-network stage builds its graph over.
type RecordSource interface {
	ListRecords(ctx context.Context) ([]common.BeneficiaryRecord, error)
}

// StageOutcome is the recorded result of one stage. Error is nil unless
// Status is failed.
type StageOutcome struct {
	Status common.StageStatus     `json:"status"`
	Error  *capability.StageError `json:"error,omitempty"`
}

// Result is the combined outcome of one screening run. Every stage the
// pipeline knows about has an entry in Stages; score fields are nil when
// the producing stage did not succeed.
type Result struct {
	DocumentID   string                     `json:"document_id"`
	Record       *common.BeneficiaryRecord  `json:"record,omitempty"`
	AnomalyScore *float64                   `json:"anomaly_score,omitempty"`
	Duplicate    *capability.DuplicateMatch `json:"duplicate,omitempty"`
	Network      *graph.Assessment          `json:"network,omitempty"`
	Explanation  *explain.Explanation       `json:"explanation,omitempty"`
	Stages       map[string]StageOutcome    `json:"stages"`
}

// Seed maps the combined result onto the case the run is persisted as.
func (r *Result) Seed() store.CaseSeed {
	seed := store.CaseSeed{
		DocumentID: r.DocumentID,
		Stages:     r.StageStatuses(),
	}
	if r.Record != nil {
		seed.BeneficiaryID = r.Record.BeneficiaryID
	}
	seed.AnomalyScore = r.AnomalyScore
	if r.Duplicate != nil {
		seed.DuplicateRisk = &r.Duplicate.Likelihood
	}
	if r.Network != nil {
		risk := r.Network.RingRisk
		seed.NetworkRisk = &risk
		seed.RingSize = r.Network.RingSize
		seed.MasterAgent = r.Network.MasterAgent
	}
	return seed
}

// StageStatuses flattens the per-stage outcomes for persistence on a case.
func (r *Result) StageStatuses() map[string]common.StageStatus {
	statuses := make(map[string]common.StageStatus, len(r.Stages))
	for name, outcome := range r.Stages {
		statuses[name] = outcome.Status
	}
	return statuses
}

func (r *Result) ok(stage string) {
	r.Stages[stage] = StageOutcome{Status: common.StageSuccess}
}

func (r *Result) fail(stage string, err *capability.StageError) {
	r.Stages[stage] = StageOutcome{Status: common.StageFailed, Error: err}
	logger.Warn("[Pipeline] Stage failed", "stage", stage, "kind", err.Kind, "error", err.Err)
}

func (r *Result) skip(stages ...string) {
	for _, stage := range stages {
		r.Stages[stage] = StageOutcome{Status: common.StageSkipped}
	}
}

// Orchestrator runs the screening stages for one document: extraction first,
// then anomaly scoring and duplicate detection in parallel, then the
// fraud-network assessment, then an optional explanation.
//
// Stage failures are contained: they are recorded on the result and only
// cause dependent stages to be skipped. Run fails as a whole only for
// invalid input or caller cancellation.
type Orchestrator struct {
	Extraction capability.Capability[[]byte, common.BeneficiaryRecord]
	Anomaly    capability.Capability[capability.Features, float64]
	Duplicate  capability.Capability[capability.Identity, capability.DuplicateMatch]

	Graph   *graph.Cache
	Records RecordSource

	// Explainer is optional. When nil the explanation stage fails with a
	// well-typed unavailable error instead of being silently absent.
	Explainer explain.Client

	StageTimeout time.Duration
}

// Run screens one document and returns the combined result.
func (o *Orchestrator) Run(ctx context.Context, documentID string, document []byte) (*Result, error) {
	if documentID == "" {
		return nil, errors.New("document id is required")
	}
	if len(document) == 0 {
		return nil, errors.New("document is empty")
	}

	timeout := o.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}

	res := &Result{
		DocumentID: documentID,
		Stages:     make(map[string]StageOutcome, 5),
	}

	logger.Info("[Pipeline] Screening started", "documentId", documentID)

	record, stageErr := runStage(ctx, timeout, o.Extraction, document)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stageErr != nil {
		res.fail(StageExtraction, stageErr)
		res.skip(StageAnomaly, StageDuplicate, StageNetwork, StageExplanation)
		return res, nil
	}
	res.ok(StageExtraction)
	res.Record = &record

	var (
		anomalyScore float64
		anomalyErr   *capability.StageError
		dupMatch     capability.DuplicateMatch
		dupErr       *capability.StageError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		anomalyScore, anomalyErr = runStage(gctx, timeout, o.Anomaly, featuresOf(record))
		return nil
	})
	g.Go(func() error {
		dupMatch, dupErr = runStage(gctx, timeout, o.Duplicate, identityOf(record))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if anomalyErr != nil {
		res.fail(StageAnomaly, anomalyErr)
	} else {
		res.ok(StageAnomaly)
		res.AnomalyScore = &anomalyScore
	}

	if dupErr != nil {
		res.fail(StageDuplicate, dupErr)
		// The network assessment keys on resolved identity, so an
		// unresolved duplicate check makes it meaningless.
		res.skip(StageNetwork)
	} else {
		res.ok(StageDuplicate)
		res.Duplicate = &dupMatch

		network := &networkStage{cache: o.Graph, records: o.Records}
		assessment, netErr := runStage(ctx, timeout, network, record)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if netErr != nil {
			res.fail(StageNetwork, netErr)
		} else {
			res.ok(StageNetwork)
			res.Network = &assessment
		}
	}

	explanation, explainErr := o.runExplanation(ctx, timeout, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if explainErr != nil {
		res.fail(StageExplanation, explainErr)
	} else {
		res.ok(StageExplanation)
		res.Explanation = explanation
	}

	logger.Info("[Pipeline] Screening finished",
		"documentId", documentID,
		"beneficiaryId", record.BeneficiaryID,
	)

	return res, nil
}

// runStage executes one capability under the stage timeout and classifies
// any failure.
func runStage[I, O any](
	ctx context.Context,
	timeout time.Duration,
	stage capability.Capability[I, O],
	in I,
) (O, *capability.StageError) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := stage.Run(stageCtx, in)
	if err != nil {
		// A deadline on the stage context surfaces through the transport
		// in provider-specific shapes; normalize it here.
		if stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		var zero O
		return zero, capability.Classify(stage.Name(), err)
	}
	return out, nil
}

func featuresOf(record common.BeneficiaryRecord) capability.Features {
	return capability.Features{
		AnnualIncome:       record.AnnualIncome,
		RegistrationsPerID: record.RegistrationsPerID,
		BankSharedCount:    record.BankSharedCount,
		PhoneSharedCount:   record.PhoneSharedCount,
	}
}

func identityOf(record common.BeneficiaryRecord) capability.Identity {
	return capability.Identity{
		BeneficiaryID: record.BeneficiaryID,
		AadhaarID:     record.AadhaarID,
		Name:          record.Name,
		PhoneNumber:   record.PhoneNumber,
		BankAccount:   record.BankAccount,
		HouseholdID:   record.HouseholdID,
	}
}

// networkStage adapts the graph engine to the stage contract. It folds the
// current record into the known record set, obtains the cached snapshot for
// that set, and reads the assessment off it.
type networkStage struct {
	cache   *graph.Cache
	records RecordSource
}

func (s *networkStage) Name() string {
	return StageNetwork
}

func (s *networkStage) Run(ctx context.Context, record common.BeneficiaryRecord) (graph.Assessment, error) {
	if s.cache == nil || s.records == nil {
		return graph.Assessment{}, errors.New("fraud-network stage is not configured")
	}

	known, err := s.records.ListRecords(ctx)
	if err != nil {
		return graph.Assessment{}, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]common.BeneficiaryRecord, 0, len(known)+1)
	replaced := false
	for _, r := range known {
		if r.BeneficiaryID == record.BeneficiaryID {
			records = append(records, record)
			replaced = true
			continue
		}
		records = append(records, r)
	}
	if !replaced {
		records = append(records, record)
	}

	snapshot, err := s.cache.GetOrBuild(ctx, records)
	if err != nil {
		return graph.Assessment{}, err
	}
	return snapshot.Assess(record.BeneficiaryID), nil
}

func (o *Orchestrator) runExplanation(
	ctx context.Context,
	timeout time.Duration,
	res *Result,
) (*explain.Explanation, *capability.StageError) {
	if o.Explainer == nil {
		return nil, &capability.StageError{
			Stage: StageExplanation,
			Kind:  capability.KindUnavailable,
			Err:   errors.New("no explanation client configured"),
		}
	}

	req := explain.Request{Record: *res.Record}
	req.AnomalyScore = res.AnomalyScore
	if res.Duplicate != nil {
		req.DuplicateRisk = &res.Duplicate.Likelihood
	}
	if res.Network != nil {
		req.NetworkRisk = &res.Network.RingRisk
		req.RingSize = res.Network.RingSize
		req.MasterAgent = res.Network.MasterAgent
	}

	stage := &explainStage{client: o.Explainer}
	explanation, stageErr := runStage(ctx, timeout, stage, req)
	if stageErr != nil {
		return nil, stageErr
	}
	return &explanation, nil
}

// explainStage adapts the explanation client to the stage contract.
type explainStage struct {
	client explain.Client
}

func (s *explainStage) Name() string {
	return StageExplanation
}

func (s *explainStage) Run(ctx context.Context, req explain.Request) (explain.Explanation, error) {
	return s.client.Explain(ctx, req)
}
