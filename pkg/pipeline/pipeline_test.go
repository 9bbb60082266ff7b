package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prayatna/fraudscreen/backend/pkg/capability"
	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
)

type fakeStage[I, O any] struct {
	name string
	fn   func(ctx context.Context, in I) (O, error)
}

func (s *fakeStage[I, O]) Name() string {
	return s.name
}

func (s *fakeStage[I, O]) Run(ctx context.Context, in I) (O, error) {
	return s.fn(ctx, in)
}

type fakeRecords []common.BeneficiaryRecord

func (f fakeRecords) ListRecords(ctx context.Context) ([]common.BeneficiaryRecord, error) {
	return f, nil
}

type fakeExplainer struct {
	fn func(ctx context.Context, req explain.Request) (explain.Explanation, error)
}

func (f *fakeExplainer) Explain(ctx context.Context, req explain.Request) (explain.Explanation, error) {
	return f.fn(ctx, req)
}

func newRecord(id string) common.BeneficiaryRecord {
	return common.BeneficiaryRecord{
		BeneficiaryID: id,
		AadhaarID:     "AAD_" + id,
		Name:          "Beneficiary " + id,
		PhoneNumber:   "PH_" + id,
		BankAccount:   "ACC_" + id,
		HouseholdID:   "HH_" + id,
		District:      "Patna",
		AnnualIncome:  54000,
	}
}

func extractionReturning(record common.BeneficiaryRecord) capability.Capability[[]byte, common.BeneficiaryRecord] {
	return &fakeStage[[]byte, common.BeneficiaryRecord]{
		name: StageExtraction,
		fn: func(ctx context.Context, in []byte) (common.BeneficiaryRecord, error) {
			return record, nil
		},
	}
}

func anomalyReturning(score float64, err error) capability.Capability[capability.Features, float64] {
	return &fakeStage[capability.Features, float64]{
		name: StageAnomaly,
		fn: func(ctx context.Context, in capability.Features) (float64, error) {
			return score, err
		},
	}
}

func duplicateReturning(match capability.DuplicateMatch, err error) capability.Capability[capability.Identity, capability.DuplicateMatch] {
	return &fakeStage[capability.Identity, capability.DuplicateMatch]{
		name: StageDuplicate,
		fn: func(ctx context.Context, in capability.Identity) (capability.DuplicateMatch, error) {
			return match, err
		},
	}
}

func newOrchestrator() *Orchestrator {
	// BEN_B and BEN_C share the applicant's bank account, so the applicant
	// joins a ring of three.
	known := []common.BeneficiaryRecord{newRecord("BEN_B"), newRecord("BEN_C")}
	known[0].BankAccount = "ACC_BEN_A"
	known[1].BankAccount = "ACC_BEN_A"

	return &Orchestrator{
		Extraction: extractionReturning(newRecord("BEN_A")),
		Anomaly:    anomalyReturning(0.82, nil),
		Duplicate:  duplicateReturning(capability.DuplicateMatch{Likelihood: 0.12}, nil),
		Graph:      graph.NewCache(graph.NewCacheParams{MinRingSize: 3, Capacity: 4}),
		Records:    fakeRecords(known),
	}
}

func TestOrchestrator_AllStagesSucceed(t *testing.T) {
	o := newOrchestrator()
	o.Explainer = &fakeExplainer{
		fn: func(ctx context.Context, req explain.Request) (explain.Explanation, error) {
			return explain.Explanation{Summary: "High risk."}, nil
		},
	}

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, stage := range []string{StageExtraction, StageAnomaly, StageDuplicate, StageNetwork, StageExplanation} {
		if got := res.Stages[stage].Status; got != common.StageSuccess {
			t.Errorf("stage %s = %s, want %s", stage, got, common.StageSuccess)
		}
	}
	if res.AnomalyScore == nil || *res.AnomalyScore != 0.82 {
		t.Errorf("AnomalyScore = %v, want 0.82", res.AnomalyScore)
	}
	if res.Network == nil {
		t.Fatal("expected network assessment")
	}
	if !res.Network.InRing || res.Network.RingSize != 3 {
		t.Errorf("InRing = %v RingSize = %d, want ring of 3", res.Network.InRing, res.Network.RingSize)
	}
	if res.Explanation == nil || res.Explanation.Summary != "High risk." {
		t.Errorf("Explanation = %v, want summary", res.Explanation)
	}
}

func TestOrchestrator_AnomalyFailureIsContained(t *testing.T) {
	o := newOrchestrator()
	o.Anomaly = anomalyReturning(0, errors.New("connection refused"))

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome := res.Stages[StageAnomaly]
	if outcome.Status != common.StageFailed {
		t.Fatalf("anomaly status = %s, want %s", outcome.Status, common.StageFailed)
	}
	if outcome.Error == nil || outcome.Error.Kind != capability.KindUnavailable {
		t.Errorf("anomaly error = %v, want unavailable", outcome.Error)
	}
	if res.AnomalyScore != nil {
		t.Error("failed stage must not leave a partial score")
	}

	// Unrelated stages still run.
	if got := res.Stages[StageDuplicate].Status; got != common.StageSuccess {
		t.Errorf("duplicate status = %s, want %s", got, common.StageSuccess)
	}
	if got := res.Stages[StageNetwork].Status; got != common.StageSuccess {
		t.Errorf("network status = %s, want %s", got, common.StageSuccess)
	}
}

func TestOrchestrator_DuplicateFailureSkipsNetwork(t *testing.T) {
	o := newOrchestrator()
	o.Duplicate = duplicateReturning(capability.DuplicateMatch{}, errors.New("service down"))

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := res.Stages[StageDuplicate].Status; got != common.StageFailed {
		t.Errorf("duplicate status = %s, want %s", got, common.StageFailed)
	}
	if got := res.Stages[StageNetwork].Status; got != common.StageSkipped {
		t.Errorf("network status = %s, want %s", got, common.StageSkipped)
	}
	if res.Network != nil {
		t.Error("skipped stage must not produce a result")
	}
}

func TestOrchestrator_ExtractionFailureSkipsEverything(t *testing.T) {
	o := newOrchestrator()
	o.Extraction = &fakeStage[[]byte, common.BeneficiaryRecord]{
		name: StageExtraction,
		fn: func(ctx context.Context, in []byte) (common.BeneficiaryRecord, error) {
			return common.BeneficiaryRecord{}, errors.New("model unavailable")
		},
	}

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := res.Stages[StageExtraction].Status; got != common.StageFailed {
		t.Errorf("extraction status = %s, want %s", got, common.StageFailed)
	}
	for _, stage := range []string{StageAnomaly, StageDuplicate, StageNetwork, StageExplanation} {
		if got := res.Stages[stage].Status; got != common.StageSkipped {
			t.Errorf("stage %s = %s, want %s", stage, got, common.StageSkipped)
		}
	}
	if res.Record != nil {
		t.Error("failed extraction must not leave a record")
	}
}

func TestOrchestrator_StageTimeout(t *testing.T) {
	o := newOrchestrator()
	o.StageTimeout = 20 * time.Millisecond
	o.Anomaly = &fakeStage[capability.Features, float64]{
		name: StageAnomaly,
		fn: func(ctx context.Context, in capability.Features) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome := res.Stages[StageAnomaly]
	if outcome.Status != common.StageFailed {
		t.Fatalf("anomaly status = %s, want %s", outcome.Status, common.StageFailed)
	}
	if outcome.Error.Kind != capability.KindTimeout {
		t.Errorf("error kind = %s, want %s", outcome.Error.Kind, capability.KindTimeout)
	}
}

func TestOrchestrator_MissingExplainerFailsUnavailable(t *testing.T) {
	o := newOrchestrator()

	res, err := o.Run(context.Background(), "DOC_1", []byte("application"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome := res.Stages[StageExplanation]
	if outcome.Status != common.StageFailed {
		t.Fatalf("explanation status = %s, want %s", outcome.Status, common.StageFailed)
	}
	if outcome.Error.Kind != capability.KindUnavailable {
		t.Errorf("error kind = %s, want %s", outcome.Error.Kind, capability.KindUnavailable)
	}
}

func TestOrchestrator_RejectsEmptyInput(t *testing.T) {
	o := newOrchestrator()

	if _, err := o.Run(context.Background(), "DOC_1", nil); err == nil {
		t.Error("expected error for empty document")
	}
	if _, err := o.Run(context.Background(), "", []byte("application")); err == nil {
		t.Error("expected error for missing document id")
	}
}

func TestOrchestrator_CancellationAborts(t *testing.T) {
	o := newOrchestrator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Run(ctx, "DOC_1", []byte("application")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
