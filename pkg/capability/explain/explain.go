package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/prayatna/fraudscreen/backend/pkg/common"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Explanation is the structured narrative produced for a screened case. It
// is advisory output for reviewers and never feeds back into scoring.
type Explanation struct {
	Summary string   `json:"summary"`
	Factors []string `json:"factors"`
}

// Request carries everything the explanation model sees about a case: the
// extracted record plus the scores the pipeline collected. Nil scores mean
// the corresponding stage did not produce a result.
type Request struct {
	Record        common.BeneficiaryRecord
	AnomalyScore  *float64
	DuplicateRisk *float64
	NetworkRisk   *float64
	RingSize      int
	MasterAgent   bool
}

// Client generates reviewer-facing explanations for screened cases.
// Implementations exist for OpenAI-compatible APIs and local Ollama models.
type Client interface {
	Explain(ctx context.Context, req Request) (Explanation, error)
}

// BuildPrompt renders the request into the model prompt. Scores that were
// never produced are reported as unavailable rather than zero so the model
// does not invent findings for failed stages.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Beneficiary %s (%s), district %s.\n",
		req.Record.BeneficiaryID, req.Record.Name, req.Record.District)
	fmt.Fprintf(&b, "Annual income: %.0f. Registrations per id: %d.\n",
		req.Record.AnnualIncome, req.Record.RegistrationsPerID)

	writeScore(&b, "Anomaly score", req.AnomalyScore)
	writeScore(&b, "Duplicate likelihood", req.DuplicateRisk)
	writeScore(&b, "Network risk", req.NetworkRisk)

	if req.RingSize > 0 {
		fmt.Fprintf(&b, "Member of a suspected fraud ring of size %d.\n", req.RingSize)
		if req.MasterAgent {
			b.WriteString("Identified as the likely ring coordinator.\n")
		}
	}

	b.WriteString("\nSummarize the fraud risk of this welfare application for a human reviewer. ")
	b.WriteString("List only factors supported by the scores above.")
	return b.String()
}

func writeScore(b *strings.Builder, label string, score *float64) {
	if score == nil {
		fmt.Fprintf(b, "%s: unavailable.\n", label)
		return
	}
	fmt.Fprintf(b, "%s: %.3f.\n", label, *score)
}

// Schema creates a JSON Schema from the given Go type, suitable for
// structured model output.
func Schema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// UnmarshalFlexible unmarshals model-generated JSON, tolerating
// double-encoded strings and repairable malformations.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("failed to unmarshal repaired json: %w", err)
	}
	return nil
}
