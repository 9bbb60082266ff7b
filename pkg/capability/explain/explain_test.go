package explain

import (
	"strings"
	"testing"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

func TestBuildPrompt_MissingScoresReportedUnavailable(t *testing.T) {
	anomaly := 0.91
	req := Request{
		Record: common.BeneficiaryRecord{
			BeneficiaryID: "BEN_001",
			Name:          "Asha Kumari",
			District:      "Patna",
			AnnualIncome:  54000,
		},
		AnomalyScore: &anomaly,
		RingSize:     4,
		MasterAgent:  true,
	}

	prompt := BuildPrompt(req)

	if !strings.Contains(prompt, "Anomaly score: 0.910.") {
		t.Errorf("expected anomaly score in prompt, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Duplicate likelihood: unavailable.") {
		t.Errorf("expected unavailable duplicate likelihood, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ring of size 4") {
		t.Errorf("expected ring size in prompt, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ring coordinator") {
		t.Errorf("expected coordinator note in prompt, got:\n%s", prompt)
	}
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "standard json",
			input: `{"summary": "High risk.", "factors": ["shared bank account"]}`,
		},
		{
			name:  "double encoded",
			input: `"{\"summary\": \"High risk.\", \"factors\": [\"shared bank account\"]}"`,
		},
		{
			name:  "malformed but repairable",
			input: `{summary: "High risk.", factors: ["shared bank account"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out Explanation
			if err := UnmarshalFlexible(tt.input, &out); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if out.Summary != "High risk." {
				t.Errorf("Summary = %q, want %q", out.Summary, "High risk.")
			}
			if len(out.Factors) != 1 || out.Factors[0] != "shared bank account" {
				t.Errorf("Factors = %v, want one shared bank account factor", out.Factors)
			}
		})
	}
}
