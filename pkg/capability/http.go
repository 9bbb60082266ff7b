package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

// HTTPDoer is the subset of http.Client the stage clients need.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func postJSON(ctx context.Context, doer HTTPDoer, url string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := doer.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("service returned %d: %s", res.StatusCode, string(payload))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrInvalidOutput, err)
	}
	return nil
}

// ExtractionClient calls the external document-understanding service that
// turns a raw application document into a structured beneficiary record.
type ExtractionClient struct {
	BaseURL string
	Client  HTTPDoer
}

func NewExtractionClient(baseURL string) *ExtractionClient {
	return &ExtractionClient{BaseURL: baseURL, Client: http.DefaultClient}
}

func (c *ExtractionClient) Name() string {
	return "nlp_extraction"
}

func (c *ExtractionClient) Run(ctx context.Context, document []byte) (common.BeneficiaryRecord, error) {
	var record common.BeneficiaryRecord

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", bytes.NewReader(document))
	if err != nil {
		return record, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.Client.Do(req)
	if err != nil {
		return record, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return record, fmt.Errorf("extraction service returned %d: %s", res.StatusCode, string(payload))
	}
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		return record, fmt.Errorf("%w: failed to decode extraction response: %v", ErrInvalidOutput, err)
	}
	if record.BeneficiaryID == "" {
		return record, fmt.Errorf("%w: extraction returned no beneficiary id", ErrInvalidOutput)
	}
	return record, nil
}

// AnomalyClient calls the anomaly-scoring model service with the numeric
// feature vector of a beneficiary record.
type AnomalyClient struct {
	BaseURL string
	Client  HTTPDoer
}

func NewAnomalyClient(baseURL string) *AnomalyClient {
	return &AnomalyClient{BaseURL: baseURL, Client: http.DefaultClient}
}

func (c *AnomalyClient) Name() string {
	return "anomaly"
}

func (c *AnomalyClient) Run(ctx context.Context, features Features) (float64, error) {
	if err := features.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	var out struct {
		Probability float64 `json:"probability"`
	}
	if err := postJSON(ctx, c.Client, c.BaseURL+"/predict", features, &out); err != nil {
		return 0, err
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("%w: anomaly probability %f outside [0,1]", ErrInvalidOutput, out.Probability)
	}
	return out.Probability, nil
}

// DuplicateClient calls the duplicate-detection model service with the
// identity fields of a beneficiary record.
type DuplicateClient struct {
	BaseURL string
	Client  HTTPDoer
}

func NewDuplicateClient(baseURL string) *DuplicateClient {
	return &DuplicateClient{BaseURL: baseURL, Client: http.DefaultClient}
}

func (c *DuplicateClient) Name() string {
	return "duplicate"
}

func (c *DuplicateClient) Run(ctx context.Context, identity Identity) (DuplicateMatch, error) {
	var match DuplicateMatch
	if err := postJSON(ctx, c.Client, c.BaseURL+"/predict", identity, &match); err != nil {
		return match, err
	}
	if match.Likelihood < 0 || match.Likelihood > 1 {
		return match, fmt.Errorf("%w: duplicate likelihood %f outside [0,1]", ErrInvalidOutput, match.Likelihood)
	}
	return match, nil
}
