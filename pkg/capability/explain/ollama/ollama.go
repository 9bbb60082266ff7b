package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

const systemPrompt = "You are a fraud-screening assistant for a welfare " +
	"program. You explain risk scores to human case reviewers. Be factual " +
	"and concise, and never speculate beyond the provided scores."

// ExplainClient generates case explanations through a locally-hosted Ollama
// model. Concurrent requests are bounded by a semaphore so a batch of
// screenings cannot overload the model server.
type ExplainClient struct {
	model   string
	reqLock *semaphore.Weighted

	Client *api.Client
}

// NewExplainClientParams configures an ExplainClient. BaseURL may be empty
// for the default local Ollama endpoint.
type NewExplainClientParams struct {
	Model   string
	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

func NewExplainClient(params NewExplainClientParams) (*ExplainClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &ExplainClient{
		model:   params.Model,
		reqLock: semaphore.NewWeighted(maxConcurrent),
		Client:  api.NewClient(u, httpClient),
	}, nil
}

// Explain asks the model for a structured explanation, enforcing the
// Explanation schema through Ollama's format parameter.
func (c *ExplainClient) Explain(
	ctx context.Context,
	req explain.Request,
) (explain.Explanation, error) {
	var out explain.Explanation

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return out, err
	}
	defer c.reqLock.Release(1)

	formatBytes, err := json.Marshal(explain.Schema(out))
	if err != nil {
		return out, err
	}
	var format json.RawMessage = formatBytes

	stream := false
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: explain.BuildPrompt(req)},
		},
		Stream:  &stream,
		Format:  format,
		Options: map[string]any{"temperature": 0.1},
	}

	var content string
	if err := c.Client.Chat(ctx, chatReq, func(cr api.ChatResponse) error {
		content += cr.Message.Content
		return nil
	}); err != nil {
		return out, err
	}

	if err := explain.UnmarshalFlexible(content, &out); err != nil {
		return out, err
	}
	return out, nil
}
