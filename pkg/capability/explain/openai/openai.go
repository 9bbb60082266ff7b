package openai

import (
	"context"
	"fmt"

	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You are a fraud-screening assistant for a welfare " +
	"program. You explain risk scores to human case reviewers. Be factual " +
	"and concise, and never speculate beyond the provided scores."

// ExplainClient generates case explanations through an OpenAI-compatible
// chat completion API.
type ExplainClient struct {
	model  string
	client *openai.Client
}

// NewExplainClientParams configures an ExplainClient. BaseURL may be empty
// for the default OpenAI endpoint.
type NewExplainClientParams struct {
	Model   string
	BaseURL string
	ApiKey  string
}

func NewExplainClient(params NewExplainClientParams) *ExplainClient {
	options := []option.RequestOption{
		option.WithAPIKey(params.ApiKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}

	client := openai.NewClient(options...)

	return &ExplainClient{
		model:  params.Model,
		client: &client,
	}
}

// Explain asks the chat model for a structured explanation, enforcing the
// Explanation schema through the response format.
func (c *ExplainClient) Explain(
	ctx context.Context,
	req explain.Request,
) (explain.Explanation, error) {
	var out explain.Explanation

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "case_explanation",
		Description: openai.String("Reviewer-facing explanation of a screened welfare case"),
		Schema:      explain.Schema(out),
		Strict:      openai.Bool(true),
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(explain.BuildPrompt(req)),
		},
		Temperature: openai.Float(0.1),
	}

	response, err := c.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return out, err
	}

	if len(response.Choices) == 0 {
		return out, fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return out, fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}

	if err := explain.UnmarshalFlexible(message, &out); err != nil {
		return out, err
	}
	return out, nil
}
