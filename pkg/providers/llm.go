package providers

import (
	"context"
	"fmt"
	"time"
)

// LLMClient implements fitscore.LLMClient against a remote chat-completion
// endpoint. The caller-supplied model argument (from the pipeline request)
// overrides the provider's configured default per call, so Complete
// takes model as a parameter rather than baking it into the client.
type LLMClient struct {
	base         baseClient
	defaultModel string
}

func NewLLMClient(baseURL, apiKey, defaultModel string, timeout time.Duration) *LLMClient {
	return &LLMClient{base: newBaseClient(baseURL, apiKey, timeout), defaultModel: defaultModel}
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string               `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionChoice struct {
	Message completionMessage `json:"message"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
}

// Complete satisfies fitscore.LLMClient: prompt in, raw text out.
func (c *LLMClient) Complete(ctx context.Context, model string, prompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	req := completionRequest{
		Model:    model,
		Messages: []completionMessage{{Role: "user", Content: prompt}},
	}
	var resp completionResponse
	if err := c.base.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("complete: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
