// Package llm answers free-form caller questions through an OpenAI-compatible
// chat completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"yuzu/receptionist/internal/types"
	"yuzu/receptionist/internal/upstream"
)

const service = "language_model"

// Request is one completion: persona, recent exchanges, then the new utterance.
type Request struct {
	System    string
	Memory    []types.MemoryEntry
	Utterance string
	MaxTokens int
}

type Client struct {
	api    *openai.Client
	model  string
	hasKey bool
}

func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		model:  model,
		hasKey: apiKey != "",
	}
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.hasKey {
		return "", upstream.New(service, upstream.KindConfig, fmt.Errorf("missing api key"))
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  toMessages(req),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", upstream.New(service, upstream.KindUnavailable, fmt.Errorf("no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, 2+2*len(req.Memory))
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Memory {
		out = append(out,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Caller},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Reply},
		)
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Utterance})
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return upstream.New(service, upstream.FromStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return upstream.New(service, upstream.FromStatus(reqErr.HTTPStatusCode), err)
	}
	return upstream.New(service, upstream.KindUnavailable, err)
}
