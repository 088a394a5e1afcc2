// Package llamacpp talks to OpenAI-compatible chat completion servers such as
// llama.cpp's llama-server, vLLM, or the OpenAI API itself.
package llamacpp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/types"
)

const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 300 * time.Second
)

type Client struct {
	api *openai.Client
}

var _ client.VisionClient = (*Client)(nil)

// NewClient creates a client for a local server that needs no API key.
func NewClient(serverURL string) (*Client, error) {
	return NewClientWithKey(serverURL, "")
}

// NewClientWithKey creates a client that authenticates with apiKey. The
// server URL may be given with or without its /v1 suffix.
func NewClientWithKey(serverURL, apiKey string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	serverURL = strings.TrimSuffix(serverURL, "/")
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}
	if !strings.HasSuffix(serverURL, "/v1") {
		serverURL += "/v1"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = serverURL
	config.HTTPClient = &http.Client{Timeout: DefaultTimeout}

	return &Client{api: openai.NewClientWithConfig(config)}, nil
}

func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    userMessage(prompt, imgB64),
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        0.9,
	})
}

func (c *Client) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    userMessage(prompt, imgB64),
		Temperature: 0.1,
		MaxTokens:   4096,
		TopP:        0.8,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response from chat completion server", types.ErrInvalidDetection)
	}
	return client.ParseAnalysisResult(text)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	msg := resp.Choices[0].Message
	if msg.Content != "" {
		return msg.Content, nil
	}
	// Some servers answer with content parts instead of a plain string
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
			return part.Text, nil
		}
	}
	return "", nil
}

func userMessage(prompt, imgB64 string) []openai.ChatCompletionMessage {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	if imgB64 != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + imgB64,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
}
