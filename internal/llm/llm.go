// Package llm wraps chat completion models behind a narrow interface so
// servers can be tested without network access.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Request is a single-turn completion request. Credentials travel with the
// request because they are read from configuration at call time.
type Request struct {
	APIKey    string
	BaseURL   string
	Model     string
	System    string
	Prompt    string
	MaxTokens int // 0 leaves the provider default
}

// Completer turns a prompt into a reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var ErrMissingAPIKey = errors.New("API key is required")

// OpenAI completes prompts with an OpenAI-compatible chat model.
type OpenAI struct{}

func (OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	cfg := &openai.ChatModelConfig{
		Model:  req.Model,
		APIKey: req.APIKey,
	}
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("create chat model: %w", err)
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	response, err := chatModel.Generate(ctx, Messages(req), opts...)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if response == nil {
		return "", errors.New("chat completion returned no message")
	}
	return response.Content, nil
}

// Messages builds the conversation sent for req.
func Messages(req Request) []*schema.Message {
	messages := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	return append(messages, schema.UserMessage(req.Prompt))
}
