package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = "You are a story generator. You will be given a prompt and you will write a story for a " +
	"short narrated video based on it. Write plain narration only: no titles, no markdown, no stage directions."

type StoryOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// StoryGenerator writes stories with a chat completion model.
type StoryGenerator struct {
	client *goopenai.Client
	key    string
	opts   StoryOptions
}

func NewStoryGenerator(client *goopenai.Client, apiKey string, opts StoryOptions) *StoryGenerator {
	if opts.Model == "" {
		opts.Model = goopenai.GPT4oMini
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 10000
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &StoryGenerator{client: client, key: apiKey, opts: opts}
}

func (g *StoryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("openai story: empty prompt")
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(reqCtx, goopenai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: g.opts.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", classify("openai story", fmt.Errorf("timeout after %s (model=%s): %w", requestTimeout, g.opts.Model, context.DeadlineExceeded), g.key)
		}
		return "", classify("openai story", err, g.key)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai story: no choices (model=%s)", g.opts.Model)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai story: empty completion (finish_reason=%s)", resp.Choices[0].FinishReason)
	}
	return text, nil
}
