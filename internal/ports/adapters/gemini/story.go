package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/arpan404/img/internal/retry"
)

const (
	DefaultModel   = "gemini-2.0-flash-001"
	requestTimeout = 90 * time.Second
)

const systemInstruction = "You write stories for short narrated videos. Write plain narration only: " +
	"no titles, no markdown, no stage directions."

type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// StoryGenerator writes stories with the Gemini API.
type StoryGenerator struct {
	client *genai.Client
	key    string
	opts   Options
}

func New(ctx context.Context, apiKey string, opts Options) (*StoryGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &StoryGenerator{client: c, key: apiKey, opts: opts}, nil
}

func (g *StoryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("gemini story: empty prompt")
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(reqCtx, g.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.opts.Temperature),
		MaxOutputTokens:   g.opts.MaxTokens,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
	})
	if err != nil {
		return "", classify(err, g.key)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini story: empty completion (model=%s)", g.opts.Model)
	}
	return text, nil
}

func classify(err error, apiKey string) error {
	msg := err.Error()
	if apiKey != "" {
		msg = strings.ReplaceAll(msg, apiKey, "[REDACTED]")
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	wrapped := fmt.Errorf("gemini story: %s", msg)
	if code != 0 {
		wrapped = fmt.Errorf("gemini story: status %d: %s", code, msg)
	}
	if retry.TransientStatus(code) || (code == 0 && retry.IsTransient(err)) {
		return retry.Transient(wrapped)
	}
	return wrapped
}
