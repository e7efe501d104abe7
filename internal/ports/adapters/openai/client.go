package openai

import (
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

const requestTimeout = 90 * time.Second

// NewClient builds a client for any OpenAI-compatible endpoint. baseURL is
// validated by the caller with ValidateBaseURL.
func NewClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = normalizeBaseURL(baseURL)
	cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	return goopenai.NewClientWithConfig(cfg)
}
