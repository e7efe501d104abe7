package openai

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/arpan404/img/internal/retry"
)

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
	skKeyRE       = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}\b`)
)

// classify redacts provider errors and marks rate limits, server errors and
// network failures as transient.
func classify(op string, err error, apiKey string) error {
	if err == nil {
		return nil
	}
	msg := truncate(redactSecrets(err.Error(), apiKey), 400)

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("%s: status %d: %s", op, apiErr.HTTPStatusCode, msg)
		if retry.TransientStatus(apiErr.HTTPStatusCode) {
			return retry.Transient(wrapped)
		}
		return wrapped
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		wrapped := fmt.Errorf("%s: status %d: %s", op, reqErr.HTTPStatusCode, msg)
		if retry.TransientStatus(reqErr.HTTPStatusCode) {
			return retry.Transient(wrapped)
		}
		return wrapped
	}
	wrapped := fmt.Errorf("%s: %s", op, msg)
	if retry.IsTransient(err) {
		return retry.Transient(wrapped)
	}
	return wrapped
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = skKeyRE.ReplaceAllString(out, "[REDACTED]")
	return out
}
