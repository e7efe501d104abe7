package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/arpan404/img/internal/ports"
)

// Synthesizer renders narration with the speech endpoint. Output is WAV so
// probing and concatenation stay lossless.
type Synthesizer struct {
	client *goopenai.Client
	key    string
	model  goopenai.SpeechModel
	voice  goopenai.SpeechVoice
}

func NewSynthesizer(client *goopenai.Client, apiKey, model, voice string) *Synthesizer {
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	if voice == "" {
		voice = string(goopenai.VoiceNova)
	}
	return &Synthesizer{client: client, key: apiKey, model: goopenai.SpeechModel(model), voice: goopenai.SpeechVoice(voice)}
}

func (s *Synthesizer) Ext() string { return ".wav" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts ports.SpeechOptions, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("openai speech: empty text")
	}
	voice := s.voice
	if opts.Voice != "" {
		voice = goopenai.SpeechVoice(opts.Voice)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := s.client.CreateSpeech(reqCtx, goopenai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: goopenai.SpeechResponseFormatWav,
	})
	if err != nil {
		return classify("openai speech", err, s.key)
	}
	defer resp.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		os.Remove(outPath)
		return classify("openai speech: read audio", err, s.key)
	}
	if err := f.Close(); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("openai speech: %w", err)
	}
	return nil
}
