package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/domain/window"
	"github.com/arpan404/img/internal/metrics"
	"github.com/arpan404/img/internal/ports"
	"github.com/arpan404/img/internal/ports/adapters/espeak"
	"github.com/arpan404/img/internal/ports/adapters/ffmpeg"
	"github.com/arpan404/img/internal/ports/adapters/gemini"
	"github.com/arpan404/img/internal/ports/adapters/openai"
	"github.com/arpan404/img/internal/ports/adapters/sources"
	"github.com/arpan404/img/internal/ports/adapters/whispercpp"
	"github.com/arpan404/img/internal/retry"
	"github.com/arpan404/img/internal/usecase"
)

// newDeps builds the adapters cfg asks for. The story generator is only
// built, and its key only required, when a selected record has a prompt.
func newDeps(ctx context.Context, cfg Config, contentDir string, withStory bool) (usecase.Deps, error) {
	ff := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, ffmpeg.WithEncoding(cfg.Preset, cfg.CRF))

	srcOpts := []sources.Option{
		sources.WithConfigDir(contentDir),
		sources.WithVideosDir(cfg.VideosDir),
		sources.WithS3(cfg.S3),
	}
	if cfg.Logger != nil {
		srcOpts = append(srcOpts, sources.WithLogger(cfg.Logger))
	}
	if cfg.GCSEndpoint != "" {
		srcOpts = append(srcOpts, sources.WithGCSOptions(option.WithEndpoint(cfg.GCSEndpoint)))
	}
	if cfg.GCSAnonymous {
		srcOpts = append(srcOpts, sources.WithGCSOptions(option.WithoutAuthentication()))
	}

	d := usecase.Deps{
		Audio:    ff,
		Renderer: ff,
		Sources:  sources.New(ff, srcOpts...),
		Selector: selector(cfg.Seed),
	}

	switch cfg.ttsProvider() {
	case ProviderOpenAI:
		client := openai.NewClient(cfg.OpenAIAPIKey, openai.DefaultBaseURL)
		d.Synth = openai.NewSynthesizer(client, cfg.OpenAIAPIKey, "", cfg.Voice)
	default:
		d.Synth = espeak.New(cfg.ESpeakPath, 0)
	}

	if cfg.CaptionPolicy == captions.PolicyAligned {
		d.Transcriber = whispercpp.New(cfg.WhisperBin, cfg.WhisperModel, ff)
	}

	if withStory {
		story, err := newStoryGenerator(ctx, cfg)
		if err != nil {
			return usecase.Deps{}, err
		}
		d.Story = story
	}
	return d, nil
}

func newStoryGenerator(ctx context.Context, cfg Config) (ports.StoryGenerator, error) {
	switch cfg.provider() {
	case ProviderGemini:
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.Options{
			Model:       cfg.GeminiModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   int32(cfg.LLMMaxTokens),
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		if cfg.LLMAPIKey == "" {
			return nil, fmt.Errorf("story generation needs LLM_API_KEY")
		}
		client := openai.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL)
		return openai.NewStoryGenerator(client, cfg.LLMAPIKey, openai.StoryOptions{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}), nil
	}
}

func selector(seed uint64) *window.Selector {
	if seed == 0 {
		return window.New(nil)
	}
	return window.NewSeeded(seed)
}

// policy returns the default retry policy with a limiter shared by every
// worker when rps is positive.
func policy(rps float64) retry.Policy {
	p := retry.DefaultPolicy()
	if rps > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return p
}

// ensure adapters implement ports
var (
	_ ports.AudioTool      = (*ffmpeg.Adapter)(nil)
	_ ports.Renderer       = (*ffmpeg.Adapter)(nil)
	_ ports.VideoProber    = (*ffmpeg.Adapter)(nil)
	_ ports.SourceResolver = (*sources.Resolver)(nil)
	_ ports.Synthesizer    = (*espeak.Adapter)(nil)
	_ ports.Synthesizer    = (*openai.Synthesizer)(nil)
	_ ports.StoryGenerator = (*openai.StoryGenerator)(nil)
	_ ports.StoryGenerator = (*gemini.StoryGenerator)(nil)
	_ ports.Transcriber    = (*whispercpp.Adapter)(nil)
	_ whispercpp.Extractor = (*ffmpeg.Adapter)(nil)
	_ usecase.Observer     = (*metrics.Metrics)(nil)
)
