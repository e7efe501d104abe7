package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arpan404/img/internal/config"
	"github.com/arpan404/img/internal/pipeline"
	"github.com/arpan404/img/internal/ports/adapters/sources"
	"github.com/arpan404/img/internal/types"
)

// runFlags are shared by run and schedule.
type runFlags struct {
	count    int
	output   string
	out      string
	workers  int
	scratch  string
	seed     uint64
	maxWords int
	maxChars int
	captions string
	speed    float64
	chunks   int
	voice    string
	preset   string
	crf      int
	timeout  time.Duration
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fs := cmd.Flags()
	fs.IntVarP(&f.count, "count", "n", 1, "Videos per name")
	fs.StringVarP(&f.output, "output", "o", "", "Output file (one name, count 1)")
	fs.StringVar(&f.out, "out", "out", "Output directory")
	fs.IntVarP(&f.workers, "workers", "w", 2, "Concurrent jobs")
	fs.StringVar(&f.scratch, "scratch", "", "Scratch directory (default: OS temp dir)")
	fs.Uint64Var(&f.seed, "seed", 0, "Clip window seed; 0 picks one at random")
	fs.IntVar(&f.maxWords, "max-words", 0, "Max words per caption (1 gives per-word captions)")
	fs.IntVar(&f.maxChars, "max-chars", 0, "Max characters per caption")
	fs.StringVar(&f.captions, "captions", "proportional", "Caption timing: proportional, heuristic, aligned")
	fs.Float64Var(&f.speed, "speed", 0, "Narration tempo (default 1.25)")
	fs.IntVar(&f.chunks, "chunks", 0, "Max speech synthesis calls per narration (default 4)")
	fs.StringVar(&f.voice, "voice", "", "Voice name (env TTS_VOICE)")
	fs.StringVar(&f.preset, "preset", "", "x264 preset (default veryfast)")
	fs.IntVar(&f.crf, "crf", 0, "x264 CRF (default 18)")
	fs.DurationVar(&f.timeout, "timeout", 3*time.Hour, "Batch timeout")

	// Hidden tuning flags
	_ = fs.MarkHidden("chunks")
	_ = fs.MarkHidden("scratch")
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <content-file> [name...]",
		Short: "Produce videos for the named styles and stories (all when none given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(f, args[0], args[1:])
			if err != nil {
				return err
			}
			cfg.Logger = g.log

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			manifest, err := pipeline.Run(ctx, cfg)
			printOutputs(cmd, cfg, manifest)
			return err
		},
	}
	addRunFlags(cmd, f)
	return cmd
}

// buildConfig merges flags with the environment. Keys and tool paths only
// come from the environment.
func buildConfig(f *runFlags, contentFile string, names []string) (pipeline.Config, error) {
	abs, err := filepath.Abs(contentFile)
	if err != nil {
		return pipeline.Config{}, err
	}
	voice := f.voice
	if voice == "" {
		voice = config.GetEnv("TTS_VOICE", "")
	}
	return pipeline.Config{
		ContentFile: abs,
		Names:       names,
		Count:       f.count,
		Output:      f.output,
		OutDir:      f.out,
		Workers:     f.workers,
		ScratchDir:  f.scratch,
		Seed:        f.seed,

		MaxWords:      f.maxWords,
		MaxChars:      f.maxChars,
		CaptionPolicy: f.captions,
		Speed:         f.speed,
		SynthChunks:   f.chunks,
		Voice:         voice,
		Preset:        f.preset,
		CRF:           f.crf,

		LLMProvider:     config.GetEnv("LLM_PROVIDER", pipeline.ProviderOpenAI),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		LLMBaseURL:      config.GetEnv("LLM_API_URL", ""),
		LLMModel:        config.GetEnv("LLM_MODEL_NAME", ""),
		LLMTemperature:  float32(config.GetEnvFloat("LLM_TEMPERATURE", 0)),
		LLMMaxTokens:    config.GetEnvInt("LLM_MAX_TOKENS", 0),
		LLMAllowedHosts: config.GetEnvList("LLM_ALLOWED_HOSTS"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     config.GetEnv("GEMINI_MODEL", ""),

		TTSProvider:  config.GetEnv("TTS_PROVIDER", pipeline.ProviderESpeak),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		FFmpegPath:   config.GetEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  config.GetEnv("FFPROBE_PATH", "ffprobe"),
		ESpeakPath:   config.GetEnv("ESPEAK_PATH", "espeak-ng"),
		WhisperBin:   config.GetEnv("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: config.GetEnv("WHISPER_MODEL", ""),

		VideosDir: config.GetEnv("VIDEOS_DIR", ""),
		S3: sources.S3Options{
			Region:       config.GetEnv("AWS_REGION", ""),
			Profile:      config.GetEnv("AWS_PROFILE", ""),
			Endpoint:     config.GetEnv("S3_ENDPOINT", ""),
			UsePathStyle: config.GetEnv("S3_PATH_STYLE", "") == "true",
		},
		GCSEndpoint:  config.GetEnv("GCS_ENDPOINT", ""),
		GCSAnonymous: config.GetEnv("GCS_ANONYMOUS", "") == "true",

		StoryRPS:  config.GetEnvFloat("LLM_RPS", 0),
		SpeechRPS: config.GetEnvFloat("TTS_RPS", 0),
	}, nil
}

// printOutputs writes the path of every finished video to stdout.
func printOutputs(cmd *cobra.Command, cfg pipeline.Config, m types.Manifest) {
	for _, j := range m.Jobs {
		if j.File == "" {
			continue
		}
		p := j.File
		if cfg.Output == "" && !filepath.IsAbs(p) {
			p = filepath.Join(cfg.OutDir, m.RunID, filepath.FromSlash(p))
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
}
