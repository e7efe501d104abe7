package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arpan404/img/internal/config"
	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/logger"
	"github.com/arpan404/img/internal/metrics"
	"github.com/arpan404/img/internal/ports/adapters/openai"
	"github.com/arpan404/img/internal/ports/adapters/sources"
	"github.com/arpan404/img/internal/types"
	"github.com/arpan404/img/internal/usecase"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderESpeak = "espeak"
)

type Config struct {
	// ContentFile is the JSON or TOML file of styles and stories.
	ContentFile string
	// Names selects records; empty runs every record in the file.
	Names []string
	// Count is the number of videos per name.
	Count int
	// Output is an explicit path for a single video.
	Output  string
	OutDir  string
	Workers int
	// ScratchDir holds per-job temporary files; empty means the OS temp dir.
	ScratchDir string
	// Seed fixes the clip window randomness; zero draws a random seed.
	Seed uint64

	MaxWords      int
	MaxChars      int
	CaptionPolicy string
	Speed         float64
	SynthChunks   int
	Voice         string
	Preset        string
	CRF           int

	LLMProvider     string
	LLMAPIKey       string
	LLMBaseURL      string
	LLMModel        string
	LLMTemperature  float32
	LLMMaxTokens    int
	LLMAllowedHosts []string
	GeminiAPIKey    string
	GeminiModel     string

	TTSProvider  string
	OpenAIAPIKey string

	FFmpegPath   string
	FFprobePath  string
	ESpeakPath   string
	WhisperBin   string
	WhisperModel string

	VideosDir    string
	S3           sources.S3Options
	GCSEndpoint  string
	GCSAnonymous bool

	// StoryRPS and SpeechRPS cap calls per second across workers; zero is unlimited.
	StoryRPS  float64
	SpeechRPS float64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ContentFile) == "" {
		return errors.New("content file is empty")
	}
	if _, err := os.Stat(c.ContentFile); err != nil {
		return fmt.Errorf("stat content file: %w", err)
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.Output != "" && (len(c.Names) != 1 || c.Count != 1) {
		return fmt.Errorf("--output needs exactly one name and count 1")
	}
	if c.Speed < 0 || c.Speed > 4 {
		return fmt.Errorf("speed must be in (0, 4], got %v", c.Speed)
	}
	if c.MaxWords < 0 || c.MaxChars < 0 {
		return fmt.Errorf("caption limits must be >= 0")
	}
	if c.CaptionPolicy == captions.PolicyAligned {
		if c.WhisperModel == "" {
			return fmt.Errorf("aligned captions need a whisper model path")
		}
	} else if _, err := captions.ParsePolicy(c.CaptionPolicy); err != nil {
		return err
	}
	switch c.provider() {
	case ProviderOpenAI:
		if err := openai.ValidateBaseURL(c.LLMBaseURL, c.LLMAllowedHosts); err != nil {
			return err
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
	}
	switch c.ttsProvider() {
	case ProviderESpeak:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai speech needs OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown TTS provider %q", c.TTSProvider)
	}
	return nil
}

func (c Config) provider() string {
	if c.LLMProvider == "" {
		return ProviderOpenAI
	}
	return strings.ToLower(c.LLMProvider)
}

func (c Config) ttsProvider() string {
	if c.TTSProvider == "" {
		return ProviderESpeak
	}
	return strings.ToLower(c.TTSProvider)
}

// Run validates cfg, wires the adapters and produces every selected video.
// The manifest is written even when some jobs fail; the returned error then
// joins their *usecase.JobError values.
func Run(ctx context.Context, cfg Config) (types.Manifest, error) {
	if err := cfg.Validate(); err != nil {
		return types.Manifest{}, fmt.Errorf("config: %w", err)
	}
	catalog, err := config.LoadFile(cfg.ContentFile)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("config: %w", err)
	}
	records, err := selectRecords(catalog, cfg.Names)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("config: %w", err)
	}

	deps, err := newDeps(ctx, cfg, catalog.Dir, needsStory(records))
	if err != nil {
		return types.Manifest{}, fmt.Errorf("config: %w", err)
	}
	return runBatch(ctx, cfg, records, deps)
}

func selectRecords(c *config.Catalog, names []string) ([]config.Record, error) {
	if len(names) == 0 {
		names = c.Names()
	}
	if len(names) == 0 {
		return nil, errors.New("content file has no styles or stories")
	}
	out := make([]config.Record, 0, len(names))
	for _, n := range names {
		r, err := c.Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func needsStory(records []config.Record) bool {
	for _, r := range records {
		if r.Generated() {
			return true
		}
	}
	return false
}

// runBatch runs Count jobs per record on a bounded worker pool and writes
// manifest.json into the run directory.
func runBatch(ctx context.Context, cfg Config, records []config.Record, deps usecase.Deps) (types.Manifest, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	now := time.Now().UTC()
	runOutDir := buildRunOutDir(outDir, cfg.ContentFile, now)
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return types.Manifest{}, err
	}
	runID := filepath.Base(runOutDir)
	log = log.With("run_id", runID)
	log.Info("output run dir", "dir", runOutDir)

	deps.Logger = log
	if cfg.Metrics != nil {
		deps.Observer = cfg.Metrics
	}
	uc := usecase.New(deps, usecase.Options{
		MaxWords:    cfg.MaxWords,
		MaxChars:    cfg.MaxChars,
		Policy:      cfg.CaptionPolicy,
		Speed:       cfg.Speed,
		SynthChunks: cfg.SynthChunks,
		Voice:       cfg.Voice,
		ScratchRoot: scratchRoot(cfg.ScratchDir, runID),
		StoryRetry:  policy(cfg.StoryRPS),
		SpeechRetry: policy(cfg.SpeechRPS),
		SourceRetry: policy(0),
	})

	var jobs []usecase.Job
	for _, r := range records {
		for range cfg.Count {
			id := uuid.NewString()
			name := normalizePathSegment(r.Name)
			if name == "" {
				name = "video"
			}
			out := filepath.Join(runOutDir, fmt.Sprintf("%s-%s.mp4", name, id))
			if cfg.Output != "" {
				out = cfg.Output
			}
			jobs = append(jobs, usecase.Job{ID: id, Name: r.Name, Record: r, Output: out})
		}
	}
	log.Info("starting batch", "jobs", len(jobs), "workers", cfg.Workers)

	results := make([]types.ManifestJob, len(jobs))
	errs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := uc.Run(gctx, job)
			results[i] = manifestJob(runOutDir, res, err)
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	m := types.Manifest{
		RunID:     runID,
		Config:    cfg.ContentFile,
		StartedAt: now.Format(time.RFC3339),
		Jobs:      results,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(runOutDir, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return m, err
	}

	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	log.Info("manifest written", "jobs", len(jobs), "failed", failed, "path", manifestPath)
	if failed > 0 {
		return m, fmt.Errorf("%d of %d jobs failed: %w", failed, len(jobs), errors.Join(errs...))
	}
	return m, nil
}

func manifestJob(runOutDir string, res usecase.Result, err error) types.ManifestJob {
	j := types.ManifestJob{
		ID:      res.JobID,
		Name:    res.Name,
		State:   string(res.State),
		Elapsed: res.Elapsed.Seconds(),
	}
	if res.Plan != nil {
		w, c := res.Plan.Window(), res.Plan.Crop()
		j.Window = &w
		j.Crop = &c
		j.Cues = len(res.Plan.Cues())
	}
	if res.Output.Path != "" {
		j.File = res.Output.Path
		if rel, rerr := filepath.Rel(runOutDir, res.Output.Path); rerr == nil && !strings.HasPrefix(rel, "..") {
			j.File = filepath.ToSlash(rel)
		}
		j.Duration = res.Output.Duration
	}
	var je *usecase.JobError
	if errors.As(err, &je) {
		j.Stage = string(je.Stage)
		j.Kind = string(je.Kind)
		j.Error = je.Err.Error()
	}
	return j
}

func scratchRoot(dir, runID string) string {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "img")
	}
	return filepath.Join(dir, runID)
}

func buildRunOutDir(outRoot, contentFile string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(contentFile), filepath.Ext(contentFile))
	name = normalizePathSegment(name)
	if name == "" {
		name = "run"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", contentFile, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
