package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arpan404/img/internal/config"
	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/domain/compose"
	"github.com/arpan404/img/internal/domain/crop"
	"github.com/arpan404/img/internal/domain/window"
	"github.com/arpan404/img/internal/ports"
	"github.com/arpan404/img/internal/retry"
	"github.com/arpan404/img/internal/types"
)

type fakeStory struct {
	texts []string
	errs  []error
	calls int
}

func (f *fakeStory) Generate(_ context.Context, _ string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.texts) {
		return f.texts[i], nil
	}
	return f.texts[len(f.texts)-1], nil
}

type fakeSynth struct {
	err    error
	onCall func()
	texts  []string
}

func (f *fakeSynth) Ext() string { return ".wav" }

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ ports.SpeechOptions, outPath string) error {
	f.texts = append(f.texts, text)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"), 0o644)
}

type fakeAudio struct {
	duration float64
	concat   [][]string
	tempo    []float64
	probed   []string
}

func (f *fakeAudio) ProbeAudio(_ context.Context, path string) (types.AudioInfo, error) {
	f.probed = append(f.probed, path)
	return types.AudioInfo{Duration: f.duration, SampleRate: 44100}, nil
}

func (f *fakeAudio) Concat(_ context.Context, parts []string, outPath string) error {
	f.concat = append(f.concat, parts)
	return os.WriteFile(outPath, []byte("RIFF"), 0o644)
}

func (f *fakeAudio) ChangeTempo(_ context.Context, _, outPath string, factor float64) error {
	f.tempo = append(f.tempo, factor)
	return os.WriteFile(outPath, []byte("RIFF"), 0o644)
}

type fakeSources struct {
	info types.SourceInfo
	err  error
}

// Resolve mimics a download by writing into the scratch dir.
func (f *fakeSources) Resolve(_ context.Context, ref, scratchDir string) (types.SourceInfo, error) {
	if f.err != nil {
		return types.SourceInfo{}, f.err
	}
	p := filepath.Join(scratchDir, "source.mp4")
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return types.SourceInfo{}, err
	}
	info := f.info
	info.Path = p
	return info, nil
}

type fakeRenderer struct {
	failures int
	calls    int
	plans    []compose.Plan
}

func (f *fakeRenderer) Render(_ context.Context, plan compose.Plan, outPath string) (types.RenderResult, error) {
	f.calls++
	f.plans = append(f.plans, plan)
	if f.calls <= f.failures {
		return types.RenderResult{}, errors.New("ffmpeg render: exit status 1")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return types.RenderResult{}, err
	}
	if err := os.WriteFile(outPath, []byte("mp4"), 0o644); err != nil {
		return types.RenderResult{}, err
	}
	return types.RenderResult{Path: outPath, Duration: plan.Duration(), Bytes: 3}, nil
}

type fakeTranscriber struct {
	words []types.Word
	err   error
}

func (f fakeTranscriber) TranscribeWords(_ context.Context, _, _ string) ([]types.Word, error) {
	return f.words, f.err
}

type fakeObserver struct {
	mu       sync.Mutex
	started  int
	finished []string
	stages   []string
	retried  map[string]int
}

func (o *fakeObserver) JobStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *fakeObserver) JobFinished(state, stage, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, state+"/"+stage+"/"+kind)
}

func (o *fakeObserver) StageDone(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *fakeObserver) Retried(service string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retried == nil {
		o.retried = map[string]int{}
	}
	o.retried[service]++
}

type harness struct {
	story    *fakeStory
	synth    *fakeSynth
	audio    *fakeAudio
	sources  *fakeSources
	renderer *fakeRenderer
	observer *fakeObserver
	deps     Deps
	opts     Options
	scratch  string
	out      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmp := t.TempDir()
	h := &harness{
		story:    &fakeStory{texts: []string{"A generated story."}},
		synth:    &fakeSynth{},
		audio:    &fakeAudio{duration: 6},
		sources:  &fakeSources{info: types.SourceInfo{Duration: 60, Width: 1920, Height: 1080, FPS: 30}},
		renderer: &fakeRenderer{},
		observer: &fakeObserver{},
		scratch:  filepath.Join(tmp, "scratch"),
		out:      filepath.Join(tmp, "out", "clip.mp4"),
	}
	fast := retry.Policy{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
	h.deps = Deps{
		Story:    h.story,
		Synth:    h.synth,
		Audio:    h.audio,
		Sources:  h.sources,
		Renderer: h.renderer,
		Selector: window.NewSeeded(7),
		Observer: h.observer,
	}
	h.opts = Options{
		Speed:       1,
		ScratchRoot: h.scratch,
		StoryRetry:  fast,
		SpeechRetry: fast,
		SourceRetry: fast,
	}
	return h
}

func (h *harness) run(ctx context.Context, rec config.Record) (Result, error) {
	return New(h.deps, h.opts).Run(ctx, Job{ID: "job-1", Record: rec, Output: h.out})
}

func literal(story string) config.Record {
	return config.Record{Name: "demo", Story: story, Video: "bg.mp4"}
}

func assertNoScratch(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch root to be empty, found %d entries", len(entries))
	}
}

func assertJobError(t *testing.T, err error, stage State, kind Kind) *JobError {
	t.Helper()
	var je *JobError
	if !errors.As(err, &je) {
		t.Fatalf("expected *JobError, got %T: %v", err, err)
	}
	if je.Stage != stage || je.Kind != kind {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", stage, kind, je.Stage, je.Kind, je.Err)
	}
	if je.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", je.JobID)
	}
	return je
}

func TestRun_LiteralStoryEndToEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.run(context.Background(), literal("Hello world this is a test"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.State != Cleaned {
		t.Fatalf("expected cleaned, got %s", res.State)
	}
	want := []State{StoryReady, AudioReady, PlanBuilt, Rendered, Cleaned}
	if len(res.Transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %+v", len(want), res.Transitions)
	}
	prev := Created
	for i, tr := range res.Transitions {
		if tr.From != prev || tr.To != want[i] {
			t.Fatalf("transition %d: got %s -> %s", i, tr.From, tr.To)
		}
		prev = tr.To
	}

	if h.story.calls != 0 {
		t.Fatalf("literal stories must not call the generator")
	}
	if res.Plan == nil {
		t.Fatalf("expected plan in result")
	}
	cues := res.Plan.Cues()
	if len(cues) != 2 || cues[0].Text != "Hello world this" || cues[1].Text != "is a test" {
		t.Fatalf("unexpected cues: %+v", cues)
	}
	if cues[1].Start != 3 || cues[1].Duration != 3 {
		t.Fatalf("unexpected second cue timing: %+v", cues[1])
	}
	if c := res.Plan.Crop(); c.Left != 656 || c.Right != 1264 {
		t.Fatalf("unexpected crop: %+v", c)
	}
	if w := res.Plan.Window(); w.Span != 6 || w.StartOffset < 0 || w.StartOffset+w.Span > 60 {
		t.Fatalf("unexpected window: %+v", w)
	}
	if res.Output.Path != h.out {
		t.Fatalf("unexpected output %q", res.Output.Path)
	}
	if _, err := os.Stat(h.out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	assertNoScratch(t, h.scratch)

	if h.observer.started != 1 || len(h.observer.finished) != 1 || h.observer.finished[0] != "cleaned//" {
		t.Fatalf("unexpected observer events: %+v", h.observer)
	}
	if strings.Join(h.observer.stages, ",") != "story_ready,audio_ready,plan_built,rendered,cleaned" {
		t.Fatalf("unexpected stages: %v", h.observer.stages)
	}
}

func TestRun_SynthesizerFailureCleansUp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.synth.err = errors.New("espeak-ng: voice not found")

	res, err := h.run(context.Background(), literal("Hello world this is a test"))
	assertJobError(t, err, AudioReady, KindAudioSynthesis)
	if res.State != Failed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	last := res.Transitions[len(res.Transitions)-1]
	if last.From != StoryReady || last.To != Failed {
		t.Fatalf("unexpected last transition %+v", last)
	}
	if h.renderer.calls != 0 {
		t.Fatalf("renderer must not run after a failed stage")
	}
	if len(h.synth.texts) != 1 {
		t.Fatalf("non-transient synthesis errors must not be retried, got %d calls", len(h.synth.texts))
	}
	if _, err := os.Stat(h.out); !os.IsNotExist(err) {
		t.Fatalf("expected no output, stat err=%v", err)
	}
	assertNoScratch(t, h.scratch)
	if h.observer.finished[0] != "failed/audio_ready/AudioSynthesisError" {
		t.Fatalf("unexpected finish event %q", h.observer.finished[0])
	}
}

func TestRun_GeneratedStoryRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.story.errs = []error{retry.Transient(errors.New("status 429"))}
	h.story.texts = []string{"## Title\n(whispering) Once upon a time. [Narrator] The end."}

	res, err := h.run(context.Background(), config.Record{Name: "fable", Prompt: "a fable", Video: "bg.mp4"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.story.calls != 2 {
		t.Fatalf("expected 2 story calls, got %d", h.story.calls)
	}
	if res.Story != "Title Once upon a time. The end." {
		t.Fatalf("unexpected cleaned story %q", res.Story)
	}
	if h.observer.retried["story"] != 1 {
		t.Fatalf("expected one story retry, got %v", h.observer.retried)
	}
}

func TestRun_StageFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(h *harness)
		rec   config.Record
		stage State
		kind  Kind
		cause error
	}{
		{
			name:  "invalid record",
			rec:   config.Record{Name: "x", Story: "hi"},
			stage: StoryReady,
			kind:  KindConfiguration,
			cause: config.ErrInvalid,
		},
		{
			name:  "prompt without generator",
			setup: func(h *harness) { h.deps.Story = nil },
			rec:   config.Record{Name: "x", Prompt: "p", Video: "bg.mp4"},
			stage: StoryReady,
			kind:  KindConfiguration,
		},
		{
			name:  "story empty after cleaning",
			rec:   literal("(silence) [beat]"),
			stage: StoryReady,
			kind:  KindConfiguration,
		},
		{
			name:  "source unavailable",
			setup: func(h *harness) { h.sources.err = errors.New("no such file") },
			rec:   literal("Hello there."),
			stage: StoryReady,
			kind:  KindSourceUnavailable,
		},
		{
			name:  "generator fails",
			setup: func(h *harness) { h.story.errs = []error{errors.New("status 401")} },
			rec:   config.Record{Name: "x", Prompt: "p", Video: "bg.mp4"},
			stage: StoryReady,
			kind:  KindStoryGeneration,
		},
		{
			name:  "source shorter than narration",
			setup: func(h *harness) { h.sources.info.Duration = 3 },
			rec:   literal("Hello there."),
			stage: PlanBuilt,
			kind:  KindInsufficientSourceDuration,
			cause: window.ErrInsufficientSourceDuration,
		},
		{
			name:  "source too narrow",
			setup: func(h *harness) { h.sources.info.Width, h.sources.info.Height = 500, 1080 },
			rec:   literal("Hello there."),
			stage: PlanBuilt,
			kind:  KindSourceTooNarrow,
			cause: crop.ErrSourceTooNarrow,
		},
		{
			name:  "render fails twice",
			setup: func(h *harness) { h.renderer.failures = 2 },
			rec:   literal("Hello there."),
			stage: Rendered,
			kind:  KindRender,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if tc.setup != nil {
				tc.setup(h)
			}
			res, err := h.run(context.Background(), tc.rec)
			je := assertJobError(t, err, tc.stage, tc.kind)
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Fatalf("expected cause %v in chain, got %v", tc.cause, je.Err)
			}
			if KindOf(err) != tc.kind {
				t.Fatalf("KindOf: got %q", KindOf(err))
			}
			if res.State != Failed {
				t.Fatalf("expected failed, got %s", res.State)
			}
			assertNoScratch(t, h.scratch)
			if _, err := os.Stat(h.out); !os.IsNotExist(err) {
				t.Fatalf("expected no output, stat err=%v", err)
			}
		})
	}
}

func TestRun_SourceCheckedBeforeStory(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sources.err = errors.New("missing")

	_, err := h.run(context.Background(), config.Record{Name: "x", Prompt: "p", Video: "bg.mp4"})
	assertJobError(t, err, StoryReady, KindSourceUnavailable)
	if h.story.calls != 0 {
		t.Fatalf("story generator called before the source was resolved")
	}
}

func TestRun_RenderRetriedOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.renderer.failures = 1

	res, err := h.run(context.Background(), literal("Hello there."))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.renderer.calls != 2 {
		t.Fatalf("expected 2 render calls, got %d", h.renderer.calls)
	}
	if res.State != Cleaned {
		t.Fatalf("expected cleaned, got %s", res.State)
	}
	if h.observer.retried["render"] != 1 {
		t.Fatalf("expected one render retry, got %v", h.observer.retried)
	}
}

func TestRun_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("before start", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.run(ctx, literal("Hello there."))
		assertJobError(t, err, StoryReady, KindCancelled)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain: %v", err)
		}
	})

	t.Run("during synthesis", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.synth.onCall = cancel
		h.synth.err = errors.New("killed")

		_, err := h.run(ctx, literal("Hello there."))
		assertJobError(t, err, AudioReady, KindCancelled)
		assertNoScratch(t, h.scratch)
	})
}

func TestRun_ChunkedNarrationWithTempo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.opts.Speed = 0
	h.opts.SynthChunks = 3
	story := "One fish swam. Two fish swam. Red fish swam. Blue fish swam. Old fish swam. New fish swam."

	res, err := h.run(context.Background(), literal(story))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(h.synth.texts); n < 2 || n > 3 {
		t.Fatalf("expected 2..3 synth calls, got %d", n)
	}
	if strings.Join(h.synth.texts, " ") != story {
		t.Fatalf("chunks do not reproduce the story: %q", h.synth.texts)
	}
	if len(h.audio.concat) != 1 || len(h.audio.concat[0]) != len(h.synth.texts) {
		t.Fatalf("unexpected concat calls: %v", h.audio.concat)
	}
	if len(h.audio.tempo) != 1 || h.audio.tempo[0] != DefaultSpeed {
		t.Fatalf("expected tempo %v, got %v", DefaultSpeed, h.audio.tempo)
	}
	if filepath.Base(res.Narration.Path) != "narration.wav" {
		t.Fatalf("unexpected narration path %q", res.Narration.Path)
	}
}

func TestRun_AlignedCaptions(t *testing.T) {
	t.Parallel()

	t.Run("uses word timings", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.opts.Policy = captions.PolicyAligned
		h.opts.MaxWords = 1
		h.deps.Transcriber = fakeTranscriber{words: []types.Word{
			{Start: 0, End: 1.5, Word: "Hello"},
			{Start: 4, End: 5, Word: "there."},
		}}
		res, err := h.run(context.Background(), literal("Hello there."))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		cues := res.Plan.Cues()
		if len(cues) != 2 || cues[1].Start != 1.5 || cues[1].Duration != 4.5 {
			t.Fatalf("expected boundary at the first word's end, got %+v", cues)
		}
	})

	t.Run("falls back when alignment fails", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.opts.Policy = captions.PolicyAligned
		h.opts.MaxWords = 1
		h.deps.Transcriber = fakeTranscriber{err: errors.New("whisper.cpp failed")}
		res, err := h.run(context.Background(), literal("Hello there."))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if cues := res.Plan.Cues(); len(cues) != 2 || cues[1].Start != 3 {
			t.Fatalf("expected proportional cues, got %+v", cues)
		}
	})

	t.Run("needs a transcriber", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.opts.Policy = captions.PolicyAligned
		_, err := h.run(context.Background(), literal("Hello there."))
		assertJobError(t, err, StoryReady, KindConfiguration)
	})
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"single sentence", "Just one sentence here", 4, []string{"Just one sentence here"}},
		{"one chunk allowed", "A. B. C.", 1, []string{"A. B. C."}},
		{"even split", "Aaaa. Bbbb. Cccc. Dddd.", 2, []string{"Aaaa. Bbbb.", "Cccc. Dddd."}},
		{"fewer sentences than chunks", "Yes! No?", 4, []string{"Yes!", "No?"}},
		{"leading punctuation kept", "...and then. It ended.", 2, []string{"... and then.", "It ended."}},
	}
	for _, tc := range cases {
		got := splitChunks(tc.text, tc.max)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
		if len(got) > max(tc.max, 1) {
			t.Fatalf("%s: %d chunks exceeds %d", tc.name, len(got), tc.max)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	if !CanTransition(Created, StoryReady) || !CanTransition(Rendered, Cleaned) {
		t.Fatalf("forward transitions must be legal")
	}
	if CanTransition(Created, AudioReady) {
		t.Fatalf("skipping a state must be illegal")
	}
	if !CanTransition(PlanBuilt, Failed) {
		t.Fatalf("any live state can fail")
	}
	if CanTransition(Failed, Created) || CanTransition(Cleaned, Failed) {
		t.Fatalf("terminal states are absorbing")
	}
}
